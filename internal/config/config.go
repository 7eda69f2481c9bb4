// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.agentx/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Retrieval: embedder model, similarity threshold, top-k
//   - Chunking: chunk size and overlap
//   - Storage: PostgreSQL connection and blob directory (see storage.go)
//   - Grounding: web answer API endpoint and model
//
// Security: sensitive data (passwords, API keys) is never logged; the config
// directory uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidThreshold indicates the similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidTopK indicates the top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidChunking indicates the chunk size or overlap is invalid.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTimeout indicates the external call timeout is invalid.
	ErrInvalidTimeout = errors.New("invalid call timeout")

	// ErrInvalidRetries indicates the retry count is out of range.
	ErrInvalidRetries = errors.New("invalid max retries")

	// ErrInvalidGroundingURL indicates the grounding API base URL is invalid.
	ErrInvalidGroundingURL = errors.New("invalid grounding base URL")

	// ErrInvalidBlobDir indicates the blob directory is invalid.
	ErrInvalidBlobDir = errors.New("invalid blob directory")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// text-embedding-004 outputs 768 dimensions, matching the pgvector schema.
	DefaultEmbedderModel = "text-embedding-004"

	// DefaultSimilarityThreshold is the minimum cosine similarity for a chunk
	// to count as a retrieval match. Below this, the knowledge base is
	// considered to have no answer and the agent falls back to web grounding.
	DefaultSimilarityThreshold = 0.7

	// DefaultTopK is the number of chunks retrieved per query.
	DefaultTopK = 3

	// DefaultChunkSize is the chunk window in characters.
	// Roughly 250 tokens at the common 4-chars-per-token approximation.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the number of characters shared between
	// consecutive chunks to preserve context across boundaries.
	DefaultChunkOverlap = 200
)

// GroundingConfig configures the web grounding client.
type GroundingConfig struct {
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	Model   string `mapstructure:"model" json:"model"`
	APIKey  string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
}

// MarshalJSON masks the API key.
func (g GroundingConfig) MarshalJSON() ([]byte, error) {
	type alias GroundingConfig
	a := alias(g)
	a.APIKey = maskSecret(a.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal grounding config: %w", err)
	}
	return data, nil
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// Retrieval configuration
	EmbedderModel       string  `mapstructure:"embedder_model" json:"embedder_model"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	TopK                int     `mapstructure:"top_k" json:"top_k"`

	// Chunking configuration
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// External call policy
	CallTimeoutSeconds int `mapstructure:"call_timeout_seconds" json:"call_timeout_seconds"`
	MaxRetries         int `mapstructure:"max_retries" json:"max_retries"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// BlobDir is the root directory of the raw document store.
	BlobDir string `mapstructure:"blob_dir" json:"blob_dir"`

	// Grounding configuration
	Grounding GroundingConfig `mapstructure:"grounding" json:"grounding"`

	// Server configuration (serve mode only)
	ServeAddr  string `mapstructure:"serve_addr" json:"serve_addr"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For headers (set true behind reverse proxy)
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.agentx/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".agentx")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	// Set default values
	setDefaults()

	// Bind environment variables
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Expand ~ in blob_dir relative to the user's home
	if cfg.BlobDir == "" {
		cfg.BlobDir = filepath.Join(configDir, "blobs")
	}

	// CRITICAL: validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Retrieval defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("similarity_threshold", DefaultSimilarityThreshold)
	viper.SetDefault("top_k", DefaultTopK)

	// Chunking defaults
	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("chunk_overlap", DefaultChunkOverlap)

	// External call policy defaults
	viper.SetDefault("call_timeout_seconds", 10)
	viper.SetDefault("max_retries", 2)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "agentx")
	viper.SetDefault("postgres_password", "agentx_dev_password")
	viper.SetDefault("postgres_db_name", "agentx")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Grounding defaults
	viper.SetDefault("grounding.base_url", "https://api.perplexity.ai")
	viper.SetDefault("grounding.model", "sonar")

	// Server defaults
	viper.SetDefault("serve_addr", "127.0.0.1:8080")
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)
}

// bindEnvVariables binds sensitive environment variables explicitly.
// Secrets never live in the config file:
//  1. GEMINI_API_KEY - read directly by Genkit (not via Viper), presence checked in cfg.Validate()
//  2. PERPLEXITY_API_KEY - grounding API key
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// Grounding API key and endpoint overrides
	mustBind("grounding.api_key", "PERPLEXITY_API_KEY")
	mustBind("grounding.base_url", "AGENTX_GROUNDING_URL")
	mustBind("grounding.model", "AGENTX_GROUNDING_MODEL")

	// Runtime overrides
	mustBind("embedder_model", "AGENTX_EMBEDDER_MODEL")
	mustBind("similarity_threshold", "AGENTX_SIMILARITY_THRESHOLD")
	mustBind("top_k", "AGENTX_TOP_K")
	mustBind("blob_dir", "AGENTX_BLOB_DIR")
	mustBind("serve_addr", "AGENTX_SERVE_ADDR")
	mustBind("trust_proxy", "AGENTX_TRUST_PROXY")
	mustBind("rate_burst", "AGENTX_RATE_BURST")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
	// Validation checks its presence in cfg.Validate().
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid accidental substring matches against
// real secret material.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or fewer are fully masked to prevent substring
// matching; longer secrets show the first and last 2 characters.
//
// THREAT MODEL: this defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - Grounding.APIKey (via GroundingConfig.MarshalJSON)
//
// When adding new sensitive fields, update this method or the nested
// struct's MarshalJSON. The compiler will remind you when tests fail.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	// Note: Grounding.APIKey is handled by its own MarshalJSON
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
