package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentx/agentx/db"
	"github.com/agentx/agentx/internal/agent"
	"github.com/agentx/agentx/internal/blob"
	"github.com/agentx/agentx/internal/chunker"
	"github.com/agentx/agentx/internal/config"
	"github.com/agentx/agentx/internal/extract"
	"github.com/agentx/agentx/internal/grounding"
	"github.com/agentx/agentx/internal/ingest"
	"github.com/agentx/agentx/internal/knowledge"
	"github.com/agentx/agentx/internal/log"
	"github.com/agentx/agentx/internal/security"
	"github.com/agentx/agentx/internal/session"
)

// Setup builds the application in dependency order: migrations and the
// database pool first, then the Genkit embedder, then the stores, the
// ingestion pipeline, and finally the agent.
//
// On failure everything already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.New(log.Config{})
	}

	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := providePool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, embedder, err := provideEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Embedder = embedder

	a.Knowledge = knowledge.NewStore(
		knowledge.NewQueries(pool),
		pool,
		knowledge.NewEmbedder(embedder, cfg.EmbedderModel),
		logger,
	)
	a.Sessions = session.New(session.NewQueries(pool), pool, logger)

	blobs, err := blob.New(cfg.BlobDir, logger)
	if err != nil {
		return nil, fmt.Errorf("creating blob store: %w", err)
	}
	a.Blobs = blobs

	splitter, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("creating chunker: %w", err)
	}
	a.Pipeline = ingest.New(splitter, extract.NewText(), a.Knowledge, blobs, logger)

	ag, err := provideAgent(cfg, a.Knowledge, a.Sessions, logger)
	if err != nil {
		return nil, err
	}
	a.Agent = ag

	return a, nil
}

// providePool runs migrations and opens the connection pool.
func providePool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideEmbedder initializes Genkit with the Gemini plugin and looks up
// the configured embedder. GEMINI_API_KEY is read by the plugin itself.
func provideEmbedder(ctx context.Context, cfg *config.Config) (*genkit.Genkit, ai.Embedder, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, nil, errors.New("initializing genkit with gemini provider")
	}

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	return g, embedder, nil
}

// provideAgent wires the retrieval and grounding tools into the agent.
// Without a grounding API key the agent runs retrieval-only and returns
// a degraded answer when the knowledge base has no match.
func provideAgent(cfg *config.Config, index *knowledge.Store, memory *session.Store, logger log.Logger) (*agent.Agent, error) {
	retrieval, err := agent.NewRetrieval(index, cfg.SimilarityThreshold, cfg.TopK, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retrieval tool: %w", err)
	}

	var grounder agent.Grounder
	if cfg.Grounding.APIKey == "" {
		logger.Warn("PERPLEXITY_API_KEY not set, web grounding disabled")
	} else {
		// The endpoint is operator-configurable, so it gets the full
		// outbound-target treatment: static check here, resolved-IP
		// check in the transport.
		urlCheck := security.NewURL()
		if err := urlCheck.Validate(cfg.Grounding.BaseURL); err != nil {
			return nil, fmt.Errorf("grounding base URL rejected: %w", err)
		}
		client, err := grounding.New(cfg.Grounding.BaseURL, cfg.Grounding.APIKey, logger,
			grounding.WithModel(cfg.Grounding.Model),
			grounding.WithHTTPClient(&http.Client{
				Timeout:   time.Duration(cfg.CallTimeoutSeconds) * time.Second,
				Transport: urlCheck.SafeTransport(),
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("creating grounding client: %w", err)
		}
		grounder = client
	}

	retry := agent.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries

	return agent.New(retrieval, grounder, memory, retry, logger)
}
