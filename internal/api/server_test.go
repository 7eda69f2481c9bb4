package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx/agentx/internal/agent"
	"github.com/agentx/agentx/internal/log"
	"github.com/agentx/agentx/internal/session"
)

func validServerConfig() ServerConfig {
	return ServerConfig{
		Logger:   log.NewNop(),
		Agent:    &mockAgent{resp: &agent.Response{ThreadID: uuid.New(), ToolUsed: session.ToolNone}},
		Pipeline: &mockPipeline{},
		Index:    &mockLister{},
		Sessions: &mockThreadStore{},
	}
}

func TestNewServerValidation(t *testing.T) {
	mutations := map[string]func(*ServerConfig){
		"missing agent":    func(c *ServerConfig) { c.Agent = nil },
		"missing pipeline": func(c *ServerConfig) { c.Pipeline = nil },
		"missing index":    func(c *ServerConfig) { c.Index = nil },
		"missing sessions": func(c *ServerConfig) { c.Sessions = nil },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := validServerConfig()
			mutate(&cfg)
			_, err := NewServer(cfg)
			assert.Error(t, err)
		})
	}
}

func TestServerRoutes(t *testing.T) {
	srv, err := NewServer(validServerConfig())
	require.NoError(t, err)
	handler := srv.Handler()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/api/v1/threads", http.StatusOK},
		{http.MethodGet, "/api/v1/documents", http.StatusOK},
		{http.MethodGet, "/api/v1/chat", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		req.RemoteAddr = "203.0.113.7:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestServerReadyzWithoutPool(t *testing.T) {
	srv, err := NewServer(validServerConfig())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimiting(t *testing.T) {
	cfg := validServerConfig()
	cfg.RateBurst = 2
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	handler := srv.Handler()

	var lastStatus int
	for range 5 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/threads", nil)
		req.RemoteAddr = "198.51.100.9:4321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastStatus = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastStatus)

	// Health probes are exempt from rate limiting.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "198.51.100.9:4321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := newRateLimiter(1.0, 1)

	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	// A different IP has its own bucket.
	assert.True(t, rl.allow("10.0.0.2"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5000"
	req.Header.Set("X-Real-IP", "203.0.113.50")

	assert.Equal(t, "192.0.2.1", clientIP(req, false), "headers ignored without trustProxy")
	assert.Equal(t, "203.0.113.50", clientIP(req, true))

	req.Header.Set("X-Real-IP", "not-an-ip")
	req.Header.Set("X-Forwarded-For", "198.51.100.2, 10.0.0.1")
	assert.Equal(t, "198.51.100.2", clientIP(req, true), "invalid X-Real-IP falls through to X-Forwarded-For")
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := recoveryMiddleware(log.NewNop())(panicking)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}
