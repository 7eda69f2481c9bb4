// Package app assembles the application from its components.
//
// App is the dependency container: it owns the database pool, the Genkit
// runtime, the knowledge and session stores, the ingestion pipeline, and
// the agent. Setup builds everything in dependency order; Close releases
// resources in reverse.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentx/agentx/internal/agent"
	"github.com/agentx/agentx/internal/blob"
	"github.com/agentx/agentx/internal/config"
	"github.com/agentx/agentx/internal/ingest"
	"github.com/agentx/agentx/internal/knowledge"
	"github.com/agentx/agentx/internal/log"
	"github.com/agentx/agentx/internal/session"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	Pool      *pgxpool.Pool
	Knowledge *knowledge.Store
	Sessions  *session.Store
	Blobs     *blob.Store

	Pipeline *ingest.Pipeline
	Agent    *agent.Agent
}

// Close releases all resources held by the App.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Debug("database pool closed")
	}
	return nil
}
