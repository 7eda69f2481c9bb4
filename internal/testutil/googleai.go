// Package testutil provides shared test infrastructure: a live Gemini
// embedder setup for integration tests and a deterministic in-process
// embedder for everything else.
package testutil

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/agentx/agentx/internal/log"
)

// GoogleAISetup holds the resources for tests that talk to the real
// Gemini embedding API.
type GoogleAISetup struct {
	Embedder ai.Embedder
	Genkit   *genkit.Genkit
	Logger   log.Logger
}

// SetupGoogleAI initializes Genkit with the Gemini plugin for an
// integration test. Skips the test when GEMINI_API_KEY is not set so
// the suite stays green in environments without credentials.
func SetupGoogleAI(t *testing.T, model string) *GoogleAISetup {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping live embedder test in short mode")
	}
	if _, ok := lookupAPIKey(); !ok {
		t.Skip("GEMINI_API_KEY not set, skipping test requiring live embedder")
	}

	g := genkit.Init(context.Background(), genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		t.Fatal("initializing genkit")
	}

	embedder := googlegenai.GoogleAIEmbedder(g, model)
	if embedder == nil {
		t.Fatalf("embedder %q not found", model)
	}

	return &GoogleAISetup{
		Embedder: embedder,
		Genkit:   g,
		Logger:   log.NewNop(),
	}
}
