package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentx/agentx/internal/app"
	"github.com/agentx/agentx/internal/config"
	"github.com/agentx/agentx/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Index documents into the knowledge base",
	Long: `Index one or more text files into the knowledge base.

Each file is fingerprinted by content; re-ingesting an identical file is
a no-op reported as "duplicate". Files that cannot be decoded as text
are rejected.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(paths []string) error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	var failed int
	for _, path := range paths {
		if err := ingestOne(ctx, a.Pipeline, path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

func ingestOne(ctx context.Context, pipeline *ingest.Pipeline, path string) error {
	raw, err := os.ReadFile(path) //nolint:gosec // path is a user-supplied CLI argument
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	result, err := pipeline.Ingest(ctx, raw, filepath.Base(path))
	if err != nil {
		return err
	}

	switch result.Status {
	case ingest.StatusDuplicate:
		fmt.Printf("%s: already indexed (document %s)\n", path, result.DocumentID)
	case ingest.StatusIndexedNoBlob:
		fmt.Printf("%s: indexed as %s (%d chunks), raw file retention failed\n",
			path, result.DocumentID, result.ChunksCreated)
	default:
		fmt.Printf("%s: indexed as %s (%d chunks)\n", path, result.DocumentID, result.ChunksCreated)
	}
	return nil
}
