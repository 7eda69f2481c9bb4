// Package cmd implements the agentx command line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentx/agentx/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "agentx",
	Short: "agentx - a retrieval-grounded conversational agent",
	Long: `agentx answers questions from an indexed knowledge base, falling back
to a web answer service when the knowledge base has no match.

Commands:
  serve    start the HTTP API server
  ingest   index documents into the knowledge base
  ask      ask a single question from the terminal
  version  show version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogger builds the process logger. DEBUG in the environment enables
// debug level; AGENTX_LOG_JSON switches to JSON output for log shippers.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("AGENTX_LOG_JSON") != "" {
		cfg.JSON = true
	}
	return log.New(cfg)
}
