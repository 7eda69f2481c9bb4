package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentx/agentx/internal/app"
	"github.com/agentx/agentx/internal/config"
)

var askThreadID string

var askCmd = &cobra.Command{
	Use:   "ask <question>...",
	Short: "Ask a single question from the terminal",
	Long: `Ask the agent one question and print the answer.

Without --thread a new conversation thread is created; pass the printed
thread ID to follow-up questions to keep them in the same thread.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(args)
	},
}

func init() {
	askCmd.Flags().StringVar(&askThreadID, "thread", "", "existing thread ID to continue")
	rootCmd.AddCommand(askCmd)
}

func runAsk(args []string) error {
	logger := initLogger()

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question is empty")
	}

	var threadID *uuid.UUID
	if askThreadID != "" {
		id, err := uuid.Parse(askThreadID)
		if err != nil {
			return fmt.Errorf("invalid thread ID %q: %w", askThreadID, err)
		}
		threadID = &id
	}

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

	resp, err := a.Agent.HandleQuery(ctx, question, threadID)
	if err != nil {
		return fmt.Errorf("handling query: %w", err)
	}

	fmt.Println(resp.Answer)
	if len(resp.Citations) > 0 {
		fmt.Println()
		for i, c := range resp.Citations {
			fmt.Printf("[%d] %s\n", i+1, c.Source)
		}
	}
	fmt.Printf("\nthread: %s (tool: %s)\n", resp.ThreadID, resp.ToolUsed)

	return nil
}
