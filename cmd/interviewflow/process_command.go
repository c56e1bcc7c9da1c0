package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/prepstack/interviewflow/internal/config"
)

// newProcessCommand runs the workflow for one interview id without going
// through the queue. Useful for reprocessing a stuck interview by hand.
func newProcessCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "process <interview-id>",
		Aliases: []string{"single-interview"},
		Short:   "Process a single interview by id, bypassing the queue",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := newLogger("process")
			ctx := cmd.Context()

			orchestrator, interviews, err := newOrchestrator(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := interviews.Close(); err != nil {
					logger.Printf("state store close error: %v", err)
				}
			}()

			result, err := orchestrator.Process(ctx, args[0])
			if err != nil {
				return err
			}

			logger.Printf(
				"done interview_id=%s outcome=%s questions=%d duration=%s noop=%t",
				result.InterviewID, result.Outcome, result.Questions, result.Duration.Round(time.Millisecond), result.NoOp,
			)

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		},
	}
}
