package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/prepstack/interviewflow/internal/config"
	"github.com/prepstack/interviewflow/internal/telemetry"
	"github.com/prepstack/interviewflow/internal/worker"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "worker",
		Aliases: []string{"sqs"},
		Short:   "Run the interview processing worker",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := newLogger("worker")
			ctx := cmd.Context()

			shutdownTracing, err := telemetry.SetupTracing(ctx, "interviewflow-worker", cfg.Telemetry, logger)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(shutdownCtx); err != nil {
					logger.Printf("tracing shutdown failed: %v", err)
				}
			}()

			orchestrator, interviews, err := newOrchestrator(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := interviews.Close(); err != nil {
					logger.Printf("state store close error: %v", err)
				}
			}()

			srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, orchestrator)
			if err != nil {
				return err
			}

			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", srv.MetricsHandler())
				logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
				if err := http.ListenAndServe(cfg.Worker.MetricsAddr, mux); err != nil {
					logger.Printf("metrics server failed: %v", err)
				}
			}()

			logger.Printf(
				"starting worker concurrency=%d max_active_jobs=%d queue=%s redis=%s",
				cfg.Worker.Concurrency,
				cfg.Worker.MaxActiveJobs,
				cfg.Queue.Name,
				cfg.Queue.RedisAddr,
			)
			return srv.Run()
		},
	}
}
