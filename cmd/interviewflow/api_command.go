package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prepstack/interviewflow/internal/api"
	"github.com/prepstack/interviewflow/internal/config"
	"github.com/prepstack/interviewflow/internal/queue"
	"github.com/prepstack/interviewflow/internal/ratelimit"
	"github.com/prepstack/interviewflow/internal/store"
	"github.com/prepstack/interviewflow/internal/telemetry"
)

func newAPICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Run the intake API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := newLogger("api")
			ctx := cmd.Context()

			shutdownTracing, err := telemetry.SetupTracing(ctx, "interviewflow-api", cfg.Telemetry, logger)
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

			storageClient, err := newStorageClient(ctx, cfg.Storage)
			if err != nil {
				return err
			}

			interviews, err := store.NewPostgresStore(ctx, cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("initialize state store: %w", err)
			}
			defer func() {
				if err := interviews.Close(); err != nil {
					logger.Printf("state store close error: %v", err)
				}
			}()

			queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name, cfg.Queue.MaxRetry, cfg.Queue.TaskTimeout)
			defer func() {
				if err := queueClient.Close(); err != nil {
					logger.Printf("queue client close error: %v", err)
				}
			}()

			var rateLimiter api.RateLimiter
			if cfg.API.RateLimitPerMinute > 0 {
				limiter, err := ratelimit.NewRedisTokenBucket(newRedisClient(cfg.Queue), cfg.API.RateLimitPerMinute, time.Minute, "interviewflow:api")
				if err != nil {
					return fmt.Errorf("initialize rate limiter: %w", err)
				}
				rateLimiter = limiter
			}

			app := api.NewServer(logger, queueClient, interviews, interviews, storageClient, api.Options{
				PresignTTL:   cfg.API.PresignTTL,
				RateLimiter:  rateLimiter,
				UserIDHeader: cfg.API.UserIDHeader,
			})

			httpServer := &http.Server{
				Addr:         cfg.API.Addr,
				Handler:      app.Handler(),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			go func() {
				logger.Printf("listening on %s", cfg.API.Addr)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatalf("server failed: %v", err)
				}
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			logger.Println("shutting down")
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Printf("graceful shutdown failed: %v", err)
			}
			return nil
		},
	}
}
