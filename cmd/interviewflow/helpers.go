package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prepstack/interviewflow/internal/config"
	"github.com/prepstack/interviewflow/internal/extract"
	"github.com/prepstack/interviewflow/internal/pipeline"
	"github.com/prepstack/interviewflow/internal/ratelimit"
	"github.com/prepstack/interviewflow/internal/retry"
	"github.com/prepstack/interviewflow/internal/storage"
	"github.com/prepstack/interviewflow/internal/store"
	"github.com/prepstack/interviewflow/internal/transcribe"
	"github.com/prepstack/interviewflow/internal/workflow"
)

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, "["+prefix+"] ", log.LstdFlags|log.Lmsgprefix)
}

func newStorageClient(ctx context.Context, cfg config.StorageConfig) (*storage.Client, error) {
	client, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Endpoint,
		Access:   cfg.AccessKey,
		Secret:   cfg.SecretKey,
		Bucket:   cfg.Bucket,
		UseSSL:   cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize object storage: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}
	return client, nil
}

func newRedisClient(cfg config.QueueConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func retryPolicy(cfg config.WorkflowConfig) retry.Policy {
	policy := retry.Default()
	if cfg.RetryMaxAttempts > 0 {
		policy.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialInterval > 0 {
		policy.InitialInterval = cfg.RetryInitialInterval
	}
	if cfg.RetryMaxInterval > 0 {
		policy.MaxInterval = cfg.RetryMaxInterval
	}
	return policy
}

// newProcessingServices wires the full object-store pipeline: fetch from the
// bucket, extract audio with ffmpeg, publish the audio, transcribe and
// extract questions.
func newProcessingServices(cfg config.Config, logger *log.Logger, storageClient *storage.Client, rdb redis.UniversalClient) (*pipeline.Services, error) {
	transcriber, err := transcribe.NewClient(transcribe.Config{
		BaseURL:      cfg.Transcriber.BaseURL,
		APIKey:       cfg.Transcriber.APIKey,
		Language:     cfg.Transcriber.Language,
		Timeout:      cfg.Transcriber.Timeout,
		PollInterval: cfg.Transcriber.PollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize transcription client: %w", err)
	}

	limiter, err := ratelimit.NewRedisTokenBucket(rdb, cfg.Extractor.RequestsPerMinute, time.Minute, "interviewflow:extract")
	if err != nil {
		return nil, fmt.Errorf("initialize extraction rate limiter: %w", err)
	}

	extractor, err := extract.NewClient(extract.Config{
		BaseURL: cfg.Extractor.BaseURL,
		APIKey:  cfg.Extractor.APIKey,
		Model:   cfg.Extractor.Model,
		Timeout: cfg.Extractor.Timeout,
	}, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize extraction client: %w", err)
	}

	return pipeline.NewServices(
		pipeline.ObjectStoreFetcher{Storage: storageClient},
		pipeline.FFmpegConverter{},
		pipeline.ObjectStorePublisher{
			Storage:     storageClient,
			AudioPrefix: cfg.Worker.AudioPrefix,
			URLTTL:      cfg.Worker.AudioURLTTL,
		},
		transcriber,
		extractor,
		pipeline.Timeouts{
			Convert:    cfg.Worker.ConvertTimeout,
			Transcribe: cfg.Worker.TranscribeTimeout,
			Extract:    cfg.Worker.ExtractTimeout,
		},
	)
}

func newOrchestrator(ctx context.Context, cfg config.Config, logger *log.Logger) (*workflow.Orchestrator, *store.PostgresStore, error) {
	storageClient, err := newStorageClient(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	services, err := newProcessingServices(cfg, logger, storageClient, newRedisClient(cfg.Queue))
	if err != nil {
		return nil, nil, err
	}

	interviews, err := store.NewPostgresStore(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize state store: %w", err)
	}

	orchestrator, err := workflow.NewOrchestrator(logger, interviews, interviews, services, workflow.Config{
		StaleProcessingAfter: cfg.Workflow.StaleProcessingAfter,
		Policy:               retryPolicy(cfg.Workflow),
	})
	if err != nil {
		interviews.Close()
		return nil, nil, fmt.Errorf("initialize orchestrator: %w", err)
	}
	return orchestrator, interviews, nil
}
