package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/prepstack/interviewflow/internal/config"
	"github.com/prepstack/interviewflow/internal/extract"
	"github.com/prepstack/interviewflow/internal/pipeline"
	"github.com/prepstack/interviewflow/internal/ratelimit"
	"github.com/prepstack/interviewflow/internal/transcribe"
)

// newVideoCommand processes a local video file end to end and writes a
// results JSON next to the configured output directory. No queue, no state
// store.
func newVideoCommand() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:     "video <path>",
		Aliases: []string{"single-video"},
		Short:   "Process a local video file and write the extracted questions as JSON",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := newLogger("video")
			ctx := cmd.Context()

			videoPath := args[0]
			if _, err := os.Stat(videoPath); err != nil {
				return fmt.Errorf("video file: %w", err)
			}
			if outputDir == "" {
				outputDir = cfg.Worker.LocalOutputDir
			}

			storageClient, err := newStorageClient(ctx, cfg.Storage)
			if err != nil {
				return err
			}

			transcriber, err := transcribe.NewClient(transcribe.Config{
				BaseURL:      cfg.Transcriber.BaseURL,
				APIKey:       cfg.Transcriber.APIKey,
				Language:     cfg.Transcriber.Language,
				Timeout:      cfg.Transcriber.Timeout,
				PollInterval: cfg.Transcriber.PollInterval,
			})
			if err != nil {
				return fmt.Errorf("initialize transcription client: %w", err)
			}

			limiter, err := ratelimit.NewRedisTokenBucket(newRedisClient(cfg.Queue), cfg.Extractor.RequestsPerMinute, time.Minute, "interviewflow:extract")
			if err != nil {
				return fmt.Errorf("initialize extraction rate limiter: %w", err)
			}

			extractor, err := extract.NewClient(extract.Config{
				BaseURL: cfg.Extractor.BaseURL,
				APIKey:  cfg.Extractor.APIKey,
				Model:   cfg.Extractor.Model,
				Timeout: cfg.Extractor.Timeout,
			}, limiter, logger)
			if err != nil {
				return fmt.Errorf("initialize extraction client: %w", err)
			}

			services, err := pipeline.NewServices(
				pipeline.LocalFileFetcher{},
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
			if err != nil {
				return err
			}

			result, err := services.ProcessVideoFile(ctx, videoPath, outputDir)
			if err != nil {
				return err
			}

			logger.Printf(
				"done video=%s questions=%d transcript_chars=%d duration=%.1fs output_dir=%s",
				videoPath,
				result.Summary.TotalQuestionsFound,
				result.Summary.TranscriptLength,
				result.Summary.ProcessingDurationSeconds,
				outputDir,
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for the results JSON (defaults to the worker output dir)")
	return cmd
}
