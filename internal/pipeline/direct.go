package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prepstack/interviewflow/internal/domain"
	"github.com/prepstack/interviewflow/internal/media"
)

// DirectResult is the outcome of the legacy single-video mode, which runs the
// processing stages against a local file without touching the state or
// result stores.
type DirectResult struct {
	VideoPath string        `json:"video_path"`
	Status    string        `json:"status"`
	Summary   DirectSummary `json:"summary"`
	Questions []domain.QA   `json:"questions"`
}

type DirectSummary struct {
	VideoDurationSeconds      float64 `json:"video_duration_seconds"`
	TranscriptLength          int     `json:"transcript_length"`
	TotalQuestionsFound       int     `json:"total_questions_found"`
	ProcessingDurationSeconds float64 `json:"processing_duration_seconds"`
	ErrorMessage              string  `json:"error_message,omitempty"`
}

// ProcessVideoFile drives the full convert/transcribe/extract pipeline over a
// local video. When outputDir is non-empty the result is also written as
// <name>_results.json. The returned DirectResult is populated even on
// failure so callers can persist the error summary.
func (s *Services) ProcessVideoFile(ctx context.Context, videoPath, outputDir string) (DirectResult, error) {
	started := time.Now()
	result := DirectResult{
		VideoPath: videoPath,
		Status:    "error",
		Questions: []domain.QA{},
	}

	duration, err := media.ProbeDuration(ctx, videoPath)
	if err == nil {
		result.Summary.VideoDurationSeconds = duration.Seconds()
	}

	transcript, err := s.ConvertAndTranscribe(ctx, videoPath)
	if err != nil {
		return s.finishDirect(result, started, outputDir, err)
	}
	result.Summary.TranscriptLength = len(transcript.FullText())

	qas, err := s.ExtractQuestions(ctx, transcript)
	if err != nil {
		return s.finishDirect(result, started, outputDir, err)
	}

	result.Status = "success"
	result.Questions = qas
	result.Summary.TotalQuestionsFound = len(qas)
	return s.finishDirect(result, started, outputDir, nil)
}

func (s *Services) finishDirect(result DirectResult, started time.Time, outputDir string, cause error) (DirectResult, error) {
	result.Summary.ProcessingDurationSeconds = time.Since(started).Seconds()
	if cause != nil {
		result.Summary.ErrorMessage = cause.Error()
	}

	if outputDir != "" {
		if err := writeDirectResult(result, outputDir); err != nil && cause == nil {
			cause = err
		}
	}
	return result, cause
}

func writeDirectResult(result DirectResult, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(result.VideoPath), filepath.Ext(result.VideoPath))
	outputPath := filepath.Join(outputDir, name+"_results.json")

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write results file: %w", err)
	}
	return nil
}
