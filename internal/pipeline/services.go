// Package pipeline composes the external capabilities the orchestrator needs:
// fetch the source video, convert it to audio, publish the audio for the
// transcription backend, transcribe, and extract questions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prepstack/interviewflow/internal/domain"
	"github.com/prepstack/interviewflow/internal/faults"
)

type Fetcher interface {
	// Fetch materializes sourceRef as a local file under destDir (or returns
	// an existing local path) so ffmpeg can read it.
	Fetch(ctx context.Context, sourceRef, destDir string) (string, error)
}

type Converter interface {
	ExtractAudio(ctx context.Context, videoPath, audioPath string) error
}

type AudioPublisher interface {
	// Publish makes the extracted audio reachable by the transcription
	// backend and returns the URL to hand it.
	Publish(ctx context.Context, sourceRef, audioPath string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, mediaURL string) (domain.Transcript, error)
}

type Extractor interface {
	ExtractQuestions(ctx context.Context, transcript domain.Transcript) ([]domain.QA, error)
}

// Timeouts bound each external call. Exceeding one surfaces as a transient
// service fault through the context.
type Timeouts struct {
	Convert    time.Duration
	Transcribe time.Duration
	Extract    time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Convert <= 0 {
		t.Convert = 10 * time.Minute
	}
	if t.Transcribe <= 0 {
		t.Transcribe = 30 * time.Minute
	}
	if t.Extract <= 0 {
		t.Extract = 5 * time.Minute
	}
	return t
}

// Services is the processing facade handed to the orchestrator.
type Services struct {
	fetcher     Fetcher
	converter   Converter
	publisher   AudioPublisher
	transcriber Transcriber
	extractor   Extractor
	timeouts    Timeouts
}

func NewServices(fetcher Fetcher, converter Converter, publisher AudioPublisher, transcriber Transcriber, extractor Extractor, timeouts Timeouts) (*Services, error) {
	if fetcher == nil || converter == nil || publisher == nil || transcriber == nil || extractor == nil {
		return nil, errors.New("all pipeline stages are required")
	}
	return &Services{
		fetcher:     fetcher,
		converter:   converter,
		publisher:   publisher,
		transcriber: transcriber,
		extractor:   extractor,
		timeouts:    timeouts.withDefaults(),
	}, nil
}

// ConvertAndTranscribe runs fetch -> audio extraction -> publish ->
// transcription for one source video. An empty transcript is a media fault:
// there is nothing to extract questions from.
func (s *Services) ConvertAndTranscribe(ctx context.Context, sourceRef string) (domain.Transcript, error) {
	workDir, err := os.MkdirTemp("", "interviewflow-*")
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	videoPath, err := s.fetcher.Fetch(ctx, sourceRef, workDir)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("fetch stage: %w", err)
	}

	audioPath := filepath.Join(workDir, "audio.wav")
	convertCtx, cancelConvert := context.WithTimeout(ctx, s.timeouts.Convert)
	err = s.converter.ExtractAudio(convertCtx, videoPath, audioPath)
	cancelConvert()
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("convert stage: %w", err)
	}

	mediaURL, err := s.publisher.Publish(ctx, sourceRef, audioPath)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("publish stage: %w", err)
	}

	transcribeCtx, cancelTranscribe := context.WithTimeout(ctx, s.timeouts.Transcribe)
	transcript, err := s.transcriber.Transcribe(transcribeCtx, mediaURL)
	cancelTranscribe()
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("transcribe stage: %w", err)
	}

	if transcript.Empty() {
		return domain.Transcript{}, faults.Media(errors.New("transcription produced an empty transcript"))
	}
	return transcript, nil
}

// ExtractQuestions runs the extraction model over a transcript. Zero
// questions is a valid outcome.
func (s *Services) ExtractQuestions(ctx context.Context, transcript domain.Transcript) ([]domain.QA, error) {
	extractCtx, cancel := context.WithTimeout(ctx, s.timeouts.Extract)
	defer cancel()

	qas, err := s.extractor.ExtractQuestions(extractCtx, transcript)
	if err != nil {
		return nil, fmt.Errorf("extract stage: %w", err)
	}
	return qas, nil
}
