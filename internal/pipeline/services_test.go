package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prepstack/interviewflow/internal/domain"
	"github.com/prepstack/interviewflow/internal/faults"
)

type stubFetcher struct {
	path string
	err  error
}

func (f stubFetcher) Fetch(_ context.Context, _, destDir string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.path != "" {
		return f.path, nil
	}
	return filepath.Join(destDir, "source.mp4"), nil
}

type stubConverter struct {
	err   error
	calls int
}

func (c *stubConverter) ExtractAudio(_ context.Context, _, audioPath string) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	return os.WriteFile(audioPath, []byte("wav"), 0o644)
}

type stubPublisher struct {
	url string
	err error
}

func (p stubPublisher) Publish(context.Context, string, string) (string, error) {
	return p.url, p.err
}

type stubTranscriber struct {
	transcript domain.Transcript
	err        error
	gotURL     string
}

func (t *stubTranscriber) Transcribe(_ context.Context, mediaURL string) (domain.Transcript, error) {
	t.gotURL = mediaURL
	return t.transcript, t.err
}

type stubExtractor struct {
	qas []domain.QA
	err error
}

func (e stubExtractor) ExtractQuestions(context.Context, domain.Transcript) ([]domain.QA, error) {
	return e.qas, e.err
}

func newStubServices(t *testing.T, fetcher Fetcher, converter Converter, publisher AudioPublisher, transcriber Transcriber, extractor Extractor) *Services {
	t.Helper()
	s, err := NewServices(fetcher, converter, publisher, transcriber, extractor, Timeouts{})
	if err != nil {
		t.Fatalf("NewServices: %v", err)
	}
	return s
}

func TestConvertAndTranscribeHappyPath(t *testing.T) {
	transcriber := &stubTranscriber{transcript: domain.Transcript{Utterances: []domain.Utterance{
		{Speaker: "spk_0", Text: "Hello."},
	}}}
	converter := &stubConverter{}
	s := newStubServices(t, stubFetcher{}, converter, stubPublisher{url: "https://blobs/audio.wav"}, transcriber, stubExtractor{})

	transcript, err := s.ConvertAndTranscribe(context.Background(), "videos/owner/interview/source.mp4")
	if err != nil {
		t.Fatalf("ConvertAndTranscribe: %v", err)
	}
	if len(transcript.Utterances) != 1 {
		t.Fatalf("expected transcript to pass through, got %+v", transcript)
	}
	if converter.calls != 1 {
		t.Fatalf("expected one conversion, got %d", converter.calls)
	}
	if transcriber.gotURL != "https://blobs/audio.wav" {
		t.Fatalf("expected published URL to reach the transcriber, got %q", transcriber.gotURL)
	}
}

func TestConvertAndTranscribeEmptyTranscriptIsMediaFault(t *testing.T) {
	transcriber := &stubTranscriber{transcript: domain.Transcript{}}
	s := newStubServices(t, stubFetcher{}, &stubConverter{}, stubPublisher{url: "u"}, transcriber, stubExtractor{})

	_, err := s.ConvertAndTranscribe(context.Background(), "videos/x/source.mp4")
	if faults.KindOf(err) != faults.KindMedia {
		t.Fatalf("expected media fault for empty transcript, got %v (%v)", faults.KindOf(err), err)
	}
}

func TestConvertAndTranscribePropagatesStageFaults(t *testing.T) {
	mediaErr := faults.Media(errors.New("unsupported codec"))
	s := newStubServices(t, stubFetcher{}, &stubConverter{err: mediaErr}, stubPublisher{url: "u"}, &stubTranscriber{}, stubExtractor{})

	_, err := s.ConvertAndTranscribe(context.Background(), "videos/x/source.mp4")
	if !errors.Is(err, mediaErr) {
		t.Fatalf("expected converter fault to surface, got %v", err)
	}
}

func TestProcessVideoFileWritesResults(t *testing.T) {
	transcriber := &stubTranscriber{transcript: domain.Transcript{Utterances: []domain.Utterance{
		{Speaker: "spk_0", Text: "What drew you to this role?"},
	}}}
	extractor := stubExtractor{qas: []domain.QA{{Question: "What drew you to this role?", Answer: "The team."}}}

	videoDir := t.TempDir()
	videoPath := filepath.Join(videoDir, "session.mp4")
	if err := os.WriteFile(videoPath, []byte("not-really-a-video"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}

	s := newStubServices(t, stubFetcher{path: videoPath}, &stubConverter{}, stubPublisher{url: "u"}, transcriber, extractor)

	outputDir := t.TempDir()
	result, err := s.ProcessVideoFile(context.Background(), videoPath, outputDir)
	if err != nil {
		t.Fatalf("ProcessVideoFile: %v", err)
	}
	if result.Status != "success" {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Summary.TotalQuestionsFound != 1 {
		t.Fatalf("expected one question, got %+v", result.Summary)
	}

	if _, err := os.Stat(filepath.Join(outputDir, "session_results.json")); err != nil {
		t.Fatalf("expected results file: %v", err)
	}
}
