package extract

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prepstack/interviewflow/internal/domain"
	"github.com/prepstack/interviewflow/internal/faults"
)

func testTranscript() domain.Transcript {
	return domain.Transcript{Utterances: []domain.Utterance{
		{Speaker: "spk_0", Text: "Tell me about a project you are proud of."},
		{Speaker: "spk_1", Text: "I rebuilt our ingestion layer."},
	}}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL: server.URL,
		Model:   "extract-v1",
		Timeout: 2 * time.Second,
	}, nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestExtractQuestionsParsesWrappedArray(t *testing.T) {
	completion := `Here are the extracted questions:
[
  {"question": "Tell me about a project you are proud of.", "answer": "I rebuilt our ingestion layer.", "question_context": "Opening question"},
  {"question": "Why?", "answer": "ignored, question too short"},
  {"question": "What would you change about it?", "professional_answer": "Tighter schema checks."}
]
Done.`

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode completion request: %v", err)
		}
		if req.Model != "extract-v1" {
			t.Errorf("unexpected model %q", req.Model)
		}
		if !strings.Contains(req.Prompt, "spk_0: Tell me about a project") {
			t.Errorf("prompt is missing the transcript, got %q", req.Prompt)
		}
		_ = json.NewEncoder(w).Encode(completionResponse{Text: completion})
	})

	qas, err := client.ExtractQuestions(context.Background(), testTranscript())
	if err != nil {
		t.Fatalf("ExtractQuestions: %v", err)
	}
	if len(qas) != 2 {
		t.Fatalf("expected 2 usable pairs, got %d: %+v", len(qas), qas)
	}
	if qas[0].ExtraContext != "Opening question" {
		t.Fatalf("expected question_context to land in ExtraContext, got %q", qas[0].ExtraContext)
	}
	if qas[1].Answer != "Tighter schema checks." {
		t.Fatalf("expected professional_answer to win, got %q", qas[1].Answer)
	}
}

func TestExtractQuestionsKeepsBothContextFields(t *testing.T) {
	completion := `[
  {"question": "How do you handle disagreements?", "answer": "I look for shared goals.", "context": "Asked during the culture round", "question_context": "Follow-up to the teamwork discussion"}
]`

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Text: completion})
	})

	qas, err := client.ExtractQuestions(context.Background(), testTranscript())
	if err != nil {
		t.Fatalf("ExtractQuestions: %v", err)
	}
	if len(qas) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(qas))
	}
	if qas[0].Context != "Asked during the culture round" {
		t.Fatalf("expected context to be preserved, got %q", qas[0].Context)
	}
	if qas[0].ExtraContext != "Follow-up to the teamwork discussion" {
		t.Fatalf("expected question_context to be preserved, got %q", qas[0].ExtraContext)
	}
}

func TestExtractQuestionsEmptyArrayIsValid(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Text: "[]"})
	})

	qas, err := client.ExtractQuestions(context.Background(), testTranscript())
	if err != nil {
		t.Fatalf("ExtractQuestions: %v", err)
	}
	if len(qas) != 0 {
		t.Fatalf("expected zero questions, got %d", len(qas))
	}
}

func TestExtractQuestionsDegradesOnUnparseableCompletion(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Text: "I could not find any questions."})
	})

	qas, err := client.ExtractQuestions(context.Background(), testTranscript())
	if err != nil {
		t.Fatalf("ExtractQuestions: %v", err)
	}
	if len(qas) != 0 {
		t.Fatalf("expected zero questions for prose-only completion, got %d", len(qas))
	}
}

func TestExtractQuestionsClassifiesBackendFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := client.ExtractQuestions(context.Background(), testTranscript())
	if faults.KindOf(err) != faults.KindExtraction {
		t.Fatalf("expected extraction fault, got %v (%v)", faults.KindOf(err), err)
	}
}

type stubLimiter struct {
	waits int
}

func (s *stubLimiter) Wait(context.Context, string) error {
	s.waits++
	return nil
}

func TestExtractQuestionsConsultsLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Text: "[]"})
	}))
	t.Cleanup(server.Close)

	limiter := &stubLimiter{}
	client, err := NewClient(Config{BaseURL: server.URL}, limiter, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := client.ExtractQuestions(context.Background(), testTranscript()); err != nil {
		t.Fatalf("ExtractQuestions: %v", err)
	}
	if limiter.waits != 1 {
		t.Fatalf("expected one limiter wait, got %d", limiter.waits)
	}
}
