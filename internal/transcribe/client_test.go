package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prepstack/interviewflow/internal/faults"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:      server.URL,
		Language:     "en-US",
		Timeout:      2 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, server
}

func TestTranscribeSubmitPollComplete(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode submit request: %v", err)
		}
		if req.MediaURL != "https://blobs/audio.wav" {
			t.Errorf("unexpected media url %q", req.MediaURL)
		}
		if !req.EnableSpeakerLabels {
			t.Error("expected speaker labels to be requested")
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(submitResponse{JobID: "tr-42"})
	})
	mux.HandleFunc("GET /v1/transcriptions/tr-42", func(w http.ResponseWriter, _ *http.Request) {
		if polls.Add(1) < 3 {
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "tr-42", "status": "in_progress"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"job_id":   "tr-42",
			"status":   "completed",
			"language": "en-US",
			"utterances": []map[string]any{
				{"speaker": "spk_0", "start_ms": 0, "end_ms": 1500, "text": "Welcome."},
				{"speaker": "spk_1", "start_ms": 1500, "end_ms": 4000, "text": "Glad to be here."},
			},
		})
	})

	client, _ := newTestClient(t, mux)
	transcript, err := client.Transcribe(context.Background(), "https://blobs/audio.wav")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(transcript.Utterances) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(transcript.Utterances))
	}
	if transcript.Utterances[1].Start != 1500*time.Millisecond {
		t.Fatalf("expected start offset 1.5s, got %v", transcript.Utterances[1].Start)
	}
	if polls.Load() < 3 {
		t.Fatalf("expected at least 3 polls, got %d", polls.Load())
	}
}

func TestTranscribeClassifiesSubmitRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/transcriptions", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unsupported media", http.StatusUnsupportedMediaType)
	})

	client, _ := newTestClient(t, mux)
	_, err := client.Transcribe(context.Background(), "https://blobs/audio.wav")
	if faults.KindOf(err) != faults.KindMedia {
		t.Fatalf("expected media fault for 415, got %v (%v)", faults.KindOf(err), err)
	}
}

func TestTranscribeClassifiesBackendOutage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/transcriptions", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	client, _ := newTestClient(t, mux)
	_, err := client.Transcribe(context.Background(), "https://blobs/audio.wav")
	if faults.KindOf(err) != faults.KindService {
		t.Fatalf("expected service fault for 503, got %v (%v)", faults.KindOf(err), err)
	}
}

func TestTranscribeReportsJobFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/transcriptions", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(submitResponse{JobID: "tr-9"})
	})
	mux.HandleFunc("GET /v1/transcriptions/tr-9", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"job_id":         "tr-9",
			"status":         "failed",
			"failure_reason": "audio track is empty",
		})
	})

	client, _ := newTestClient(t, mux)
	_, err := client.Transcribe(context.Background(), "https://blobs/audio.wav")
	if faults.KindOf(err) != faults.KindMedia {
		t.Fatalf("expected media fault for failed job, got %v (%v)", faults.KindOf(err), err)
	}
}

func TestTranscribeHonorsContextDeadline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/transcriptions", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(submitResponse{JobID: "tr-slow"})
	})
	mux.HandleFunc("GET /v1/transcriptions/tr-slow", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "tr-slow", "status": "in_progress"})
	})

	client, _ := newTestClient(t, mux)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Transcribe(ctx, "https://blobs/audio.wav")
	if faults.KindOf(err) != faults.KindService {
		t.Fatalf("expected service fault on deadline, got %v (%v)", faults.KindOf(err), err)
	}
}
