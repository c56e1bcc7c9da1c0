// Package transcribe talks to the speech-to-text backend: submit a job for a
// media URL, poll until it settles, fetch the speaker-tagged transcript.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prepstack/interviewflow/internal/domain"
	"github.com/prepstack/interviewflow/internal/faults"
)

const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

type Config struct {
	BaseURL      string
	APIKey       string
	Language     string
	Timeout      time.Duration
	PollInterval time.Duration
}

type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	language     string
	pollInterval time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("transcription base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = "en-US"
	}

	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		language:     language,
		pollInterval: pollInterval,
	}, nil
}

type submitRequest struct {
	MediaURL            string `json:"media_url"`
	Language            string `json:"language"`
	EnableSpeakerLabels bool   `json:"enable_speaker_labels"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type jobResponse struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	Language      string `json:"language,omitempty"`
	Utterances    []struct {
		Speaker string `json:"speaker"`
		StartMS int64  `json:"start_ms"`
		EndMS   int64  `json:"end_ms"`
		Text    string `json:"text"`
	} `json:"utterances,omitempty"`
}

// Transcribe submits mediaURL and blocks until the backend settles the job or
// ctx expires. The overall deadline belongs to the caller.
func (c *Client) Transcribe(ctx context.Context, mediaURL string) (domain.Transcript, error) {
	jobID, err := c.submit(ctx, mediaURL)
	if err != nil {
		return domain.Transcript{}, err
	}

	for {
		job, err := c.fetchJob(ctx, jobID)
		if err != nil {
			return domain.Transcript{}, err
		}

		switch job.Status {
		case statusCompleted:
			return toTranscript(job), nil
		case statusFailed:
			// The backend accepted the media and then rejected it: the source
			// is unprocessable, not the service.
			return domain.Transcript{}, faults.Media(fmt.Errorf("transcription job %s failed: %s", jobID, job.FailureReason))
		}

		select {
		case <-ctx.Done():
			return domain.Transcript{}, faults.Service(fmt.Errorf("transcription job %s: %w", jobID, ctx.Err()))
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) submit(ctx context.Context, mediaURL string) (string, error) {
	body, err := json.Marshal(submitRequest{
		MediaURL:            mediaURL,
		Language:            c.language,
		EnableSpeakerLabels: true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcriptions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", faults.Service(fmt.Errorf("submit transcription: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", faults.Service(fmt.Errorf("submit transcription: status=%d", resp.StatusCode))
	default:
		// 4xx on submit means the backend cannot work with this media.
		return "", faults.Media(fmt.Errorf("submit transcription: status=%d", resp.StatusCode))
	}

	var submitted submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return "", faults.Service(fmt.Errorf("decode transcription response: %w", err))
	}
	if strings.TrimSpace(submitted.JobID) == "" {
		return "", faults.Service(errors.New("transcription backend returned no job id"))
	}
	return submitted.JobID, nil
}

func (c *Client) fetchJob(ctx context.Context, jobID string) (jobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transcriptions/"+jobID, nil)
	if err != nil {
		return jobResponse{}, fmt.Errorf("build job status request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return jobResponse{}, faults.Service(fmt.Errorf("fetch transcription job %s: %w", jobID, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return jobResponse{}, faults.Service(fmt.Errorf("fetch transcription job %s: status=%d", jobID, resp.StatusCode))
	}

	var job jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return jobResponse{}, faults.Service(fmt.Errorf("decode transcription job %s: %w", jobID, err))
	}
	return job, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func toTranscript(job jobResponse) domain.Transcript {
	transcript := domain.Transcript{
		Language:   job.Language,
		Utterances: make([]domain.Utterance, 0, len(job.Utterances)),
	}
	for _, u := range job.Utterances {
		transcript.Utterances = append(transcript.Utterances, domain.Utterance{
			Speaker: u.Speaker,
			Start:   time.Duration(u.StartMS) * time.Millisecond,
			End:     time.Duration(u.EndMS) * time.Millisecond,
			Text:    u.Text,
		})
	}
	return transcript
}
