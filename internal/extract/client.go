// Package extract invokes the question-extraction model backend and turns its
// free-form completion into structured question/answer pairs.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prepstack/interviewflow/internal/domain"
	"github.com/prepstack/interviewflow/internal/faults"
)

const promptTemplate = `I am going to provide you with an interview transcript.
Analyze it and extract the questions asked by the interviewer, each with the
answer the interviewee gave.

Instructions:
- Extract complete questions asked by the interviewer.
- If a question is ambiguous on its own, add a short context that clarifies it.
- Generalize confidential details (names, companies, locations, salaries).
- Return ONLY a JSON array of objects with the attributes "question",
  "answer" and optionally "context".
- Do not repeat questions.
- Do not include any other text or explanations.

Interview transcript:
%s

JSON array of interviewer questions:`

// minQuestionLength filters out fragments the model sometimes emits.
const minQuestionLength = 6

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Limiter gates model invocations to stay inside the backend's quota.
type Limiter interface {
	Wait(ctx context.Context, subject string) error
}

type Client struct {
	httpClient *http.Client
	logger     *log.Logger
	baseURL    string
	apiKey     string
	model      string
	limiter    Limiter
}

func NewClient(cfg Config, limiter Limiter, logger *log.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("extraction base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "default"
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		limiter:    limiter,
	}, nil
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type completionResponse struct {
	Text string `json:"text"`
}

type extractedItem struct {
	Question           string `json:"question"`
	Answer             string `json:"answer"`
	ProfessionalAnswer string `json:"professional_answer"`
	Context            string `json:"context"`
	QuestionContext    string `json:"question_context"`
	IsGlobal           bool   `json:"is_global"`
}

// ExtractQuestions runs one model invocation over the full transcript. An
// empty result is a valid outcome: some recordings contain no questions.
func (c *Client) ExtractQuestions(ctx context.Context, transcript domain.Transcript) ([]domain.QA, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "extract"); err != nil {
			return nil, faults.Extraction(fmt.Errorf("await extraction quota: %w", err))
		}
	}

	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Prompt:      fmt.Sprintf(promptTemplate, transcript.FullText()),
		MaxTokens:   10000,
		Temperature: 0.1,
		TopP:        0.9,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, faults.Extraction(fmt.Errorf("invoke extraction model: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, faults.Extraction(fmt.Errorf("invoke extraction model: status=%d", resp.StatusCode))
	}

	var completion completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, faults.Extraction(fmt.Errorf("decode extraction response: %w", err))
	}

	return c.parseCompletion(completion.Text), nil
}

// parseCompletion scans the completion for the JSON array, tolerating prose
// the model wraps around it. Unparseable output degrades to zero questions
// rather than failing the interview.
func (c *Client) parseCompletion(text string) []domain.QA {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		c.logf("no JSON array found in extraction response")
		return nil
	}

	var items []extractedItem
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		c.logf("could not parse extraction response as JSON: %v", err)
		return nil
	}

	qas := make([]domain.QA, 0, len(items))
	for _, item := range items {
		question := strings.TrimSpace(item.Question)
		if len(question) < minQuestionLength {
			continue
		}

		answer := strings.TrimSpace(item.ProfessionalAnswer)
		if answer == "" {
			answer = strings.TrimSpace(item.Answer)
		}

		// context and question_context are distinct model outputs and land in
		// distinct record columns; neither falls back to the other.
		qas = append(qas, domain.QA{
			Question:     question,
			Answer:       answer,
			Context:      strings.TrimSpace(item.Context),
			ExtraContext: strings.TrimSpace(item.QuestionContext),
			IsGlobal:     item.IsGlobal,
		})
	}
	return qas
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
