// Package api serves the intake surface: create an interview, get an upload
// URL, enqueue processing and read interview status.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/prepstack/interviewflow/internal/domain"
	"github.com/prepstack/interviewflow/internal/queue"
	"github.com/prepstack/interviewflow/internal/store"
)

type Server struct {
	logger                *log.Logger
	queueClient           queueEnqueuer
	interviews            store.InterviewStore
	questions             store.QuestionStore
	storage               objectStorage
	presignTTL            time.Duration
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueProcessInterview(ctx context.Context, payload queue.ProcessInterviewPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

type Options struct {
	PresignTTL   time.Duration
	RateLimiter  RateLimiter
	UserIDHeader string
}

func NewServer(
	logger *log.Logger,
	queueClient queueEnqueuer,
	interviews store.InterviewStore,
	questions store.QuestionStore,
	storage objectStorage,
	opts Options,
) *Server {
	presignTTL := opts.PresignTTL
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	userIDHeader := strings.TrimSpace(opts.UserIDHeader)
	if userIDHeader == "" {
		userIDHeader = "X-User-ID"
	}
	if storage == nil {
		storage = unavailableObjectStorage{}
	}

	s := &Server{
		logger:                logger,
		queueClient:           queueClient,
		interviews:            interviews,
		questions:             questions,
		storage:               storage,
		presignTTL:            presignTTL,
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: userIDHeader,
		metrics:               newMetrics(),
		tracer:                otel.Tracer("interviewflow/api"),
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = s.withRateLimit(handler)
	handler = s.withTracing(handler)
	handler = s.metrics.withHTTPMetrics(handler)
	return handler
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/interviews", s.handleCreateInterview)
	s.mux.HandleFunc("POST /v1/interviews/{id}/enqueue", s.handleEnqueueInterview)
	s.mux.HandleFunc("GET /v1/interviews/{id}", s.handleGetInterview)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateInterview(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateInterviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	interviewID := uuid.NewString()
	ownerID := strings.TrimSpace(req.OwnerID)
	sourceRef := sourceObjectKey(ownerID, interviewID, req.FileName)

	uploadURL, err := s.storage.PresignedPutURL(r.Context(), sourceRef, s.presignTTL)
	if err != nil {
		s.logger.Printf("generate upload url failed interview_id=%s err=%v", interviewID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
		return
	}

	interview := domain.Interview{
		ID:        interviewID,
		OwnerID:   ownerID,
		SourceRef: sourceRef,
		State:     domain.StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.interviews.Create(r.Context(), interview); err != nil {
		s.logger.Printf("create interview failed interview_id=%s err=%v", interviewID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create interview"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"interview_id": interview.ID,
		"state":        interview.State,
		"upload": map[string]string{
			"object_key":        interview.SourceRef,
			"presigned_put_url": uploadURL,
		},
		"enqueue_url": fmt.Sprintf("/v1/interviews/%s/enqueue", interview.ID),
	})
}

func (s *Server) handleEnqueueInterview(w http.ResponseWriter, r *http.Request) {
	interviewID, err := domain.ParseInterviewID(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	interview, ok, err := s.interviews.Get(r.Context(), interviewID)
	if err != nil {
		s.logger.Printf("fetch interview failed interview_id=%s err=%v", interviewID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load interview"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "interview not found"})
		return
	}

	if domain.IsTerminalState(interview.State) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": fmt.Sprintf("interview is already %s", interview.State),
		})
		return
	}

	exists, err := s.storage.ObjectExists(r.Context(), interview.SourceRef)
	if err != nil {
		s.logger.Printf("source check failed interview_id=%s err=%v", interviewID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "source object check failed"})
		return
	}
	if !exists {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": fmt.Sprintf("source object is missing: %s", interview.SourceRef),
		})
		return
	}

	taskInfo, err := s.queueClient.EnqueueProcessInterview(r.Context(), queue.ProcessInterviewPayload{
		InterviewID: interview.ID,
	})
	if errors.Is(err, queue.ErrAlreadyEnqueued) {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"interview_id": interview.ID,
			"state":        interview.State,
			"deduplicated": true,
		})
		return
	}
	if err != nil {
		s.logger.Printf("enqueue failed interview_id=%s err=%v", interviewID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue interview"})
		return
	}

	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"interview_id": interview.ID,
		"state":        interview.State,
		"queue":        taskInfo.Queue,
		"task_id":      taskInfo.ID,
		"enqueued_at":  taskInfo.NextProcessAt,
	})
}

func (s *Server) handleGetInterview(w http.ResponseWriter, r *http.Request) {
	interviewID, err := domain.ParseInterviewID(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	interview, ok, err := s.interviews.Get(r.Context(), interviewID)
	if err != nil {
		s.logger.Printf("fetch interview failed interview_id=%s err=%v", interviewID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load interview"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "interview not found"})
		return
	}

	questionCount := 0
	if s.questions != nil {
		count, err := s.questions.CountByInterview(r.Context(), interview.ID)
		if err != nil {
			s.logger.Printf("count questions failed interview_id=%s err=%v", interviewID, err)
		} else {
			questionCount = count
		}
	}

	body := map[string]any{
		"interview_id":   interview.ID,
		"owner_id":       interview.OwnerID,
		"state":          interview.State,
		"source_ref":     interview.SourceRef,
		"question_count": questionCount,
		"created_at":     interview.CreatedAt,
		"updated_at":     interview.UpdatedAt,
	}
	if interview.FailureReason != "" {
		body["failure_reason"] = interview.FailureReason
	}
	writeJSON(w, http.StatusOK, body)
}

// sourceObjectKey keeps every source video under a per-interview prefix. The
// original extension is preserved so the fetch stage can pick the right
// container hint.
func sourceObjectKey(ownerID, interviewID, fileName string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(fileName)))
	if ext == "" {
		ext = ".mp4"
	}
	return fmt.Sprintf("videos/%s/%s/source%s", ownerID, interviewID, ext)
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
