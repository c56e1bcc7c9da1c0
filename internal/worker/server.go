// Package worker runs the queue dispatcher: it receives interview jobs,
// hands them to the workflow orchestrator and maps the outcome back onto
// queue acknowledgement semantics.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/prepstack/interviewflow/internal/config"
	"github.com/prepstack/interviewflow/internal/domain"
	"github.com/prepstack/interviewflow/internal/faults"
	"github.com/prepstack/interviewflow/internal/queue"
	"github.com/prepstack/interviewflow/internal/workflow"
)

type Server struct {
	logger       *log.Logger
	server       *asynq.Server
	sem          chan struct{}
	orchestrator processor
	metrics      *metrics
	tracer       trace.Tracer
}

type processor interface {
	Process(ctx context.Context, interviewID string) (workflow.Result, error)
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	orchestrator *workflow.Orchestrator,
) (*Server, error) {
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:          make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		orchestrator: orchestrator,
		metrics:      newMetrics(),
		tracer:       otel.Tracer("interviewflow/worker"),
	}

	orchestrator.OnRetry = func(error, int, time.Duration) {
		s.metrics.retriesTotal.Inc()
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeProcessInterview, s.handleProcessInterview)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// handleProcessInterview translates one queue delivery into a workflow run.
//
// Acknowledgement mapping: a nil return consumes the message. A terminal
// outcome (completed, failed-and-recorded, no-op) always acks; a malformed or
// unknown interview is dead-lettered via SkipRetry; an infrastructure fault
// leaves the message for redelivery.
func (s *Server) handleProcessInterview(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := "requeued"

	payload, err := queue.ParseProcessInterviewPayload(task)
	if err != nil {
		s.metrics.jobsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.process_interview", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(attribute.String("interview.id", payload.InterviewID))
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	retried, _ := asynq.GetRetryCount(ctx)
	s.logger.Printf("Working... interview_id=%s delivery_retry=%d", payload.InterviewID, retried)

	result, err := s.orchestrator.Process(ctx, payload.InterviewID)
	duration := time.Since(startedAt)

	switch {
	case err == nil:
		outcome = result.Outcome
		if result.NoOp {
			outcome = "noop"
		}
		s.metrics.questionsExtractedTotal.Add(float64(result.Questions))
		s.logger.Printf(
			"Processed interview_id=%s outcome=%s questions=%d duration=%s noop=%t",
			payload.InterviewID, result.Outcome, result.Questions, duration.Round(time.Millisecond), result.NoOp,
		)
		span.SetAttributes(attribute.Int("interview.questions", result.Questions))
		span.SetStatus(codes.Ok, "processed")
		return nil

	case faults.KindOf(err) == faults.KindValidation, faults.KindOf(err) == faults.KindNotFound:
		outcome = "rejected"
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		s.logger.Printf("Rejected interview_id=%s duration=%s err=%v", payload.InterviewID, duration.Round(time.Millisecond), err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)

	case result.Outcome == domain.StateFailed:
		// The failed state is recorded; the message is done.
		outcome = domain.StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "workflow failed")
		s.logger.Printf(
			"Failed interview_id=%s outcome=%s questions=%d duration=%s reason=%q",
			payload.InterviewID, result.Outcome, result.Questions, duration.Round(time.Millisecond), result.FailureReason,
		)
		return nil

	default:
		// State record and reality may disagree; keep the message so a later
		// delivery can reconcile.
		outcome = "requeued"
		span.RecordError(err)
		span.SetStatus(codes.Error, "infrastructure fault")
		s.logger.Printf("Requeueing interview_id=%s duration=%s err=%v", payload.InterviewID, duration.Round(time.Millisecond), err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("process interview: %w", err)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
