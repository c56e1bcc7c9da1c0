// Package workflow drives one interview through the processing state
// machine: queued -> processing -> completed/failed.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prepstack/interviewflow/internal/domain"
	"github.com/prepstack/interviewflow/internal/faults"
	"github.com/prepstack/interviewflow/internal/retry"
	"github.com/prepstack/interviewflow/internal/store"
)

// ProcessingServices is the facade over the external capabilities.
type ProcessingServices interface {
	ConvertAndTranscribe(ctx context.Context, sourceRef string) (domain.Transcript, error)
	ExtractQuestions(ctx context.Context, transcript domain.Transcript) ([]domain.QA, error)
}

// Result summarizes one Process call. Outcome is the interview state
// observed or produced; NoOp marks attempts that did not run the pipeline
// (already terminal, or a fresh attempt is still in flight elsewhere).
type Result struct {
	InterviewID   string
	Outcome       string
	NoOp          bool
	Questions     int
	Duration      time.Duration
	FailureReason string
}

type Config struct {
	// StaleProcessingAfter decides how a redelivered message treats an
	// interview already in processing: younger than this is an attempt still
	// in flight (skip), older is a crashed attempt (reclaim and re-run).
	StaleProcessingAfter time.Duration
	Policy               retry.Policy
}

type Orchestrator struct {
	logger     *log.Logger
	interviews store.InterviewStore
	questions  store.QuestionStore
	services   ProcessingServices
	policy     retry.Policy
	staleAfter time.Duration
	now        func() time.Time

	// OnRetry observes every backoff decision; the dispatcher hangs its
	// retry counter here.
	OnRetry retry.Notify
}

func NewOrchestrator(logger *log.Logger, interviews store.InterviewStore, questions store.QuestionStore, services ProcessingServices, cfg Config) (*Orchestrator, error) {
	if interviews == nil || questions == nil || services == nil {
		return nil, errors.New("interview store, question store and services are required")
	}

	staleAfter := cfg.StaleProcessingAfter
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	policy := cfg.Policy
	if policy.MaxAttempts == 0 {
		policy = retry.Default()
	}

	return &Orchestrator{
		logger:     logger,
		interviews: interviews,
		questions:  questions,
		services:   services,
		policy:     policy,
		staleAfter: staleAfter,
		now:        time.Now,
	}, nil
}

// SetClock overrides the orchestrator clock. Test hook.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Process drives one interview to a terminal state. It must tolerate being
// called twice for the same id: the queue delivers at least once.
//
// The error return classifies the failure for the dispatcher. A nil error or
// a result with Outcome failed means the state record matches reality and the
// message can be acknowledged; a persistence fault without a recorded outcome
// means the message must stay for redelivery.
func (o *Orchestrator) Process(ctx context.Context, rawID string) (Result, error) {
	started := o.now()

	id, err := domain.ParseInterviewID(rawID)
	if err != nil {
		return Result{}, faults.Validation("%v", err)
	}
	result := Result{InterviewID: id}

	interview, ok, err := o.interviews.Get(ctx, id)
	if err != nil {
		return result, faults.Persistence(fmt.Errorf("load interview %s: %w", id, err))
	}
	if !ok {
		return result, faults.NotFound("interview not found: %s", id)
	}

	claimed, skip, err := o.claim(ctx, interview)
	if err != nil {
		return result, err
	}
	if skip.NoOp {
		skip.InterviewID = id
		return skip, nil
	}

	questions, err := o.runPipeline(ctx, claimed)
	if err != nil {
		return o.fail(ctx, claimed, started, err)
	}

	if err := o.complete(ctx, claimed); err != nil {
		return result, err
	}

	result.Outcome = domain.StateCompleted
	result.Questions = questions
	result.Duration = o.now().Sub(started)
	return result, nil
}

// claim resolves the idempotency policy and wins the transition into
// processing. The second return carries a populated no-op result when this
// attempt must not run the pipeline.
func (o *Orchestrator) claim(ctx context.Context, interview domain.Interview) (domain.Interview, Result, error) {
	switch interview.State {
	case domain.StateCompleted, domain.StateFailed:
		o.logf("interview %s already %s, nothing to do", interview.ID, interview.State)
		return domain.Interview{}, Result{Outcome: interview.State, NoOp: true, FailureReason: interview.FailureReason}, nil

	case domain.StateProcessing:
		age := o.now().UTC().Sub(interview.UpdatedAt)
		if age < o.staleAfter {
			o.logf("interview %s is processing since %s, skipping redelivered attempt", interview.ID, interview.UpdatedAt.Format(time.RFC3339))
			return domain.Interview{}, Result{Outcome: domain.StateProcessing, NoOp: true}, nil
		}

		o.logf("interview %s stuck in processing for %s, reclaiming", interview.ID, age.Round(time.Second))
		claimed, err := o.interviews.Transition(ctx, interview.ID, domain.StateProcessing, domain.StateProcessing, "")
		if err != nil {
			return o.claimFailure(interview.ID, err)
		}
		return claimed, Result{}, nil

	case domain.StateQueued:
		claimed, err := o.interviews.Transition(ctx, interview.ID, domain.StateQueued, domain.StateProcessing, "")
		if err != nil {
			return o.claimFailure(interview.ID, err)
		}
		return claimed, Result{}, nil

	default:
		return domain.Interview{}, Result{}, faults.Validation("interview %s has unknown state %q", interview.ID, interview.State)
	}
}

func (o *Orchestrator) claimFailure(id string, err error) (domain.Interview, Result, error) {
	switch {
	case errors.Is(err, store.ErrStateConflict):
		// Another worker swapped the state first. Its attempt owns the job.
		o.logf("interview %s claimed by a concurrent worker, skipping", id)
		return domain.Interview{}, Result{Outcome: domain.StateProcessing, NoOp: true}, nil
	case errors.Is(err, store.ErrInterviewNotFound):
		return domain.Interview{}, Result{}, faults.NotFound("interview not found: %s", id)
	default:
		return domain.Interview{}, Result{}, faults.Persistence(fmt.Errorf("claim interview %s: %w", id, err))
	}
}

func (o *Orchestrator) runPipeline(ctx context.Context, interview domain.Interview) (int, error) {
	var transcript domain.Transcript
	err := o.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		transcript, err = o.services.ConvertAndTranscribe(ctx, interview.SourceRef)
		return err
	}, o.notifyRetry("transcribe", interview.ID))
	if err != nil {
		return 0, fmt.Errorf("convert and transcribe %s: %w", interview.SourceRef, err)
	}

	var qas []domain.QA
	err = o.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		qas, err = o.services.ExtractQuestions(ctx, transcript)
		return err
	}, o.notifyRetry("extract", interview.ID))
	if err != nil {
		return 0, fmt.Errorf("extract questions: %w", err)
	}

	if err := o.saveQuestions(ctx, interview, qas); err != nil {
		return 0, err
	}
	return len(qas), nil
}

// saveQuestions persists the batch, retrying only the unwritten subset.
// Record ids are deterministic per extracted item, so a re-attempt (or a full
// re-run after a crash) skips records that already landed.
func (o *Orchestrator) saveQuestions(ctx context.Context, interview domain.Interview, qas []domain.QA) error {
	if len(qas) == 0 {
		return nil
	}

	now := o.now().UTC()
	pending := make([]domain.QuestionRecord, 0, len(qas))
	for i, qa := range qas {
		pending = append(pending, domain.QuestionRecord{
			ID:           domain.QuestionRecordID(interview.ID, i, qa.Question),
			InterviewID:  interview.ID,
			OwnerID:      interview.OwnerID,
			Question:     qa.Question,
			Answer:       qa.Answer,
			Context:      qa.Context,
			ExtraContext: qa.ExtraContext,
			IsGlobal:     qa.IsGlobal,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	return o.policy.Do(ctx, func(ctx context.Context) error {
		batch, err := o.questions.SaveBatch(ctx, pending)
		if err != nil {
			return faults.Persistence(fmt.Errorf("save question batch: %w", err))
		}
		if len(batch.Failed) == 0 {
			pending = nil
			return nil
		}

		remaining := make([]domain.QuestionRecord, 0, len(batch.Failed))
		for _, failed := range batch.Failed {
			remaining = append(remaining, failed.Record)
		}
		pending = remaining
		return faults.Persistence(fmt.Errorf("%d of %d question records unwritten: %w", len(batch.Failed), len(qas), batch.Failed[0].Err))
	}, o.notifyRetry("persist", interview.ID))
}

func (o *Orchestrator) complete(ctx context.Context, interview domain.Interview) error {
	err := o.policy.Do(ctx, func(ctx context.Context) error {
		_, err := o.interviews.Transition(ctx, interview.ID, domain.StateProcessing, domain.StateCompleted, "")
		if err != nil && !errors.Is(err, store.ErrStateConflict) {
			return faults.Persistence(err)
		}
		return err
	}, o.notifyRetry("complete", interview.ID))
	if err == nil {
		return nil
	}

	if errors.Is(err, store.ErrStateConflict) {
		// A concurrent re-run got there first; completed is completed.
		current, ok, getErr := o.interviews.Get(ctx, interview.ID)
		if getErr == nil && ok && current.State == domain.StateCompleted {
			return nil
		}
	}
	return faults.Persistence(fmt.Errorf("record completed state for interview %s: %w", interview.ID, err))
}

// fail records the failed state with the captured reason. Failing to even
// record the failure is the one alerting condition: the stored state no
// longer matches reality, so the error escalates and the message is left for
// redelivery.
func (o *Orchestrator) fail(ctx context.Context, interview domain.Interview, started time.Time, cause error) (Result, error) {
	reason := cause.Error()
	result := Result{
		InterviewID:   interview.ID,
		Outcome:       domain.StateFailed,
		Duration:      o.now().Sub(started),
		FailureReason: reason,
	}

	err := o.policy.Do(ctx, func(ctx context.Context) error {
		_, err := o.interviews.Transition(ctx, interview.ID, domain.StateProcessing, domain.StateFailed, reason)
		if err != nil && !errors.Is(err, store.ErrStateConflict) {
			return faults.Persistence(err)
		}
		return err
	}, o.notifyRetry("fail", interview.ID))
	if err != nil && !errors.Is(err, store.ErrStateConflict) {
		o.logf("ALERT interview %s failed (%v) and the failed state could not be recorded: %v", interview.ID, cause, err)
		return Result{InterviewID: interview.ID}, faults.Persistence(fmt.Errorf("record failed state for interview %s: %w", interview.ID, err))
	}

	return result, fmt.Errorf("interview %s failed: %w", interview.ID, cause)
}

func (o *Orchestrator) notifyRetry(step, id string) retry.Notify {
	return func(err error, attempt int, delay time.Duration) {
		o.logf("interview %s %s attempt %d failed, retrying in %s: %v", id, step, attempt, delay.Round(time.Millisecond), err)
		if o.OnRetry != nil {
			o.OnRetry(err, attempt, delay)
		}
	}
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}
