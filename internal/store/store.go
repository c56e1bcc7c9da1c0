package store

import (
	"context"
	"errors"

	"github.com/prepstack/interviewflow/internal/domain"
)

var (
	ErrInterviewNotFound = errors.New("interview not found")

	// ErrStateConflict means the interview was not in the expected state when a
	// conditional transition ran. Callers reload and re-apply their idempotency
	// policy instead of overwriting.
	ErrStateConflict = errors.New("interview state conflict")
)

type InterviewStore interface {
	Create(ctx context.Context, interview domain.Interview) error
	Get(ctx context.Context, id string) (domain.Interview, bool, error)
	// Transition performs a compare-and-swap of the interview state: it moves
	// id from `from` to `to` and rewrites updated_at, failing with
	// ErrStateConflict if the stored state is not `from`. reason is recorded
	// only when to == failed.
	Transition(ctx context.Context, id, from, to, reason string) (domain.Interview, error)
}

// FailedRecord is one record of a batch that did not reach the store.
type FailedRecord struct {
	Record domain.QuestionRecord
	Err    error
}

// BatchResult reports per-record outcomes of a SaveBatch call. Records whose
// ids were already present count as Skipped, which is how a re-run of the
// same extraction stays duplicate-free.
type BatchResult struct {
	Written int
	Skipped int
	Failed  []FailedRecord
}

type QuestionStore interface {
	SaveBatch(ctx context.Context, records []domain.QuestionRecord) (BatchResult, error)
	CountByInterview(ctx context.Context, interviewID string) (int, error)
}
