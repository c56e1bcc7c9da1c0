package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prepstack/interviewflow/internal/domain"
)

// MemoryStore keeps interviews and question records in process memory with
// the same conditional-transition semantics as the Postgres store. Used by
// tests and local diagnostics.
type MemoryStore struct {
	mu         sync.Mutex
	interviews map[string]domain.Interview
	questions  map[string]domain.QuestionRecord
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		interviews: make(map[string]domain.Interview),
		questions:  make(map[string]domain.QuestionRecord),
		now:        time.Now,
	}
}

// SetClock overrides the store clock. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Create(_ context.Context, interview domain.Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.interviews[interview.ID]; ok {
		return fmt.Errorf("interview %s already exists", interview.ID)
	}
	s.interviews[interview.ID] = interview
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (domain.Interview, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	interview, ok := s.interviews[id]
	return interview, ok, nil
}

func (s *MemoryStore) Transition(_ context.Context, id, from, to, reason string) (domain.Interview, error) {
	if !domain.CanTransition(from, to) {
		return domain.Interview{}, fmt.Errorf("illegal transition %s -> %s", from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	interview, ok := s.interviews[id]
	if !ok {
		return domain.Interview{}, ErrInterviewNotFound
	}
	if interview.State != from {
		return domain.Interview{}, ErrStateConflict
	}

	interview.State = to
	interview.UpdatedAt = s.now().UTC()
	if to == domain.StateFailed {
		interview.FailureReason = reason
	} else {
		interview.FailureReason = ""
	}
	s.interviews[id] = interview
	return interview, nil
}

func (s *MemoryStore) SaveBatch(ctx context.Context, records []domain.QuestionRecord) (BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result BatchResult
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, ok := s.questions[record.ID]; ok {
			result.Skipped++
			continue
		}
		s.questions[record.ID] = record
		result.Written++
	}
	return result, nil
}

func (s *MemoryStore) CountByInterview(_ context.Context, interviewID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, record := range s.questions {
		if record.InterviewID == interviewID {
			count++
		}
	}
	return count, nil
}
