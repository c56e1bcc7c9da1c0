package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prepstack/interviewflow/internal/domain"
)

func seedInterview(t *testing.T, s *MemoryStore, state string) domain.Interview {
	t.Helper()
	now := time.Now().UTC()
	interview := domain.Interview{
		ID:        "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		OwnerID:   "9e107d9d-372b-4ca5-9a3e-8c2f38b0a1f2",
		SourceRef: "videos/owner/interview/source.mp4",
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Create(context.Background(), interview); err != nil {
		t.Fatalf("seed interview: %v", err)
	}
	return interview
}

func TestTransitionCompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	interview := seedInterview(t, s, domain.StateQueued)

	updated, err := s.Transition(context.Background(), interview.ID, domain.StateQueued, domain.StateProcessing, "")
	if err != nil {
		t.Fatalf("expected transition to succeed: %v", err)
	}
	if updated.State != domain.StateProcessing {
		t.Fatalf("expected processing, got %s", updated.State)
	}
	if !updated.UpdatedAt.After(interview.UpdatedAt) && !updated.UpdatedAt.Equal(interview.UpdatedAt) {
		t.Fatal("expected updated_at to be rewritten")
	}

	// Second CAS from queued must observe the swap and lose.
	_, err = s.Transition(context.Background(), interview.ID, domain.StateQueued, domain.StateProcessing, "")
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
}

func TestTransitionUnknownInterview(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Transition(context.Background(), "0e0b4b9a-3e04-4a6e-b1b3-0f3a0f3a0f3a", domain.StateQueued, domain.StateProcessing, "")
	if !errors.Is(err, ErrInterviewNotFound) {
		t.Fatalf("expected ErrInterviewNotFound, got %v", err)
	}
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	s := NewMemoryStore()
	interview := seedInterview(t, s, domain.StateQueued)

	if _, err := s.Transition(context.Background(), interview.ID, domain.StateQueued, domain.StateCompleted, ""); err == nil {
		t.Fatal("expected queued -> completed to be rejected")
	}
}

func TestTransitionRecordsFailureReason(t *testing.T) {
	s := NewMemoryStore()
	interview := seedInterview(t, s, domain.StateProcessing)

	failed, err := s.Transition(context.Background(), interview.ID, domain.StateProcessing, domain.StateFailed, "media: unsupported container")
	if err != nil {
		t.Fatalf("transition to failed: %v", err)
	}
	if failed.FailureReason != "media: unsupported container" {
		t.Fatalf("expected failure reason to be recorded, got %q", failed.FailureReason)
	}
}

func TestConcurrentTransitionSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	interview := seedInterview(t, s, domain.StateQueued)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Transition(context.Background(), interview.ID, domain.StateQueued, domain.StateProcessing, ""); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner of the queued -> processing swap, got %d", wins)
	}
}

func TestSaveBatchIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	interview := seedInterview(t, s, domain.StateProcessing)

	now := time.Now().UTC()
	records := make([]domain.QuestionRecord, 0, 2)
	for i, q := range []string{"Tell me about yourself.", "Why this company?"} {
		records = append(records, domain.QuestionRecord{
			ID:          domain.QuestionRecordID(interview.ID, i, q),
			InterviewID: interview.ID,
			OwnerID:     interview.OwnerID,
			Question:    q,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	first, err := s.SaveBatch(context.Background(), records)
	if err != nil {
		t.Fatalf("first SaveBatch: %v", err)
	}
	if first.Written != 2 || first.Skipped != 0 {
		t.Fatalf("expected 2 written, got %+v", first)
	}

	second, err := s.SaveBatch(context.Background(), records)
	if err != nil {
		t.Fatalf("second SaveBatch: %v", err)
	}
	if second.Written != 0 || second.Skipped != 2 {
		t.Fatalf("expected re-write to skip all records, got %+v", second)
	}

	count, err := s.CountByInterview(context.Background(), interview.ID)
	if err != nil {
		t.Fatalf("CountByInterview: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 records, got %d", count)
	}
}
