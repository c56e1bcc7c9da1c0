package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StateQueued     = "queued"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// Interview is one video-processing request. The orchestrator is the only
// writer of State and UpdatedAt after creation.
type Interview struct {
	ID            string
	OwnerID       string
	SourceRef     string
	State         string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsTerminalState reports whether state has no outgoing transitions.
func IsTerminalState(state string) bool {
	return state == StateCompleted || state == StateFailed
}

// CanTransition reports whether from -> to is an edge of the state graph:
// queued -> processing -> {completed | failed}. A processing -> processing
// self-edge is allowed so a crashed attempt can reclaim a stuck interview.
func CanTransition(from, to string) bool {
	switch from {
	case StateQueued:
		return to == StateProcessing
	case StateProcessing:
		return to == StateProcessing || to == StateCompleted || to == StateFailed
	default:
		return false
	}
}

// ParseInterviewID validates that raw is a well-formed interview id and
// returns it in canonical form.
func ParseInterviewID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("interview id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("interview id must be a valid UUID: %q", raw)
	}
	return parsed.String(), nil
}

// QA is one extracted question/answer pair before persistence.
type QA struct {
	Question     string
	Answer       string
	Context      string
	ExtraContext string
	IsGlobal     bool
}

// QuestionRecord is the durable form of one extracted pair. Records are
// immutable once written.
type QuestionRecord struct {
	ID           string
	InterviewID  string
	OwnerID      string
	Question     string
	Answer       string
	Context      string
	ExtraContext string
	IsGlobal     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// QuestionRecordID derives a stable id for the ordinal-th extracted item of an
// interview. A re-run that extracts the same item produces the same id, which
// is what makes batch re-writes idempotent.
func QuestionRecordID(interviewID string, ordinal int, question string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s|%d|%s", interviewID, ordinal, question)).String()
}

// Utterance is one speaker-tagged segment of a transcript.
type Utterance struct {
	Speaker string
	Start   time.Duration
	End     time.Duration
	Text    string
}

// Transcript is the in-memory output of transcription. It is never persisted
// by this service.
type Transcript struct {
	Language   string
	Utterances []Utterance
}

func (t Transcript) Empty() bool {
	for _, u := range t.Utterances {
		if strings.TrimSpace(u.Text) != "" {
			return false
		}
	}
	return true
}

// FullText renders the transcript as speaker-prefixed lines for the
// extraction model.
func (t Transcript) FullText() string {
	var b strings.Builder
	for _, u := range t.Utterances {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		if u.Speaker != "" {
			b.WriteString(u.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(text)
	}
	return b.String()
}

type CreateInterviewRequest struct {
	OwnerID  string `json:"owner_id"`
	FileName string `json:"file_name,omitempty"`
}

func (r CreateInterviewRequest) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return errors.New("owner_id is required")
	}
	if _, err := uuid.Parse(strings.TrimSpace(r.OwnerID)); err != nil {
		return fmt.Errorf("owner_id must be a valid UUID: %q", r.OwnerID)
	}
	return nil
}
