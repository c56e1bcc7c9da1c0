package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/prepstack/interviewflow/internal/domain"
	"github.com/prepstack/interviewflow/internal/faults"
)

const TypeProcessInterview = "interview:process"

// ProcessInterviewPayload is the wire shape of one queue message. Nothing
// else rides along: the worker loads everything it needs from the state store.
type ProcessInterviewPayload struct {
	InterviewID string `json:"interview_id"`
}

func NewProcessInterviewTask(payload ProcessInterviewPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal process payload: %w", err)
	}
	return asynq.NewTask(TypeProcessInterview, body), nil
}

// ParseProcessInterviewPayload decodes and validates a queue message. Both
// failure modes are validation faults: the message is unusable and must not
// be redelivered.
func ParseProcessInterviewPayload(task *asynq.Task) (ProcessInterviewPayload, error) {
	var payload ProcessInterviewPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProcessInterviewPayload{}, faults.Validation("unmarshal process payload: %v", err)
	}

	id, err := domain.ParseInterviewID(payload.InterviewID)
	if err != nil {
		return ProcessInterviewPayload{}, faults.Validation("invalid process payload: %v", err)
	}
	payload.InterviewID = id

	return payload, nil
}
