package queue

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

// ErrAlreadyEnqueued is returned when a message for the interview is already
// waiting or in flight.
var ErrAlreadyEnqueued = errors.New("interview already enqueued")

// taskInspector is the slice of asynq.Inspector the enqueue path needs to
// resolve task-id conflicts.
type taskInspector interface {
	GetTaskInfo(qname, id string) (*asynq.TaskInfo, error)
	DeleteTask(qname, id string) error
}

type Client struct {
	client      *asynq.Client
	inspector   taskInspector
	queue       string
	maxRetry    int
	taskTimeout time.Duration
}

// NewClient builds the enqueue side of the queue. taskTimeout bounds how long
// a single delivery may stay in flight before the broker hands it to another
// worker, so it must cover a full transcription run.
func NewClient(redisOpt asynq.RedisClientOpt, queueName string, maxRetry int, taskTimeout time.Duration) *Client {
	if maxRetry < 0 {
		maxRetry = 0
	}
	if taskTimeout <= 0 {
		taskTimeout = 30 * time.Minute
	}
	return &Client{
		client:      asynq.NewClient(redisOpt),
		inspector:   asynq.NewInspector(redisOpt),
		queue:       queueName,
		maxRetry:    maxRetry,
		taskTimeout: taskTimeout,
	}
}

func (c *Client) EnqueueProcessInterview(ctx context.Context, payload ProcessInterviewPayload) (*asynq.TaskInfo, error) {
	task, err := NewProcessInterviewTask(payload)
	if err != nil {
		return nil, err
	}

	taskID := TypeProcessInterview + ":" + payload.InterviewID
	opts := []asynq.Option{
		asynq.Queue(c.queue),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.taskTimeout),
		// One pending message per interview. A second enqueue while the first
		// is still pending or active collapses instead of duplicating work.
		asynq.TaskID(taskID),
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// A dead-lettered task holds the id too. That one is done being
		// delivered, so it must not block a fresh enqueue; clear it and try
		// again. A pending or in-flight holder keeps the dedupe.
		if !c.clearDeadLettered(taskID) {
			return nil, ErrAlreadyEnqueued
		}
		info, err = c.client.EnqueueContext(ctx, task, opts...)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil, ErrAlreadyEnqueued
		}
	}
	return info, err
}

func (c *Client) clearDeadLettered(taskID string) bool {
	info, err := c.inspector.GetTaskInfo(c.queue, taskID)
	if err != nil || info == nil {
		return false
	}
	if info.State != asynq.TaskStateArchived {
		return false
	}
	return c.inspector.DeleteTask(c.queue, taskID) == nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
