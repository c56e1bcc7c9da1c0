package queue

import (
	"errors"
	"testing"

	"github.com/hibiken/asynq"
)

type fakeInspector struct {
	info      *asynq.TaskInfo
	getErr    error
	deleteErr error
	deleted   []string
}

func (f *fakeInspector) GetTaskInfo(_, _ string) (*asynq.TaskInfo, error) {
	return f.info, f.getErr
}

func (f *fakeInspector) DeleteTask(_, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func TestClearDeadLetteredRemovesArchivedHolder(t *testing.T) {
	inspector := &fakeInspector{info: &asynq.TaskInfo{State: asynq.TaskStateArchived}}
	c := &Client{inspector: inspector, queue: "interviews"}

	if !c.clearDeadLettered("interview:process:abc") {
		t.Fatal("expected an archived holder to be cleared")
	}
	if len(inspector.deleted) != 1 || inspector.deleted[0] != "interview:process:abc" {
		t.Fatalf("expected the archived task to be deleted, got %v", inspector.deleted)
	}
}

func TestClearDeadLetteredKeepsLiveHolders(t *testing.T) {
	for _, state := range []asynq.TaskState{
		asynq.TaskStatePending,
		asynq.TaskStateActive,
		asynq.TaskStateRetry,
		asynq.TaskStateScheduled,
	} {
		inspector := &fakeInspector{info: &asynq.TaskInfo{State: state}}
		c := &Client{inspector: inspector, queue: "interviews"}

		if c.clearDeadLettered("interview:process:abc") {
			t.Fatalf("a %v holder must keep the dedupe", state)
		}
		if len(inspector.deleted) != 0 {
			t.Fatalf("a %v holder must not be deleted", state)
		}
	}
}

func TestClearDeadLetteredToleratesInspectorFailures(t *testing.T) {
	c := &Client{inspector: &fakeInspector{getErr: errors.New("redis down")}, queue: "interviews"}
	if c.clearDeadLettered("interview:process:abc") {
		t.Fatal("an unreadable holder must keep the dedupe")
	}

	c = &Client{
		inspector: &fakeInspector{
			info:      &asynq.TaskInfo{State: asynq.TaskStateArchived},
			deleteErr: errors.New("redis down"),
		},
		queue: "interviews",
	}
	if c.clearDeadLettered("interview:process:abc") {
		t.Fatal("a failed delete must not report the holder as cleared")
	}
}
