package task

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockTask is a simple implementation of the Task interface for testing
type MockTask struct {
	TaskID    uuid.UUID
	TaskType  string
	ExecuteFn func(ctx context.Context) error

	mu     sync.Mutex
	status TaskStatus
}

// NewMockTask creates a new MockTask with the given type
func NewMockTask(taskType string, fn func(ctx context.Context) error) *MockTask {
	if fn == nil {
		fn = func(context.Context) error { return nil }
	}
	return &MockTask{
		TaskID:    uuid.New(),
		TaskType:  taskType,
		ExecuteFn: fn,
		status:    TaskStatusPending,
	}
}

// ID returns the task's unique identifier
func (t *MockTask) ID() uuid.UUID {
	return t.TaskID
}

// Type returns the task type identifier
func (t *MockTask) Type() string {
	return t.TaskType
}

// Status returns the current task status
func (t *MockTask) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Execute calls ExecuteFn and records the outcome
func (t *MockTask) Execute(ctx context.Context) error {
	t.setStatus(TaskStatusProcessing)
	err := t.ExecuteFn(ctx)
	if err != nil {
		t.setStatus(TaskStatusFailed)
		return err
	}
	t.setStatus(TaskStatusCompleted)
	return nil
}

func (t *MockTask) setStatus(s TaskStatus) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}
