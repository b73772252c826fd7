package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueClosed is returned when enqueuing into a closed queue.
var ErrQueueClosed = errors.New("task queue is closed")

// TaskQueue is a bounded task channel. Enqueue blocks while the buffer is
// full, so producers are throttled to the speed of the workers instead of
// being rejected.
type TaskQueue struct {
	tasks  chan Task
	done   chan struct{}
	logger *slog.Logger

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewTaskQueue creates a new task queue with the specified buffer size
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if size < 0 {
		size = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskQueue{
		tasks:  make(chan Task, size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Enqueue adds a task, waiting for buffer space.
func (q *TaskQueue) Enqueue(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		q.logger.Debug("task enqueued",
			"task_id", task.ID(),
			"task_type", task.Type(),
			"queue_len", len(q.tasks),
			"queue_cap", cap(q.tasks))
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the task queue, preventing further task submission. Tasks
// already buffered are still delivered. Blocked Enqueue calls return
// ErrQueueClosed.
func (q *TaskQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		q.mu.Lock()
		q.closed = true
		close(q.tasks)
		q.mu.Unlock()
		q.logger.Debug("task queue closed")
	})
}

// Len returns the number of buffered tasks.
func (q *TaskQueue) Len() int {
	return len(q.tasks)
}

// GetChannel returns a read-only channel for consuming tasks
func (q *TaskQueue) GetChannel() <-chan Task {
	return q.tasks
}
