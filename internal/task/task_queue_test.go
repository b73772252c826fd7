package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueue_EnqueueAndConsume(t *testing.T) {
	t.Parallel()

	queue := NewTaskQueue(2, setupTestLogger())
	first := NewMockTask("test", nil)
	second := NewMockTask("test", nil)

	require.NoError(t, queue.Enqueue(context.Background(), first))
	require.NoError(t, queue.Enqueue(context.Background(), second))
	assert.Equal(t, 2, queue.Len())

	queue.Close()

	var got []Task
	for task := range queue.GetChannel() {
		got = append(got, task)
	}
	assert.Equal(t, []Task{first, second}, got)
}

func TestTaskQueue_EnqueueBlocksWhileFull(t *testing.T) {
	t.Parallel()

	queue := NewTaskQueue(1, setupTestLogger())
	require.NoError(t, queue.Enqueue(context.Background(), NewMockTask("test", nil)))

	enqueued := make(chan error, 1)
	go func() {
		enqueued <- queue.Enqueue(context.Background(), NewMockTask("test", nil))
	}()

	select {
	case <-enqueued:
		t.Fatal("enqueue into a full queue returned before space was available")
	case <-time.After(50 * time.Millisecond):
	}

	<-queue.GetChannel()

	select {
	case err := <-enqueued:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not resume after space became available")
	}
}

func TestTaskQueue_EnqueueHonorsContext(t *testing.T) {
	t.Parallel()

	queue := NewTaskQueue(0, setupTestLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := queue.Enqueue(ctx, NewMockTask("test", nil))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestTaskQueue_Close(t *testing.T) {
	t.Parallel()

	t.Run("rejects after close", func(t *testing.T) {
		t.Parallel()
		queue := NewTaskQueue(1, setupTestLogger())
		queue.Close()
		queue.Close()

		err := queue.Enqueue(context.Background(), NewMockTask("test", nil))
		assert.ErrorIs(t, err, ErrQueueClosed)
	})

	t.Run("releases blocked producers", func(t *testing.T) {
		t.Parallel()
		queue := NewTaskQueue(0, setupTestLogger())

		enqueued := make(chan error, 1)
		go func() {
			enqueued <- queue.Enqueue(context.Background(), NewMockTask("test", nil))
		}()
		time.Sleep(20 * time.Millisecond)
		queue.Close()

		select {
		case err := <-enqueued:
			assert.ErrorIs(t, err, ErrQueueClosed)
		case <-time.After(time.Second):
			t.Fatal("blocked enqueue was not released by Close")
		}
	})
}
