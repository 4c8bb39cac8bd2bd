package queue

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewMemoryQueue[string](2)
	t.Cleanup(func() { _ = q.Close() })

	if got := q.Enqueue("a"); got != EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}
	if got := q.Enqueue("b"); got != EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}

	batch, err := q.DequeueBatch(context.Background(), 2, time.Millisecond)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 items, got %d", len(batch))
	}
	if batch[0] != "a" || batch[1] != "b" {
		t.Fatalf("unexpected order: %#v", batch)
	}
}

func TestMemoryQueue_FullQueueDrops(t *testing.T) {
	q := NewMemoryQueue[int](1)
	t.Cleanup(func() { _ = q.Close() })

	if got := q.Enqueue(1); got != EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}
	if got := q.Enqueue(2); got != EnqueueDropped {
		t.Fatalf("expected enqueue dropped, got %s", got)
	}
}

func TestMemoryQueue_CloseReturnsEOFWhenDrained(t *testing.T) {
	q := NewMemoryQueue[int](1)
	if got := q.Enqueue(1); got != EnqueueAccepted {
		t.Fatalf("expected enqueue accepted, got %s", got)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if got := q.Enqueue(2); got != EnqueueDropped {
		t.Fatalf("expected enqueue on closed queue to drop, got %s", got)
	}

	item, err := q.Dequeue(context.Background())
	if err != nil || item != 1 {
		t.Fatalf("expected queued item before EOF, got %d, %v", item, err)
	}
	if _, err := q.Dequeue(context.Background()); err != io.EOF {
		t.Fatalf("expected io.EOF on empty closed queue, got %v", err)
	}
}

func TestMemoryQueue_DequeueHonoursContext(t *testing.T) {
	q := NewMemoryQueue[int](1)
	t.Cleanup(func() { _ = q.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryQueue_Drain(t *testing.T) {
	q := NewMemoryQueue[int](3)
	t.Cleanup(func() { _ = q.Close() })
	q.Enqueue(1)
	q.Enqueue(2)

	if got := q.Drain(); len(got) != 2 || q.Len() != 0 {
		t.Fatalf("expected drain of 2 items, got %v (len %d)", got, q.Len())
	}
}
