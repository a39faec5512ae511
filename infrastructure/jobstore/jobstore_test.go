package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, "test")
}

func TestEnqueueDequeueAck(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := Job{ID: "run-1:step-a:0", Payload: []byte(`{"stepKey":"a"}`)}
	if err := store.Enqueue(ctx, "steps", job); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	got, err := store.Dequeue(ctx, "steps", time.Second)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if got.ID != job.ID {
		t.Fatalf("Dequeue() id = %q, want %q", got.ID, job.ID)
	}

	if err := store.Ack(ctx, "steps", *got); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}
}

func TestEnqueue_Duplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := Job{ID: "dup-1", Payload: []byte(`{}`)}
	if err := store.Enqueue(ctx, "steps", job); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := store.Enqueue(ctx, "steps", job); err != ErrDuplicate {
		t.Fatalf("Enqueue() error = %v, want ErrDuplicate", err)
	}
}

func TestDequeue_EmptyTimesOut(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Dequeue(ctx, "empty-queue", 50*time.Millisecond)
	if err != ErrEmpty {
		t.Fatalf("Dequeue() error = %v, want ErrEmpty", err)
	}
}

func TestDelayedJobSweep(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := Job{ID: "delayed-1", Payload: []byte(`{}`), AvailableAt: time.Now().Add(500 * time.Millisecond)}
	if err := store.Enqueue(ctx, "steps", job); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if _, err := store.Dequeue(ctx, "steps", 50*time.Millisecond); err != ErrEmpty {
		t.Fatalf("Dequeue() before sweep error = %v, want ErrEmpty", err)
	}

	time.Sleep(time.Until(job.AvailableAt) + 10*time.Millisecond)

	moved, err := store.Sweep(ctx, "steps")
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if moved != 1 {
		t.Fatalf("Sweep() moved = %d, want 1", moved)
	}

	got, err := store.Dequeue(ctx, "steps", time.Second)
	if err != nil {
		t.Fatalf("Dequeue() after sweep error = %v", err)
	}
	if got.ID != job.ID {
		t.Fatalf("Dequeue() id = %q, want %q", got.ID, job.ID)
	}
}

func TestRequeue_IncrementsAttempts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := Job{ID: "retry-1", Payload: []byte(`{}`)}
	if err := store.Enqueue(ctx, "steps", job); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	claimed, err := store.Dequeue(ctx, "steps", time.Second)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}

	if err := store.Requeue(ctx, "steps", *claimed); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}

	retried, err := store.Dequeue(ctx, "steps", time.Second)
	if err != nil {
		t.Fatalf("Dequeue() after requeue error = %v", err)
	}
	if retried.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", retried.Attempts)
	}
}
