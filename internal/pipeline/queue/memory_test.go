package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryQueue_FIFOAndIDs(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	id1, err := q.Enqueue(ctx, Job{UserID: "alice"})
	if err != nil || id1 == "" {
		t.Fatalf("Enqueue failed: id=%q err=%v", id1, err)
	}
	id2, _ := q.Enqueue(ctx, Job{UserID: "bob"})
	if id1 == id2 {
		t.Fatal("task ids must be unique")
	}

	d, err := q.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if d.Job.TaskID != id1 || d.Job.Attempt != 1 {
		t.Errorf("expected first job with attempt 1, got %+v", d.Job)
	}
	if q.InFlight() != 1 {
		t.Errorf("expected 1 in flight, got %d", q.InFlight())
	}
	_ = q.Ack(ctx, d)
	if q.InFlight() != 0 {
		t.Errorf("expected 0 in flight after ack, got %d", q.InFlight())
	}
}

func TestMemoryQueue_NackDelays(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	_, _ = q.Enqueue(ctx, Job{TaskID: "t1", UserID: "alice"})
	d, _ := q.Pull(ctx)
	d.Job.Attempt = 2
	if err := q.Nack(ctx, d, time.Minute); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := q.Pull(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected job to be delayed, got %v", err)
	}

	now = now.Add(time.Minute)
	d, err := q.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull after delay failed: %v", err)
	}
	if d.Job.Attempt != 2 {
		t.Errorf("expected persisted attempt 2, got %d", d.Job.Attempt)
	}
}

func TestMemoryQueue_Close(t *testing.T) {
	q := NewMemoryQueue()
	done := make(chan error, 1)
	go func() {
		_, err := q.Pull(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pull did not unblock on Close")
	}
}
