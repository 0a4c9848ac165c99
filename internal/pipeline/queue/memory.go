package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type item struct {
	job     Job
	readyAt time.Time
	seq     uint64
}

type delayHeap []*item

func (h delayHeap) Len() int { return len(h) }
func (h delayHeap) Less(i, j int) bool {
	if h[i].readyAt.Equal(h[j].readyAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].readyAt.Before(h[j].readyAt)
}
func (h delayHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *delayHeap) Push(x any)   { *h = append(*h, x.(*item)) }
func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// MemoryQueue is an in-process queue ordered by ready time.
type MemoryQueue struct {
	mu       sync.Mutex
	items    delayHeap
	inflight map[string]Job
	seq      uint64
	closed   bool
	notify   chan struct{}
	done     chan struct{}
	now      func() time.Time
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		inflight: make(map[string]Job),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) push(job Job, readyAt time.Time) {
	q.seq++
	heap.Push(&q.items, &item{job: job, readyAt: readyAt, seq: q.seq})
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) (string, error) {
	if job.TaskID == "" {
		job.TaskID = uuid.NewString()
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	now := q.now()
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrClosed
	}
	q.push(job, now)
	q.mu.Unlock()

	q.signal()
	return job.TaskID, nil
}

func (q *MemoryQueue) Pull(ctx context.Context) (*Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}

		wait := time.Hour
		if len(q.items) > 0 {
			now := q.now()
			top := q.items[0]
			if !top.readyAt.After(now) {
				heap.Pop(&q.items)
				q.inflight[top.job.TaskID] = top.job
				q.mu.Unlock()
				// Wake another puller if more work is ready.
				q.signal()
				return &Delivery{Job: top.job, DeliveredAt: now}, nil
			}
			wait = top.readyAt.Sub(now)
		}
		q.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.done:
			timer.Stop()
			return nil, ErrClosed
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	delete(q.inflight, d.Job.TaskID)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, d *Delivery, delay time.Duration) error {
	q.mu.Lock()
	delete(q.inflight, d.Job.TaskID)
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.push(d.Job, q.now().Add(delay))
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// InFlight returns the number of delivered but unacknowledged jobs.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Close wakes blocked pullers with ErrClosed.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}
