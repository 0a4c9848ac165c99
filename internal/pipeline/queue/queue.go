// Package queue abstracts the task broker: at-least-once delivery with
// delayed redelivery on Nack.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrClosed is returned by Pull after the queue is closed.
var ErrClosed = errors.New("queue closed")

// Job is one ranking-generation request.
type Job struct {
	TaskID     string          `json:"task_id"`
	UserID     string          `json:"user_id"`
	Params     json.RawMessage `json:"params,omitempty"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

type jobAlias Job

// jobJSON encodes Params as a string; validation happens in the executor,
// so the broker must carry bodies that are not valid JSON.
type jobJSON struct {
	*jobAlias
	Params string `json:"params,omitempty"`
}

func (j Job) MarshalJSON() ([]byte, error) {
	a := jobAlias(j)
	return json.Marshal(jobJSON{jobAlias: &a, Params: string(j.Params)})
}

func (j *Job) UnmarshalJSON(data []byte) error {
	aux := jobJSON{jobAlias: (*jobAlias)(j)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	j.Params = nil
	if aux.Params != "" {
		j.Params = json.RawMessage(aux.Params)
	}
	return nil
}

// Delivery is a pulled job. It must be acked or nacked exactly once.
type Delivery struct {
	Job         Job
	DeliveredAt time.Time
}

// Queue is the broker contract used by the worker pool.
type Queue interface {
	// Enqueue stores job and returns its task id, generating one when empty.
	Enqueue(ctx context.Context, job Job) (string, error)

	// Pull blocks until a job is ready or ctx is done.
	Pull(ctx context.Context) (*Delivery, error)

	// Ack removes a delivered job permanently.
	Ack(ctx context.Context, d *Delivery) error

	// Nack makes d.Job visible again after delay, persisting its fields.
	Nack(ctx context.Context, d *Delivery, delay time.Duration) error

	// Len returns the number of waiting (not in-flight) jobs.
	Len(ctx context.Context) (int, error)
}
