package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/feedrank/internal/pipeline/queue"
)

// QueueConfig tunes the Redis queue.
type QueueConfig struct {
	// Name namespaces the keys; defaults to "ranking".
	Name string
	// Visibility is how long a pulled job may stay unacked before it is
	// redelivered.
	Visibility time.Duration
	// PollInterval bounds how long Pull sleeps between empty polls.
	PollInterval time.Duration
}

// Queue implements queue.Queue with a ready ZSET scored by ready time, a
// HASH of job payloads and an in-flight ZSET scored by visibility deadline.
type Queue struct {
	rdb *redis.Client
	cfg QueueConfig
	now func() time.Time
}

// NewQueue creates a Redis-backed task queue.
func NewQueue(client *Client, cfg QueueConfig) *Queue {
	if cfg.Name == "" {
		cfg.Name = "ranking"
	}
	if cfg.Visibility <= 0 {
		cfg.Visibility = 10 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Queue{rdb: client.rdb, cfg: cfg, now: time.Now}
}

// Key helpers
func (q *Queue) readyKey() string    { return fmt.Sprintf("queue:%s:ready", q.cfg.Name) }
func (q *Queue) jobsKey() string     { return fmt.Sprintf("queue:%s:jobs", q.cfg.Name) }
func (q *Queue) inflightKey() string { return fmt.Sprintf("queue:%s:inflight", q.cfg.Name) }

func ms(t time.Time) float64 { return float64(t.UnixMilli()) }

func (q *Queue) Enqueue(ctx context.Context, job queue.Job) (string, error) {
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
	if err := q.schedule(ctx, job, now); err != nil {
		return "", err
	}
	return job.TaskID, nil
}

func (q *Queue) schedule(ctx context.Context, job queue.Job, readyAt time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobsKey(), job.TaskID, data)
	pipe.ZRem(ctx, q.inflightKey(), job.TaskID)
	pipe.ZAdd(ctx, q.readyKey(), redis.Z{Score: ms(readyAt), Member: job.TaskID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}
	return nil
}

// Pull polls until a job is ready. Jobs whose visibility deadline passed
// are moved back to the ready set first.
func (q *Queue) Pull(ctx context.Context) (*queue.Delivery, error) {
	for {
		d, err := q.tryPull(ctx)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.cfg.PollInterval):
		}
	}
}

// claimScript moves the oldest ready job into the in-flight set in one step,
// so a crash cannot drop a job between the two sets.
var claimScript = redis.NewScript(`
local ids = redis.call('zrangebyscore', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
redis.call('zrem', KEYS[1], ids[1])
redis.call('zadd', KEYS[2], ARGV[2], ids[1])
return ids[1]
`)

// requeueScript returns in-flight jobs whose visibility deadline passed to
// the ready set.
var requeueScript = redis.NewScript(`
local ids = redis.call('zrangebyscore', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('zrem', KEYS[1], id)
  redis.call('zadd', KEYS[2], ARGV[1], id)
end
return #ids
`)

func msArg(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

func (q *Queue) tryPull(ctx context.Context) (*queue.Delivery, error) {
	now := q.now()
	if err := q.requeueExpired(ctx, now); err != nil {
		return nil, err
	}

	deadline := now.Add(q.cfg.Visibility)
	id, err := claimScript.Run(ctx, q.rdb,
		[]string{q.readyKey(), q.inflightKey()},
		msArg(now), msArg(deadline),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim failed: %w", err)
	}

	data, err := q.rdb.HGet(ctx, q.jobsKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		// Payload gone; drop the orphan id.
		q.rdb.ZRem(ctx, q.inflightKey(), id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hget failed: %w", err)
	}

	var job queue.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &queue.Delivery{Job: job, DeliveredAt: now}, nil
}

func (q *Queue) requeueExpired(ctx context.Context, now time.Time) error {
	err := requeueScript.Run(ctx, q.rdb,
		[]string{q.inflightKey(), q.readyKey()},
		msArg(now),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("requeue expired failed: %w", err)
	}
	return nil
}

func (q *Queue) Ack(ctx context.Context, d *queue.Delivery) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey(), d.Job.TaskID)
	pipe.HDel(ctx, q.jobsKey(), d.Job.TaskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

func (q *Queue) Nack(ctx context.Context, d *queue.Delivery, delay time.Duration) error {
	return q.schedule(ctx, d.Job, q.now().Add(delay))
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	n, err := q.rdb.ZCard(ctx, q.readyKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(n), nil
}
