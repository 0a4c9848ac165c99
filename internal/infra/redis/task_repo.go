package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/infra/storage"
)

// TaskRepo stores task snapshots as JSON with a retention TTL.
type TaskRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTaskRepo creates a Redis task tracker. ttl <= 0 keeps snapshots for a day.
func NewTaskRepo(client *Client, ttl time.Duration) *TaskRepo {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TaskRepo{rdb: client.rdb, ttl: ttl}
}

func taskKey(id string) string {
	return fmt.Sprintf("task:%s", id)
}

// Save writes the snapshot, refreshing its TTL.
func (r *TaskRepo) Save(ctx context.Context, t *domain.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := r.rdb.Set(ctx, taskKey(t.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// Get loads a snapshot.
func (r *TaskRepo) Get(ctx context.Context, id string) (*domain.Task, error) {
	data, err := r.rdb.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	var t domain.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &t, nil
}

// Delete drops a snapshot.
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, taskKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}
