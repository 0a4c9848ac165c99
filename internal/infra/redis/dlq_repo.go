package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/infra/storage"
)

// DLQRepo implements storage.DLQRepository on Redis: one JSON blob per
// entry, a ZSET over all entries and one ZSET per error type, all scored by
// timestamp.
type DLQRepo struct {
	rdb *redis.Client
}

// NewDLQRepo creates a new Redis-backed dead-letter repository.
func NewDLQRepo(client *Client) *DLQRepo {
	return &DLQRepo{rdb: client.rdb}
}

// Key helpers
func dlqIndexKey() string {
	return "dlq:index"
}

func dlqKindKey(kind string) string {
	return fmt.Sprintf("dlq:kind:%s", kind)
}

func dlqEntryKey(taskID string) string {
	return fmt.Sprintf("dlq:entry:%s", taskID)
}

// dlqRecord keeps the original params and the cause, which the public entry
// JSON omits. Params are stored as a string since they may not be valid JSON.
type dlqRecord struct {
	*domain.DLQEntry
	OriginalParams string `json:"original_params,omitempty"`
	Cause          string `json:"cause,omitempty"`
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// Add stores the entry and indexes it. Re-adding an existing task id is a no-op.
func (r *DLQRepo) Add(ctx context.Context, e *domain.DLQEntry) error {
	data, err := json.Marshal(dlqRecord{DLQEntry: e, OriginalParams: string(e.OriginalParams), Cause: e.Cause})
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	ok, err := r.rdb.SetNX(ctx, dlqEntryKey(e.OriginalTaskID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set dead letter: %w", err)
	}
	if !ok {
		return nil
	}

	z := redis.Z{Score: score(e.Timestamp), Member: e.OriginalTaskID}
	pipe := r.rdb.TxPipeline()
	pipe.ZAdd(ctx, dlqIndexKey(), z)
	pipe.ZAdd(ctx, dlqKindKey(e.ErrorType), z)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index dead letter: %w", err)
	}
	return nil
}

// Get loads one entry.
func (r *DLQRepo) Get(ctx context.Context, taskID string) (*domain.DLQEntry, error) {
	data, err := r.rdb.Get(ctx, dlqEntryKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}
	return decodeEntry(data)
}

func decodeEntry(data []byte) (*domain.DLQEntry, error) {
	rec := dlqRecord{DLQEntry: &domain.DLQEntry{}}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dead letter: %w", err)
	}
	if rec.OriginalParams != "" {
		rec.DLQEntry.OriginalParams = json.RawMessage(rec.OriginalParams)
	}
	rec.DLQEntry.Cause = rec.Cause
	return rec.DLQEntry, nil
}

// load resolves ids to entries, skipping ids whose blob has gone.
func (r *DLQRepo) load(ctx context.Context, ids []string) ([]*domain.DLQEntry, error) {
	if len(ids) == 0 {
		return []*domain.DLQEntry{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = dlqEntryKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load dead letters: %w", err)
	}

	out := make([]*domain.DLQEntry, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		e, err := decodeEntry([]byte(s))
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ListByKind returns entries of one error type, newest first.
func (r *DLQRepo) ListByKind(
	ctx context.Context,
	kind string,
	limit int,
) ([]*domain.DLQEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.rdb.ZRevRange(ctx, dlqKindKey(kind), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}
	return r.load(ctx, ids)
}

// ListSince returns entries at or after since, oldest first.
func (r *DLQRepo) ListSince(ctx context.Context, since time.Time) ([]*domain.DLQEntry, error) {
	ids, err := r.rdb.ZRangeByScore(ctx, dlqIndexKey(), &redis.ZRangeBy{
		Min: strconv.FormatFloat(score(since), 'f', 0, 64),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	return r.load(ctx, ids)
}

// CountByKind scans the per-kind indexes.
func (r *DLQRepo) CountByKind(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	var cursor uint64
	prefix := dlqKindKey("")
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		for _, k := range keys {
			n, err := r.rdb.ZCard(ctx, k).Result()
			if err != nil {
				return nil, fmt.Errorf("zcard failed: %w", err)
			}
			if n > 0 {
				counts[k[len(prefix):]] = int(n)
			}
		}
		cursor = next
		if cursor == 0 {
			return counts, nil
		}
	}
}

// DeleteOlderThan removes entries recorded before cutoff from every index.
func (r *DLQRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	upper := "(" + strconv.FormatFloat(score(cutoff), 'f', 0, 64)
	ids, err := r.rdb.ZRangeByScore(ctx, dlqIndexKey(), &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	entries, err := r.load(ctx, ids)
	if err != nil {
		return 0, err
	}

	pipe := r.rdb.TxPipeline()
	for _, e := range entries {
		pipe.ZRem(ctx, dlqKindKey(e.ErrorType), e.OriginalTaskID)
	}
	members := make([]any, len(ids))
	keys := make([]string, len(ids))
	for i, id := range ids {
		members[i] = id
		keys[i] = dlqEntryKey(id)
	}
	pipe.ZRem(ctx, dlqIndexKey(), members...)
	pipe.Del(ctx, keys...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to purge dead letters: %w", err)
	}
	return len(ids), nil
}

// Count returns the count of entries.
func (r *DLQRepo) Count(ctx context.Context) (int, error) {
	n, err := r.rdb.ZCard(ctx, dlqIndexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(n), nil
}
