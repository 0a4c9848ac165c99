package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/infra/storage"
)

// DLQRepo implements storage.DLQRepository using PostgreSQL. The
// idx_dead_letters_type index serves the per-kind lookups.
type DLQRepo struct {
	db *DB
}

// NewDLQRepo creates a new PostgreSQL dead-letter repository.
func NewDLQRepo(db *DB) *DLQRepo {
	return &DLQRepo{db: db}
}

type dlqRow struct {
	OriginalTaskID string         `db:"original_task_id"`
	UserID         string         `db:"user_id"`
	ErrorType      string         `db:"error_type"`
	ErrorMessage   string         `db:"error_message"`
	Attempts       int            `db:"attempts"`
	WorkerID       string         `db:"worker_id"`
	RuntimeVersion string         `db:"runtime_version"`
	OriginalParams sql.NullString `db:"original_params"`
	Cause          string         `db:"cause"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (row dlqRow) toDomain() *domain.DLQEntry {
	e := &domain.DLQEntry{
		OriginalTaskID: row.OriginalTaskID,
		UserID:         row.UserID,
		ErrorType:      row.ErrorType,
		ErrorMessage:   row.ErrorMessage,
		Attempts:       row.Attempts,
		Timestamp:      row.CreatedAt.UTC(),
		SystemContext: domain.SystemContext{
			WorkerID:       row.WorkerID,
			RuntimeVersion: row.RuntimeVersion,
		},
		Cause: row.Cause,
	}
	if row.OriginalParams.Valid {
		e.OriginalParams = []byte(row.OriginalParams.String)
	}
	return e
}

const dlqColumns = `original_task_id, user_id, error_type, error_message, attempts,
		worker_id, runtime_version, original_params, cause, created_at`

// Add inserts an entry. A second insert for the same task is ignored.
func (r *DLQRepo) Add(ctx context.Context, e *domain.DLQEntry) error {
	var params any
	if len(e.OriginalParams) > 0 {
		params = string(e.OriginalParams)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dead_letters (`+dlqColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (original_task_id) DO NOTHING
	`,
		e.OriginalTaskID,
		e.UserID,
		e.ErrorType,
		e.ErrorMessage,
		e.Attempts,
		e.SystemContext.WorkerID,
		e.SystemContext.RuntimeVersion,
		params,
		e.Cause,
		e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to add dead letter: %w", err)
	}
	return nil
}

// Get returns the entry recorded for taskID.
func (r *DLQRepo) Get(ctx context.Context, taskID string) (*domain.DLQEntry, error) {
	var row dlqRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+dlqColumns+` FROM dead_letters WHERE original_task_id = $1`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}
	return row.toDomain(), nil
}

// ListByKind returns entries of one error type, newest first.
func (r *DLQRepo) ListByKind(
	ctx context.Context,
	kind string,
	limit int,
) ([]*domain.DLQEntry, error) {
	query := `SELECT ` + dlqColumns + ` FROM dead_letters
		WHERE error_type = $1
		ORDER BY created_at DESC`
	args := []any{kind}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

// ListSince returns entries at or after since, oldest first.
func (r *DLQRepo) ListSince(ctx context.Context, since time.Time) ([]*domain.DLQEntry, error) {
	return r.list(ctx, `SELECT `+dlqColumns+` FROM dead_letters
		WHERE created_at >= $1
		ORDER BY created_at ASC`, since)
}

func (r *DLQRepo) list(ctx context.Context, query string, args ...any) ([]*domain.DLQEntry, error) {
	var rows []dlqRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	out := make([]*domain.DLQEntry, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// CountByKind returns entry counts grouped by error type.
func (r *DLQRepo) CountByKind(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		ErrorType string `db:"error_type"`
		Count     int    `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT error_type, COUNT(*) AS count FROM dead_letters GROUP BY error_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count dead letters: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ErrorType] = row.Count
	}
	return counts, nil
}

// DeleteOlderThan removes entries recorded before cutoff.
func (r *DLQRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead letters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}

// Count returns the total number of entries.
func (r *DLQRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM dead_letters`); err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return n, nil
}
