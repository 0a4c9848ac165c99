package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/infra/storage"
)

// CandidateRepo implements storage.CandidateRepository using PostgreSQL.
type CandidateRepo struct {
	db *DB
}

// NewCandidateRepo creates a new PostgreSQL candidate repository.
func NewCandidateRepo(db *DB) *CandidateRepo {
	return &CandidateRepo{db: db}
}

// ListCandidates returns recent posts, newest first.
func (r *CandidateRepo) ListCandidates(
	ctx context.Context,
	q storage.CandidateQuery,
) ([]domain.CandidatePost, error) {
	var (
		where []string
		args  []any
	)
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if len(q.ExcludePostIDs) > 0 {
		args = append(args, pq.Array(q.ExcludePostIDs))
		where = append(where, fmt.Sprintf("NOT (id = ANY($%d))", len(args)))
	}

	query := `
		SELECT id, author_id, created_at, favourites_count, reblogs_count, replies_count, synthetic
		FROM posts`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY created_at DESC, id ASC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var posts []domain.CandidatePost
	if err := r.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	return posts, nil
}
