package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/feedrank/internal/core/domain"
)

// InteractionRepo implements storage.InteractionRepository using PostgreSQL.
type InteractionRepo struct {
	db *DB
}

// NewInteractionRepo creates a new PostgreSQL interaction repository.
func NewInteractionRepo(db *DB) *InteractionRepo {
	return &InteractionRepo{db: db}
}

// ListByUser returns the user's interactions, newest first.
func (r *InteractionRepo) ListByUser(
	ctx context.Context,
	userID string,
	limit int,
) ([]domain.Interaction, error) {
	query := `
		SELECT user_alias, post_id, author_id, action_type, created_at
		FROM interactions
		WHERE user_alias = $1
		ORDER BY created_at DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	var rows []domain.Interaction
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	return rows, nil
}
