package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
)

var (
	// ErrUserNotFound is returned when a user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrTaskNotFound is returned when a task snapshot doesn't exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrEntryNotFound is returned when a dead-letter entry doesn't exist.
	ErrEntryNotFound = errors.New("dead letter entry not found")
)

// InteractionRepository reads the interaction log. Read-only to this service.
type InteractionRepository interface {
	// ListByUser returns the user's interactions, newest first. limit <= 0
	// means no limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Interaction, error)
}

// CandidateQuery narrows the candidate pool for one user.
type CandidateQuery struct {
	UserID         string
	Since          time.Time
	Limit          int
	ExcludePostIDs []string
}

// CandidateRepository sources candidate posts.
type CandidateRepository interface {
	ListCandidates(ctx context.Context, q CandidateQuery) ([]domain.CandidatePost, error)
}

// UserRepository looks up accounts.
type UserRepository interface {
	// GetUser returns ErrUserNotFound for unknown ids.
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// TaskRepository stores task snapshots for the status contract.
type TaskRepository interface {
	Save(ctx context.Context, task *domain.Task) error
	// Get returns ErrTaskNotFound for unknown ids.
	Get(ctx context.Context, taskID string) (*domain.Task, error)
	// Delete removes a snapshot; unknown ids are not an error.
	Delete(ctx context.Context, taskID string) error
}

// DLQRepository persists dead-letter entries with a per-kind index.
type DLQRepository interface {
	// Add appends an entry. Entries are never updated.
	Add(ctx context.Context, entry *domain.DLQEntry) error

	// Get returns ErrEntryNotFound for unknown task ids.
	Get(ctx context.Context, taskID string) (*domain.DLQEntry, error)

	// ListByKind returns entries with the given error type, newest first.
	ListByKind(ctx context.Context, kind string, limit int) ([]*domain.DLQEntry, error)

	// ListSince returns entries recorded at or after since, oldest first.
	ListSince(ctx context.Context, since time.Time) ([]*domain.DLQEntry, error)

	// CountByKind returns entry counts per error type.
	CountByKind(ctx context.Context) (map[string]int, error)

	// DeleteOlderThan removes entries recorded before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Count returns the total number of entries.
	Count(ctx context.Context) (int, error)
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
