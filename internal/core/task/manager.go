package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/infra/storage"
)

// Manager owns task snapshots and enforces the state machine.
type Manager struct {
	repo  storage.TaskRepository
	now   func() time.Time
	log   *slog.Logger
	mu    sync.RWMutex
	onChg func(Transition)
}

// NewManager creates a manager over repo.
func NewManager(repo storage.TaskRepository) *Manager {
	return &Manager{
		repo: repo,
		now:  time.Now,
		log:  slog.Default().With("component", "task_manager"),
	}
}

// SetStateChangeCallback registers callback for state changes.
func (m *Manager) SetStateChangeCallback(fn func(Transition)) {
	m.mu.Lock()
	m.onChg = fn
	m.mu.Unlock()
}

// Create records a new PENDING task at attempt 1.
func (m *Manager) Create(
	ctx context.Context,
	taskID, userID string,
	raw json.RawMessage,
) (*domain.Task, error) {
	now := m.now()
	t := &domain.Task{
		ID:        taskID,
		UserID:    userID,
		RawParams: raw,
		Params:    domain.DefaultTaskParams(),
		State:     domain.TaskStatePending,
		Attempt:   1,
		Stage:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.repo.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}
	return t, nil
}

// Get retrieves a task snapshot.
func (m *Manager) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	return m.repo.Get(ctx, taskID)
}

// Discard removes a task that never reached a worker.
func (m *Manager) Discard(ctx context.Context, taskID string) error {
	if err := m.repo.Delete(ctx, taskID); err != nil {
		return fmt.Errorf("failed to discard task: %w", err)
	}
	return nil
}

// Save persists t as-is, stamping UpdatedAt.
func (m *Manager) Save(ctx context.Context, t *domain.Task) error {
	t.UpdatedAt = m.now()
	if err := m.repo.Save(ctx, t); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// Transition moves t to state `to`, validating the edge, and persists it.
func (m *Manager) Transition(ctx context.Context, t *domain.Task, to State, reason string) error {
	if !CanTransition(t.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, to)
	}

	tr := Transition{
		TaskID:    t.ID,
		From:      t.State,
		To:        to,
		Reason:    reason,
		Timestamp: m.now(),
	}
	t.State = to
	if err := m.Save(ctx, t); err != nil {
		return err
	}

	m.log.Debug("Task state changed", "task_id", t.ID, "from", tr.From, "to", tr.To, "reason", reason)

	m.mu.RLock()
	cb := m.onChg
	m.mu.RUnlock()
	if cb != nil {
		cb(tr)
	}
	return nil
}

// Progress records a progress checkpoint. Progress never goes backwards
// within an attempt.
func (m *Manager) Progress(ctx context.Context, t *domain.Task, percent int, stage string) error {
	if percent > t.Progress {
		t.Progress = percent
	}
	t.Stage = stage
	return m.Save(ctx, t)
}
