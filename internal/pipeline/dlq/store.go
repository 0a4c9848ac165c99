// Package dlq records tasks that failed terminally, raises alerts for the
// ones that need a human, and analyzes failure patterns.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/infra/storage"
	"github.com/vietddude/feedrank/internal/pipeline/errkind"
	"github.com/vietddude/feedrank/internal/pipeline/metrics"
)

// Alert is raised for dead letters that need attention.
type Alert struct {
	Entry  domain.DLQEntry `json:"entry"`
	Reason string          `json:"reason"`
}

// Notifier delivers alerts to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Config holds dead-letter store settings.
type Config struct {
	WorkerID      string
	AlertsEnabled bool
}

// RecordInput describes a terminal failure.
type RecordInput struct {
	TaskID   string
	UserID   string
	Kind     errkind.Kind
	Cause    errkind.Kind // last attempt's kind when Kind is max_retries; defaults to Kind
	Message  string
	Attempts int
	Params   json.RawMessage
}

// Store is the dead-letter store.
type Store struct {
	cfg      Config
	repo     storage.DLQRepository
	notifier Notifier
	recorder metrics.Recorder
	now      func() time.Time
	log      *slog.Logger
}

// NewStore creates a dead-letter store. notifier and recorder may be nil.
func NewStore(
	cfg Config,
	repo storage.DLQRepository,
	notifier Notifier,
	recorder metrics.Recorder,
) *Store {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Store{
		cfg:      cfg,
		repo:     repo,
		notifier: notifier,
		recorder: recorder,
		now:      time.Now,
		log:      slog.Default().With("component", "dlq"),
	}
}

// ShouldAlert is true for permanent failures seen on more than one attempt,
// for retry exhaustion, and for unexpected failures.
func ShouldAlert(kind errkind.Kind, attempts int) bool {
	switch {
	case kind == errkind.MaxRetries, kind == errkind.Unexpected:
		return true
	case errkind.IsPermanent(kind.Name):
		return attempts > 1
	default:
		return false
	}
}

// Record builds and persists an entry, then alerts when ShouldAlert says so.
// A failing notifier is logged and does not fail the record.
func (s *Store) Record(ctx context.Context, in RecordInput) (*domain.DLQEntry, error) {
	cause := in.Cause.Name
	if cause == "" {
		cause = in.Kind.Name
	}
	entry := &domain.DLQEntry{
		OriginalTaskID: in.TaskID,
		UserID:         in.UserID,
		ErrorType:      in.Kind.Name,
		ErrorMessage:   in.Message,
		Attempts:       in.Attempts,
		Timestamp:      s.now().UTC(),
		SystemContext: domain.SystemContext{
			WorkerID:       s.cfg.WorkerID,
			RuntimeVersion: runtime.Version(),
		},
		OriginalParams: in.Params,
		Cause:          cause,
	}

	if err := s.repo.Add(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record dead letter: %w", err)
	}
	s.recorder.DeadLettered(entry.ErrorType)

	s.log.Warn("Task dead-lettered",
		"task_id", entry.OriginalTaskID,
		"user_id", entry.UserID,
		"error_type", entry.ErrorType,
		"cause", entry.Cause,
		"attempts", entry.Attempts,
	)

	if s.cfg.AlertsEnabled && s.notifier != nil && ShouldAlert(in.Kind, in.Attempts) {
		alert := Alert{Entry: *entry, Reason: alertReason(in.Kind, in.Attempts)}
		if err := s.notifier.Notify(ctx, alert); err != nil {
			s.log.Error("Failed to send dead-letter alert", "task_id", entry.OriginalTaskID, "error", err)
		} else {
			s.recorder.AlertRaised(entry.ErrorType)
		}
	}

	return entry, nil
}

func alertReason(kind errkind.Kind, attempts int) string {
	switch kind {
	case errkind.MaxRetries:
		return fmt.Sprintf("retries exhausted after %d attempts", attempts)
	case errkind.Unexpected:
		return "unexpected failure"
	default:
		return fmt.Sprintf("permanent %s failure after %d attempts", kind.Name, attempts)
	}
}

// Get returns the entry for a task.
func (s *Store) Get(ctx context.Context, taskID string) (*domain.DLQEntry, error) {
	return s.repo.Get(ctx, taskID)
}

// ByKind returns the newest entries of one kind.
func (s *Store) ByKind(ctx context.Context, kind string, limit int) ([]*domain.DLQEntry, error) {
	return s.repo.ListByKind(ctx, kind, limit)
}

// List returns entries recorded within window, oldest first.
func (s *Store) List(ctx context.Context, window time.Duration) ([]*domain.DLQEntry, error) {
	return s.repo.ListSince(ctx, s.now().Add(-window))
}

// Counts returns totals per kind.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	return s.repo.CountByKind(ctx)
}

// Purge removes entries older than retention.
func (s *Store) Purge(ctx context.Context, retention time.Duration) (int, error) {
	n, err := s.repo.DeleteOlderThan(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("Purged dead letters", "count", n, "retention", retention)
	}
	return n, nil
}
