// Package status implements the enqueue and status contracts for pollers.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/core/task"
	"github.com/vietddude/feedrank/internal/infra/storage"
	"github.com/vietddude/feedrank/internal/pipeline/queue"
)

// ErrNotFound is returned by Status for unknown task ids.
var ErrNotFound = errors.New("task not found")

// Presentation states shown to end users.
const (
	PresentationPending    = "pending"
	PresentationInProgress = "in_progress"
	PresentationSuccess    = "success"
	PresentationFailure    = "failure"
)

// ErrorView is the failure detail of a task.
type ErrorView struct {
	Kind         string              `json:"kind"`
	Message      string              `json:"message"`
	Attempts     int                 `json:"attempts"`
	FailureClass domain.FailureClass `json:"failure_class"`
}

// View is what a poller sees for one task.
type View struct {
	TaskID             string           `json:"task_id"`
	State              domain.TaskState `json:"state"`
	ProgressPercent    int              `json:"progress_percent"`
	CurrentStage       string           `json:"current_stage"`
	Attempt            int              `json:"attempt,omitempty"`
	NextRetryInSeconds *int             `json:"next_retry_in_seconds,omitempty"`
	ResultRef          string           `json:"result_ref,omitempty"`
	ResultCount        int              `json:"result_count,omitempty"`
	Error              *ErrorView       `json:"error,omitempty"`
}

// Presentation collapses RETRY into in_progress.
func (v View) Presentation() string {
	switch v.State {
	case domain.TaskStatePending:
		return PresentationPending
	case domain.TaskStateSuccess:
		return PresentationSuccess
	case domain.TaskStateFailure:
		return PresentationFailure
	default:
		return PresentationInProgress
	}
}

// Service enqueues tasks and reports their status.
type Service struct {
	queue queue.Queue
	tasks *task.Manager
	now   func() time.Time
	log   *slog.Logger
}

// NewService creates a status service.
func NewService(q queue.Queue, tasks *task.Manager) *Service {
	return &Service{
		queue: q,
		tasks: tasks,
		now:   time.Now,
		log:   slog.Default().With("component", "status"),
	}
}

// Enqueue records a PENDING task and hands it to the queue. params is the
// raw request body and is validated by the executor. Concurrent requests
// for the same user are not deduplicated. When the queue rejects the job
// the snapshot is discarded so no task stays PENDING forever.
func (s *Service) Enqueue(ctx context.Context, userID string, params json.RawMessage) (string, error) {
	taskID := uuid.NewString()

	if _, err := s.tasks.Create(ctx, taskID, userID, params); err != nil {
		return "", err
	}

	if _, err := s.queue.Enqueue(ctx, queue.Job{
		TaskID:     taskID,
		UserID:     userID,
		Params:     params,
		Attempt:    1,
		EnqueuedAt: s.now(),
	}); err != nil {
		if derr := s.tasks.Discard(ctx, taskID); derr != nil {
			s.log.Warn("Failed to discard unqueued task", "task_id", taskID, "error", derr)
		}
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.log.Debug("Task enqueued", "task_id", taskID, "user_id", userID)
	return taskID, nil
}

// Status returns the poller view of a task.
func (s *Service) Status(ctx context.Context, taskID string) (*View, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return BuildView(t, s.now()), nil
}

// BuildView projects a task snapshot at time now.
func BuildView(t *domain.Task, now time.Time) *View {
	v := &View{
		TaskID:          t.ID,
		State:           t.State,
		ProgressPercent: t.Progress,
		CurrentStage:    t.Stage,
	}

	switch t.State {
	case domain.TaskStateRetry:
		v.Attempt = t.Attempt
		secs := 0
		if !t.NextRetryAt.IsZero() {
			secs = max(int(math.Ceil(t.NextRetryAt.Sub(now).Seconds())), 0)
		}
		v.NextRetryInSeconds = &secs
	case domain.TaskStateSuccess:
		v.ResultRef = t.ResultRef
		if t.Result != nil {
			v.ResultCount = t.Result.Count
		}
	case domain.TaskStateFailure:
		if t.LastError != nil {
			v.Error = &ErrorView{
				Kind:         t.LastError.Kind,
				Message:      t.LastError.Message,
				Attempts:     t.LastError.Attempts,
				FailureClass: t.LastError.FailureClass,
			}
		}
	case domain.TaskStateProgress:
		if t.Attempt > 1 {
			v.Attempt = t.Attempt
		}
	}
	return v
}
