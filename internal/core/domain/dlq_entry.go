package domain

import (
	"encoding/json"
	"time"
)

// SystemContext identifies the worker that recorded a dead letter.
type SystemContext struct {
	WorkerID       string `json:"worker_id"`
	RuntimeVersion string `json:"runtime_version"`
}

// DLQEntry is an append-only record of a task that failed terminally.
type DLQEntry struct {
	OriginalTaskID string          `json:"original_task_id"`
	UserID         string          `json:"user_id"`
	ErrorType      string          `json:"error_type"`
	ErrorMessage   string          `json:"error_message"`
	Attempts       int             `json:"attempts"`
	Timestamp      time.Time       `json:"timestamp"`
	SystemContext  SystemContext   `json:"system_context"`
	OriginalParams json.RawMessage `json:"-"`
	// Cause is the kind of the final attempt's error; for max_retries
	// entries it names what kept failing.
	Cause string `json:"-"`
}

// CauseKind returns Cause, falling back to ErrorType for entries recorded
// without one.
func (e *DLQEntry) CauseKind() string {
	if e.Cause != "" {
		return e.Cause
	}
	return e.ErrorType
}
