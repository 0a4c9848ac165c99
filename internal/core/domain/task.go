package domain

import (
	"encoding/json"
	"time"
)

// TaskState is the lifecycle state of a ranking-generation task.
type TaskState string

const (
	TaskStatePending  TaskState = "PENDING"
	TaskStateProgress TaskState = "PROGRESS"
	TaskStateRetry    TaskState = "RETRY"
	TaskStateSuccess  TaskState = "SUCCESS"
	TaskStateFailure  TaskState = "FAILURE"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// TaskParams are the validated generation parameters.
type TaskParams struct {
	Limit        int  `json:"limit"`
	ForceRefresh bool `json:"force_refresh"`
}

// DefaultTaskParams returns limit 10 without force refresh.
func DefaultTaskParams() TaskParams {
	return TaskParams{Limit: DefaultLimit}
}

// FailureClass tells pollers why a task ended in FAILURE.
type FailureClass string

const (
	FailurePermanent  FailureClass = "permanent"
	FailureMaxRetries FailureClass = "max_retries"
	FailureUnexpected FailureClass = "unexpected"
	FailureRetryable  FailureClass = "retryable"
)

// TaskError is the structured error exposed through the status contract.
type TaskError struct {
	Kind         string       `json:"kind"`
	Message      string       `json:"message"`
	Attempts     int          `json:"attempts"`
	FailureClass FailureClass `json:"failure_class"`
}

// Task is one generation request. It is mutated only by the worker executing it.
type Task struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	RawParams   json.RawMessage `json:"raw_params,omitempty"`
	Params      TaskParams      `json:"params"`
	State       TaskState       `json:"state"`
	Attempt     int             `json:"attempt"`
	Progress    int             `json:"progress_percent"`
	Stage       string          `json:"current_stage"`
	ResultRef   string          `json:"result_ref,omitempty"`
	Result      *RankingResult  `json:"result,omitempty"`
	LastError   *TaskError      `json:"last_error,omitempty"`
	NextRetryAt time.Time       `json:"next_retry_at,omitzero"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type taskAlias Task

// taskJSON carries RawParams as a string so a malformed request body
// survives a snapshot round-trip.
type taskJSON struct {
	*taskAlias
	RawParams string `json:"raw_params,omitempty"`
}

func (t Task) MarshalJSON() ([]byte, error) {
	a := taskAlias(t)
	return json.Marshal(taskJSON{taskAlias: &a, RawParams: string(t.RawParams)})
}

func (t *Task) UnmarshalJSON(data []byte) error {
	aux := taskJSON{taskAlias: (*taskAlias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.RawParams = nil
	if aux.RawParams != "" {
		t.RawParams = json.RawMessage(aux.RawParams)
	}
	return nil
}

// IsTerminal reports whether the task reached SUCCESS or FAILURE.
func (t *Task) IsTerminal() bool {
	return t.State == TaskStateSuccess || t.State == TaskStateFailure
}
