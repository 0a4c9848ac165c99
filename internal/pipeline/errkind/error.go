package errkind

import (
	"errors"
	"fmt"
)

// Error is a failure already tagged with its kind at the call site.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New creates a typed error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags cause with kind.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Newf creates a typed error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Name, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Name, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the error may succeed on a later attempt.
func (e *Error) Retryable() bool { return e.Kind.Retryable }

// As extracts a typed error from err's chain.
func As(err error) (*Error, bool) {
	var ke *Error
	if errors.As(err, &ke) {
		return ke, true
	}
	return nil, false
}

// IsRetryable classifies err and reports whether it is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable
}
