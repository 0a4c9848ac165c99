package errkind

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Classify maps a raw failure to a Kind. Typed errors win; the message
// heuristics in ClassifyMessage are only a fallback.
func Classify(err error) Kind {
	if err == nil {
		return Unexpected
	}

	if ke, ok := As(err); ok {
		return ke.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Timeout
		}
		return Network
	}

	return ClassifyMessage(err.Error())
}

// ClassifyMessage applies ordered substring heuristics to an error message.
// Anything unrecognised is treated as a generic retryable network failure.
func ClassifyMessage(msg string) Kind {
	m := strings.ToLower(msg)

	switch {
	case containsAny(m, "database", "connection refused", "connection reset",
		"store unavailable", "sql", "no connection", "broken pipe"):
		return StoreUnavailable
	case containsAny(m, "cache", "redis"):
		return CacheUnavailable
	case containsAny(m, "insufficient", "no data"):
		return InsufficientData
	case containsAny(m, "memory", "resource", "too many open files"):
		return ResourceExhausted
	case strings.Contains(m, "user") && strings.Contains(m, "not found"):
		return InvalidUser
	case containsAny(m, "permission", "forbidden", "unauthorized", "access denied"):
		return PermissionDenied
	case containsAny(m, "invalid param", "validation"):
		return InvalidParams
	case containsAny(m, "timeout", "timed out", "deadline exceeded"):
		return Timeout
	case containsAny(m, "score", "scoring"):
		return ScoringFailed
	}

	return Network
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
