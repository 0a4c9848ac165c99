// Package errkind holds the closed failure taxonomy used to decide between
// retrying a ranking task and abandoning it to the dead-letter store.
package errkind

// Kind is a failure category. Retryable kinds may succeed on a later attempt.
type Kind struct {
	Name      string
	Retryable bool
}

func (k Kind) String() string { return k.Name }

// Retryable kinds.
var (
	StoreUnavailable  = Kind{Name: "store_unavailable", Retryable: true}
	CacheUnavailable  = Kind{Name: "cache_unavailable", Retryable: true}
	ScoringFailed     = Kind{Name: "scoring_failed", Retryable: true}
	InsufficientData  = Kind{Name: "insufficient_data", Retryable: true}
	ResourceExhausted = Kind{Name: "resource_exhausted", Retryable: true}
	Network           = Kind{Name: "network", Retryable: true}
	Timeout           = Kind{Name: "timeout", Retryable: true}
)

// Permanent kinds.
var (
	InvalidUser      = Kind{Name: "invalid_user"}
	PermissionDenied = Kind{Name: "permission_denied"}
	InvalidParams    = Kind{Name: "invalid_params"}
	Configuration    = Kind{Name: "configuration"}
)

// Terminal markers recorded in the dead-letter store. They never come out of
// Classify; the worker assigns them.
var (
	MaxRetries = Kind{Name: "max_retries"}
	Unexpected = Kind{Name: "unexpected"}
)

// All lists every kind in a stable order.
var All = []Kind{
	StoreUnavailable, CacheUnavailable, ScoringFailed, InsufficientData,
	ResourceExhausted, Network, Timeout,
	InvalidUser, PermissionDenied, InvalidParams, Configuration,
	MaxRetries, Unexpected,
}

// Parse returns the kind with the given name. Unknown names map to Unexpected.
func Parse(name string) (Kind, bool) {
	for _, k := range All {
		if k.Name == name {
			return k, true
		}
	}
	return Unexpected, false
}

// IsPermanent reports whether the named kind is a permanent (non-retryable,
// non-marker) failure.
func IsPermanent(name string) bool {
	k, ok := Parse(name)
	return ok && !k.Retryable && k != MaxRetries && k != Unexpected
}
