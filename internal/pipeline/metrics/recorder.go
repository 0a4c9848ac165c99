package metrics

import "time"

// Recorder is the call contract the pipeline uses to emit metrics.
type Recorder interface {
	TaskFinished(outcome string, elapsed time.Duration)
	RetryScheduled(kind string)
	DeadLettered(kind string)
	AlertRaised(kind string)
	CacheLookup(result string)
	Ranked(count int)
}

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeFailure = "failure"
)

// Cache lookup labels.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Prometheus records into the package-level collectors.
type Prometheus struct{}

func (Prometheus) TaskFinished(outcome string, elapsed time.Duration) {
	TasksTotal.WithLabelValues(outcome).Inc()
	TaskDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (Prometheus) RetryScheduled(kind string) { RetriesTotal.WithLabelValues(kind).Inc() }
func (Prometheus) DeadLettered(kind string)   { DLQEntriesTotal.WithLabelValues(kind).Inc() }
func (Prometheus) AlertRaised(kind string)    { AlertsTotal.WithLabelValues(kind).Inc() }
func (Prometheus) CacheLookup(result string)  { CacheRequests.WithLabelValues(result).Inc() }
func (Prometheus) Ranked(count int)           { RankedPosts.Observe(float64(count)) }

// Nop discards everything.
type Nop struct{}

func (Nop) TaskFinished(string, time.Duration) {}
func (Nop) RetryScheduled(string)              {}
func (Nop) DeadLettered(string)                {}
func (Nop) AlertRaised(string)                 {}
func (Nop) CacheLookup(string)                 {}
func (Nop) Ranked(int)                         {}
