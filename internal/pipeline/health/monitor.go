package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/feedrank/internal/infra/storage"
	"github.com/vietddude/feedrank/internal/pipeline/queue"
)

// Component is a pingable dependency. A failing critical component makes
// the system critical; any other failure only degrades it.
type Component struct {
	Name     string
	Pinger   storage.Pinger
	Critical bool
}

// BreakerState reports whether the store circuit breaker is open.
type BreakerState interface {
	IsOpen() bool
}

// Thresholds tune the degraded/critical evaluation.
type Thresholds struct {
	QueueDegraded    int
	QueueCritical    int
	DeadLetterWarn   int
	MinCheckInterval time.Duration
}

// DefaultThresholds returns production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		QueueDegraded:    500,
		QueueCritical:    5000,
		DeadLetterWarn:   100,
		MinCheckInterval: 10 * time.Second,
	}
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	components  []Component
	queue       queue.Queue
	deadLetters storage.DLQRepository
	breaker     BreakerState
	thresholds  Thresholds
	now         func() time.Time
	lastReport  *HealthReport
	mu          sync.Mutex
}

// NewMonitor creates a new health monitor. queue, deadLetters and breaker
// may be nil.
func NewMonitor(
	components []Component,
	q queue.Queue,
	deadLetters storage.DLQRepository,
	breaker BreakerState,
	thresholds Thresholds,
) *Monitor {
	return &Monitor{
		components:  components,
		queue:       q,
		deadLetters: deadLetters,
		breaker:     breaker,
		thresholds:  thresholds,
		now:         time.Now,
	}
}

// CheckHealth returns the current report. Checks run at most once per
// MinCheckInterval.
func (m *Monitor) CheckHealth(ctx context.Context) *HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastReport.CheckedAt) < m.thresholds.MinCheckInterval {
		return m.lastReport
	}

	report := &HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth, len(m.components)),
		CheckedAt:    now,
	}

	for _, c := range m.components {
		ch := ComponentHealth{Name: c.Name, Status: StatusHealthy}
		if err := c.Pinger.Ping(ctx); err != nil {
			ch.Error = err.Error()
			ch.Status = StatusDegraded
			if c.Critical {
				ch.Status = StatusCritical
			}
		}
		report.Components[c.Name] = ch
		report.SystemStatus = worst(report.SystemStatus, ch.Status)
	}

	if m.breaker != nil && m.breaker.IsOpen() {
		report.BreakerOpen = true
		report.SystemStatus = worst(report.SystemStatus, StatusCritical)
	}

	if m.queue != nil {
		if n, err := m.queue.Len(ctx); err == nil {
			report.QueueDepth = n
			switch {
			case m.thresholds.QueueCritical > 0 && n >= m.thresholds.QueueCritical:
				report.SystemStatus = worst(report.SystemStatus, StatusCritical)
			case m.thresholds.QueueDegraded > 0 && n >= m.thresholds.QueueDegraded:
				report.SystemStatus = worst(report.SystemStatus, StatusDegraded)
			}
		}
	}

	if m.deadLetters != nil {
		if n, err := m.deadLetters.Count(ctx); err == nil {
			report.DeadLetters = n
			if m.thresholds.DeadLetterWarn > 0 && n >= m.thresholds.DeadLetterWarn {
				report.SystemStatus = worst(report.SystemStatus, StatusDegraded)
			}
		}
	}

	m.lastReport = report
	return report
}

func worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
