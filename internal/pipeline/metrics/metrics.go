package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksTotal tracks finished attempts by outcome (success, retry, failure)
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedrank_tasks_total",
			Help: "Total number of ranking task attempts by outcome",
		},
		[]string{"outcome"},
	)

	// TaskDuration tracks wall time of a single attempt
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedrank_task_duration_seconds",
			Help:    "Ranking task attempt duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// RetriesTotal tracks scheduled retries per error kind
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedrank_retries_total",
			Help: "Total number of scheduled retries",
		},
		[]string{"kind"},
	)

	// DLQEntriesTotal tracks dead-letter entries per error kind
	DLQEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedrank_dlq_entries_total",
			Help: "Total number of dead-letter entries",
		},
		[]string{"kind"},
	)

	// AlertsTotal tracks alerts raised by the dead-letter store
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedrank_alerts_total",
			Help: "Total number of dead-letter alerts raised",
		},
		[]string{"kind"},
	)

	// CacheRequests tracks result cache lookups by result (hit, miss, error)
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedrank_cache_requests_total",
			Help: "Result cache lookups",
		},
		[]string{"result"},
	)

	// RankedPosts tracks the size of generated rankings
	RankedPosts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedrank_ranked_posts",
			Help:    "Number of posts in a generated ranking",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		},
	)

	// QueueDepth tracks jobs waiting in the task queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedrank_queue_depth",
			Help: "Jobs waiting in the task queue",
		},
	)

	// WorkersBusy tracks workers currently executing a task
	WorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedrank_workers_busy",
			Help: "Workers currently executing a task",
		},
	)

	// BreakerState tracks circuit breaker state (0 closed, 1 half-open, 2 open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feedrank_breaker_state",
			Help: "Circuit breaker state",
		},
		[]string{"name"},
	)

	// DBConnectionPoolUsage tracks the percentage of used DB connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedrank_db_connection_pool_usage_percent",
			Help: "Percentage of DB connection pool in use",
		},
	)
)
