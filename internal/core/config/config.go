package config

import (
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
	redisclient "github.com/vietddude/feedrank/internal/infra/redis"
	"github.com/vietddude/feedrank/internal/infra/storage/postgres"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Backend  string             `yaml:"backend"` // memory, redis
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Logging  LoggingConfig      `yaml:"logging"`
	Scoring  ScoringConfig      `yaml:"scoring"`
	Cache    CacheConfig        `yaml:"cache"`
	Retry    RetryConfig        `yaml:"retry"`
	Worker   WorkerConfig       `yaml:"worker"`
	DLQ      DLQConfig          `yaml:"dlq"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ScoringConfig holds the ranking weights and the action polarity table.
type ScoringConfig struct {
	domain.ScoringWeights `yaml:",inline"`

	PositiveActions []string `yaml:"positive_actions"`
	NegativeActions []string `yaml:"negative_actions"`
}

// Polarity builds the configured polarity table.
func (s ScoringConfig) Polarity() domain.PolarityTable {
	return domain.NewPolarityTable(s.PositiveActions, s.NegativeActions)
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// RetryConfig holds backoff settings. KindBase overrides the base delay per
// error kind.
type RetryConfig struct {
	BaseDelay  time.Duration            `yaml:"base_delay"`
	MaxDelay   time.Duration            `yaml:"max_delay"`
	MaxRetries int                      `yaml:"max_retries"`
	KindBase   map[string]time.Duration `yaml:"kind_base"`
}

// WorkerConfig holds worker pool settings.
type WorkerConfig struct {
	ID           string        `yaml:"id"`
	Concurrency  int           `yaml:"concurrency"`
	SoftTimeout  time.Duration `yaml:"soft_timeout"`
	HardTimeout  time.Duration `yaml:"hard_timeout"`
	QueueName    string        `yaml:"queue_name"`
	TaskTTL      time.Duration `yaml:"task_ttl"`
	BreakerTrips uint32        `yaml:"breaker_trips"`
}

// DLQConfig holds dead-letter settings.
type DLQConfig struct {
	Retention      time.Duration `yaml:"retention"` // 0 = keep forever
	AlertsEnabled  bool          `yaml:"alerts_enabled"`
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
}
