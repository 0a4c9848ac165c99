package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/pipeline/errkind"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FEEDRANK_"

// Load reads configuration from a YAML file, applies defaults and then
// FEEDRANK_* environment overrides. An empty path loads defaults only.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	scoringSet := false

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		scoringSet = hasKey(expandedData, "scoring")
	}

	applyDefaults(&cfg, scoringSet)
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg, false)
	return &cfg
}

func hasKey(yamlText, key string) bool {
	var top map[string]any
	if err := yaml.Unmarshal([]byte(yamlText), &top); err != nil {
		return false
	}
	_, ok := top[key]
	return ok
}

func applyDefaults(cfg *AppConfig, scoringSet bool) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	def := domain.DefaultScoringWeights()
	w := &cfg.Scoring.ScoringWeights
	if !scoringSet {
		*w = def
	} else {
		// Zero weights are meaningful; only the structural knobs default.
		if w.TimeDecayDays == 0 {
			w.TimeDecayDays = def.TimeDecayDays
		}
		if w.MaxCandidates == 0 {
			w.MaxCandidates = def.MaxCandidates
		}
		if w.AuthorWeight == 0 && w.EngagementWeight == 0 && w.RecencyWeight == 0 {
			w.AuthorWeight, w.EngagementWeight, w.RecencyWeight =
				def.AuthorWeight, def.EngagementWeight, def.RecencyWeight
		}
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}

	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 60 * time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 300 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}

	if cfg.Worker.ID == "" {
		host, _ := os.Hostname()
		cfg.Worker.ID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.SoftTimeout == 0 {
		cfg.Worker.SoftTimeout = 240 * time.Second
	}
	if cfg.Worker.HardTimeout == 0 {
		cfg.Worker.HardTimeout = 300 * time.Second
	}
	if cfg.Worker.QueueName == "" {
		cfg.Worker.QueueName = "rankings"
	}
	if cfg.Worker.TaskTTL == 0 {
		cfg.Worker.TaskTTL = 24 * time.Hour
	}
	if cfg.Worker.BreakerTrips == 0 {
		cfg.Worker.BreakerTrips = 5
	}

	if cfg.DLQ.WebhookTimeout == 0 {
		cfg.DLQ.WebhookTimeout = 5 * time.Second
	}
}

// applyEnv overrides the tunable surface from FEEDRANK_* variables.
func applyEnv(cfg *AppConfig) error {
	w := &cfg.Scoring.ScoringWeights

	floats := map[string]*float64{
		"AUTHOR_WEIGHT":     &w.AuthorWeight,
		"ENGAGEMENT_WEIGHT": &w.EngagementWeight,
		"RECENCY_WEIGHT":    &w.RecencyWeight,
		"TIME_DECAY_DAYS":   &w.TimeDecayDays,
	}
	for name, dst := range floats {
		if v, ok := lookup(name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return envError(name, v, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"MIN_INTERACTIONS":   &w.MinInteractions,
		"MAX_CANDIDATES":     &w.MaxCandidates,
		"MAX_RETRIES":        &cfg.Retry.MaxRetries,
		"WORKER_CONCURRENCY": &cfg.Worker.Concurrency,
		"SERVER_PORT":        &cfg.Server.Port,
	}
	for name, dst := range ints {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return envError(name, v, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"CACHE_TTL":        &cfg.Cache.TTL,
		"RETRY_BASE_DELAY": &cfg.Retry.BaseDelay,
		"RETRY_MAX_DELAY":  &cfg.Retry.MaxDelay,
		"DLQ_RETENTION":    &cfg.DLQ.Retention,
	}
	for name, dst := range durations {
		if v, ok := lookup(name); ok {
			d, err := parseDuration(v)
			if err != nil {
				return envError(name, v, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup("INCLUDE_SYNTHETIC"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("INCLUDE_SYNTHETIC", v, err)
		}
		w.IncludeSynthetic = b
	}

	strs := map[string]*string{
		"BACKEND":         &cfg.Backend,
		"REDIS_URL":       &cfg.Redis.URL,
		"DATABASE_URL":    &cfg.Database.URL,
		"LOG_LEVEL":       &cfg.Logging.Level,
		"WORKER_ID":       &cfg.Worker.ID,
		"DLQ_WEBHOOK_URL": &cfg.DLQ.WebhookURL,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func envError(name, value string, err error) error {
	return errkind.Wrap(errkind.Configuration, fmt.Sprintf("invalid %s%s=%q", EnvPrefix, name, value), err)
}

// Validate checks required values. Failures carry the configuration kind.
func (c *AppConfig) Validate() error {
	var problems []string

	w := c.Scoring.ScoringWeights
	if w.AuthorWeight < 0 || w.EngagementWeight < 0 || w.RecencyWeight < 0 {
		problems = append(problems, "scoring weights must be non-negative")
	}
	if w.TimeDecayDays <= 0 {
		problems = append(problems, "scoring.time_decay_days must be positive")
	}
	if w.MinInteractions < 0 {
		problems = append(problems, "scoring.min_interactions must be non-negative")
	}
	if w.MaxCandidates <= 0 {
		problems = append(problems, "scoring.max_candidates must be positive")
	}
	for _, a := range append(append([]string{}, c.Scoring.PositiveActions...), c.Scoring.NegativeActions...) {
		if strings.TrimSpace(a) == "" {
			problems = append(problems, "scoring action names must be non-empty")
			break
		}
	}

	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			problems = append(problems, "redis.url is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown backend %q", c.Backend))
	}

	if c.Cache.TTL < 0 {
		problems = append(problems, "cache.ttl must be non-negative")
	}
	if c.Retry.MaxRetries < 1 {
		problems = append(problems, "retry.max_retries must be at least 1")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		problems = append(problems, "retry delays must satisfy 0 < base_delay <= max_delay")
	}
	for kind := range c.Retry.KindBase {
		if _, ok := errkind.Parse(kind); !ok {
			problems = append(problems, fmt.Sprintf("retry.kind_base: unknown error kind %q", kind))
		}
	}
	if c.Worker.Concurrency < 1 {
		problems = append(problems, "worker.concurrency must be at least 1")
	}
	if c.Worker.SoftTimeout >= c.Worker.HardTimeout {
		problems = append(problems, "worker.soft_timeout must be shorter than worker.hard_timeout")
	}
	if c.DLQ.AlertsEnabled && c.DLQ.WebhookURL != "" &&
		!strings.HasPrefix(c.DLQ.WebhookURL, "http://") && !strings.HasPrefix(c.DLQ.WebhookURL, "https://") {
		problems = append(problems, "dlq.webhook_url must be an http(s) URL")
	}

	if len(problems) > 0 {
		return errkind.New(errkind.Configuration, strings.Join(problems, "; "))
	}
	return nil
}
