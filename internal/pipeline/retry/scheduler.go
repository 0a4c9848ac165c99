// Package retry computes jittered exponential backoff for failed ranking
// tasks and decides whether another attempt is allowed.
package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/vietddude/feedrank/internal/pipeline/errkind"
)

// Config holds backoff parameters. MaxRetries is the total attempt budget,
// the first run included: 3 means one run plus two retries.
type Config struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	// KindBase overrides BaseDelay for specific error kinds.
	KindBase  map[string]time.Duration
	JitterMin float64
	JitterMax float64
	// RandomSeed makes jitter reproducible when non-zero.
	RandomSeed int64
}

// DefaultConfig returns 60s base, 300s cap, 3 attempts, ±20% jitter.
func DefaultConfig() Config {
	return Config{
		BaseDelay:  60 * time.Second,
		MaxDelay:   300 * time.Second,
		MaxRetries: 3,
		KindBase: map[string]time.Duration{
			errkind.CacheUnavailable.Name: 15 * time.Second,
			errkind.Timeout.Name:          30 * time.Second,
			errkind.InsufficientData.Name: 120 * time.Second,
		},
		JitterMin: 0.8,
		JitterMax: 1.2,
	}
}

// Scheduler implements bounded, jittered exponential backoff.
type Scheduler struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// NewScheduler creates a scheduler, filling zero fields from DefaultConfig.
func NewScheduler(cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.KindBase == nil {
		cfg.KindBase = def.KindBase
	}
	if cfg.JitterMin <= 0 || cfg.JitterMax < cfg.JitterMin {
		cfg.JitterMin, cfg.JitterMax = def.JitterMin, def.JitterMax
	}

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Scheduler{
		cfg: cfg,
		//nolint:gosec // jitter only, not security sensitive
		rng: rand.New(rand.NewSource(seed)),
	}
}

// MaxRetries returns the configured attempt budget.
func (s *Scheduler) MaxRetries() int { return s.cfg.MaxRetries }

// MaxJitteredDelay is the largest delay NextDelay can return.
func (s *Scheduler) MaxJitteredDelay() time.Duration {
	return time.Duration(float64(s.cfg.MaxDelay) * s.cfg.JitterMax)
}

func (s *Scheduler) base(kind errkind.Kind) time.Duration {
	if d, ok := s.cfg.KindBase[kind.Name]; ok && d > 0 {
		return d
	}
	return s.cfg.BaseDelay
}

// Unjittered returns min(base * 2^(attempt-1), MaxDelay). Attempts below 1
// are treated as 1.
func (s *Scheduler) Unjittered(kind errkind.Kind, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(s.base(kind)) * math.Pow(2, float64(attempt-1))
	if delay > float64(s.cfg.MaxDelay) {
		return s.cfg.MaxDelay
	}
	return time.Duration(delay)
}

// NextDelay returns the unjittered delay scaled by a uniform factor in
// [JitterMin, JitterMax].
func (s *Scheduler) NextDelay(kind errkind.Kind, attempt int) time.Duration {
	d := s.Unjittered(kind, attempt)

	s.mu.Lock()
	f := s.cfg.JitterMin + s.rng.Float64()*(s.cfg.JitterMax-s.cfg.JitterMin)
	s.mu.Unlock()

	return time.Duration(float64(d) * f)
}

// ShouldRetry reports whether attempt, the 1-based number of the attempt
// about to be scheduled, is still within the budget. Callers pass the
// failed attempt plus one, so with MaxRetries 3 a task runs at most three
// times and ShouldRetry(4) ends it.
func (s *Scheduler) ShouldRetry(attempt int) bool {
	return attempt <= s.cfg.MaxRetries
}
