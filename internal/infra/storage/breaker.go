package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/pipeline/metrics"
)

// BreakerConfig tunes the circuit breaker guarding store reads.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig opens after 5 consecutive failures and retries a call
// after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "store",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Guarded wraps the read repositories with one shared circuit breaker. Not
// found results are not counted as failures.
type Guarded struct {
	interactions InteractionRepository
	candidates   CandidateRepository
	users        UserRepository
	cb           *gobreaker.CircuitBreaker[any]
}

// NewGuarded creates the breaker-wrapped repositories.
func NewGuarded(
	cfg BreakerConfig,
	interactions InteractionRepository,
	candidates CandidateRepository,
	users UserRepository,
) *Guarded {
	if cfg.Name == "" {
		cfg = DefaultBreakerConfig()
	}
	log := slog.Default().With("component", "store_breaker")
	metrics.BreakerState.WithLabelValues(cfg.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUserNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &Guarded{
		interactions: interactions,
		candidates:   candidates,
		users:        users,
		cb:           cb,
	}
}

// IsOpen reports whether calls are currently being rejected.
func (g *Guarded) IsOpen() bool { return g.cb.State() == gobreaker.StateOpen }

func (g *Guarded) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Interaction, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return g.interactions.ListByUser(ctx, userID, limit)
	})
	if err != nil {
		return nil, err
	}
	return res.([]domain.Interaction), nil
}

func (g *Guarded) ListCandidates(ctx context.Context, q CandidateQuery) ([]domain.CandidatePost, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return g.candidates.ListCandidates(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return res.([]domain.CandidatePost), nil
}

func (g *Guarded) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return g.users.GetUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.User), nil
}
