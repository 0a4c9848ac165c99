package executor

import (
	"context"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/infra/storage"
	"github.com/vietddude/feedrank/internal/pipeline/errkind"
)

// HealthChecker verifies dependencies before an attempt does any work.
// Returned errors should carry an errkind.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// BreakerState reports whether the store circuit breaker is open.
type BreakerState interface {
	IsOpen() bool
}

// DependencyHealth pings the store and the cache. An unreachable store or
// an open breaker fails the check. An unreachable cache only degrades the
// run to cache-less output, so it is reported through OnCacheDown.
type DependencyHealth struct {
	Store       storage.Pinger
	Cache       storage.Pinger
	Breaker     BreakerState
	OnCacheDown func(err error)
}

func (h *DependencyHealth) Check(ctx context.Context) error {
	if h.Breaker != nil && h.Breaker.IsOpen() {
		return errkind.New(errkind.StoreUnavailable, "store circuit breaker is open")
	}
	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			return errkind.Wrap(errkind.StoreUnavailable, "store health check failed", err)
		}
	}
	if h.Cache != nil {
		if err := h.Cache.Ping(ctx); err != nil && h.OnCacheDown != nil {
			h.OnCacheDown(err)
		}
	}
	return nil
}

// PermissionChecker decides whether a user may request rankings.
type PermissionChecker interface {
	CanRequestRankings(ctx context.Context, user *domain.User) (bool, error)
}

// SuspensionChecker denies suspended accounts. Placeholder users are allowed.
type SuspensionChecker struct{}

func (SuspensionChecker) CanRequestRankings(ctx context.Context, user *domain.User) (bool, error) {
	if user == nil {
		return false, nil
	}
	return !user.Suspended, nil
}
