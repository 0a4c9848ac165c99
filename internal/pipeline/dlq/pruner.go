package dlq

import (
	"context"
	"time"
)

// Pruner deletes dead letters past the retention period.
type Pruner struct {
	store     *Store
	retention time.Duration
}

// NewPruner creates a retention pruner.
func NewPruner(store *Store, retention time.Duration) *Pruner {
	return &Pruner{store: store, retention: retention}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every 10% of the retention period, clamped to [1m, 1h].
	interval := min(p.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	if _, err := p.store.Purge(ctx, p.retention); err != nil {
		p.store.log.Error("Failed to prune dead letters", "error", err)
	}
}
