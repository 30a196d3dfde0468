package calls

import (
	"context"
	"log/slog"
	"time"

	"calling-platform/internal/monitoring"
)

// Reaper sweeps abandoned pending sessions. A dial whose provider
// callback never arrives would otherwise stay PENDING forever and block
// the caller/receiver pair from dialing again.
type Reaper struct {
	store    Store
	logger   *slog.Logger
	ttl      time.Duration
	interval time.Duration
	clock    func() time.Time
}

func NewReaper(store Store, logger *slog.Logger, ttl, interval time.Duration) *Reaper {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reaper{store: store, logger: logger, ttl: ttl, interval: interval, clock: time.Now}
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("pending call sweep failed", "error", err)
			}
		}
	}
}

// Sweep marks pending sessions older than the TTL as failed.
func (r *Reaper) Sweep(ctx context.Context) error {
	cutoff := r.clock().UTC().Add(-r.ttl)
	swept, err := r.store.ExpirePending(ctx, cutoff)
	if err != nil {
		return err
	}
	if swept > 0 {
		monitoring.RecordExpiredPending(swept)
		r.logger.Info("expired abandoned pending calls", "count", swept, "cutoff", cutoff)
	}
	return nil
}
