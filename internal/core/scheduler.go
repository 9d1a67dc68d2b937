package core

// scheduler.go runs background maintenance for the service. Today that is
// dropping uploads abandoned in the mapping step, so their rows do not stay
// in memory until the next upload arrives.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often abandoned uploads are dropped.
const DefaultSweepInterval = 5 * time.Minute

// StartPendingSweeper drops expired pending uploads every interval until
// ctx is cancelled. It blocks; run it in a goroutine.
func (s *Service) StartPendingSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	slog.Info("pending upload sweeper started", "interval", interval, "ttl", s.pending.ttl)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("pending upload sweeper stopped")
			return
		case <-ticker.C:
			if n := s.pending.sweep(); n > 0 {
				slog.Debug("dropped expired uploads", "count", n, "remaining", s.pending.len())
			}
		}
	}
}
