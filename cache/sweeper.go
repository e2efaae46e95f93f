package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically reaps expired entries (spec §4.7, C4). It is
// cooperative: each tick calls Cache.SweepExpired, which itself never holds
// a shard lock across the whole shard (see shard.sweepExpired).
type Sweeper struct {
	cache    *Cache
	interval time.Duration
	log      *zap.Logger
}

// NewSweeper builds a Sweeper ticking at interval. A nil logger is replaced
// with zap.NewNop() — the sweeper only logs when it actually removes
// entries (spec §4.7 observability note).
func NewSweeper(c *Cache, interval time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{cache: c, interval: interval, log: log}
}

// Run blocks, ticking at s.interval, until ctx is cancelled (spec §5:
// "cancelled only at process shutdown").
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.cache.SweepExpired(); n > 0 {
				s.log.Info("swept expired entries", zap.Int("count", n))
			}
		}
	}
}
