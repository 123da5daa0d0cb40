package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger is a store that needs expired entries dropped periodically
type Purger interface {
	Purge() int
}

// Janitor periodically purges expired entries from a Purger
type Janitor struct {
	store    Purger
	interval time.Duration
	logger   *zap.Logger
}

// NewJanitor creates a janitor that purges every interval
func NewJanitor(store Purger, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Run purges until ctx is done. It always returns nil.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.purgeOnce()
		}
	}
}

func (j *Janitor) purgeOnce() {
	if removed := j.store.Purge(); removed > 0 {
		j.logger.Debug("purged expired idempotency entries", zap.Int("removed", removed))
	}
}
