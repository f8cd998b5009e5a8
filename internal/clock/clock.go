package clock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/saaga0h/sunlamp/internal/provider"
	"github.com/saaga0h/sunlamp/internal/suntime"
)

// Corrected is the wall clock used for phase decisions: a base clock plus the
// offset last learned from the network time source.
type Corrected struct {
	base   clockwork.Clock
	source provider.TimeSource
	logger *slog.Logger

	mu       sync.RWMutex
	offset   time.Duration
	synced   bool
	lastSync time.Time
}

// NewCorrected creates a corrected clock; source may be nil to trust the base clock
func NewCorrected(base clockwork.Clock, source provider.TimeSource, logger *slog.Logger) *Corrected {
	if base == nil {
		base = clockwork.NewRealClock()
	}
	return &Corrected{
		base:   base,
		source: source,
		logger: logger,
	}
}

// Base returns the underlying monotonic clock used for sleeping
func (c *Corrected) Base() clockwork.Clock {
	return c.base
}

// Now returns the corrected wall-clock time
func (c *Corrected) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.Now().Add(c.offset)
}

// Offset returns the correction currently applied
func (c *Corrected) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Synced reports whether at least one network correction succeeded
func (c *Corrected) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// LastSync returns the base-clock time of the last successful correction
func (c *Corrected) LastSync() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSync
}

// Sync fetches network time and updates the offset.
// On failure the previous offset stays in effect.
func (c *Corrected) Sync(ctx context.Context) error {
	if c.source == nil {
		return nil
	}

	network, err := c.source.CurrentTime(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch time: %w", err)
	}

	local := c.base.Now()
	offset := network.Sub(local).Truncate(time.Second)

	c.mu.Lock()
	c.offset = offset
	c.synced = true
	c.lastSync = local
	c.mu.Unlock()

	c.logger.Info("Clock corrected",
		"current_time", suntime.LogString(network),
		"offset", offset.String())

	return nil
}
