package power

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultLivenessInterval is how often a suspended device reports it is alive
	DefaultLivenessInterval = 5 * time.Second

	// DefaultMaxSleep bounds one Suspend call
	DefaultMaxSleep = time.Hour
)

// Scheduler suspends the control loop, emitting periodic liveness lines
type Scheduler struct {
	clock    clockwork.Clock
	liveness time.Duration
	maxSleep time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a power scheduler; non-positive intervals take defaults
func NewScheduler(clock clockwork.Clock, liveness, maxSleep time.Duration, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if liveness <= 0 {
		liveness = DefaultLivenessInterval
	}
	if maxSleep <= 0 {
		maxSleep = DefaultMaxSleep
	}
	return &Scheduler{
		clock:    clock,
		liveness: liveness,
		maxSleep: maxSleep,
		logger:   logger,
	}
}

// MaxSleep returns the upper bound of one Suspend call
func (s *Scheduler) MaxSleep() time.Duration {
	return s.maxSleep
}

// Bound clamps d into [0, MaxSleep]
func (s *Scheduler) Bound(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if d > s.maxSleep {
		return s.maxSleep
	}
	return d
}

// Suspend blocks for d, bounded by MaxSleep, in liveness-sized chunks.
// It returns the time actually slept and ctx.Err() if cancelled.
func (s *Scheduler) Suspend(ctx context.Context, d time.Duration) (time.Duration, error) {
	d = s.Bound(d)
	if d == 0 {
		return 0, ctx.Err()
	}

	start := s.clock.Now()
	end := start.Add(d)

	for {
		remaining := end.Sub(s.clock.Now())
		if remaining <= 0 {
			return d, nil
		}

		s.logger.Info("Sleeping", "seconds_remaining", int64(math.Ceil(remaining.Seconds())))

		chunk := remaining
		if chunk > s.liveness {
			chunk = s.liveness
		}

		select {
		case <-ctx.Done():
			return s.clock.Since(start), ctx.Err()
		case <-s.clock.After(chunk):
		}
	}
}
