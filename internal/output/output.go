package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/saaga0h/sunlamp/internal/schedule"
)

// Channel is one physical output accepting an intensity in [0, 1023]
type Channel interface {
	// Name identifies the channel in logs
	Name() string

	// Set applies the level; 0 fully de-energizes
	Set(ctx context.Context, level schedule.Level) error
}

// ErrClosed is returned by Apply once the driver has been closed
var ErrClosed = errors.New("output driver closed")

// Closer is implemented by channels holding hardware or connections
type Closer interface {
	Close() error
}

// Driver applies one level to the fixture's channels
type Driver struct {
	channels []Channel
	logger   *slog.Logger

	// writeMu serializes channel writes so Close has the last word
	writeMu sync.Mutex
	closed  bool

	mu      sync.Mutex
	applied schedule.Level
	has     bool
}

// NewDriver creates a driver over the given channels
func NewDriver(logger *slog.Logger, channels ...Channel) *Driver {
	return &Driver{
		channels: channels,
		logger:   logger,
	}
}

// Channels returns the number of driven channels
func (d *Driver) Channels() int {
	return len(d.channels)
}

// Apply clamps level and writes it to every channel.
// All channels are attempted; their errors are joined.
func (d *Driver) Apply(ctx context.Context, level schedule.Level) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if d.closed {
		return ErrClosed
	}
	return d.apply(ctx, level)
}

func (d *Driver) apply(ctx context.Context, level schedule.Level) error {
	level = level.Clamp()

	var errs []error
	for _, ch := range d.channels {
		if err := ch.Set(ctx, level); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.Name(), err))
		}
	}

	d.mu.Lock()
	d.applied = level
	d.has = true
	d.mu.Unlock()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	d.logger.Debug("Output level applied", "level", int(level), "channels", len(d.channels))
	return nil
}

// Applied returns the last level written and whether any was written.
// There is no readback; this is what was commanded.
func (d *Driver) Applied() (schedule.Level, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.applied, d.has
}

// Close turns every channel off and releases channel resources.
// Later calls to Apply return ErrClosed.
func (d *Driver) Close(ctx context.Context) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	err := d.apply(ctx, schedule.LevelOff)

	for _, ch := range d.channels {
		if c, ok := ch.(Closer); ok {
			if cerr := c.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("channel %s: %w", ch.Name(), cerr))
			}
		}
	}
	return err
}

// LogChannel only records levels; used on hosts without output hardware
type LogChannel struct {
	name   string
	logger *slog.Logger

	mu    sync.Mutex
	level schedule.Level
}

// NewLogChannel creates a stub channel
func NewLogChannel(name string, logger *slog.Logger) *LogChannel {
	return &LogChannel{name: name, logger: logger}
}

// Name returns the channel name
func (c *LogChannel) Name() string {
	return c.name
}

// Set records the level
func (c *LogChannel) Set(ctx context.Context, level schedule.Level) error {
	c.mu.Lock()
	c.level = level
	c.mu.Unlock()

	c.logger.Info("LED level", "channel", c.name, "level", int(level))
	return nil
}

// Level returns the last recorded level
func (c *LogChannel) Level() schedule.Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}
