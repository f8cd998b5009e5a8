package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stianeikeland/go-rpio"

	"github.com/saaga0h/sunlamp/internal/schedule"
)

// pwmCycle is the PWM cycle length; a level maps directly to the duty length
const pwmCycle = uint32(schedule.MaxLevel) + 1

// pwmPin is the subset of rpio.Pin used for hardware PWM
type pwmPin interface {
	Pwm()
	Freq(freq int)
	DutyCycle(dutyLen, cycleLen uint32)
}

// GPIO memory is mapped once per process and shared by all PWM channels
var (
	gpioMu    sync.Mutex
	gpioUsers int
	gpioOpen  = rpio.Open
	gpioClose = rpio.Close
	newPin    = func(n int) pwmPin { return rpio.Pin(n) }
)

// hardwarePWMPins are the BCM pins routed to the PWM peripheral
var hardwarePWMPins = map[int]bool{12: true, 13: true, 18: true, 19: true}

// PWMChannel drives a Raspberry Pi hardware PWM pin (GPIO 12, 13, 18 or 19)
type PWMChannel struct {
	pin    int
	gpio   pwmPin
	logger *slog.Logger
	closed bool // guarded by gpioMu
}

// NewPWMChannel maps GPIO memory if needed and puts pin into PWM mode at frequencyHz
func NewPWMChannel(pin int, frequencyHz int, logger *slog.Logger) (*PWMChannel, error) {
	if !hardwarePWMPins[pin] {
		return nil, fmt.Errorf("gpio %d has no hardware PWM", pin)
	}

	gpioMu.Lock()
	defer gpioMu.Unlock()

	if gpioUsers == 0 {
		if err := gpioOpen(); err != nil {
			return nil, fmt.Errorf("failed to open GPIO: %w", err)
		}
	}
	gpioUsers++

	p := newPin(pin)
	p.Pwm()
	// The PWM clock runs one cycle per output period
	p.Freq(frequencyHz * int(pwmCycle))
	p.DutyCycle(0, pwmCycle)

	logger.Info("PWM channel ready", "pin", pin, "frequency_hz", frequencyHz)

	return &PWMChannel{pin: pin, gpio: p, logger: logger}, nil
}

// Name returns the GPIO pin as the channel name
func (c *PWMChannel) Name() string {
	return fmt.Sprintf("gpio%d", c.pin)
}

// Set writes the level as the duty length out of a 1024 cycle
func (c *PWMChannel) Set(ctx context.Context, level schedule.Level) error {
	gpioMu.Lock()
	defer gpioMu.Unlock()

	if c.closed {
		return fmt.Errorf("pwm channel %d closed", c.pin)
	}
	c.gpio.DutyCycle(uint32(level.Clamp()), pwmCycle)
	c.logger.Debug("PWM duty set", "pin", c.pin, "duty", int(level), "cycle", pwmCycle)
	return nil
}

// Close releases the GPIO mapping once the last channel is closed
func (c *PWMChannel) Close() error {
	gpioMu.Lock()
	defer gpioMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	gpioUsers--
	if gpioUsers == 0 {
		return gpioClose()
	}
	return nil
}

// NewPWMChannels opens a channel per pin. On failure the channels already
// opened are closed again and their close errors are joined to the result.
func NewPWMChannels(pins []int, frequencyHz int, logger *slog.Logger) ([]Channel, error) {
	var opened []*PWMChannel
	for _, pin := range pins {
		ch, err := NewPWMChannel(pin, frequencyHz, logger)
		if err != nil {
			errs := []error{err}
			for _, o := range opened {
				if cerr := o.Close(); cerr != nil {
					errs = append(errs, fmt.Errorf("channel %s: %w", o.Name(), cerr))
				}
			}
			return nil, errors.Join(errs...)
		}
		opened = append(opened, ch)
	}

	channels := make([]Channel, 0, len(opened))
	for _, ch := range opened {
		channels = append(channels, ch)
	}
	return channels, nil
}
