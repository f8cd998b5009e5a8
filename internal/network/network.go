package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrConnectFailed is returned when the join command reports failure
	ErrConnectFailed = errors.New("failed to connect to network")

	// ErrConnectTimeout is returned when connectivity does not appear in time
	ErrConnectTimeout = errors.New("timed out connecting to network")
)

// Radio controls the network link of the device
type Radio interface {
	// Connected reports whether the network is currently usable
	Connected(ctx context.Context) bool

	// Wake powers the radio up
	Wake(ctx context.Context) error

	// Connect joins the network and waits until it is usable
	Connect(ctx context.Context) error

	// Sleep disconnects and powers the radio down
	Sleep(ctx context.Context) error
}

// Config holds the commands and credentials used by CommandRadio
type Config struct {
	SSID           string
	Password       string
	WakeCommand    string
	ConnectCommand string
	SleepCommand   string
	ProbeAddress   string
	ConnectTimeout time.Duration
	PollInterval   time.Duration
}

type runFunc func(ctx context.Context, command string, env []string) error

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// CommandRadio drives the radio through shell commands (nmcli, wpa_cli, ip link)
// and probes connectivity with a TCP dial.
type CommandRadio struct {
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger
	run    runFunc
	dial   dialFunc
}

// NewCommandRadio creates a command-driven radio
func NewCommandRadio(cfg Config, clock clockwork.Clock, logger *slog.Logger) *CommandRadio {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	dialer := &net.Dialer{Timeout: 2 * time.Second}

	return &CommandRadio{
		cfg:    cfg,
		clock:  clock,
		logger: logger,
		run:    runShell,
		dial:   dialer.DialContext,
	}
}

// Connected dials the probe address
func (r *CommandRadio) Connected(ctx context.Context) bool {
	if r.cfg.ProbeAddress == "" {
		return true
	}

	conn, err := r.dial(ctx, "tcp", r.cfg.ProbeAddress)
	if err != nil {
		r.logger.Debug("Connectivity probe failed", "address", r.cfg.ProbeAddress, "error", err)
		return false
	}
	conn.Close()
	return true
}

// Wake runs the wake command
func (r *CommandRadio) Wake(ctx context.Context) error {
	if r.cfg.WakeCommand == "" {
		return nil
	}
	if err := r.run(ctx, r.cfg.WakeCommand, r.env()); err != nil {
		return fmt.Errorf("failed to wake radio: %w", err)
	}
	return nil
}

// Connect runs the connect command, then polls until the probe succeeds
func (r *CommandRadio) Connect(ctx context.Context) error {
	r.logger.Info("Connecting to network", "ssid", r.cfg.SSID)

	if r.cfg.ConnectCommand != "" {
		if err := r.run(ctx, r.cfg.ConnectCommand, r.env()); err != nil {
			r.logger.Error("Failed to connect to network", "ssid", r.cfg.SSID, "error", err)
			return fmt.Errorf("%w: %v", ErrConnectFailed, err)
		}
	}

	deadline := r.clock.Now().Add(r.cfg.ConnectTimeout)
	attempts := 0
	for {
		attempts++
		if r.Connected(ctx) {
			r.logger.Info("Connected to network", "ssid", r.cfg.SSID, "attempts", attempts)
			return nil
		}

		if !r.clock.Now().Before(deadline) {
			r.logger.Error("Network did not come up", "ssid", r.cfg.SSID, "attempts", attempts)
			return ErrConnectTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(r.cfg.PollInterval):
		}
	}
}

// Sleep runs the sleep command
func (r *CommandRadio) Sleep(ctx context.Context) error {
	if r.cfg.SleepCommand == "" {
		return nil
	}
	if err := r.run(ctx, r.cfg.SleepCommand, r.env()); err != nil {
		return fmt.Errorf("failed to power radio down: %w", err)
	}
	r.logger.Debug("Radio powered down")
	return nil
}

func (r *CommandRadio) env() []string {
	return append(os.Environ(), "SSID="+r.cfg.SSID, "PASSWORD="+r.cfg.Password)
}

func runShell(ctx context.Context, command string, env []string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = env

	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%s: %w: %s", command, err, out)
		}
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

// NopRadio is used on hosts whose network is managed elsewhere
type NopRadio struct{}

// Connected always reports true
func (NopRadio) Connected(ctx context.Context) bool { return true }

// Wake does nothing
func (NopRadio) Wake(ctx context.Context) error { return nil }

// Connect does nothing
func (NopRadio) Connect(ctx context.Context) error { return nil }

// Sleep does nothing
func (NopRadio) Sleep(ctx context.Context) error { return nil }
