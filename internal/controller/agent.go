package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/sunlamp/internal/clock"
	"github.com/saaga0h/sunlamp/internal/network"
	"github.com/saaga0h/sunlamp/internal/output"
	"github.com/saaga0h/sunlamp/internal/power"
	"github.com/saaga0h/sunlamp/internal/provider"
	"github.com/saaga0h/sunlamp/internal/schedule"
	"github.com/saaga0h/sunlamp/internal/suntime"
	"github.com/saaga0h/sunlamp/internal/telemetry"
)

const (
	// minCycleInterval separates two cycles when a decision lands exactly on a boundary
	minCycleInterval = time.Second

	// DefaultRetryInterval is the wait after a degraded cycle with nothing scheduled
	DefaultRetryInterval = 30 * time.Second

	stopTimeout = 5 * time.Second
)

// State is the process-wide controller state carried between cycles
type State struct {
	Location     provider.Location
	WakeDeadline time.Time // on the base clock
	LastEvents   suntime.SunEvents
	LastDecision schedule.Decision
	LastCycle    time.Time
	Cycles       int
	Degraded     bool
	RadioAsleep  bool
}

// Dependencies are the collaborators of the control loop
type Dependencies struct {
	Clock     *clock.Corrected
	Locator   provider.Locator
	Sun       provider.SunEventProvider
	Output    *output.Driver
	Radio     network.Radio
	Power     *power.Scheduler
	Telemetry telemetry.Publisher // optional
}

// Options tune the control loop
type Options struct {
	Device        string
	RetryInterval time.Duration
}

// Agent runs the wake, decide, drive and sleep loop
type Agent struct {
	clock     *clock.Corrected
	locator   provider.Locator
	sun       provider.SunEventProvider
	output    *output.Driver
	radio     network.Radio
	power     *power.Scheduler
	telemetry telemetry.Publisher
	opts      Options
	logger    *slog.Logger

	mu    sync.RWMutex
	state State

	stopOnce sync.Once
	stopErr  error
}

// NewAgent creates a controller agent
func NewAgent(deps Dependencies, opts Options, logger *slog.Logger) *Agent {
	if deps.Radio == nil {
		deps.Radio = network.NopRadio{}
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	return &Agent{
		clock:     deps.Clock,
		locator:   deps.Locator,
		sun:       deps.Sun,
		output:    deps.Output,
		radio:     deps.Radio,
		power:     deps.Power,
		telemetry: deps.Telemetry,
		opts:      opts,
		logger:    logger,
	}
}

// Start runs setup and then the control loop until ctx is cancelled
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting sunlamp controller",
		"device", a.opts.Device,
		"channels", a.output.Channels(),
		"max_sleep", a.power.MaxSleep().String())

	a.setup(ctx)

	for {
		if ctx.Err() != nil {
			a.logger.Info("Sunlamp controller stopping")
			return nil
		}

		now := a.clock.Base().Now()
		deadline := a.WakeDeadline()
		if now.Before(deadline) {
			// The deadline survives a bounded suspend; the loop re-sleeps until it passes
			a.power.Suspend(ctx, deadline.Sub(now))
			continue
		}

		a.RunCycle(ctx)
	}
}

// setup de-energizes the outputs, brings the network up and resolves the location
func (a *Agent) setup(ctx context.Context) {
	if err := a.output.Apply(ctx, schedule.LevelOff); err != nil {
		a.logger.Error("Failed to initialise outputs", "error", err)
	}

	if err := a.radio.Connect(ctx); err != nil {
		a.logger.Error("Failed to connect to network", "error", err)
	} else {
		a.setRadioAsleep(false)
	}

	a.locate(ctx)
}

func (a *Agent) locate(ctx context.Context) bool {
	loc, err := a.locator.Locate(ctx)
	if err != nil {
		a.logger.Error("Failed to fetch location", "error", err)
		return false
	}

	a.mu.Lock()
	a.state.Location = loc
	a.mu.Unlock()

	a.logger.Info("Location", "location", loc.String())
	return true
}

// RunCycle performs one decision cycle and schedules the next wake
func (a *Agent) RunCycle(ctx context.Context) telemetry.Report {
	var errs []error

	if !a.radio.Connected(ctx) {
		a.logger.Warn("Network is not connected")
		if err := a.reconnect(ctx); err != nil {
			a.logger.Error("Failed to reconnect to network", "error", err)
			errs = append(errs, err)
		} else {
			a.setRadioAsleep(false)
		}
	} else {
		a.setRadioAsleep(false)
	}

	if err := a.clock.Sync(ctx); err != nil {
		a.logger.Error("Failed to fetch time", "error", err)
		errs = append(errs, err)
	}

	a.mu.RLock()
	loc := a.state.Location
	lastEvents := a.state.LastEvents
	a.mu.RUnlock()

	if loc.IsZero() && a.locate(ctx) {
		a.mu.RLock()
		loc = a.state.Location
		a.mu.RUnlock()
	}

	now := a.clock.Now()

	today, err := a.sun.SunEvents(ctx, loc, provider.Today)
	if err != nil {
		a.logger.Error("Failed to fetch sunrise and sunset times", "day", provider.Today.String(), "error", err)
		errs = append(errs, err)
		today = lastEvents
	} else {
		lastEvents = today
	}

	var tomorrow *suntime.SunEvents
	if schedule.NeedsTomorrow(now, today) {
		next, err := a.sun.SunEvents(ctx, loc, provider.Tomorrow)
		if err != nil {
			// Today's sunrise and dim time stay in effect
			a.logger.Error("Failed to fetch sunrise and sunset times", "day", provider.Tomorrow.String(), "error", err)
			errs = append(errs, err)
		} else {
			tomorrow = &next
		}
	}

	decision := schedule.Decide(now, today, tomorrow)
	degraded := len(errs) > 0

	shown := today
	if tomorrow != nil {
		shown.Sunrise = tomorrow.Sunrise
		shown.DimTime = tomorrow.DimTime
	}

	a.logger.Info("Sunset", "time", suntime.LogString(shown.Sunset))
	a.logger.Info("Sunrise", "time", suntime.LogString(shown.Sunrise))
	a.logger.Info("Last Light Time", "time", suntime.LogString(shown.LastLight))
	a.logger.Info("Dim Time", "time", suntime.LogString(shown.DimTime))
	a.logger.Info("LED State", "phase", decision.Phase.String(), "level", int(decision.Level))

	report := telemetry.NewReport(a.opts.Device, now, shown, decision)

	// Shutdown owns the outputs once ctx is cancelled
	if err := ctx.Err(); err != nil {
		a.logger.Info("Cycle cancelled before driving outputs", "phase", decision.Phase.String())
		report.Degraded = true
		report.Errors = append(report.Errors, err.Error())
		return report
	}

	if err := a.output.Apply(ctx, decision.Level); err != nil {
		a.logger.Error("Failed to drive outputs", "error", err)
		errs = append(errs, err)
	}

	a.logger.Info("Next Event Time", "time", suntime.LogString(decision.Next))
	a.logger.Info("Sleep Duration", "seconds", int64(decision.Sleep/time.Second), "degraded", degraded)

	report.Degraded = degraded
	for _, e := range errs {
		report.Errors = append(report.Errors, e.Error())
	}

	if a.telemetry != nil {
		if err := a.telemetry.Publish(ctx, report); err != nil {
			a.logger.Warn("Failed to publish decision", "error", err)
		}
		if s, ok := a.telemetry.(telemetry.Suspender); ok {
			s.Suspend()
		}
	}

	if err := a.radio.Sleep(ctx); err != nil {
		a.logger.Warn("Failed to power radio down", "error", err)
	} else {
		a.setRadioAsleep(true)
	}

	wait := a.nextWait(decision.Sleep, degraded)
	deadline := a.clock.Base().Now().Add(wait)

	a.mu.Lock()
	a.state.LastEvents = lastEvents
	a.state.LastDecision = decision
	a.state.LastCycle = now
	a.state.WakeDeadline = deadline
	a.state.Degraded = degraded
	a.state.Cycles++
	a.mu.Unlock()

	return report
}

// nextWait returns how long to stay suspended after a decision
func (a *Agent) nextWait(sleep time.Duration, degraded bool) time.Duration {
	if sleep > 0 {
		return sleep
	}
	if degraded {
		return a.opts.RetryInterval
	}
	return minCycleInterval
}

func (a *Agent) reconnect(ctx context.Context) error {
	if err := a.radio.Wake(ctx); err != nil {
		return err
	}
	return a.radio.Connect(ctx)
}

func (a *Agent) setRadioAsleep(asleep bool) {
	a.mu.Lock()
	a.state.RadioAsleep = asleep
	a.mu.Unlock()
}

// RadioAsleep reports whether the radio was powered down after the last cycle
func (a *Agent) RadioAsleep() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.RadioAsleep
}

// WakeDeadline returns the base-clock time of the next cycle
func (a *Agent) WakeDeadline() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.WakeDeadline
}

// Status returns a snapshot of the controller state
func (a *Agent) Status() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// AppliedLevel returns the level last commanded on the outputs
func (a *Agent) AppliedLevel() (schedule.Level, bool) {
	return a.output.Applied()
}

// Stop turns the outputs off and closes telemetry
func (a *Agent) Stop() error {
	a.stopOnce.Do(func() {
		a.logger.Info("Stopping sunlamp controller")

		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()

		var errs []error
		if err := a.output.Close(ctx); err != nil {
			a.logger.Error("Error turning outputs off", "error", err)
			errs = append(errs, err)
		}

		if a.telemetry != nil {
			if err := a.telemetry.Close(); err != nil {
				a.logger.Error("Error closing telemetry", "error", err)
				errs = append(errs, err)
			}
		}

		a.stopErr = errors.Join(errs...)
		a.logger.Info("Sunlamp controller stopped")
	})
	return a.stopErr
}

// Snapshot is the JSON form of the controller state served on /status
type Snapshot struct {
	Device       string `json:"device"`
	Location     string `json:"location,omitempty"`
	Phase        string `json:"phase"`
	Level        int    `json:"level"`
	Applied      bool   `json:"applied"`
	NextEvent    string `json:"next_event,omitempty"`
	SleepSeconds int64  `json:"sleep_seconds"`
	WakeDeadline string `json:"wake_deadline,omitempty"`
	LastCycle    string `json:"last_cycle,omitempty"`
	Cycles       int    `json:"cycles"`
	Degraded     bool   `json:"degraded"`
	RadioAsleep  bool   `json:"radio_asleep"`
	ClockSynced  bool   `json:"clock_synced"`
	ClockOffset  string `json:"clock_offset"`
}

// Snapshot returns the state in its served form and whether the last cycle was degraded
func (a *Agent) Snapshot() (Snapshot, bool) {
	st := a.Status()
	level, applied := a.output.Applied()

	snap := Snapshot{
		Device:       a.opts.Device,
		Phase:        st.LastDecision.Phase.String(),
		Level:        int(level),
		Applied:      applied,
		SleepSeconds: int64(st.LastDecision.Sleep / time.Second),
		Cycles:       st.Cycles,
		Degraded:     st.Degraded,
		RadioAsleep:  st.RadioAsleep,
		ClockSynced:  a.clock.Synced(),
		ClockOffset:  a.clock.Offset().String(),
	}
	if !st.Location.IsZero() {
		snap.Location = st.Location.String()
	}
	if !st.LastDecision.Next.IsZero() {
		snap.NextEvent = st.LastDecision.Next.Format(time.RFC3339)
	}
	if !st.WakeDeadline.IsZero() {
		snap.WakeDeadline = st.WakeDeadline.Format(time.RFC3339)
	}
	if !st.LastCycle.IsZero() {
		snap.LastCycle = st.LastCycle.Format(time.RFC3339)
	}
	return snap, st.Degraded
}
