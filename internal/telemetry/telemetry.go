package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saaga0h/sunlamp/internal/schedule"
	"github.com/saaga0h/sunlamp/internal/suntime"
)

// Report describes one decision cycle
type Report struct {
	CycleID  uuid.UUID
	Device   string
	Now      time.Time
	Phase    schedule.Phase
	Level    schedule.Level
	Next     time.Time
	Sleep    time.Duration
	Events   suntime.SunEvents
	Degraded bool
	Errors   []string
}

// NewReport builds a report for a decision taken at now
func NewReport(device string, now time.Time, events suntime.SunEvents, d schedule.Decision) Report {
	return Report{
		CycleID: uuid.New(),
		Device:  device,
		Now:     now,
		Phase:   d.Phase,
		Level:   d.Level,
		Next:    d.Next,
		Sleep:   d.Sleep,
		Events:  events,
	}
}

// reportMessage is the wire form of a Report
type reportMessage struct {
	CycleID      string   `json:"cycle_id"`
	Device       string   `json:"device"`
	Timestamp    string   `json:"timestamp"`
	Phase        string   `json:"phase"`
	Level        int      `json:"level"`
	NextEvent    string   `json:"next_event,omitempty"`
	SleepSeconds int64    `json:"sleep_seconds"`
	Sunrise      string   `json:"sunrise,omitempty"`
	Sunset       string   `json:"sunset,omitempty"`
	LastLight    string   `json:"last_light,omitempty"`
	DimTime      string   `json:"dim_time,omitempty"`
	Degraded     bool     `json:"degraded"`
	Errors       []string `json:"errors,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func (r Report) message() reportMessage {
	return reportMessage{
		CycleID:      r.CycleID.String(),
		Device:       r.Device,
		Timestamp:    formatTime(r.Now),
		Phase:        r.Phase.String(),
		Level:        int(r.Level),
		NextEvent:    formatTime(r.Next),
		SleepSeconds: int64(r.Sleep / time.Second),
		Sunrise:      formatTime(r.Events.Sunrise),
		Sunset:       formatTime(r.Events.Sunset),
		LastLight:    formatTime(r.Events.LastLight),
		DimTime:      formatTime(r.Events.DimTime),
		Degraded:     r.Degraded,
		Errors:       r.Errors,
	}
}

// MarshalJSON encodes the report in its wire form
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.message())
}

// Publisher receives cycle reports
type Publisher interface {
	Publish(ctx context.Context, r Report) error
	Close() error
}

// Multi fans a report out to several publishers.
// Every publisher is attempted; failures are logged and joined.
type Multi struct {
	publishers []Publisher
	logger     *slog.Logger
}

// NewMulti creates a fan-out publisher
func NewMulti(logger *slog.Logger, publishers ...Publisher) *Multi {
	return &Multi{publishers: publishers, logger: logger}
}

// Len returns the number of publishers
func (m *Multi) Len() int {
	return len(m.publishers)
}

// Publish sends r to every publisher
func (m *Multi) Publish(ctx context.Context, r Report) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, r); err != nil {
			m.logger.Warn("Failed to publish report", "cycle_id", r.CycleID.String(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Suspender is implemented by publishers holding a network connection
// that must be released before the radio powers down.
type Suspender interface {
	Suspend()
}

// Suspend suspends every publisher that holds a connection
func (m *Multi) Suspend() {
	for _, p := range m.publishers {
		if s, ok := p.(Suspender); ok {
			s.Suspend()
		}
	}
}

// Close closes every publisher
func (m *Multi) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	return errors.Join(errs...)
}
