package schedule

import (
	"time"

	"github.com/saaga0h/sunlamp/internal/suntime"
)

// Phase is one of the four mutually exclusive day-state windows
type Phase int

const (
	NightOff Phase = iota
	DuskDim
	NightFull
	DawnDim
)

// String returns the telemetry name of the phase
func (p Phase) String() string {
	switch p {
	case NightOff:
		return "night_off"
	case DuskDim:
		return "dusk_dim"
	case NightFull:
		return "night_full"
	case DawnDim:
		return "dawn_dim"
	default:
		return "unknown"
	}
}

// Level is an output intensity in [0, MaxLevel]
type Level int

const (
	LevelOff  Level = 0
	LevelDim  Level = 60
	LevelFull Level = 1023

	MaxLevel = LevelFull
)

// Clamp limits l to [LevelOff, MaxLevel]
func (l Level) Clamp() Level {
	if l < LevelOff {
		return LevelOff
	}
	if l > MaxLevel {
		return MaxLevel
	}
	return l
}

// Decision is the outcome of one evaluation
type Decision struct {
	Phase Phase
	Level Level
	Next  time.Time     // next phase boundary
	Sleep time.Duration // max(0, Next - now), rounded up to whole seconds
}

// NeedsTomorrow reports whether now is past today's last light,
// in which case tomorrow's sunrise and dim time take part in the decision.
func NeedsTomorrow(now time.Time, today suntime.SunEvents) bool {
	return now.After(today.LastLight)
}

// Decide maps the current time and the day's events to a phase, level and next boundary.
//
// tomorrow is consulted only when now is past today's last light; its Sunrise and
// DimTime then replace today's while today's Sunset and LastLight stay the dusk reference.
// The windows are checked in fixed precedence: dusk, full night, dawn, then daytime.
func Decide(now time.Time, today suntime.SunEvents, tomorrow *suntime.SunEvents) Decision {
	sunset := today.Sunset
	lastLight := today.LastLight
	sunrise := today.Sunrise
	dimTime := today.DimTime

	if tomorrow != nil && NeedsTomorrow(now, today) {
		sunrise = tomorrow.Sunrise
		dimTime = tomorrow.DimTime
	}

	var d Decision
	switch {
	case !now.Before(sunset) && now.Before(lastLight):
		d = Decision{Phase: DuskDim, Level: LevelDim, Next: lastLight}
	case !now.Before(lastLight) && now.Before(dimTime):
		d = Decision{Phase: NightFull, Level: LevelFull, Next: dimTime}
	case !now.Before(dimTime) && now.Before(sunrise):
		d = Decision{Phase: DawnDim, Level: LevelDim, Next: sunrise}
	default:
		d = Decision{Phase: NightOff, Level: LevelOff, Next: sunset}
	}

	d.Sleep = SleepDuration(now, d.Next)
	return d
}

// SleepDuration returns max(0, next - now) rounded up to whole seconds,
// so a wake never lands just short of the boundary.
func SleepDuration(now, next time.Time) time.Duration {
	if !next.After(now) {
		return 0
	}
	d := next.Sub(now)
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	return d
}
