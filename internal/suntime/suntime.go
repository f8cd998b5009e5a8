package suntime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the 12-hour pattern used by the sun-event service, e.g. "2024-06-01 6:07:00 AM".
// Single-digit month, day and hour are accepted.
const Layout = "2006-1-2 3:04:05 PM"

// formatLayout is the canonical rendering of Layout; Parse accepts it.
const formatLayout = "2006-01-02 03:04:05 PM"

// datetimeLayout matches the first 19 characters of a time service datetime field
const datetimeLayout = "2006-01-02T15:04:05"

// DimClock is the fixed local clock time at which full night lighting drops back to dim.
// It is applied to the calendar date reported with each day's events, whether the
// events are for today or tomorrow.
const DimClock = "02:00:00 AM"

// LastLightOffset is subtracted from the provider's last light to get usable dusk end
const LastLightOffset = time.Hour

// ErrUnparsed is returned when a value does not match the expected pattern
var ErrUnparsed = errors.New("unparsed time value")

// SunEvents holds the sun events of one calendar day at one location
type SunEvents struct {
	Sunrise   time.Time
	Sunset    time.Time
	LastLight time.Time
	DimTime   time.Time
}

// IsZero reports whether no field has been set (first boot or failed fetch)
func (e SunEvents) IsZero() bool {
	return e.Sunrise.IsZero() && e.Sunset.IsZero() && e.LastLight.IsZero() && e.DimTime.IsZero()
}

// Ordered reports whether dimTime < sunrise < sunset < lastLight holds.
// The scheduler does not require it; it is used for diagnostics only.
func (e SunEvents) Ordered() bool {
	return e.DimTime.Before(e.Sunrise) && e.Sunrise.Before(e.Sunset) && e.Sunset.Before(e.LastLight)
}

// Parse converts "YYYY-MM-DD hh:mm:ss AM|PM" into a time in loc.
// A value that does not match yields the zero time and an error wrapping ErrUnparsed.
func Parse(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	t, err := time.ParseInLocation(Layout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrUnparsed, value, err)
	}
	return t, nil
}

// Format renders t in loc using the pattern accepted by Parse
func Format(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(formatLayout)
}

// LogString renders t for diagnostic log lines
func LogString(t time.Time) string {
	if t.IsZero() {
		return "unset"
	}
	return t.Format("2006-01-02 15:04:05")
}

// ParseDatetimePrefix parses the leading "YYYY-MM-DDThh:mm:ss" of a datetime value in loc.
// Any fractional seconds or offset after the 19th character are ignored.
func ParseDatetimePrefix(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if len(value) < len(datetimeLayout) {
		return time.Time{}, fmt.Errorf("%w: %q: too short", ErrUnparsed, value)
	}

	t, err := time.ParseInLocation(datetimeLayout, value[:len(datetimeLayout)], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrUnparsed, value, err)
	}
	return t, nil
}

// DimTimeOn returns DimClock on the given calendar date ("YYYY-MM-DD")
func DimTimeOn(date string, loc *time.Location) (time.Time, error) {
	return Parse(date+" "+DimClock, loc)
}

// Build assembles the events of one day from the provider's date and 12-hour clock values.
// Last light is adjusted by LastLightOffset and the dim time follows DimClock.
func Build(date, sunrise, sunset, lastLight string, loc *time.Location) (SunEvents, error) {
	var events SunEvents
	var err error

	if events.Sunrise, err = Parse(date+" "+sunrise, loc); err != nil {
		return SunEvents{}, fmt.Errorf("sunrise: %w", err)
	}
	if events.Sunset, err = Parse(date+" "+sunset, loc); err != nil {
		return SunEvents{}, fmt.Errorf("sunset: %w", err)
	}

	last, err := Parse(date+" "+lastLight, loc)
	if err != nil {
		return SunEvents{}, fmt.Errorf("last light: %w", err)
	}
	events.LastLight = last.Add(-LastLightOffset)

	if events.DimTime, err = DimTimeOn(date, loc); err != nil {
		return SunEvents{}, fmt.Errorf("dim time: %w", err)
	}

	return events, nil
}
