package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/saaga0h/sunlamp/internal/suntime"
)

// lastLightEvents are tried in order; summer nights at high latitude never reach
// astronomical darkness, so shallower twilights stand in.
var lastLightEvents = []suncalc.DayTimeName{suncalc.Night, suncalc.NauticalDusk, suncalc.Dusk}

// SunCalcProvider computes sun events locally instead of asking the network service.
// Astronomical night start stands in for the service's last light.
type SunCalcProvider struct {
	loc *time.Location
	now func() time.Time
}

// NewSunCalcProvider creates a local provider; now supplies the corrected wall clock
func NewSunCalcProvider(loc *time.Location, now func() time.Time) *SunCalcProvider {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &SunCalcProvider{loc: loc, now: now}
}

// SunEvents calculates the events for today or tomorrow in the provider's zone
func (p *SunCalcProvider) SunEvents(ctx context.Context, loc Location, day Day) (suntime.SunEvents, error) {
	if err := ctx.Err(); err != nil {
		return suntime.SunEvents{}, err
	}

	lat, lng, err := loc.Coordinates()
	if err != nil {
		return suntime.SunEvents{}, err
	}

	date := p.now().In(p.loc)
	if day == Tomorrow {
		date = date.AddDate(0, 0, 1)
	}
	// Evaluate at local noon so the calculation lands on the intended calendar day
	noon := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, p.loc)

	times := suncalc.GetTimes(noon, lat, lng)

	sunrise, err := p.eventTime(times, suncalc.Sunrise, noon)
	if err != nil {
		return suntime.SunEvents{}, err
	}
	sunset, err := p.eventTime(times, suncalc.Sunset, noon)
	if err != nil {
		return suntime.SunEvents{}, err
	}
	var night time.Time
	for _, name := range lastLightEvents {
		if night, err = p.eventTime(times, name, noon); err == nil {
			break
		}
	}
	if err != nil {
		return suntime.SunEvents{}, err
	}

	dim, err := suntime.DimTimeOn(noon.Format("2006-01-02"), p.loc)
	if err != nil {
		return suntime.SunEvents{}, err
	}

	return suntime.SunEvents{
		Sunrise:   sunrise,
		Sunset:    sunset,
		LastLight: night.Add(-suntime.LastLightOffset),
		DimTime:   dim,
	}, nil
}

// eventTime returns a named event truncated to the second, rejecting values the
// calculation could not produce (polar day or night yields no crossing)
func (p *SunCalcProvider) eventTime(times map[suncalc.DayTimeName]suncalc.DayTime, name suncalc.DayTimeName, noon time.Time) (time.Time, error) {
	event, ok := times[name]
	if !ok || event.Value.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %s", ErrMissingField, name)
	}

	value := event.Value.In(p.loc).Truncate(time.Second)
	if d := value.Sub(noon); d < -24*time.Hour || d > 24*time.Hour {
		return time.Time{}, fmt.Errorf("%w: %s does not occur on %s", ErrMissingField, name, noon.Format("2006-01-02"))
	}
	return value, nil
}
