package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/sunlamp/internal/suntime"
)

var day = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

func at(d time.Time, hour, minute int) time.Time {
	return d.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// eventsOn builds a non-degenerate fixture: dim 02:00, sunrise 06:00, sunset 21:00, last light 22:00
func eventsOn(d time.Time) suntime.SunEvents {
	return suntime.SunEvents{
		DimTime:   at(d, 2, 0),
		Sunrise:   at(d, 6, 0),
		Sunset:    at(d, 21, 0),
		LastLight: at(d, 22, 0),
	}
}

func TestDecide_EndToEndScenario(t *testing.T) {
	today := eventsOn(day)
	next := eventsOn(day.AddDate(0, 0, 1))

	testCases := []struct {
		name          string
		now           time.Time
		today         suntime.SunEvents
		expectedPhase Phase
		expectedLevel Level
		expectedNext  time.Time
	}{
		{"dusk", at(day, 21, 30), today, DuskDim, LevelDim, at(day, 22, 0)},
		{"night after last light", at(day, 23, 0), today, NightFull, LevelFull, next.DimTime},
		{"dawn next morning", at(day.AddDate(0, 0, 1), 3, 0), next, DawnDim, LevelDim, next.Sunrise},
		{"midday", at(day, 12, 0), today, NightOff, LevelOff, at(day, 21, 0)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var tomorrow *suntime.SunEvents
			if NeedsTomorrow(tc.now, tc.today) {
				tomorrow = &next
			}

			d := Decide(tc.now, tc.today, tomorrow)

			assert.Equal(t, tc.expectedPhase, d.Phase)
			assert.Equal(t, tc.expectedLevel, d.Level)
			assert.True(t, tc.expectedNext.Equal(d.Next), "expected next %v, got %v", tc.expectedNext, d.Next)
			assert.Equal(t, tc.expectedNext.Sub(tc.now), d.Sleep)
		})
	}
}

func TestDecide_DuskWindow(t *testing.T) {
	today := eventsOn(day)

	for now := today.Sunset; now.Before(today.LastLight); now = now.Add(time.Minute) {
		d := Decide(now, today, nil)
		require.Equal(t, DuskDim, d.Phase, now)
		require.Equal(t, LevelDim, d.Level)
		require.True(t, today.LastLight.Equal(d.Next))
	}
}

func TestDecide_NightFullWindow(t *testing.T) {
	today := eventsOn(day)
	tomorrow := eventsOn(day.AddDate(0, 0, 1))

	// At exactly last light the tomorrow substitution has not kicked in yet,
	// so today's dim time (already past) makes this instant fall through.
	for now := today.LastLight.Add(time.Minute); now.Before(tomorrow.DimTime); now = now.Add(time.Minute) {
		d := Decide(now, today, &tomorrow)
		require.Equal(t, NightFull, d.Phase, now)
		require.Equal(t, LevelFull, d.Level)
		require.True(t, tomorrow.DimTime.Equal(d.Next))
	}
}

func TestDecide_NightFullWindow_SameDayEvents(t *testing.T) {
	// Events whose dim time follows last light, as tomorrow's substitution produces
	events := suntime.SunEvents{
		Sunset:    at(day, 21, 0),
		LastLight: at(day, 22, 0),
		DimTime:   at(day, 26, 0),
		Sunrise:   at(day, 30, 0),
	}

	for now := events.LastLight; now.Before(events.DimTime); now = now.Add(time.Minute) {
		d := Decide(now, events, nil)
		require.Equal(t, NightFull, d.Phase, now)
		require.Equal(t, LevelFull, d.Level)
		require.True(t, events.DimTime.Equal(d.Next))
	}
}

func TestDecide_DawnWindow(t *testing.T) {
	today := eventsOn(day)

	for now := today.DimTime; now.Before(today.Sunrise); now = now.Add(time.Minute) {
		d := Decide(now, today, nil)
		require.Equal(t, DawnDim, d.Phase, now)
		require.Equal(t, LevelDim, d.Level)
		require.True(t, today.Sunrise.Equal(d.Next))
	}
}

func TestDecide_Daytime(t *testing.T) {
	today := eventsOn(day)

	for now := today.Sunrise; now.Before(today.Sunset); now = now.Add(time.Minute) {
		d := Decide(now, today, nil)
		require.Equal(t, NightOff, d.Phase, now)
		require.Equal(t, LevelOff, d.Level)
		require.True(t, today.Sunset.Equal(d.Next))
	}
}

func TestDecide_BeforeDimTimeFallsToDaytimeWindow(t *testing.T) {
	// Between midnight and the dim time none of the night windows match;
	// the precedence order sends it to the daytime branch.
	today := eventsOn(day)

	d := Decide(at(day, 1, 0), today, nil)

	assert.Equal(t, NightOff, d.Phase)
	assert.True(t, today.Sunset.Equal(d.Next))
}

func TestDecide_TomorrowIgnoredBeforeLastLight(t *testing.T) {
	today := eventsOn(day)
	tomorrow := eventsOn(day.AddDate(0, 0, 1))

	d := Decide(at(day, 4, 0), today, &tomorrow)

	assert.Equal(t, DawnDim, d.Phase)
	assert.True(t, today.Sunrise.Equal(d.Next))
}

func TestDecide_SleepNeverNegative(t *testing.T) {
	today := eventsOn(day)
	tomorrow := eventsOn(day.AddDate(0, 0, 1))

	for now := day.Add(-6 * time.Hour); now.Before(day.AddDate(0, 0, 2)); now = now.Add(17 * time.Minute) {
		var tm *suntime.SunEvents
		if NeedsTomorrow(now, today) {
			tm = &tomorrow
		}
		d := Decide(now, today, tm)

		require.GreaterOrEqual(t, d.Sleep, time.Duration(0))
		if d.Next.After(now) {
			require.Equal(t, d.Next.Sub(now), d.Sleep)
		} else {
			require.Equal(t, time.Duration(0), d.Sleep)
		}
	}
}

func TestDecide_ZeroEvents(t *testing.T) {
	now := at(day, 13, 37)

	assert.True(t, NeedsTomorrow(now, suntime.SunEvents{}))

	zero := suntime.SunEvents{}
	first := Decide(now, zero, &zero)
	second := Decide(now, zero, &zero)

	assert.Equal(t, first, second, "degraded decisions are deterministic")
	assert.Equal(t, NightOff, first.Phase)
	assert.Equal(t, LevelOff, first.Level)
	assert.True(t, first.Next.IsZero())
	assert.Equal(t, time.Duration(0), first.Sleep)
}

func TestSleepDuration(t *testing.T) {
	now := at(day, 12, 0)

	assert.Equal(t, time.Duration(0), SleepDuration(now, now))
	assert.Equal(t, time.Duration(0), SleepDuration(now, now.Add(-time.Hour)))
	assert.Equal(t, time.Hour, SleepDuration(now, now.Add(time.Hour)))
	assert.Equal(t, 2*time.Second, SleepDuration(now, now.Add(1500*time.Millisecond)))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "night_off", NightOff.String())
	assert.Equal(t, "dusk_dim", DuskDim.String())
	assert.Equal(t, "night_full", NightFull.String())
	assert.Equal(t, "dawn_dim", DawnDim.String())
	assert.Equal(t, "unknown", Phase(42).String())
}

func TestLevelClamp(t *testing.T) {
	assert.Equal(t, LevelOff, Level(-5).Clamp())
	assert.Equal(t, LevelDim, LevelDim.Clamp())
	assert.Equal(t, MaxLevel, Level(4096).Clamp())
}
