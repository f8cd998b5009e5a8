package suntime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kyiv(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestParse_TwelveHourConversion(t *testing.T) {
	testCases := []struct {
		input        string
		expectedHour int
	}{
		{"2024-06-01 12:00:00 PM", 12},
		{"2024-06-01 12:00:00 AM", 0},
		{"2024-06-01 03:00:00 PM", 15},
		{"2024-06-01 03:00:00 AM", 3},
		{"2024-06-01 11:59:59 PM", 23},
		{"2024-06-01 6:07:00 AM", 6},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			parsed, err := Parse(tc.input, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedHour, parsed.Hour())
			assert.Equal(t, 2024, parsed.Year())
			assert.Equal(t, time.June, parsed.Month())
			assert.Equal(t, 1, parsed.Day())
		})
	}
}

func TestParse_Unparsed(t *testing.T) {
	inputs := []string{
		"",
		"null",
		"2024-06-01",
		"2024-06-01 25:00:00 PM",
		"2024-06-01 03:00:00",
		"not a time at all",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			parsed, err := Parse(input, time.UTC)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnparsed)
			assert.True(t, parsed.IsZero())
		})
	}
}

func TestParse_UsesLocation(t *testing.T) {
	loc := kyiv(t)

	parsed, err := Parse("2024-06-01 09:30:00 PM", loc)
	require.NoError(t, err)

	// Kyiv is UTC+3 in summer
	assert.Equal(t, 18, parsed.UTC().Hour())
	assert.Equal(t, 30, parsed.UTC().Minute())
}

func TestFormat_RoundTrip(t *testing.T) {
	// UTC has no repeated wall-clock hour, so every instant has one rendering
	loc := time.UTC
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, loc)

	// Walk a year in uneven steps so every hour of the clock face is hit
	for ts := base; ts.Before(base.AddDate(1, 0, 0)); ts = ts.Add(7*time.Hour + 13*time.Minute + 17*time.Second) {
		formatted := Format(ts, loc)
		parsed, err := Parse(formatted, loc)
		require.NoError(t, err, formatted)
		assert.Equal(t, ts.Unix(), parsed.Unix(), formatted)
	}
}

func TestFormat_TruncatesSubSecond(t *testing.T) {
	ts := time.Date(2024, time.June, 1, 15, 4, 5, 900_000_000, time.UTC)

	parsed, err := Parse(Format(ts, time.UTC), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, ts.Unix(), parsed.Unix())
	assert.Equal(t, "2024-06-01 03:04:05 PM", Format(ts, time.UTC))
}

func TestParseDatetimePrefix(t *testing.T) {
	loc := kyiv(t)

	parsed, err := ParseDatetimePrefix("2024-06-01T21:30:15.123456+03:00", loc)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, time.June, 1, 21, 30, 15, 0, loc), parsed)

	_, err = ParseDatetimePrefix("2024-06-01", loc)
	assert.ErrorIs(t, err, ErrUnparsed)

	_, err = ParseDatetimePrefix("2024-06-01 21:30:15", loc)
	assert.ErrorIs(t, err, ErrUnparsed)
}

func TestDimTimeOn(t *testing.T) {
	dim, err := DimTimeOn("2024-06-02", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 2, 2, 0, 0, 0, time.UTC), dim)
}

func TestBuild(t *testing.T) {
	events, err := Build("2024-06-01", "4:47:12 AM", "9:06:30 PM", "11:58:01 PM", time.UTC)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, time.June, 1, 4, 47, 12, 0, time.UTC), events.Sunrise)
	assert.Equal(t, time.Date(2024, time.June, 1, 21, 6, 30, 0, time.UTC), events.Sunset)
	assert.Equal(t, time.Date(2024, time.June, 1, 22, 58, 1, 0, time.UTC), events.LastLight, "last light is shifted back one hour")
	assert.Equal(t, time.Date(2024, time.June, 1, 2, 0, 0, 0, time.UTC), events.DimTime)
	assert.True(t, events.Ordered())
	assert.False(t, events.IsZero())
}

func TestBuild_MissingValue(t *testing.T) {
	_, err := Build("2024-06-01", "4:47:12 AM", "", "11:58:01 PM", time.UTC)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnparsed)
	assert.Contains(t, err.Error(), "sunset")
}

func TestSunEvents_IsZero(t *testing.T) {
	assert.True(t, SunEvents{}.IsZero())
	assert.False(t, SunEvents{Sunset: time.Unix(1, 0)}.IsZero())
}

func TestLogString(t *testing.T) {
	assert.Equal(t, "unset", LogString(time.Time{}))
	assert.Equal(t, "2024-06-01 21:00:00", LogString(time.Date(2024, time.June, 1, 21, 0, 0, 0, time.UTC)))
}
