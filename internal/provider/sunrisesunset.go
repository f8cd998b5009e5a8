package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/buger/jsonparser"

	"github.com/saaga0h/sunlamp/internal/suntime"
)

// DefaultSunriseSunsetURL is the sun-event service endpoint
const DefaultSunriseSunsetURL = "https://api.sunrisesunset.io/json"

// SunriseSunsetIO fetches a day's events from the sunrise/sunset service
type SunriseSunsetIO struct {
	client  *http.Client
	baseURL string
	loc     *time.Location
	logger  *slog.Logger
}

// NewSunriseSunsetIO creates a provider; loc is used when the response names no timezone
func NewSunriseSunsetIO(client *http.Client, baseURL string, loc *time.Location, logger *slog.Logger) *SunriseSunsetIO {
	if baseURL == "" {
		baseURL = DefaultSunriseSunsetURL
	}
	if loc == nil {
		loc = time.Local
	}

	return &SunriseSunsetIO{
		client:  client,
		baseURL: baseURL,
		loc:     loc,
		logger:  logger,
	}
}

// SunEvents fetches results.date, sunrise, sunset and last_light for the day
func (s *SunriseSunsetIO) SunEvents(ctx context.Context, loc Location, day Day) (suntime.SunEvents, error) {
	query := url.Values{}
	query.Set("lat", loc.Latitude)
	query.Set("lng", loc.Longitude)
	query.Set("date", day.String())
	endpoint := s.baseURL + "?" + query.Encode()

	body, err := fetch(ctx, s.client, endpoint)
	if err != nil {
		return suntime.SunEvents{}, err
	}

	if status, err := jsonparser.GetString(body, "status"); err == nil && status != "OK" {
		return suntime.SunEvents{}, fmt.Errorf("sun-event service status %q", status)
	}

	fields := make(map[string]string, 4)
	for _, name := range []string{"date", "sunrise", "sunset", "last_light"} {
		value, err := jsonparser.GetString(body, "results", name)
		if err != nil {
			return suntime.SunEvents{}, fmt.Errorf("%w: results.%s: %v", ErrMissingField, name, err)
		}
		fields[name] = value
	}

	zone := s.loc
	if name, err := jsonparser.GetString(body, "results", "timezone"); err == nil && name != "" {
		if tz, err := time.LoadLocation(name); err == nil {
			zone = tz
		} else {
			s.logger.Warn("Unknown timezone in sun-event response, using configured zone",
				"timezone", name,
				"error", err)
		}
	}

	events, err := suntime.Build(fields["date"], fields["sunrise"], fields["sunset"], fields["last_light"], zone)
	if err != nil {
		return suntime.SunEvents{}, err
	}

	s.logger.Debug("Sun events fetched",
		"day", day.String(),
		"date", fields["date"],
		"sunrise", fields["sunrise"],
		"sunset", fields["sunset"],
		"last_light", fields["last_light"],
		"dim_time", fields["date"]+" "+suntime.DimClock)

	return events, nil
}
