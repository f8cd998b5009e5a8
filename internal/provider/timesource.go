package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/buger/jsonparser"

	"github.com/saaga0h/sunlamp/internal/suntime"
)

// DefaultWorldTimeURL is the time service base; the timezone name is appended
const DefaultWorldTimeURL = "http://worldtimeapi.org/api/timezone/"

// WorldTimeAPI reads the current local time of a fixed timezone
type WorldTimeAPI struct {
	client  *http.Client
	baseURL string
	zone    string
	loc     *time.Location
	logger  *slog.Logger
}

// NewWorldTimeAPI creates a time source for the IANA zone name
func NewWorldTimeAPI(client *http.Client, baseURL, zone string, logger *slog.Logger) (*WorldTimeAPI, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", zone, err)
	}
	if baseURL == "" {
		baseURL = DefaultWorldTimeURL
	}

	return &WorldTimeAPI{
		client:  client,
		baseURL: baseURL,
		zone:    zone,
		loc:     loc,
		logger:  logger,
	}, nil
}

// Location returns the timezone the service reports in
func (w *WorldTimeAPI) Location() *time.Location {
	return w.loc
}

// CurrentTime fetches "datetime" and parses its first 19 characters in the zone
func (w *WorldTimeAPI) CurrentTime(ctx context.Context) (time.Time, error) {
	url := w.baseURL + w.zone

	body, err := fetch(ctx, w.client, url)
	if err != nil {
		return time.Time{}, err
	}

	datetime, err := jsonparser.GetString(body, "datetime")
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: datetime: %v", ErrMissingField, err)
	}

	w.logger.Debug("Date and time fetched", "datetime", datetime)

	return suntime.ParseDatetimePrefix(datetime, w.loc)
}
