package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/buger/jsonparser"
)

// DefaultIPInfoURL is the location-lookup service base; the endpoint suffix is appended
const DefaultIPInfoURL = "http://ipinfo.io/"

// IPInfoLocator resolves the location from the public IP lookup service
type IPInfoLocator struct {
	client  *http.Client
	baseURL string
	suffix  string
	logger  *slog.Logger
}

// NewIPInfoLocator creates a locator for baseURL+suffix
func NewIPInfoLocator(client *http.Client, baseURL, suffix string, logger *slog.Logger) *IPInfoLocator {
	if baseURL == "" {
		baseURL = DefaultIPInfoURL
	}
	return &IPInfoLocator{
		client:  client,
		baseURL: baseURL,
		suffix:  suffix,
		logger:  logger,
	}
}

// Locate fetches the "loc" field, formatted "<lat>,<lng>"
func (l *IPInfoLocator) Locate(ctx context.Context) (Location, error) {
	url := l.baseURL + l.suffix

	body, err := fetch(ctx, l.client, url)
	if err != nil {
		return Location{}, err
	}

	l.logger.Debug("Location response", "body", string(body))

	loc, err := jsonparser.GetString(body, "loc")
	if err != nil {
		return Location{}, fmt.Errorf("%w: loc: %v", ErrMissingField, err)
	}

	return ParseLocation(loc)
}

// StaticLocator returns a fixed, configured location
type StaticLocator struct {
	location Location
}

// NewStaticLocator creates a locator for fixed coordinates
func NewStaticLocator(latitude, longitude string) *StaticLocator {
	return &StaticLocator{location: Location{Latitude: latitude, Longitude: longitude}}
}

// Locate returns the configured location
func (s *StaticLocator) Locate(ctx context.Context) (Location, error) {
	if s.location.IsZero() {
		return Location{}, fmt.Errorf("static location not configured")
	}
	return s.location, nil
}
