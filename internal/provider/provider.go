package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/saaga0h/sunlamp/internal/suntime"
)

// maxBodyBytes bounds how much of a response body is read
const maxBodyBytes = 64 << 10

// ErrMissingField is returned when an expected JSON field is absent
var ErrMissingField = errors.New("missing field")

// StatusError is returned when a fetch answers with anything but 200
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Location is a latitude/longitude pair as decimal-degree strings
type Location struct {
	Latitude  string
	Longitude string
}

// ParseLocation splits a "<lat>,<lng>" value
func ParseLocation(value string) (Location, error) {
	lat, lng, ok := strings.Cut(strings.TrimSpace(value), ",")
	if !ok || lat == "" || lng == "" {
		return Location{}, fmt.Errorf("invalid location %q", value)
	}
	return Location{Latitude: strings.TrimSpace(lat), Longitude: strings.TrimSpace(lng)}, nil
}

// IsZero reports whether the location has not been resolved
func (l Location) IsZero() bool {
	return l.Latitude == "" && l.Longitude == ""
}

// String returns the "<lat>,<lng>" form
func (l Location) String() string {
	return l.Latitude + "," + l.Longitude
}

// Coordinates parses the decimal-degree strings
func (l Location) Coordinates() (lat, lng float64, err error) {
	if lat, err = strconv.ParseFloat(l.Latitude, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q: %w", l.Latitude, err)
	}
	if lng, err = strconv.ParseFloat(l.Longitude, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q: %w", l.Longitude, err)
	}
	return lat, lng, nil
}

// Day selects which calendar day's events to fetch
type Day int

const (
	Today Day = iota
	Tomorrow
)

// String returns the query value understood by the sun-event service
func (d Day) String() string {
	if d == Tomorrow {
		return "tomorrow"
	}
	return "today"
}

// Locator resolves the device location
type Locator interface {
	Locate(ctx context.Context) (Location, error)
}

// TimeSource supplies the current wall-clock time from the network
type TimeSource interface {
	CurrentTime(ctx context.Context) (time.Time, error)
}

// SunEventProvider returns the sun events of one day at a location
type SunEventProvider interface {
	SunEvents(ctx context.Context, loc Location, day Day) (suntime.SunEvents, error)
}

// Clients holds the HTTP clients of the fetchers
type Clients struct {
	Default *http.Client // location and time
	Sun     *http.Client // sun events
}

// NewClients creates the fetcher clients. insecureSun disables certificate
// validation for the sun-event service only.
func NewClients(timeout time.Duration, insecureSun bool) Clients {
	return Clients{
		Default: NewHTTPClient(timeout, false),
		Sun:     NewHTTPClient(timeout, insecureSun),
	}
}

// NewHTTPClient creates a fetcher client; insecure disables certificate validation
func NewHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// fetch performs a GET and returns the body of a 200 response
func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	return body, nil
}
