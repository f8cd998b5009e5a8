package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/saaga0h/sunlamp/pkg/mqtt"
	"github.com/saaga0h/sunlamp/pkg/redis"
)

// StatusFunc returns the controller snapshot and whether its last cycle was degraded
type StatusFunc func() (snapshot interface{}, degraded bool)

// AsleepFunc reports whether the network radio is powered down
type AsleepFunc func() bool

// HistoryFunc returns up to n recent decisions, newest first
type HistoryFunc func(ctx context.Context, n int) ([]json.RawMessage, error)

// Checker provides health check functionality for the controller
type Checker struct {
	mqtt    mqtt.Client
	redis   redis.Client
	status  StatusFunc
	history HistoryFunc
	asleep  AsleepFunc
	logger  *slog.Logger
}

// NewChecker creates a new health checker; mqtt and redis may be nil when disabled
func NewChecker(mqttClient mqtt.Client, redisClient redis.Client, logger *slog.Logger) *Checker {
	return &Checker{
		mqtt:   mqttClient,
		redis:  redisClient,
		logger: logger,
	}
}

// WithStatus sets the source served on /status
func (h *Checker) WithStatus(fn StatusFunc) *Checker {
	h.status = fn
	return h
}

// WithHistory sets the source served on /history
func (h *Checker) WithHistory(fn HistoryFunc) *Checker {
	h.history = fn
	return h
}

// WithRadio sets the radio state; unreachable services are expected while it sleeps
func (h *Checker) WithRadio(fn AsleepFunc) *Checker {
	h.asleep = fn
	return h
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Services  *Services `json:"services,omitempty"`
}

// Services represents the status of external dependencies
type Services struct {
	Controller string `json:"controller"`
	Redis      string `json:"redis"`
	MQTT       string `json:"mqtt"`
}

// Router returns the routes served by the health server
func (h *Checker) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HandlerFunc()).Methods(http.MethodGet)
	r.HandleFunc("/health/detailed", h.DetailedHandlerFunc()).Methods(http.MethodGet)
	r.HandleFunc("/status", h.StatusHandlerFunc()).Methods(http.MethodGet)
	r.HandleFunc("/history", h.HistoryHandlerFunc()).Methods(http.MethodGet)
	return r
}

// HandlerFunc returns an HTTP handler function for health checks.
// Returns 200 if the process is alive without checking dependencies.
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		}
		h.writeJSON(w, http.StatusOK, response)
	}
}

// DetailedHandlerFunc returns a handler that reports every dependency.
// A broker disconnect is normal while the radio is powered down, so only a
// degraded controller or an unreachable Redis with the radio up marks the
// service degraded.
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := &Services{
			Controller: "unknown",
			Redis:      "disabled",
			MQTT:       "disabled",
		}

		if h.mqtt != nil {
			if h.mqtt.IsConnected() {
				services.MQTT = "connected"
			} else {
				services.MQTT = "disconnected"
			}
		}

		if h.redis != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := h.redis.Ping(ctx)
			cancel()
			if err != nil && h.radioAsleep() {
				services.Redis = "radio_off"
			} else if err != nil {
				services.Redis = "disconnected"
			} else {
				services.Redis = "connected"
			}
		}

		if h.status != nil {
			if _, degraded := h.status(); degraded {
				services.Controller = "degraded"
			} else {
				services.Controller = "ok"
			}
		}

		status := "healthy"
		statusCode := http.StatusOK

		if services.Controller == "degraded" || services.Redis == "disconnected" {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
		}
		h.writeJSON(w, statusCode, response)
	}
}

// StatusHandlerFunc serves the controller snapshot
func (h *Checker) StatusHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.status == nil {
			http.Error(w, "status unavailable", http.StatusNotFound)
			return
		}
		snapshot, _ := h.status()
		h.writeJSON(w, http.StatusOK, snapshot)
	}
}

// HistoryHandlerFunc serves recent decisions; ?n= limits the count
func (h *Checker) HistoryHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.history == nil {
			http.Error(w, "history unavailable", http.StatusNotFound)
			return
		}

		n := 0
		if v := r.URL.Query().Get("n"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 0 {
				http.Error(w, "invalid n", http.StatusBadRequest)
				return
			}
			n = parsed
		}

		entries, err := h.history(r.Context(), n)
		if err != nil {
			h.logger.Error("Failed to read decision history", "error", err)
			http.Error(w, "history unavailable", http.StatusServiceUnavailable)
			return
		}
		h.writeJSON(w, http.StatusOK, entries)
	}
}

func (h *Checker) radioAsleep() bool {
	return h.asleep != nil && h.asleep()
}

func (h *Checker) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
