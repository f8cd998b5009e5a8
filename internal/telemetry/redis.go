package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/sunlamp/pkg/redis"
)

// RedisRecorder keeps the latest report in a hash and a capped history list
type RedisRecorder struct {
	client     redis.Client
	statusKey  string
	historyKey string
	history    int64
	ttl        time.Duration
	logger     *slog.Logger
}

// NewRedisRecorder creates a recorder for device keeping history entries
func NewRedisRecorder(client redis.Client, device string, history int, ttl time.Duration, logger *slog.Logger) *RedisRecorder {
	if history <= 0 {
		history = 100
	}
	return &RedisRecorder{
		client:     client,
		statusKey:  redis.StatusKey(device),
		historyKey: redis.HistoryKey(device),
		history:    int64(history),
		ttl:        ttl,
		logger:     logger,
	}
}

// Publish stores the report
func (r *RedisRecorder) Publish(ctx context.Context, rep Report) error {
	msg := rep.message()

	fields := map[string]interface{}{
		"cycle_id":      msg.CycleID,
		"timestamp":     msg.Timestamp,
		"phase":         msg.Phase,
		"level":         msg.Level,
		"next_event":    msg.NextEvent,
		"sleep_seconds": msg.SleepSeconds,
		"degraded":      msg.Degraded,
	}
	if err := r.client.HSet(ctx, r.statusKey, fields); err != nil {
		return err
	}

	entry, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := r.client.LPush(ctx, r.historyKey, string(entry)); err != nil {
		return err
	}
	if err := r.client.LTrim(ctx, r.historyKey, 0, r.history-1); err != nil {
		return err
	}

	if r.ttl > 0 {
		for _, key := range []string{r.statusKey, r.historyKey} {
			if err := r.client.Expire(ctx, key, r.ttl); err != nil {
				return err
			}
		}
	}

	r.logger.Debug("Recorded decision", "key", r.statusKey, "phase", msg.Phase)
	return nil
}

// Close closes the Redis connection
func (r *RedisRecorder) Close() error {
	return r.client.Close()
}

// Recent returns up to n stored reports, newest first
func (r *RedisRecorder) Recent(ctx context.Context, n int) ([]json.RawMessage, error) {
	if n <= 0 || int64(n) > r.history {
		n = int(r.history)
	}

	entries, err := r.client.LRange(ctx, r.historyKey, 0, int64(n)-1)
	if err != nil {
		return nil, err
	}

	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, json.RawMessage(e))
	}
	return out, nil
}
