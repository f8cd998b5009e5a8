package output

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/sunlamp/internal/schedule"
	"github.com/saaga0h/sunlamp/pkg/mqtt"
)

// MQTTChannel forwards levels to a network dimmer listening on a command topic
type MQTTChannel struct {
	name   string
	topic  string
	client mqtt.Client
	logger *slog.Logger
}

// NewMQTTChannel creates a channel publishing to topic
func NewMQTTChannel(name, topic string, client mqtt.Client, logger *slog.Logger) *MQTTChannel {
	return &MQTTChannel{
		name:   name,
		topic:  topic,
		client: client,
		logger: logger,
	}
}

// Name returns the channel name
func (c *MQTTChannel) Name() string {
	return c.name
}

// Set publishes the level as a retained command so a dimmer that reconnects picks it up
func (c *MQTTChannel) Set(ctx context.Context, level schedule.Level) error {
	if !c.client.IsConnected() {
		if err := c.client.Connect(ctx); err != nil {
			return err
		}
	}

	state := "off"
	if level > schedule.LevelOff {
		state = "on"
	}

	payload, err := json.Marshal(map[string]interface{}{
		"state":      state,
		"level":      int(level),
		"brightness": brightnessPercent(level),
		"timestamp":  time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal command message: %w", err)
	}

	if err := c.client.Publish(c.topic, 1, true, payload); err != nil {
		return err
	}

	c.logger.Debug("Published output command", "topic", c.topic, "level", int(level))
	return nil
}

// brightnessPercent maps a level onto 0-100, keeping any lit level at least 1
func brightnessPercent(level schedule.Level) int {
	level = level.Clamp()
	if level == schedule.LevelOff {
		return 0
	}
	pct := int(level) * 100 / int(schedule.MaxLevel)
	if pct < 1 {
		pct = 1
	}
	return pct
}
