package output

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amimof/huego"

	"github.com/saaga0h/sunlamp/internal/schedule"
)

// hueMaxBri is the top of the Hue brightness scale
const hueMaxBri = 254

// hueLights is the subset of the huego bridge used here
type hueLights interface {
	SetLightStateContext(ctx context.Context, i int, l huego.State) (*huego.Response, error)
}

// HueChannel drives a Philips Hue light through its bridge
type HueChannel struct {
	lightID int
	bridge  hueLights
	logger  *slog.Logger
}

// NewHueChannel creates a channel for lightID on the bridge at host
func NewHueChannel(host, user string, lightID int, logger *slog.Logger) *HueChannel {
	return &HueChannel{
		lightID: lightID,
		bridge:  huego.New(host, user),
		logger:  logger,
	}
}

// Name returns the light ID as the channel name
func (c *HueChannel) Name() string {
	return fmt.Sprintf("hue%d", c.lightID)
}

// Set maps the level onto Hue brightness; level 0 switches the light off
func (c *HueChannel) Set(ctx context.Context, level schedule.Level) error {
	state := hueState(level)

	if _, err := c.bridge.SetLightStateContext(ctx, c.lightID, state); err != nil {
		return fmt.Errorf("failed to set hue light %d: %w", c.lightID, err)
	}

	c.logger.Debug("Hue light state set", "light", c.lightID, "on", state.On, "bri", state.Bri)
	return nil
}

func hueState(level schedule.Level) huego.State {
	level = level.Clamp()
	if level == schedule.LevelOff {
		return huego.State{On: false}
	}

	bri := int(level) * hueMaxBri / int(schedule.MaxLevel)
	if bri < 1 {
		bri = 1
	}
	return huego.State{On: true, Bri: uint8(bri)}
}
