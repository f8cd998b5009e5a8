package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/saaga0h/sunlamp/pkg/mqtt"
)

// MQTTPublisher publishes reports as retained phase context messages
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

// NewMQTTPublisher creates a publisher on the device's phase topic
func NewMQTTPublisher(client mqtt.Client, device string, logger *slog.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		topic:  mqtt.PhaseTopic(device),
		logger: logger,
	}
}

// Publish connects if needed and sends the report
func (p *MQTTPublisher) Publish(ctx context.Context, r Report) error {
	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := p.client.Publish(p.topic, 1, true, payload); err != nil {
		return err
	}

	p.logger.Debug("Published phase context", "topic", p.topic, "phase", r.Phase.String())
	return nil
}

// Suspend drops the broker connection before the radio powers down
func (p *MQTTPublisher) Suspend() {
	if p.client.IsConnected() {
		p.client.Disconnect()
	}
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() error {
	p.Suspend()
	return nil
}
