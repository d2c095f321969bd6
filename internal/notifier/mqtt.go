package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/guardian-iov/guardian/internal/triage"
	"github.com/guardian-iov/guardian/pkg/log"
	"github.com/guardian-iov/guardian/pkg/mqtt"
	"github.com/guardian-iov/guardian/pkg/mqtt/topic"
)

// wire QoS per channel. Emergency pages use QoS 1 so the broker persists
// them across a flaky responder link; warnings are time-boxed anyway.
const (
	qosEmergency = 1
	qosWarning   = 1
)

// MQTT delivers alerts on the per-vehicle alert topics.
type MQTT struct {
	client  mqtt.Client
	topics  *topic.Builder
	timeout time.Duration
	logger  log.Logger
}

var _ triage.Notifier = (*MQTT)(nil)

// NewMQTT wires an alert publisher over an already started client.
func NewMQTT(client mqtt.Client, topics *topic.Builder, timeout time.Duration, logger log.Logger) *MQTT {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &MQTT{client: client, topics: topics, timeout: timeout, logger: logger}
}

// Publish serializes the alert and publishes it on its channel topic.
func (n *MQTT) Publish(ctx context.Context, alert *triage.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert for %s: %w", alert.VIN, err)
	}

	var (
		dest string
		qos  int
	)
	switch alert.Channel {
	case triage.ChannelEmergency:
		dest = n.topics.AlertEmergency(alert.VIN)
		qos = qosEmergency
	case triage.ChannelWarning:
		dest = n.topics.AlertWarning(alert.VIN)
		qos = qosWarning
	default:
		return fmt.Errorf("unknown alert channel %q", alert.Channel)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.client.Publish(ctx, dest, qos, false, payload); err != nil {
		return fmt.Errorf("publish alert to %s: %w", dest, err)
	}

	n.logger.Debug("Published alert", "topic", dest, "vin", alert.VIN, "channel", alert.Channel)
	return nil
}
