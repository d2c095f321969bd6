package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/guardian-iov/guardian/pkg/log"
	"github.com/guardian-iov/guardian/pkg/mqtt"
	"github.com/guardian-iov/guardian/pkg/mqtt/topic"
)

const publishQoS = 1

// Runner publishes generated telemetry to the broker on a fixed cadence.
type Runner struct {
	generator *Generator
	client    mqtt.Client
	topics    *topic.Builder
	interval  time.Duration
	logger    log.Logger
}

// NewRunner wires a runner publishing one sample every interval.
func NewRunner(generator *Generator, client mqtt.Client, topics *topic.Builder, interval time.Duration, logger log.Logger) *Runner {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Runner{
		generator: generator,
		client:    client,
		topics:    topics,
		interval:  interval,
		logger:    logger,
	}
}

// Run emits telemetry until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.client.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("await broker connection: %w", err)
	}

	r.logger.Info("Fleet simulation active", "fleet", r.generator.Fleet(), "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Simulation ended")
			return ctx.Err()
		case <-ticker.C:
			if err := r.emit(ctx); err != nil {
				r.logger.Warn("Telemetry publish failed", "err", err)
			}
		}
	}
}

func (r *Runner) emit(ctx context.Context) error {
	sample, scenario := r.generator.Next()

	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal sample for %s: %w", sample.VIN, err)
	}

	dest := r.topics.Telemetry(sample.VIN)
	if err := r.client.Publish(ctx, dest, publishQoS, false, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", dest, err)
	}

	r.logger.Info("Emitted sample",
		"scenario", scenario,
		"vin", sample.VIN,
		"gForce", sample.GForce,
		"airbag", sample.AirbagDeployed,
		"tilt", sample.TiltAngle)
	return nil
}
