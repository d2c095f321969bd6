// Package app wires the guardian-simulator command.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guardian-iov/guardian/cmd/guardian-simulator/app/options"
	"github.com/guardian-iov/guardian/internal/simulator"
	"github.com/guardian-iov/guardian/pkg/app"
	"github.com/guardian-iov/guardian/pkg/log"
	"github.com/guardian-iov/guardian/pkg/mqtt"
	"github.com/guardian-iov/guardian/pkg/mqtt/topic"
)

const commandDesc = `guardian-simulator drives a synthetic vehicle fleet against a live broker,
mixing routine telemetry with occasional moderate and severe crash scenarios.
Use it to exercise a triage engine end to end without real vehicles.`

// NewApp builds the guardian-simulator application.
func NewApp(basename string) *app.App {
	opts := options.NewOptions()

	return app.NewApp(basename, "Synthetic fleet telemetry generator",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			log.Init(opts.Log)
			defer log.Sync()
			return run(opts)
		}),
	)
}

func run(opts *options.Options) error {
	ctx := app.SetupSignalContext()

	client, err := mqtt.NewClient(opts.Mqtt.ToClientConfig())
	if err != nil {
		return fmt.Errorf("create mqtt client: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start mqtt client: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Disconnect(disconnectCtx)
	}()

	runner := simulator.NewRunner(
		simulator.NewGenerator(opts.FleetSize, opts.Seed),
		client,
		topic.NewBuilder(opts.Mqtt.TopicRoot),
		opts.Interval,
		log.Std(),
	)

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
