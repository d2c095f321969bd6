// Package app wires the guardian-triage command.
package app

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/guardian-iov/guardian/cmd/guardian-triage/app/options"
	"github.com/guardian-iov/guardian/internal/engine"
	"github.com/guardian-iov/guardian/pkg/app"
	"github.com/guardian-iov/guardian/pkg/log"
)

const commandDesc = `The Guardian triage engine ingests vehicle telemetry from the fleet broker,
classifies crash severity from fused sensor readings, and drives per-vehicle
incident state: instant escalation for critical crashes, a dismissable safety
check for high-impact events, and automatic escalation when the occupant does
not respond in time.`

// NewApp builds the guardian-triage application.
func NewApp(basename string) *app.App {
	opts := options.NewOptions()

	var eng *engine.Engine

	return app.NewApp(basename, "Real-time vehicle crash triage engine",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithConfigWatcher(func(v *viper.Viper, _ fsnotify.Event) {
			reloaded := options.NewOptions()
			if err := v.Unmarshal(reloaded); err != nil {
				log.Error(err, "Ignoring unreadable configuration reload")
				return
			}
			if eng == nil {
				return
			}
			if err := eng.UpdateLifecycle(reloaded.Triage); err != nil {
				log.Error(err, "Ignoring invalid configuration reload")
			}
		}),
		app.WithRunFunc(func() error {
			log.Init(opts.Log)
			defer log.Sync()

			var err error
			eng, err = engine.New(opts.EngineConfig(), log.Std())
			if err != nil {
				return err
			}
			return eng.Run(app.SetupSignalContext())
		}),
	)
}
