// Package options holds the option surface of guardian-simulator.
package options

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/guardian-iov/guardian/pkg/log"
	genericoptions "github.com/guardian-iov/guardian/pkg/options"
)

// Options configures the fleet telemetry simulator.
type Options struct {
	Log  *log.Options                `json:"log" mapstructure:"log"`
	Mqtt *genericoptions.MqttOptions `json:"mqtt" mapstructure:"mqtt"`

	// FleetSize is how many synthetic vehicles to simulate.
	FleetSize int `json:"fleet-size" mapstructure:"fleet-size"`

	// Interval is the pause between samples.
	Interval time.Duration `json:"interval" mapstructure:"interval"`

	// Seed fixes the random stream; 0 seeds from the clock.
	Seed int64 `json:"seed" mapstructure:"seed"`
}

// NewOptions creates Options with sane simulation defaults.
func NewOptions() *Options {
	return &Options{
		Log:       log.NewOptions(),
		Mqtt:      genericoptions.NewMqttOptions(),
		FleetSize: 5,
		Interval:  500 * time.Millisecond,
	}
}

// AddFlags binds the simulator flags.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.Log.AddFlags(fs)
	o.Mqtt.AddFlags(fs)
	fs.IntVar(&o.FleetSize, "fleet-size", o.FleetSize, "Number of synthetic vehicles.")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Pause between emitted samples.")
	fs.Int64Var(&o.Seed, "seed", o.Seed, "Random seed (0 seeds from the clock).")
}

// Complete fills in derived option values.
func (o *Options) Complete() error {
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	return nil
}

// Validate checks the final option values.
func (o *Options) Validate() error {
	var errs []error
	errs = append(errs, o.Mqtt.Validate()...)
	if o.FleetSize <= 0 {
		errs = append(errs, fmt.Errorf("fleet-size must be positive"))
	}
	if o.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive"))
	}
	return errors.Join(errs...)
}
