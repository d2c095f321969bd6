// Package options aggregates the full option surface of guardian-triage.
package options

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/guardian-iov/guardian/internal/engine"
	"github.com/guardian-iov/guardian/pkg/log"
	genericoptions "github.com/guardian-iov/guardian/pkg/options"
)

// Options is the complete configuration of the triage engine binary.
type Options struct {
	Log    *log.Options                  `json:"log" mapstructure:"log"`
	Mqtt   *genericoptions.MqttOptions   `json:"mqtt" mapstructure:"mqtt"`
	Http   *genericoptions.HttpOptions   `json:"http" mapstructure:"http"`
	Store  *genericoptions.StoreOptions  `json:"store" mapstructure:"store"`
	S3     *genericoptions.S3Options     `json:"s3" mapstructure:"s3"`
	Triage *genericoptions.TriageOptions `json:"triage" mapstructure:"triage"`
	Notify *genericoptions.NotifyOptions `json:"notify" mapstructure:"notify"`
}

// NewOptions creates Options with every block at its defaults.
func NewOptions() *Options {
	return &Options{
		Log:    log.NewOptions(),
		Mqtt:   genericoptions.NewMqttOptions(),
		Http:   genericoptions.NewHttpOptions(),
		Store:  genericoptions.NewStoreOptions(),
		S3:     genericoptions.NewS3Options(),
		Triage: genericoptions.NewTriageOptions(),
		Notify: genericoptions.NewNotifyOptions(),
	}
}

// AddFlags binds every option block to the command's FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.Log.AddFlags(fs)
	o.Mqtt.AddFlags(fs)
	o.Http.AddFlags(fs)
	o.Store.AddFlags(fs)
	o.S3.AddFlags(fs)
	o.Triage.AddFlags(fs)
	o.Notify.AddFlags(fs)
}

// Complete fills in derived option values.
func (o *Options) Complete() error {
	return nil
}

// Validate checks the final option values.
func (o *Options) Validate() error {
	var errs []error
	errs = append(errs, o.Mqtt.Validate()...)
	errs = append(errs, o.Http.Validate()...)
	errs = append(errs, o.Store.Validate()...)
	errs = append(errs, o.S3.Validate()...)
	errs = append(errs, o.Triage.Validate()...)
	errs = append(errs, o.Notify.Validate()...)
	return errors.Join(errs...)
}

// EngineConfig derives the engine configuration from the options.
func (o *Options) EngineConfig() *engine.Config {
	return &engine.Config{
		Mqtt:   o.Mqtt,
		Http:   o.Http,
		Store:  o.Store,
		S3:     o.S3,
		Triage: o.Triage,
		Notify: o.Notify,
	}
}
