package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*NotifyOptions)(nil)

// NotifyOptions configures alert delivery and its retry budget.
type NotifyOptions struct {
	// WebhookURL, when set, mirrors every alert to an HTTP endpoint in
	// addition to MQTT. Empty disables the webhook.
	WebhookURL string `json:"webhook-url" mapstructure:"webhook-url"`

	// MaxRetries is the retry budget for a single alert delivery.
	MaxRetries uint64 `json:"max-retries" mapstructure:"max-retries"`

	// InitialBackoff seeds the exponential backoff between retries.
	InitialBackoff time.Duration `json:"initial-backoff" mapstructure:"initial-backoff"`

	// PublishTimeout bounds each individual delivery attempt.
	PublishTimeout time.Duration `json:"publish-timeout" mapstructure:"publish-timeout"`
}

// NewNotifyOptions creates a NotifyOptions object with default parameters.
func NewNotifyOptions() *NotifyOptions {
	return &NotifyOptions{
		MaxRetries:     4,
		InitialBackoff: 200 * time.Millisecond,
		PublishTimeout: 5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *NotifyOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.InitialBackoff <= 0 {
		errors = append(errors, fmt.Errorf("notify.initial-backoff must be positive"))
	}
	if o.PublishTimeout <= 0 {
		errors = append(errors, fmt.Errorf("notify.publish-timeout must be positive"))
	}

	return errors
}

// AddFlags adds flags for NotifyOptions to the specified FlagSet.
func (o *NotifyOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.WebhookURL, "notify.webhook-url", o.WebhookURL, "Optional HTTP endpoint mirroring every alert.")
	fs.Uint64Var(&o.MaxRetries, "notify.max-retries", o.MaxRetries, "Retry budget for a single alert delivery.")
	fs.DurationVar(&o.InitialBackoff, "notify.initial-backoff", o.InitialBackoff, "Initial exponential backoff between delivery retries.")
	fs.DurationVar(&o.PublishTimeout, "notify.publish-timeout", o.PublishTimeout, "Timeout for each individual delivery attempt.")
}
