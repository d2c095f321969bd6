package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*TriageOptions)(nil)

// TriageOptions configures the severity classifier and incident lifecycle.
// The defaults match the Guardian deployment contract; changing them changes
// when emergencies fire, so think twice.
type TriageOptions struct {
	// GForceThreshold is the impact magnitude above which a sample is a
	// crash candidate. Exactly this value is still routine.
	GForceThreshold float64 `json:"g-force-threshold" mapstructure:"g-force-threshold"`

	// TiltThreshold is the absolute tilt angle (degrees) above which a
	// crash candidate counts as a rollover.
	TiltThreshold float64 `json:"tilt-threshold" mapstructure:"tilt-threshold"`

	// WarningWindow is how long a WARNING waits for a dismissal before the
	// watchdog escalates it.
	WarningWindow time.Duration `json:"warning-window" mapstructure:"warning-window"`

	// WatchdogInterval is the watchdog polling cadence. Must be shorter
	// than WarningWindow to bound escalation latency.
	WatchdogInterval time.Duration `json:"watchdog-interval" mapstructure:"watchdog-interval"`

	// RearmPolicy decides what a second MODERATE verdict does to an active
	// WARNING's deadline: "reset" restarts the window, "hold" keeps the
	// original deadline.
	RearmPolicy string `json:"rearm-policy" mapstructure:"rearm-policy"`

	// Workers bounds how many VIN groups a batch processes concurrently.
	Workers int `json:"workers" mapstructure:"workers"`
}

// NewTriageOptions creates a TriageOptions object with default parameters.
func NewTriageOptions() *TriageOptions {
	return &TriageOptions{
		GForceThreshold:  8.0,
		TiltThreshold:    60.0,
		WarningWindow:    15 * time.Second,
		WatchdogInterval: 5 * time.Second,
		RearmPolicy:      "reset",
		Workers:          8,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *TriageOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.GForceThreshold <= 0 {
		errors = append(errors, fmt.Errorf("triage.g-force-threshold must be positive"))
	}
	if o.TiltThreshold <= 0 {
		errors = append(errors, fmt.Errorf("triage.tilt-threshold must be positive"))
	}
	if o.WarningWindow <= 0 {
		errors = append(errors, fmt.Errorf("triage.warning-window must be positive"))
	}
	if o.WatchdogInterval <= 0 || o.WatchdogInterval >= o.WarningWindow {
		errors = append(errors, fmt.Errorf("triage.watchdog-interval must be positive and shorter than the warning window"))
	}
	if o.RearmPolicy != "reset" && o.RearmPolicy != "hold" {
		errors = append(errors, fmt.Errorf("triage.rearm-policy must be 'reset' or 'hold', got %q", o.RearmPolicy))
	}
	if o.Workers <= 0 {
		errors = append(errors, fmt.Errorf("triage.workers must be positive"))
	}

	return errors
}

// AddFlags adds flags for TriageOptions to the specified FlagSet.
func (o *TriageOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.Float64Var(&o.GForceThreshold, "triage.g-force-threshold", o.GForceThreshold, "Impact magnitude above which a sample is a crash candidate.")
	fs.Float64Var(&o.TiltThreshold, "triage.tilt-threshold", o.TiltThreshold, "Absolute tilt angle (degrees) treated as a rollover.")
	fs.DurationVar(&o.WarningWindow, "triage.warning-window", o.WarningWindow, "How long a warning waits for dismissal before escalation.")
	fs.DurationVar(&o.WatchdogInterval, "triage.watchdog-interval", o.WatchdogInterval, "Watchdog polling cadence.")
	fs.StringVar(&o.RearmPolicy, "triage.rearm-policy", o.RearmPolicy, "Deadline policy when a warning is re-armed ('reset' or 'hold').")
	fs.IntVar(&o.Workers, "triage.workers", o.Workers, "Concurrent VIN groups per telemetry batch.")
}
