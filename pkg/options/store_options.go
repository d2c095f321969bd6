package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*StoreOptions)(nil)

// StoreOptions selects and configures the incident store backend.
type StoreOptions struct {
	// Backend is "sqlite" (durable) or "memory" (dev/testing only).
	Backend string `json:"backend" mapstructure:"backend"`

	// Path is the SQLite database file. Ignored for the memory backend.
	Path string `json:"path" mapstructure:"path"`

	// Timeout bounds every store call.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewStoreOptions creates a StoreOptions object with default parameters.
func NewStoreOptions() *StoreOptions {
	return &StoreOptions{
		Backend: "sqlite",
		Path:    "guardian.db",
		Timeout: 3 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *StoreOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	switch o.Backend {
	case "sqlite":
		if o.Path == "" {
			errors = append(errors, fmt.Errorf("store.path is required for the sqlite backend"))
		}
	case "memory":
	default:
		errors = append(errors, fmt.Errorf("unknown store backend %q (want sqlite or memory)", o.Backend))
	}

	if o.Timeout <= 0 {
		errors = append(errors, fmt.Errorf("store.timeout must be positive"))
	}

	return errors
}

// AddFlags adds flags for StoreOptions to the specified FlagSet.
func (o *StoreOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, "store.backend", o.Backend, "Incident store backend ('sqlite' or 'memory').")
	fs.StringVar(&o.Path, "store.path", o.Path, "SQLite database file for the incident store.")
	fs.DurationVar(&o.Timeout, "store.timeout", o.Timeout, "Per-call timeout for incident store operations.")
}
