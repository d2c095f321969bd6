// Package options holds the per-concern configuration structs shared by the
// Guardian binaries. Each struct knows its defaults, its flags, and how to
// validate itself; assembling them into a command is the job of cmd/*/app.
package options

import (
	"fmt"
	"net"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every per-concern option struct.
type IOptions interface {
	// Validate parses and validates the parameters entered by the user at
	// program start. An empty slice means the options are usable.
	Validate() []error

	// AddFlags binds the struct's fields to the given FlagSet.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a valid host:port string.
func ValidateAddress(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}
