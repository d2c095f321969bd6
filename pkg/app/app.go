// Package app provides the shared command-line application scaffold for the
// Guardian binaries: cobra command wiring, viper config file and environment
// binding, option validation, and signal-aware run contexts.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/guardian-iov/guardian/pkg/log"
)

const envPrefix = "GUARDIAN"

// RunFunc is the application's entry point, invoked after options are
// loaded, completed and validated.
type RunFunc func() error

// CliOptions is the aggregate option set of one binary.
type CliOptions interface {
	// AddFlags binds every option field to the command's FlagSet.
	AddFlags(fs *pflag.FlagSet)

	// Complete fills in derived fields after flags and config are loaded.
	Complete() error

	// Validate checks the final option values.
	Validate() error
}

// ConfigChangeFunc is invoked when a watched config file changes on disk.
type ConfigChangeFunc func(v *viper.Viper, e fsnotify.Event)

// App assembles a runnable command-line application.
type App struct {
	name        string
	short       string
	description string
	options     CliOptions
	runFunc     RunFunc
	onConfig    ConfigChangeFunc

	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

// WithDescription sets the long command description.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithOptions attaches the binary's option set.
func WithOptions(opts CliOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the application entry point.
func WithRunFunc(fn RunFunc) Option {
	return func(a *App) {
		a.runFunc = fn
	}
}

// WithConfigWatcher registers a callback for config file changes. The watch
// is only armed when a config file was actually loaded.
func WithConfigWatcher(fn ConfigChangeFunc) Option {
	return func(a *App) {
		a.onConfig = fn
	}
}

// NewApp builds the application with the given command name and short
// description.
func NewApp(name, short string, opts ...Option) *App {
	a := &App{
		name:  name,
		short: short,
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

func (a *App) buildCommand() {
	var configFile string

	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.short,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(cmd.Flags(), configFile); err != nil {
				return err
			}

			if a.options != nil {
				if err := a.options.Complete(); err != nil {
					return fmt.Errorf("failed to complete options: %w", err)
				}
				if err := a.options.Validate(); err != nil {
					return err
				}
			}

			if a.runFunc != nil {
				return a.runFunc()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file.")
	if a.options != nil {
		a.options.AddFlags(cmd.Flags())
	}

	a.cmd = cmd
}

// loadConfig merges, in increasing precedence: config file values,
// GUARDIAN_* environment variables, and explicit flags.
func (a *App) loadConfig(fs *pflag.FlagSet, configFile string) error {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}

		if a.onConfig != nil {
			v.OnConfigChange(func(e fsnotify.Event) {
				log.Info("Configuration file changed", "file", e.Name, "op", e.Op.String())
				a.onConfig(v, e)
			})
			v.WatchConfig()
		}
	}

	// Push merged values back into the flag variables so option structs see
	// config-file and env values for flags the user did not set explicitly.
	var flagErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil && flagErr == nil {
			flagErr = fmt.Errorf("failed to apply config value for --%s: %w", f.Name, err)
		}
	})

	return flagErr
}

// Command exposes the underlying cobra command, e.g. for docs generation.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the application and exits non-zero on error.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// SetupSignalContext returns a context cancelled on SIGINT or SIGTERM.
// A second signal kills the process immediately.
func SetupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
		<-ch
		os.Exit(1)
	}()

	return ctx
}
