package triage

import (
	"sync/atomic"
	"time"
)

// RearmPolicy decides what a second MODERATE verdict does to an active
// warning's dismissal deadline.
type RearmPolicy string

const (
	// RearmReset restarts the warning window on every re-arm. This matches
	// the original deployment behavior.
	RearmReset RearmPolicy = "reset"

	// RearmHold keeps the deadline of the first warning.
	RearmHold RearmPolicy = "hold"
)

// LifecycleConfig is the reloadable part of the triage configuration.
type LifecycleConfig struct {
	WarningWindow    time.Duration
	WatchdogInterval time.Duration
	Rearm            RearmPolicy
}

// DefaultLifecycleConfig returns the deployment defaults: a 15 second
// dismissal window polled every 5 seconds, resetting on re-arm.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		WarningWindow:    15 * time.Second,
		WatchdogInterval: 5 * time.Second,
		Rearm:            RearmReset,
	}
}

// Settings is an atomically swappable LifecycleConfig snapshot, so a config
// file reload can retune the running engine without a restart.
type Settings struct {
	ptr atomic.Pointer[LifecycleConfig]
}

// NewSettings creates Settings seeded with cfg.
func NewSettings(cfg LifecycleConfig) *Settings {
	s := &Settings{}
	s.ptr.Store(&cfg)
	return s
}

// Load returns the current snapshot.
func (s *Settings) Load() LifecycleConfig {
	return *s.ptr.Load()
}

// Store atomically replaces the snapshot.
func (s *Settings) Store(cfg LifecycleConfig) {
	s.ptr.Store(&cfg)
}
