package triage

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/guardian-iov/guardian/pkg/log"
)

// Watchdog periodically sweeps for warnings whose response window has passed
// and escalates them. It is safe to run alongside concurrent dismissals and
// fresh telemetry: the escalation is a conditional write against the record
// version the expiry was observed on, so whichever writer lands first wins
// and the loser is a no-op.
type Watchdog struct {
	store    IncidentStore
	machine  *StateMachine
	settings *Settings
	metrics  *Metrics
	logger   log.Logger

	now func() time.Time
}

// NewWatchdog builds a watchdog over the shared store and state machine.
func NewWatchdog(store IncidentStore, machine *StateMachine, settings *Settings, metrics *Metrics, logger log.Logger) *Watchdog {
	if settings == nil {
		settings = NewSettings(DefaultLifecycleConfig())
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Watchdog{
		store:    store,
		machine:  machine,
		settings: settings,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps until the context is canceled. The sweep interval is re-read
// from settings on every tick so configuration reloads take effect without
// a restart.
func (w *Watchdog) Run(ctx context.Context) error {
	interval := w.settings.Load().WatchdogInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	w.logger.Info("Watchdog started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watchdog stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := w.ScanOnce(ctx, w.now()); err != nil {
				w.logger.Error(err, "Watchdog sweep failed")
			}
			timer.Reset(w.settings.Load().WatchdogInterval)
		}
	}
}

// ScanOnce escalates every warning already expired at now. Returns how many
// were escalated. Idempotent: a record escalated by an earlier sweep is no
// longer a warning and never matches the scan again.
func (w *Watchdog) ScanOnce(ctx context.Context, now time.Time) (escalated int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("watchdog sweep panic: %v", r)
			w.logger.Error(err, "Recovered in watchdog sweep", "stack", string(debug.Stack()))
		}
	}()

	w.metrics.WatchdogScansTotal.Inc()

	expired, err := w.store.ScanExpiredWarnings(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("scan expired warnings: %w", err)
	}

	for _, rec := range expired {
		tr, err := w.machine.Apply(ctx, rec.VIN, TriggerTimeout, "", now)
		if err != nil {
			w.logger.Error(err, "Failed to escalate expired warning", "vin", rec.VIN)
			continue
		}
		if tr.Applied && tr.To == StatusEscalated {
			escalated++
			w.metrics.WatchdogEscalatedTotal.Inc()
			w.logger.Info("Escalated unresponsive vehicle", "vin", rec.VIN, "expiredAt", rec.ExpiryDeadline)
		}
	}

	return escalated, nil
}
