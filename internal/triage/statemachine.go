package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"github.com/prometheus/client_golang/prometheus"

	utilfsm "github.com/guardian-iov/guardian/internal/pkg/util/fsm"
	"github.com/guardian-iov/guardian/pkg/log"
)

// Trigger is what drives an incident transition: a classifier verdict, the
// watchdog timer, or a human dismissal.
type Trigger string

const (
	TriggerCritical Trigger = "critical"
	TriggerModerate Trigger = "moderate"
	TriggerRoutine  Trigger = "routine"
	TriggerTimeout  Trigger = "timeout"
	TriggerDismiss  Trigger = "dismiss"
)

// errNotExpired cancels a timeout transition whose warning window has not
// actually passed at evaluation time.
var errNotExpired = errors.New("warning not expired")

// transitionTable is the full incident lifecycle. Events absent for a source
// state are invalid there, which is how the no-downgrade invariant is
// expressed: routine is simply not defined for WARNING or ESCALATED, and
// moderate is not defined for ESCALATED.
func transitionTable() fsm.Events {
	normalish := []string{string(StatusNormal), string(StatusResolved)}

	return fsm.Events{
		{Name: string(TriggerCritical), Src: []string{
			string(StatusNormal), string(StatusWarning), string(StatusEscalated), string(StatusResolved),
		}, Dst: string(StatusEscalated)},
		{Name: string(TriggerModerate), Src: append(normalish, string(StatusWarning)), Dst: string(StatusWarning)},
		{Name: string(TriggerRoutine), Src: normalish, Dst: string(StatusNormal)},
		{Name: string(TriggerTimeout), Src: []string{string(StatusWarning)}, Dst: string(StatusEscalated)},
		{Name: string(TriggerDismiss), Src: []string{string(StatusWarning)}, Dst: string(StatusResolved)},
	}
}

// Transition is the outcome of applying one trigger to one vin.
type Transition struct {
	VIN     string
	From    IncidentStatus
	To      IncidentStatus
	Trigger Trigger
	Reason  string

	// Record is the written incident record; nil when nothing was written.
	Record *IncidentRecord

	// Applied reports whether the store accepted a write.
	Applied bool

	// Dropped reports that repeated store contention made the transition
	// inapplicable. Benign: a concurrent writer got there first.
	Dropped bool
}

// EscalationHook observes transitions that newly reach ESCALATED, e.g. to
// archive an incident report. Must not block the caller for long.
type EscalationHook func(ctx context.Context, tr *Transition)

// StateMachine applies verdicts, timeouts and dismissals to the stored
// incident record of a vehicle. All mutations go through conditional writes
// keyed on the previously observed record version, so concurrent workers,
// the watchdog and the dismissal handler cannot clobber each other.
type StateMachine struct {
	store          IncidentStore
	notifier       Notifier
	settings       *Settings
	metrics        *Metrics
	logger         log.Logger
	dismissBaseURL string
	onEscalated    EscalationHook
}

// NewStateMachine wires the state machine with its collaborators.
// dismissBaseURL is embedded into warning notifications.
func NewStateMachine(store IncidentStore, notifier Notifier, settings *Settings, metrics *Metrics, logger log.Logger, dismissBaseURL string) *StateMachine {
	if settings == nil {
		settings = NewSettings(DefaultLifecycleConfig())
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &StateMachine{
		store:          store,
		notifier:       notifier,
		settings:       settings,
		metrics:        metrics,
		logger:         logger,
		dismissBaseURL: dismissBaseURL,
	}
}

// SetEscalationHook registers an observer for fresh escalations.
func (m *StateMachine) SetEscalationHook(h EscalationHook) {
	m.onEscalated = h
}

// ApplyVerdict maps a classifier verdict onto a trigger and applies it.
func (m *StateMachine) ApplyVerdict(ctx context.Context, vin string, v Verdict, now time.Time) (*Transition, error) {
	switch v.Severity {
	case SeverityCritical:
		return m.Apply(ctx, vin, TriggerCritical, v.Reason, now)
	case SeverityModerate:
		return m.Apply(ctx, vin, TriggerModerate, v.Reason, now)
	default:
		return m.Apply(ctx, vin, TriggerRoutine, "", now)
	}
}

// Dismiss resolves an active warning. Driven by the external dismissal
// action; shares the conditional-write contract with every other caller.
func (m *StateMachine) Dismiss(ctx context.Context, vin string, now time.Time) (*Transition, error) {
	return m.Apply(ctx, vin, TriggerDismiss, "", now)
}

// Apply drives one trigger for one vin through the transition table and the
// store. A rejected conditional write is retried once against the fresh
// record; if the transition is then still contended it is dropped, not
// errored, and the concurrent writer's outcome stands.
func (m *StateMachine) Apply(ctx context.Context, vin string, trigger Trigger, reason string, now time.Time) (*Transition, error) {
	return m.apply(ctx, vin, trigger, reason, now, true)
}

func (m *StateMachine) apply(ctx context.Context, vin string, trigger Trigger, reason string, now time.Time, retry bool) (*Transition, error) {
	cur, exists, err := m.store.Get(ctx, vin)
	if err != nil {
		return nil, fmt.Errorf("get incident for %s: %w", vin, err)
	}

	// Absence of a record is equivalent to NORMAL.
	from := StatusNormal
	if exists {
		from = cur.Status
	}

	noop := &Transition{VIN: vin, From: from, To: from, Trigger: trigger}

	to, ok, err := m.nextStatus(ctx, from, cur, trigger, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return noop, nil
	}

	rec := m.buildRecord(vin, from, to, cur, trigger, reason, now)

	var prevRec *IncidentRecord
	if exists {
		prevRec = cur
	}

	written, err := m.store.ConditionalPut(ctx, rec, prevRec)
	if err != nil {
		return nil, fmt.Errorf("put incident for %s: %w", vin, err)
	}
	if !written {
		m.metrics.StoreConflictsTotal.Inc()
		if retry {
			return m.apply(ctx, vin, trigger, reason, now, false)
		}
		m.logger.Debug("Dropping transition after store contention", "vin", vin, "trigger", trigger)
		return &Transition{VIN: vin, From: from, Trigger: trigger, Dropped: true}, nil
	}

	m.metrics.TransitionsTotal.WithLabelValues(string(from), string(to), string(trigger)).Inc()

	tr := &Transition{
		VIN:     vin,
		From:    from,
		To:      to,
		Trigger: trigger,
		Reason:  rec.Reason,
		Record:  rec,
		Applied: true,
	}

	m.notify(ctx, tr)

	if m.onEscalated != nil && to == StatusEscalated && from != StatusEscalated {
		m.onEscalated(ctx, tr)
	}

	return tr, nil
}

// nextStatus runs the trigger through the lifecycle FSM seeded with the
// current status. ok=false means the trigger does not apply in this state
// (or the timeout guard rejected it) and the record must stay untouched.
func (m *StateMachine) nextStatus(ctx context.Context, from IncidentStatus, cur *IncidentRecord, trigger Trigger, now time.Time) (IncidentStatus, bool, error) {
	// Timeout has an extra temporal guard: the warning must still be
	// expired at evaluation time. Checked here and enforced again by the
	// conditional write against the version the expiry was read from.
	if trigger == TriggerTimeout && (cur == nil || !cur.Expired(now)) {
		return from, false, nil
	}

	callbacks := fsm.Callbacks{
		"before_" + string(TriggerTimeout): utilfsm.WrapEvent(func(_ context.Context, e *fsm.Event) error {
			if cur == nil || !cur.Expired(now) {
				return errNotExpired
			}
			return nil
		}),
	}

	machine := fsm.NewFSM(string(from), transitionTable(), callbacks)

	ferr := machine.Event(ctx, string(trigger))
	if ferr == nil {
		return IncidentStatus(machine.Current()), true, nil
	}

	if errors.Is(ferr, errNotExpired) {
		return from, false, nil
	}

	var noTransition fsm.NoTransitionError
	if errors.As(ferr, &noTransition) {
		// Declared self-transition (routine heartbeat, warning re-arm,
		// repeated critical): the status is unchanged but the record and
		// side effects still apply.
		return from, true, nil
	}

	var invalid fsm.InvalidEventError
	var canceled fsm.CanceledError
	if errors.As(ferr, &invalid) || errors.As(ferr, &canceled) {
		// Not defined for this state. This is the no-downgrade rule at
		// work, not an error.
		return from, false, nil
	}

	return from, false, fmt.Errorf("fsm event %s from %s: %w", trigger, from, ferr)
}

// buildRecord materializes the record to write for a computed transition.
func (m *StateMachine) buildRecord(vin string, from, to IncidentStatus, cur *IncidentRecord, trigger Trigger, reason string, now time.Time) *IncidentRecord {
	rec := &IncidentRecord{
		VIN:         vin,
		Status:      to,
		LastUpdated: now,
	}

	switch trigger {
	case TriggerCritical:
		rec.Reason = reason
	case TriggerModerate:
		rec.Reason = ReasonHighImpact
	case TriggerTimeout:
		rec.Reason = ReasonUnresponsive
	case TriggerDismiss:
		if cur != nil {
			rec.Reason = cur.Reason
		}
	}

	if to == StatusWarning {
		cfg := m.settings.Load()
		deadline := now.Add(cfg.WarningWindow)
		if from == StatusWarning && cfg.Rearm == RearmHold && cur != nil && cur.ExpiryDeadline != nil {
			deadline = *cur.ExpiryDeadline
		}
		rec.ExpiryDeadline = &deadline
	}

	return rec
}

// notify delivers the side-effect alert for an applied transition, after the
// state is durably written. Delivery is at-least-once: retries live in the
// notifier, and an exhausted emergency delivery is surfaced loudly there.
func (m *StateMachine) notify(ctx context.Context, tr *Transition) {
	var alert *Alert

	switch tr.Trigger {
	case TriggerCritical:
		alert = EmergencyAlert(tr.VIN, CodeRed(tr.Reason))
	case TriggerTimeout:
		alert = EmergencyAlert(tr.VIN, UnresponsiveMessage)
	case TriggerModerate:
		alert = WarningAlert(tr.VIN, m.dismissBaseURL)
	default:
		return
	}

	if err := m.notifier.Publish(ctx, alert); err != nil {
		m.metrics.NotificationsTotal.WithLabelValues(string(alert.Channel), "error").Inc()
		m.logger.Error(err, "Alert delivery failed", "vin", tr.VIN, "channel", alert.Channel, "trigger", tr.Trigger)
		return
	}

	m.metrics.NotificationsTotal.WithLabelValues(string(alert.Channel), "success").Inc()
}
