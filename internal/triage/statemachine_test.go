package triage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestCriticalEscalatesFromAnyState(t *testing.T) {
	deadline := t0.Add(15 * time.Second)

	tests := []struct {
		name string
		seed *IncidentRecord
	}{
		{"no record", nil},
		{"normal", &IncidentRecord{VIN: "X", Status: StatusNormal}},
		{"warning", &IncidentRecord{VIN: "X", Status: StatusWarning, ExpiryDeadline: &deadline}},
		{"resolved", &IncidentRecord{VIN: "X", Status: StatusResolved}},
		{"escalated", &IncidentRecord{VIN: "X", Status: StatusEscalated, Reason: ReasonRollover}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			notifier := &fakeNotifier{}
			m := newTestMachine(store, notifier, DefaultLifecycleConfig())
			if tt.seed != nil {
				store.seed(*tt.seed)
			}

			tr, err := m.Apply(context.Background(), "X", TriggerCritical, ReasonAirbag, t0)
			require.NoError(t, err)

			assert.True(t, tr.Applied)
			assert.Equal(t, StatusEscalated, tr.To)
			assert.Equal(t, StatusEscalated, store.status("X"))
			assert.Equal(t, ReasonAirbag, tr.Reason)

			pages := notifier.byChannel(ChannelEmergency)
			require.Len(t, pages, 1)
			assert.Contains(t, pages[0].Body, "CODE RED: Airbag Deployed!")
			assert.Contains(t, pages[0].Subject, "X")
		})
	}
}

func TestRoutineNeverDowngradesActiveIncidents(t *testing.T) {
	deadline := t0.Add(15 * time.Second)

	for _, seed := range []IncidentRecord{
		{VIN: "X", Status: StatusWarning, Reason: ReasonHighImpact, ExpiryDeadline: &deadline},
		{VIN: "X", Status: StatusEscalated, Reason: ReasonRollover},
	} {
		t.Run(string(seed.Status), func(t *testing.T) {
			store := newFakeStore()
			notifier := &fakeNotifier{}
			m := newTestMachine(store, notifier, DefaultLifecycleConfig())
			store.seed(seed)

			tr, err := m.Apply(context.Background(), "X", TriggerRoutine, "", t0)
			require.NoError(t, err)

			assert.False(t, tr.Applied)
			assert.Equal(t, seed.Status, store.status("X"))
			assert.Equal(t, int64(1), store.version("X"), "record must not be rewritten")
			assert.Empty(t, notifier.published())
		})
	}
}

func TestRoutineHeartbeatCreatesAndRefreshes(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	m := newTestMachine(store, notifier, DefaultLifecycleConfig())

	tr, err := m.Apply(context.Background(), "X", TriggerRoutine, "", t0)
	require.NoError(t, err)
	assert.True(t, tr.Applied)
	assert.Equal(t, StatusNormal, store.status("X"))
	assert.Equal(t, int64(1), store.version("X"))

	tr, err = m.Apply(context.Background(), "X", TriggerRoutine, "", t0.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, tr.Applied)
	assert.Equal(t, int64(2), store.version("X"))
	assert.Equal(t, t0.Add(time.Second), tr.Record.LastUpdated)

	assert.Empty(t, notifier.published())
}

func TestModerateArmsWarningWithDeadline(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	m := newTestMachine(store, notifier, DefaultLifecycleConfig())

	tr, err := m.Apply(context.Background(), "Y", TriggerModerate, ReasonHighImpact, t0)
	require.NoError(t, err)

	assert.Equal(t, StatusWarning, tr.To)
	require.NotNil(t, tr.Record.ExpiryDeadline)
	assert.Equal(t, t0.Add(15*time.Second), *tr.Record.ExpiryDeadline)

	warnings := notifier.byChannel(ChannelWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Body, testDismissURL+"?vin=Y")
	assert.Empty(t, notifier.byChannel(ChannelEmergency))
}

func TestRearmPolicies(t *testing.T) {
	first := t0.Add(15 * time.Second)
	later := t0.Add(10 * time.Second)

	t.Run("reset restarts the window", func(t *testing.T) {
		store := newFakeStore()
		m := newTestMachine(store, &fakeNotifier{}, DefaultLifecycleConfig())
		store.seed(warningRecord("Y", first))

		tr, err := m.Apply(context.Background(), "Y", TriggerModerate, ReasonHighImpact, later)
		require.NoError(t, err)
		assert.True(t, tr.Applied)
		assert.Equal(t, StatusWarning, tr.To)
		assert.Equal(t, later.Add(15*time.Second), *tr.Record.ExpiryDeadline)
	})

	t.Run("hold keeps the original deadline", func(t *testing.T) {
		cfg := DefaultLifecycleConfig()
		cfg.Rearm = RearmHold

		store := newFakeStore()
		m := newTestMachine(store, &fakeNotifier{}, cfg)
		store.seed(warningRecord("Y", first))

		tr, err := m.Apply(context.Background(), "Y", TriggerModerate, ReasonHighImpact, later)
		require.NoError(t, err)
		assert.True(t, tr.Applied)
		assert.Equal(t, first, *tr.Record.ExpiryDeadline)
	})
}

func TestDismissResolvesOnlyWarnings(t *testing.T) {
	t.Run("warning resolves", func(t *testing.T) {
		store := newFakeStore()
		notifier := &fakeNotifier{}
		m := newTestMachine(store, notifier, DefaultLifecycleConfig())
		store.seed(warningRecord("Y", t0.Add(15*time.Second)))

		tr, err := m.Dismiss(context.Background(), "Y", t0.Add(5*time.Second))
		require.NoError(t, err)
		assert.True(t, tr.Applied)
		assert.Equal(t, StatusResolved, store.status("Y"))
		assert.Nil(t, tr.Record.ExpiryDeadline)
		assert.Empty(t, notifier.published())
	})

	t.Run("escalated cannot be dismissed", func(t *testing.T) {
		store := newFakeStore()
		m := newTestMachine(store, &fakeNotifier{}, DefaultLifecycleConfig())
		store.seed(IncidentRecord{VIN: "Y", Status: StatusEscalated, Reason: ReasonUnresponsive})

		tr, err := m.Dismiss(context.Background(), "Y", t0)
		require.NoError(t, err)
		assert.False(t, tr.Applied)
		assert.Equal(t, StatusEscalated, store.status("Y"))
	})

	t.Run("no record is a no-op", func(t *testing.T) {
		store := newFakeStore()
		m := newTestMachine(store, &fakeNotifier{}, DefaultLifecycleConfig())

		tr, err := m.Dismiss(context.Background(), "Y", t0)
		require.NoError(t, err)
		assert.False(t, tr.Applied)
		assert.Equal(t, int64(0), store.version("Y"))
	})
}

func TestTimeoutEscalatesExpiredWarning(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	m := newTestMachine(store, notifier, DefaultLifecycleConfig())
	store.seed(warningRecord("Y", t0.Add(15*time.Second)))

	// One second past the deadline.
	tr, err := m.Apply(context.Background(), "Y", TriggerTimeout, "", t0.Add(16*time.Second))
	require.NoError(t, err)

	assert.True(t, tr.Applied)
	assert.Equal(t, StatusEscalated, tr.To)
	assert.Equal(t, ReasonUnresponsive, tr.Reason)

	pages := notifier.byChannel(ChannelEmergency)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0].Body, UnresponsiveMessage)
}

func TestTimeoutBeforeDeadlineIsNoop(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	m := newTestMachine(store, notifier, DefaultLifecycleConfig())
	store.seed(warningRecord("Y", t0.Add(15*time.Second)))

	tr, err := m.Apply(context.Background(), "Y", TriggerTimeout, "", t0.Add(10*time.Second))
	require.NoError(t, err)

	assert.False(t, tr.Applied)
	assert.Equal(t, StatusWarning, store.status("Y"))
	assert.Empty(t, notifier.published())
}

func TestWatchdogLosesRaceToDismissal(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	m := newTestMachine(store, notifier, DefaultLifecycleConfig())
	store.seed(warningRecord("Y", t0.Add(15*time.Second)))

	// The dismissal lands between the watchdog's read and its write.
	store.putHook = func() {
		store.seed(IncidentRecord{
			VIN:         "Y",
			Status:      StatusResolved,
			Reason:      ReasonHighImpact,
			LastUpdated: t0.Add(16 * time.Second),
			Version:     2,
		})
	}

	tr, err := m.Apply(context.Background(), "Y", TriggerTimeout, "", t0.Add(16*time.Second))
	require.NoError(t, err)

	assert.False(t, tr.Applied)
	assert.Equal(t, StatusResolved, store.status("Y"))
	assert.Empty(t, notifier.byChannel(ChannelEmergency), "resolved incident must not page responders")
}

func TestEscalatedAbsorbsModerate(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	m := newTestMachine(store, notifier, DefaultLifecycleConfig())
	store.seed(IncidentRecord{VIN: "X", Status: StatusEscalated, Reason: ReasonAirbag})

	tr, err := m.Apply(context.Background(), "X", TriggerModerate, ReasonHighImpact, t0)
	require.NoError(t, err)

	assert.False(t, tr.Applied)
	assert.Equal(t, StatusEscalated, store.status("X"))
	assert.Empty(t, notifier.published())
}

func TestResolvedReopens(t *testing.T) {
	tests := []struct {
		trigger Trigger
		want    IncidentStatus
	}{
		{TriggerRoutine, StatusNormal},
		{TriggerModerate, StatusWarning},
		{TriggerCritical, StatusEscalated},
	}
	for _, tt := range tests {
		t.Run(string(tt.trigger), func(t *testing.T) {
			store := newFakeStore()
			m := newTestMachine(store, &fakeNotifier{}, DefaultLifecycleConfig())
			store.seed(IncidentRecord{VIN: "X", Status: StatusResolved})

			tr, err := m.Apply(context.Background(), "X", tt.trigger, ReasonAirbag, t0)
			require.NoError(t, err)
			assert.True(t, tr.Applied)
			assert.Equal(t, tt.want, store.status("X"))
		})
	}
}

func TestEscalationHookFiresOncePerEscalation(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(store, &fakeNotifier{}, DefaultLifecycleConfig())

	var hooked []IncidentStatus
	m.SetEscalationHook(func(_ context.Context, tr *Transition) {
		hooked = append(hooked, tr.From)
	})

	ctx := context.Background()

	_, err := m.Apply(ctx, "X", TriggerCritical, ReasonAirbag, t0)
	require.NoError(t, err)

	// A repeated critical re-pages responders but does not re-archive.
	_, err = m.Apply(ctx, "X", TriggerCritical, ReasonRollover, t0.Add(time.Second))
	require.NoError(t, err)

	assert.Equal(t, []IncidentStatus{StatusNormal}, hooked)
}

func TestRepeatedCriticalRepages(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	m := newTestMachine(store, notifier, DefaultLifecycleConfig())

	ctx := context.Background()
	_, err := m.Apply(ctx, "X", TriggerCritical, ReasonAirbag, t0)
	require.NoError(t, err)
	_, err = m.Apply(ctx, "X", TriggerCritical, ReasonRollover, t0.Add(time.Second))
	require.NoError(t, err)

	pages := notifier.byChannel(ChannelEmergency)
	require.Len(t, pages, 2)
	assert.Contains(t, pages[1].Body, ReasonRollover)
	assert.Equal(t, int64(2), store.version("X"))
}

func TestApplyRetriesOnceOnContention(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(store, &fakeNotifier{}, DefaultLifecycleConfig())
	store.seed(IncidentRecord{VIN: "X", Status: StatusNormal})

	// A competing heartbeat bumps the version between read and write; the
	// retry must succeed against the fresh record.
	store.putHook = func() {
		store.seed(IncidentRecord{VIN: "X", Status: StatusNormal, LastUpdated: t0, Version: 2})
	}

	tr, err := m.Apply(context.Background(), "X", TriggerCritical, ReasonAirbag, t0)
	require.NoError(t, err)

	assert.True(t, tr.Applied)
	assert.Equal(t, StatusEscalated, store.status("X"))
	assert.Equal(t, int64(3), store.version("X"))
}

// Two vehicles crash in the same window: one escalates instantly, the other
// arms a warning and is dismissed in time.
func TestTwoVehicleScenario(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	m := newTestMachine(store, notifier, DefaultLifecycleConfig())
	ctx := context.Background()

	_, err := m.ApplyVerdict(ctx, "X", Verdict{Severity: SeverityCritical, Reason: ReasonAirbag}, t0)
	require.NoError(t, err)

	_, err = m.ApplyVerdict(ctx, "Y", Verdict{Severity: SeverityModerate, Reason: ReasonHighImpact}, t0)
	require.NoError(t, err)

	assert.Equal(t, StatusEscalated, store.status("X"))
	assert.Equal(t, StatusWarning, store.status("Y"))

	tr, err := m.Dismiss(ctx, "Y", t0.Add(8*time.Second))
	require.NoError(t, err)
	assert.True(t, tr.Applied)
	assert.Equal(t, StatusResolved, store.status("Y"))

	// The watchdog sweep after the window finds nothing left to escalate.
	expired, err := store.ScanExpiredWarnings(ctx, t0.Add(20*time.Second))
	require.NoError(t, err)
	assert.Empty(t, expired)

	require.Len(t, notifier.byChannel(ChannelEmergency), 1)
	require.Len(t, notifier.byChannel(ChannelWarning), 1)
}
