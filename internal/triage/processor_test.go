package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(store *fakeStore, notifier *fakeNotifier, workers int) *Processor {
	m := newTestMachine(store, notifier, DefaultLifecycleConfig())
	p := NewProcessor(NewClassifier(DefaultThresholds()), m, nil, nil, workers)
	p.now = func() time.Time { return t0 }
	return p
}

func marshal(t *testing.T, s TelemetrySample) []byte {
	t.Helper()
	raw, err := json.Marshal(s)
	require.NoError(t, err)
	return raw
}

func TestProcessBatchMixedSeverities(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := newTestProcessor(store, notifier, 4)

	payloads := [][]byte{
		marshal(t, TelemetrySample{VIN: "X", GForce: 22, AirbagDeployed: true, Heartbeat: 0}),
		marshal(t, TelemetrySample{VIN: "Y", GForce: 9.5, Heartbeat: 90}),
		marshal(t, TelemetrySample{VIN: "Z", GForce: 1.1, Heartbeat: 70}),
	}

	report := p.ProcessBatch(context.Background(), payloads)

	assert.Equal(t, 3, report.Received)
	assert.Equal(t, 3, report.Applied)
	assert.Zero(t, report.Malformed)
	assert.Zero(t, report.Rejected)

	assert.Equal(t, StatusEscalated, store.status("X"))
	assert.Equal(t, StatusWarning, store.status("Y"))
	assert.Equal(t, StatusNormal, store.status("Z"))
}

func TestProcessBatchSkipsBadPayloads(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store, &fakeNotifier{}, 2)

	payloads := [][]byte{
		[]byte(`{not json`),
		marshal(t, TelemetrySample{GForce: 12, Heartbeat: 80}),           // missing vin
		marshal(t, TelemetrySample{VIN: "X", GForce: 12, Heartbeat: -1}), // bad pulse
		marshal(t, TelemetrySample{VIN: "X", GForce: 12, Heartbeat: 80}),
	}

	report := p.ProcessBatch(context.Background(), payloads)

	assert.Equal(t, 4, report.Received)
	assert.Equal(t, 1, report.Malformed)
	assert.Equal(t, 2, report.Rejected)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, StatusWarning, store.status("X"))
}

// Samples of one vehicle must apply in arrival order even when the batch is
// processed concurrently: a crash followed by a calm reading stays escalated.
func TestProcessBatchPerVehicleOrdering(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store, &fakeNotifier{}, 8)

	payloads := [][]byte{
		marshal(t, TelemetrySample{VIN: "X", GForce: 22, AirbagDeployed: true, Heartbeat: 60}),
		marshal(t, TelemetrySample{VIN: "X", GForce: 0.9, Heartbeat: 72}),
	}

	report := p.ProcessBatch(context.Background(), payloads)

	assert.Equal(t, 1, report.Applied, "the calm reading must not downgrade")
	assert.Equal(t, StatusEscalated, store.status("X"))
}

func TestProcessBatchManyVehicles(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store, &fakeNotifier{}, 4)

	var payloads [][]byte
	for i := 0; i < 50; i++ {
		payloads = append(payloads, marshal(t, TelemetrySample{
			VIN:       fmt.Sprintf("VIN-%03d", i),
			GForce:    1.5,
			Heartbeat: 70,
		}))
	}

	report := p.ProcessBatch(context.Background(), payloads)

	assert.Equal(t, 50, report.Applied)
	records, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 50)
}

func TestProcessSample(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := newTestProcessor(store, notifier, 1)

	tr, err := p.ProcessSample(context.Background(), TelemetrySample{
		VIN: "X", GForce: 14, TiltAngle: 85, Heartbeat: 66,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, tr.To)
	assert.Equal(t, ReasonRollover, tr.Reason)

	_, err = p.ProcessSample(context.Background(), TelemetrySample{GForce: 14})
	assert.ErrorIs(t, err, ErrInvalidSample)
}

func TestProcessBatchSurvivesStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.getErr = fmt.Errorf("backend down")
	p := newTestProcessor(store, &fakeNotifier{}, 2)

	report := p.ProcessBatch(context.Background(), [][]byte{
		marshal(t, TelemetrySample{VIN: "X", GForce: 12, Heartbeat: 70}),
	})

	assert.Zero(t, report.Applied)
	assert.Equal(t, 1, report.Received)
}
