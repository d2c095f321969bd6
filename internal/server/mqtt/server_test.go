package mqtt

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-iov/guardian/internal/triage"
	"github.com/guardian-iov/guardian/internal/triage/memstore"
	"github.com/guardian-iov/guardian/pkg/log"
	"github.com/guardian-iov/guardian/pkg/mqtt/topic"
)

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, *triage.Alert) error { return nil }

func newTestIngress(t *testing.T) (*Server, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	machine := triage.NewStateMachine(store, nopNotifier{}, nil, nil, log.NewNopLogger(), "http://x/dismiss")
	processor := triage.NewProcessor(triage.NewClassifier(triage.DefaultThresholds()), machine, nil, nil, 2)

	return New(nil, topic.NewBuilder("guardian/v1"), processor, log.NewNopLogger()), store
}

func sample(t *testing.T, s triage.TelemetrySample) []byte {
	t.Helper()
	raw, err := json.Marshal(s)
	require.NoError(t, err)
	return raw
}

func TestHandleSingleSample(t *testing.T) {
	srv, store := newTestIngress(t)

	srv.handleTelemetry(context.Background(), "guardian/v1/telemetry/VIN-1",
		sample(t, triage.TelemetrySample{VIN: "VIN-1", GForce: 22, AirbagDeployed: true, Heartbeat: 70}))

	rec, found, err := store.Get(context.Background(), "VIN-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, triage.StatusEscalated, rec.Status)
}

func TestHandleArrayBatch(t *testing.T) {
	srv, store := newTestIngress(t)

	batch := []triage.TelemetrySample{
		{VIN: "VIN-1", GForce: 1.0, Heartbeat: 70},
		{VIN: "VIN-2", GForce: 9.5, Heartbeat: 88},
	}
	raw, err := json.Marshal(batch)
	require.NoError(t, err)

	srv.handleTelemetry(context.Background(), "guardian/v1/telemetry/VIN-1", raw)

	rec, _, err := store.Get(context.Background(), "VIN-1")
	require.NoError(t, err)
	assert.Equal(t, triage.StatusNormal, rec.Status)

	rec, _, err = store.Get(context.Background(), "VIN-2")
	require.NoError(t, err)
	assert.Equal(t, triage.StatusWarning, rec.Status)
}

func TestHandleGarbageDoesNotPanic(t *testing.T) {
	srv, store := newTestIngress(t)

	srv.handleTelemetry(context.Background(), "guardian/v1/telemetry/VIN-1", []byte("not json at all"))
	srv.handleTelemetry(context.Background(), "guardian/v1/telemetry/VIN-1", []byte("[broken"))

	records, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSplitPayload(t *testing.T) {
	assert.Len(t, splitPayload([]byte(`{"vin":"X"}`)), 1)
	assert.Len(t, splitPayload([]byte(` [ {"vin":"X"}, {"vin":"Y"} ]`)), 2)
	assert.Len(t, splitPayload([]byte(`[not json`)), 1)
	assert.Len(t, splitPayload([]byte(``)), 1)
}
