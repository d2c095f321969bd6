package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-iov/guardian/internal/triage"
)

func TestConditionalPutCreateAndUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := &triage.IncidentRecord{VIN: "X", Status: triage.StatusNormal, LastUpdated: time.Now()}
	ok, err := s.ConditionalPut(ctx, rec, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), rec.Version)

	// A second blind create must lose.
	ok, err = s.ConditionalPut(ctx, &triage.IncidentRecord{VIN: "X", Status: triage.StatusWarning}, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	// An update against the observed version wins.
	got, found, err := s.Get(ctx, "X")
	require.NoError(t, err)
	require.True(t, found)
	ok, err = s.ConditionalPut(ctx, &triage.IncidentRecord{VIN: "X", Status: triage.StatusEscalated}, got)
	require.NoError(t, err)
	require.True(t, ok)

	got, _, err = s.Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, triage.StatusEscalated, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestConditionalPutStaleVersionLoses(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, putNew(s, "X", triage.StatusNormal))
	stale, _, err := s.Get(ctx, "X")
	require.NoError(t, err)

	// Another writer moves the record forward.
	fresh, _, err := s.Get(ctx, "X")
	require.NoError(t, err)
	ok, err := s.ConditionalPut(ctx, &triage.IncidentRecord{VIN: "X", Status: triage.StatusWarning}, fresh)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.ConditionalPut(ctx, &triage.IncidentRecord{VIN: "X", Status: triage.StatusResolved}, stale)
	require.NoError(t, err)
	assert.False(t, ok, "stale version must be rejected")

	got, _, err := s.Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, triage.StatusWarning, got.Status)
}

func TestScanExpiredWarnings(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Second)
	future := now.Add(time.Minute)

	for _, rec := range []*triage.IncidentRecord{
		{VIN: "B", Status: triage.StatusWarning, ExpiryDeadline: &past},
		{VIN: "A", Status: triage.StatusWarning, ExpiryDeadline: &past},
		{VIN: "C", Status: triage.StatusWarning, ExpiryDeadline: &future},
		{VIN: "D", Status: triage.StatusEscalated},
	} {
		ok, err := s.ConditionalPut(ctx, rec, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}

	expired, err := s.ScanExpiredWarnings(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, "A", expired[0].VIN)
	assert.Equal(t, "B", expired[1].VIN)
}

func TestConcurrentWritersOneWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, putNew(s, "X", triage.StatusWarning))

	base, _, err := s.Get(ctx, "X")
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ConditionalPut(ctx, &triage.IncidentRecord{VIN: "X", Status: triage.StatusEscalated}, base)
			assert.NoError(t, err)
			if ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, collect(wins), 1, "exactly one writer may win the version race")
}

func putNew(s *Store, vin string, status triage.IncidentStatus) error {
	_, err := s.ConditionalPut(context.Background(), &triage.IncidentRecord{VIN: vin, Status: status}, nil)
	return err
}

func collect(ch chan struct{}) []struct{} {
	var out []struct{}
	for v := range ch {
		out = append(out, v)
	}
	return out
}
