package triage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/guardian-iov/guardian/pkg/log"
)

// fakeStore is an in-memory IncidentStore with the same conditional-write
// contract as the real backends. putHook, when set, runs once immediately
// before the next ConditionalPut takes its lock, which lets tests interleave
// a competing writer at the worst possible moment.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]IncidentRecord

	putHook func()
	getErr  error
	putErr  error
	scanErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]IncidentRecord)}
}

func (s *fakeStore) Get(_ context.Context, vin string) (*IncidentRecord, bool, error) {
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[vin]
	if !ok {
		return nil, false, nil
	}
	cp := rec
	return &cp, true, nil
}

func (s *fakeStore) ConditionalPut(_ context.Context, rec *IncidentRecord, prev *IncidentRecord) (bool, error) {
	if s.putErr != nil {
		return false, s.putErr
	}
	if h := s.putHook; h != nil {
		s.putHook = nil
		h()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.VIN]
	if prev == nil {
		if ok {
			return false, nil
		}
		rec.Version = 1
	} else {
		if !ok || cur.Version != prev.Version {
			return false, nil
		}
		rec.Version = prev.Version + 1
	}
	s.records[rec.VIN] = *rec
	return true, nil
}

func (s *fakeStore) ScanExpiredWarnings(_ context.Context, now time.Time) ([]IncidentRecord, error) {
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []IncidentRecord
	for _, rec := range s.records {
		if rec.Expired(now) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VIN < out[j].VIN })
	return out, nil
}

func (s *fakeStore) List(_ context.Context) ([]IncidentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]IncidentRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VIN < out[j].VIN })
	return out, nil
}

// seed installs a record directly, bypassing the conditional-write contract.
func (s *fakeStore) seed(rec IncidentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Version == 0 {
		rec.Version = 1
	}
	s.records[rec.VIN] = rec
}

func (s *fakeStore) status(vin string) IncidentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[vin]
	if !ok {
		return StatusNormal
	}
	return rec.Status
}

func (s *fakeStore) version(vin string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[vin].Version
}

// fakeNotifier records every published alert.
type fakeNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (n *fakeNotifier) Publish(_ context.Context, alert *Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, *alert)
	return nil
}

func (n *fakeNotifier) published() []Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Alert(nil), n.alerts...)
}

func (n *fakeNotifier) byChannel(ch Channel) []Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Alert
	for _, a := range n.alerts {
		if a.Channel == ch {
			out = append(out, a)
		}
	}
	return out
}

const testDismissURL = "http://guardian.local/dismiss"

func newTestMachine(store IncidentStore, notifier Notifier, cfg LifecycleConfig) *StateMachine {
	return NewStateMachine(
		store,
		notifier,
		NewSettings(cfg),
		NewMetrics(prometheus.NewRegistry()),
		log.NewNopLogger(),
		testDismissURL,
	)
}

func warningRecord(vin string, deadline time.Time) IncidentRecord {
	return IncidentRecord{
		VIN:            vin,
		Status:         StatusWarning,
		Reason:         ReasonHighImpact,
		LastUpdated:    deadline.Add(-15 * time.Second),
		ExpiryDeadline: &deadline,
	}
}
