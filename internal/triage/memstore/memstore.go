// Package memstore is an in-memory IncidentStore for tests and single-node
// development runs. Semantics mirror the sqlite backend exactly, including
// the version guard on writes.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/guardian-iov/guardian/internal/triage"
)

// Store is a mutex-guarded map of incident records.
type Store struct {
	mu      sync.RWMutex
	records map[string]triage.IncidentRecord
}

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]triage.IncidentRecord)}
}

var _ triage.IncidentStore = (*Store)(nil)

// Get returns a copy of the record for vin.
func (s *Store) Get(_ context.Context, vin string) (*triage.IncidentRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[vin]
	if !ok {
		return nil, false, nil
	}
	cp := rec
	return &cp, true, nil
}

// ConditionalPut applies the optimistic-concurrency write contract.
func (s *Store) ConditionalPut(_ context.Context, rec *triage.IncidentRecord, prev *triage.IncidentRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.records[rec.VIN]
	if prev == nil {
		if exists {
			return false, nil
		}
		rec.Version = 1
	} else {
		if !exists || cur.Version != prev.Version {
			return false, nil
		}
		rec.Version = prev.Version + 1
	}

	s.records[rec.VIN] = *rec
	return true, nil
}

// ScanExpiredWarnings returns expired WARNING records ordered by vin.
func (s *Store) ScanExpiredWarnings(_ context.Context, now time.Time) ([]triage.IncidentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []triage.IncidentRecord
	for _, rec := range s.records {
		if rec.Expired(now) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VIN < out[j].VIN })
	return out, nil
}

// List returns every record ordered by vin.
func (s *Store) List(_ context.Context) ([]triage.IncidentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]triage.IncidentRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VIN < out[j].VIN })
	return out, nil
}
