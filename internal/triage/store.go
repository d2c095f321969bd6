package triage

import (
	"context"
	"time"
)

// IncidentStore is the persistence interface for incident records. The store
// is the single source of truth for incident status; no in-memory cache is
// authoritative across processes.
type IncidentStore interface {
	// Get retrieves the current record for a vin. The bool reports whether
	// a record exists; absence is equivalent to NORMAL.
	Get(ctx context.Context, vin string) (*IncidentRecord, bool, error)

	// ConditionalPut writes rec for rec.VIN, guarded by the caller's view
	// of the prior record. prev == nil means "create only if absent";
	// otherwise the write succeeds only while the stored Version still
	// equals prev.Version. Returns (false, nil) when the guard fails;
	// contention is expected and benign, not an error. On success the
	// implementation assigns rec.Version.
	ConditionalPut(ctx context.Context, rec *IncidentRecord, prev *IncidentRecord) (bool, error)

	// ScanExpiredWarnings returns every record that is WARNING with an
	// expiry deadline before now. Implementations index live warnings by
	// deadline rather than scanning the whole fleet.
	ScanExpiredWarnings(ctx context.Context, now time.Time) ([]IncidentRecord, error)

	// List returns every incident record, ordered by vin. Serves the
	// operator surface, not the hot path.
	List(ctx context.Context) ([]IncidentRecord, error)
}
