// Package sqlitestore persists incident records in a local sqlite database.
// The conditional-write contract is enforced in SQL: creates use an insert
// that yields on conflict, updates carry the observed version in the WHERE
// clause. Losing a race surfaces as zero affected rows, never as an error.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/guardian-iov/guardian/internal/triage"
)

const schema = `
CREATE TABLE IF NOT EXISTS incidents (
	vin             TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	reason          TEXT NOT NULL DEFAULT '',
	last_updated    INTEGER NOT NULL,
	expiry_deadline INTEGER,
	version         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incidents_warning_expiry
	ON incidents (status, expiry_deadline);
`

// Store is a sqlite-backed IncidentStore.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

var _ triage.IncidentStore = (*Store)(nil)

// New opens (and if needed creates) the database at path. timeout bounds
// every individual store call.
func New(path string, timeout time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}

	// sqlite allows one writer at a time; serializing through a single
	// connection avoids SQLITE_BUSY churn under concurrent workers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create incidents schema: %w", err)
	}

	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Store{db: db, timeout: timeout}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves the record for vin.
func (s *Store) Get(ctx context.Context, vin string) (*triage.IncidentRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT vin, status, reason, last_updated, expiry_deadline, version
		 FROM incidents WHERE vin = ?`, vin)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query incident %s: %w", vin, err)
	}
	return rec, true, nil
}

// ConditionalPut writes rec guarded by prev, per the IncidentStore contract.
func (s *Store) ConditionalPut(ctx context.Context, rec *triage.IncidentRecord, prev *triage.IncidentRecord) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var expiry sql.NullInt64
	if rec.ExpiryDeadline != nil {
		expiry = sql.NullInt64{Int64: rec.ExpiryDeadline.UnixNano(), Valid: true}
	}

	var (
		res     sql.Result
		version int64
		err     error
	)
	if prev == nil {
		version = 1
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO incidents (vin, status, reason, last_updated, expiry_deadline, version)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(vin) DO NOTHING`,
			rec.VIN, string(rec.Status), rec.Reason, rec.LastUpdated.UnixNano(), expiry, version)
	} else {
		version = prev.Version + 1
		res, err = s.db.ExecContext(ctx,
			`UPDATE incidents
			 SET status = ?, reason = ?, last_updated = ?, expiry_deadline = ?, version = ?
			 WHERE vin = ? AND version = ?`,
			string(rec.Status), rec.Reason, rec.LastUpdated.UnixNano(), expiry, version,
			rec.VIN, prev.Version)
	}
	if err != nil {
		return false, fmt.Errorf("write incident %s: %w", rec.VIN, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected for %s: %w", rec.VIN, err)
	}
	if n == 0 {
		return false, nil
	}

	rec.Version = version
	return true, nil
}

// ScanExpiredWarnings uses the (status, expiry_deadline) index, so the sweep
// cost tracks the number of live warnings, not the fleet size.
func (s *Store) ScanExpiredWarnings(ctx context.Context, now time.Time) ([]triage.IncidentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT vin, status, reason, last_updated, expiry_deadline, version
		 FROM incidents
		 WHERE status = ? AND expiry_deadline IS NOT NULL AND expiry_deadline < ?
		 ORDER BY vin`,
		string(triage.StatusWarning), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("scan expired warnings: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// List returns every incident record ordered by vin.
func (s *Store) List(ctx context.Context) ([]triage.IncidentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT vin, status, reason, last_updated, expiry_deadline, version
		 FROM incidents ORDER BY vin`)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*triage.IncidentRecord, error) {
	var (
		rec     triage.IncidentRecord
		status  string
		updated int64
		expiry  sql.NullInt64
	)
	if err := row.Scan(&rec.VIN, &status, &rec.Reason, &updated, &expiry, &rec.Version); err != nil {
		return nil, err
	}
	rec.Status = triage.IncidentStatus(status)
	rec.LastUpdated = time.Unix(0, updated).UTC()
	if expiry.Valid {
		t := time.Unix(0, expiry.Int64).UTC()
		rec.ExpiryDeadline = &t
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]triage.IncidentRecord, error) {
	var out []triage.IncidentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident row: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}
