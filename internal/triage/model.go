package triage

import (
	"errors"
	"fmt"
	"time"
)

// IncidentStatus tracks where a vehicle is in the emergency lifecycle.
type IncidentStatus string

const (
	// StatusNormal means no active emergency.
	StatusNormal IncidentStatus = "NORMAL"

	// StatusWarning means a high-impact event is waiting for the occupant
	// to confirm they are okay.
	StatusWarning IncidentStatus = "WARNING"

	// StatusEscalated means emergency responders have been notified.
	StatusEscalated IncidentStatus = "ESCALATED"

	// StatusResolved means the occupant dismissed a warning. Terminal until
	// the next telemetry event reopens the record.
	StatusResolved IncidentStatus = "RESOLVED"
)

// Severity is the classifier's output level, independent of stored state.
type Severity string

const (
	// SeverityRoutine is a normal health ping.
	SeverityRoutine Severity = "ROUTINE"

	// SeverityModerate is a high-impact event with a conscious occupant.
	SeverityModerate Severity = "MODERATE"

	// SeverityCritical demands immediate escalation.
	SeverityCritical Severity = "CRITICAL"
)

// Classifier reason strings surfaced in emergency notifications. These are
// part of the alert contract with responders; do not reword casually.
const (
	ReasonAirbag       = "Airbag Deployed"
	ReasonRollover     = "Rollover Detected"
	ReasonUnconscious  = "Unconscious Occupant"
	ReasonHighImpact   = "High impact detected. Are you okay?"
	ReasonUnresponsive = "unresponsive to safety check"
)

// Verdict is the classifier's decision for one telemetry sample.
type Verdict struct {
	Severity Severity
	Reason   string
}

// TelemetrySample is one timestamped sensor reading from a vehicle.
// Produced once, consumed once, never mutated.
type TelemetrySample struct {
	VIN            string    `json:"vin"`
	GForce         float64   `json:"gForce"`
	Speed          float64   `json:"speed"`
	Heartbeat      int       `json:"heartbeat"`
	TiltAngle      float64   `json:"tiltAngle"`
	AirbagDeployed bool      `json:"airbagDeployed"`
	Timestamp      time.Time `json:"timestamp"`
}

// ErrInvalidSample marks telemetry rejected at the ingestion boundary.
var ErrInvalidSample = errors.New("invalid telemetry sample")

// Validate rejects samples the classifier must never see: a missing vin or a
// negative heartbeat (undefined sensor input). Rejecting here keeps the
// classifier's domain clean.
func (s *TelemetrySample) Validate() error {
	if s.VIN == "" {
		return fmt.Errorf("%w: missing vin", ErrInvalidSample)
	}
	if s.Heartbeat < 0 {
		return fmt.Errorf("%w: negative heartbeat %d for vin %s", ErrInvalidSample, s.Heartbeat, s.VIN)
	}
	return nil
}

// IncidentRecord is the durable per-vehicle emergency status. At most one
// live record exists per vin; Version implements optimistic concurrency in
// the store.
type IncidentRecord struct {
	VIN         string         `json:"vin"`
	Status      IncidentStatus `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	LastUpdated time.Time      `json:"lastUpdated"`

	// ExpiryDeadline is present only while Status is WARNING: the instant
	// after which the watchdog escalates.
	ExpiryDeadline *time.Time `json:"expiryDeadline,omitempty"`

	// Version increments on every successful write. Zero means "not yet
	// stored".
	Version int64 `json:"version"`
}

// Expired reports whether a WARNING record's dismissal window has passed.
func (r *IncidentRecord) Expired(now time.Time) bool {
	return r.Status == StatusWarning && r.ExpiryDeadline != nil && r.ExpiryDeadline.Before(now)
}

// Active reports whether the record represents an in-flight emergency.
func (r *IncidentRecord) Active() bool {
	return r.Status == StatusWarning || r.Status == StatusEscalated
}
