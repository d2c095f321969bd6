package triage

import "math"

// Thresholds are the sensor fusion cut-offs. Defaults are the deployment
// contract; the zero value is not usable.
type Thresholds struct {
	// GForce above which a sample is a crash candidate. Exactly this value
	// is still routine.
	GForce float64

	// Tilt is the absolute tilt angle (degrees) treated as a rollover.
	Tilt float64
}

// DefaultThresholds returns the standard Guardian cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{GForce: 8.0, Tilt: 60.0}
}

// Classifier turns one telemetry sample into a severity verdict.
// It is a pure function of the sample and the thresholds: no state, no I/O.
type Classifier struct {
	th Thresholds
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(th Thresholds) *Classifier {
	return &Classifier{th: th}
}

// Classify fuses impact force, airbag state, tilt and pulse into one verdict.
//
// The instant-escalation predicates are evaluated in priority order; the
// first match supplies the reason, because several may hold at once and
// responders see exactly one.
func (c *Classifier) Classify(s *TelemetrySample) Verdict {
	if s.GForce <= c.th.GForce {
		return Verdict{Severity: SeverityRoutine}
	}

	switch {
	case s.AirbagDeployed:
		return Verdict{Severity: SeverityCritical, Reason: ReasonAirbag}
	case math.Abs(s.TiltAngle) > c.th.Tilt:
		return Verdict{Severity: SeverityCritical, Reason: ReasonRollover}
	case s.Heartbeat == 0:
		return Verdict{Severity: SeverityCritical, Reason: ReasonUnconscious}
	}

	return Verdict{Severity: SeverityModerate, Reason: ReasonHighImpact}
}
