// Package notifier provides the alert delivery backends: MQTT alert topics,
// an optional HTTP webhook mirror, retry wrapping and fan-out composition.
package notifier

import (
	"context"
	"errors"

	"github.com/guardian-iov/guardian/internal/triage"
)

// Multi fans one alert out to several notifiers. Every target is attempted
// even when an earlier one fails; errors are joined.
type Multi struct {
	targets []triage.Notifier
}

var _ triage.Notifier = (*Multi)(nil)

// NewMulti composes the given notifiers. Nil entries are skipped.
func NewMulti(targets ...triage.Notifier) *Multi {
	m := &Multi{}
	for _, t := range targets {
		if t != nil {
			m.targets = append(m.targets, t)
		}
	}
	return m
}

// Publish delivers to every target.
func (m *Multi) Publish(ctx context.Context, alert *triage.Alert) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.Publish(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
