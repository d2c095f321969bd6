package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/guardian-iov/guardian/internal/triage"
	"github.com/guardian-iov/guardian/pkg/log"
)

// Retry wraps a notifier with exponential-backoff redelivery. An exhausted
// emergency delivery is a serious event: it is logged at error level and
// counted separately so it can be alerted on.
type Retry struct {
	next       triage.Notifier
	maxRetries uint64
	initial    time.Duration
	metrics    *triage.Metrics
	logger     log.Logger
}

var _ triage.Notifier = (*Retry)(nil)

// NewRetry wraps next with up to maxRetries redeliveries, starting at
// initial backoff. metrics may be nil when retry accounting is not wanted.
func NewRetry(next triage.Notifier, maxRetries uint64, initial time.Duration, metrics *triage.Metrics, logger log.Logger) *Retry {
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Retry{
		next:       next,
		maxRetries: maxRetries,
		initial:    initial,
		metrics:    metrics,
		logger:     logger,
	}
}

// Publish tries delivery up to 1+maxRetries times.
func (n *Retry) Publish(ctx context.Context, alert *triage.Alert) error {
	attempt := 0
	op := func() error {
		attempt++
		err := n.next.Publish(ctx, alert)
		if err != nil {
			n.logger.Warn("Alert delivery attempt failed",
				"vin", alert.VIN, "channel", alert.Channel, "attempt", attempt, "err", err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = n.initial
	eb.MaxElapsedTime = 0 // bounded by the retry count, not wall time

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, n.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if n.metrics != nil {
			n.metrics.NotifyExhaustedTotal.WithLabelValues(string(alert.Channel)).Inc()
		}
		if alert.Channel == triage.ChannelEmergency {
			n.logger.Error(err, "Emergency alert undelivered after exhausting retries",
				"vin", alert.VIN, "subject", alert.Subject, "attempts", attempt)
		}
		return fmt.Errorf("deliver %s alert for %s: %w", alert.Channel, alert.VIN, err)
	}
	return nil
}
