package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/guardian-iov/guardian/pkg/log"
)

// BatchReport summarizes one ProcessBatch call.
type BatchReport struct {
	Received  int
	Malformed int
	Rejected  int
	Applied   int
	Dropped   int
}

// Processor decodes raw telemetry payloads, classifies them and drives the
// resulting triggers through the state machine. Samples of distinct vehicles
// are processed concurrently; samples of the same vehicle stay in arrival
// order so a later reading cannot be overtaken by an earlier one.
type Processor struct {
	classifier *Classifier
	machine    *StateMachine
	metrics    *Metrics
	logger     log.Logger
	workers    int

	// now is swappable for tests.
	now func() time.Time
}

// NewProcessor builds a processor over the given classifier and state
// machine. workers bounds the number of vehicles processed concurrently.
func NewProcessor(classifier *Classifier, machine *StateMachine, metrics *Metrics, logger log.Logger, workers int) *Processor {
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Processor{
		classifier: classifier,
		machine:    machine,
		metrics:    metrics,
		logger:     logger,
		workers:    workers,
		now:        time.Now,
	}
}

// ProcessBatch handles one batch of raw JSON telemetry payloads. Malformed
// and invalid samples are counted and skipped; they never fail the batch.
func (p *Processor) ProcessBatch(ctx context.Context, payloads [][]byte) BatchReport {
	started := p.now()
	report := BatchReport{Received: len(payloads)}

	groups := make(map[string][]TelemetrySample)
	order := make([]string, 0, len(payloads))

	for _, raw := range payloads {
		var sample TelemetrySample
		if err := json.Unmarshal(raw, &sample); err != nil {
			report.Malformed++
			p.metrics.SamplesTotal.WithLabelValues("malformed").Inc()
			p.logger.Warn("Skipping malformed telemetry payload", "err", err)
			continue
		}
		if err := sample.Validate(); err != nil {
			report.Rejected++
			p.metrics.SamplesTotal.WithLabelValues("rejected").Inc()
			p.logger.Warn("Rejecting telemetry sample", "vin", sample.VIN, "err", err)
			continue
		}
		p.metrics.SamplesTotal.WithLabelValues("accepted").Inc()
		if _, seen := groups[sample.VIN]; !seen {
			order = append(order, sample.VIN)
		}
		groups[sample.VIN] = append(groups[sample.VIN], sample)
	}

	results := make([]batchResult, len(order))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, vin := range order {
		g.Go(func() error {
			results[i] = p.processVehicle(gctx, vin, groups[vin])
			return nil
		})
	}
	// Workers never return errors; failures are per sample.
	_ = g.Wait()

	for _, r := range results {
		report.Applied += r.applied
		report.Dropped += r.dropped
	}

	p.metrics.BatchSize.Observe(float64(report.Received))
	p.metrics.BatchDuration.Observe(p.now().Sub(started).Seconds())

	return report
}

// ProcessSample handles a single already-decoded sample.
func (p *Processor) ProcessSample(ctx context.Context, sample TelemetrySample) (*Transition, error) {
	if err := sample.Validate(); err != nil {
		p.metrics.SamplesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	p.metrics.SamplesTotal.WithLabelValues("accepted").Inc()

	verdict := p.classifier.Classify(&sample)
	p.metrics.VerdictsTotal.WithLabelValues(string(verdict.Severity)).Inc()

	return p.machine.ApplyVerdict(ctx, sample.VIN, verdict, p.now())
}

type batchResult struct {
	applied int
	dropped int
}

// processVehicle applies one vehicle's samples sequentially. A panic while
// handling one vehicle is contained so it cannot take down the batch.
func (p *Processor) processVehicle(ctx context.Context, vin string, samples []TelemetrySample) (result batchResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(fmt.Errorf("panic: %v", r), "Recovered while processing vehicle",
				"vin", vin, "stack", string(debug.Stack()))
		}
	}()

	for _, sample := range samples {
		verdict := p.classifier.Classify(&sample)
		p.metrics.VerdictsTotal.WithLabelValues(string(verdict.Severity)).Inc()

		tr, err := p.machine.ApplyVerdict(ctx, vin, verdict, p.now())
		if err != nil {
			p.logger.Error(err, "Failed to apply verdict", "vin", vin, "severity", verdict.Severity)
			continue
		}
		if tr.Dropped {
			result.dropped++
			continue
		}
		if tr.Applied {
			result.applied++
			if tr.From != tr.To {
				p.logger.Info("Incident transition",
					"vin", vin, "from", tr.From, "to", tr.To, "trigger", tr.Trigger, "reason", tr.Reason)
			}
		}
	}
	return result
}
