package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus metrics for the triage subsystem.
type Metrics struct {
	SamplesTotal            *prometheus.CounterVec
	VerdictsTotal           *prometheus.CounterVec
	TransitionsTotal        *prometheus.CounterVec
	StoreConflictsTotal     prometheus.Counter
	NotificationsTotal      *prometheus.CounterVec
	NotifyExhaustedTotal    *prometheus.CounterVec
	WatchdogScansTotal      prometheus.Counter
	WatchdogEscalatedTotal  prometheus.Counter
	BatchDuration           prometheus.Histogram
	BatchSize               prometheus.Histogram
	ArchiveFailuresTotal    prometheus.Counter
	DismissalsTotal         *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SamplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_samples_total",
			Help: "Telemetry samples by processing result.",
		}, []string{"result"}),
		VerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_verdicts_total",
			Help: "Classifier verdicts by severity.",
		}, []string{"severity"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_transitions_total",
			Help: "Applied incident state transitions.",
		}, []string{"from", "to", "trigger"}),
		StoreConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guardian_store_conflicts_total",
			Help: "Conditional writes rejected by a concurrent writer.",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_notifications_total",
			Help: "Alert deliveries by channel and result.",
		}, []string{"channel", "result"}),
		NotifyExhaustedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_notify_retries_exhausted_total",
			Help: "Alert deliveries abandoned after the retry budget.",
		}, []string{"channel"}),
		WatchdogScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guardian_watchdog_scans_total",
			Help: "Watchdog scan passes.",
		}),
		WatchdogEscalatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guardian_watchdog_escalations_total",
			Help: "Warnings escalated by the watchdog.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "guardian_batch_duration_seconds",
			Help:    "Duration of telemetry batch processing.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~4s
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "guardian_batch_size",
			Help:    "Samples per telemetry batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 .. 512
		}),
		ArchiveFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guardian_archive_failures_total",
			Help: "Incident report uploads that failed.",
		}),
		DismissalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_dismissals_total",
			Help: "Dismissal requests by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.SamplesTotal,
		m.VerdictsTotal,
		m.TransitionsTotal,
		m.StoreConflictsTotal,
		m.NotificationsTotal,
		m.NotifyExhaustedTotal,
		m.WatchdogScansTotal,
		m.WatchdogEscalatedTotal,
		m.BatchDuration,
		m.BatchSize,
		m.ArchiveFailuresTotal,
		m.DismissalsTotal,
	)

	return m
}
