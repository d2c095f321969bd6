// Package engine assembles the triage service: store, broker client, alert
// pipeline, telemetry ingress, watchdog and the HTTP surface, run together
// under one lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/guardian-iov/guardian/internal/archive"
	"github.com/guardian-iov/guardian/internal/notifier"
	httpserver "github.com/guardian-iov/guardian/internal/server/http"
	mqttserver "github.com/guardian-iov/guardian/internal/server/mqtt"
	"github.com/guardian-iov/guardian/internal/triage"
	"github.com/guardian-iov/guardian/internal/triage/memstore"
	"github.com/guardian-iov/guardian/internal/triage/sqlitestore"
	"github.com/guardian-iov/guardian/pkg/log"
	"github.com/guardian-iov/guardian/pkg/mqtt"
	"github.com/guardian-iov/guardian/pkg/mqtt/topic"
	"github.com/guardian-iov/guardian/pkg/options"
)

// Config carries every option block the engine needs.
type Config struct {
	Mqtt   *options.MqttOptions
	Http   *options.HttpOptions
	Store  *options.StoreOptions
	S3     *options.S3Options
	Triage *options.TriageOptions
	Notify *options.NotifyOptions
}

// Engine is the assembled triage service.
type Engine struct {
	cfg      *Config
	logger   log.Logger
	registry *prometheus.Registry
	metrics  *triage.Metrics
	settings *triage.Settings

	client   mqtt.Client
	store    triage.IncidentStore
	archiver *archive.Archiver
	closers  []io.Closer
	machine  *triage.StateMachine
	watchdog *triage.Watchdog
	ingress  *mqttserver.Server
	httpSrv  *httpserver.Server
}

// New wires the engine from its configuration. Nothing talks to the network
// until Run.
func New(cfg *Config, logger log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	e.metrics = triage.NewMetrics(e.registry)
	e.settings = triage.NewSettings(lifecycleFromOptions(cfg.Triage))

	if err := e.buildStore(); err != nil {
		return nil, err
	}
	if err := e.buildPipeline(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) buildStore() error {
	switch e.cfg.Store.Backend {
	case "memory":
		e.store = memstore.New()
	case "sqlite":
		s, err := sqlitestore.New(e.cfg.Store.Path, e.cfg.Store.Timeout)
		if err != nil {
			return fmt.Errorf("open incident store: %w", err)
		}
		e.store = s
		e.closers = append(e.closers, s)
	default:
		return fmt.Errorf("unknown store backend %q", e.cfg.Store.Backend)
	}
	e.logger.Info("Incident store ready", "backend", e.cfg.Store.Backend)
	return nil
}

func (e *Engine) buildPipeline() error {
	client, err := mqtt.NewClient(e.cfg.Mqtt.ToClientConfig())
	if err != nil {
		return fmt.Errorf("create mqtt client: %w", err)
	}
	e.client = client

	topics := topic.NewBuilder(e.cfg.Mqtt.TopicRoot)

	var alertTargets []triage.Notifier
	alertTargets = append(alertTargets,
		notifier.NewMQTT(client, topics, e.cfg.Notify.PublishTimeout, e.logger.WithName("notifier.mqtt")))
	if e.cfg.Notify.WebhookURL != "" {
		alertTargets = append(alertTargets,
			notifier.NewWebhook(e.cfg.Notify.WebhookURL, e.cfg.Notify.PublishTimeout))
	}
	alerts := notifier.NewRetry(
		notifier.NewMulti(alertTargets...),
		e.cfg.Notify.MaxRetries,
		e.cfg.Notify.InitialBackoff,
		e.metrics,
		e.logger.WithName("notifier"),
	)

	e.machine = triage.NewStateMachine(
		e.store, alerts, e.settings, e.metrics,
		e.logger.WithName("statemachine"), e.cfg.Http.DismissBaseURL)

	if e.cfg.S3.Endpoint != "" {
		arch, err := archive.New(e.cfg.S3, e.metrics, e.logger.WithName("archive"))
		if err != nil {
			return fmt.Errorf("create incident archiver: %w", err)
		}
		e.machine.SetEscalationHook(arch.Hook())
		e.archiver = arch
	}

	classifier := triage.NewClassifier(triage.Thresholds{
		GForce: e.cfg.Triage.GForceThreshold,
		Tilt:   e.cfg.Triage.TiltThreshold,
	})
	processor := triage.NewProcessor(classifier, e.machine, e.metrics,
		e.logger.WithName("processor"), e.cfg.Triage.Workers)

	e.watchdog = triage.NewWatchdog(e.store, e.machine, e.settings, e.metrics,
		e.logger.WithName("watchdog"))
	e.ingress = mqttserver.New(client, topics, processor, e.logger.WithName("ingress"))
	e.httpSrv = httpserver.New(e.cfg.Http.Addr, e.machine, e.store, e.metrics,
		e.registry, e.logger.WithName("http"))

	return nil
}

// Run connects to the broker and serves until the context is canceled.
func (e *Engine) Run(ctx context.Context) error {
	defer e.close()

	if err := e.client.Start(ctx); err != nil {
		return fmt.Errorf("start mqtt client: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.client.Disconnect(disconnectCtx)
	}()

	if e.archiver != nil {
		if err := e.archiver.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("prepare incident archive: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.ingress.Run(gctx) })
	g.Go(func() error { return e.watchdog.Run(gctx) })
	g.Go(func() error { return e.httpSrv.Run(gctx) })

	e.logger.Info("Guardian triage engine running",
		"broker", e.cfg.Mqtt.Broker,
		"topicRoot", e.cfg.Mqtt.TopicRoot,
		"httpAddr", e.cfg.Http.Addr)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// UpdateLifecycle swaps the reloadable lifecycle knobs. Invalid values are
// rejected wholesale so a bad reload cannot half-apply.
func (e *Engine) UpdateLifecycle(opts *options.TriageOptions) error {
	if errs := opts.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid triage options on reload: %v", errs)
	}
	cfg := lifecycleFromOptions(opts)
	e.settings.Store(cfg)
	e.logger.Info("Lifecycle configuration reloaded",
		"warningWindow", cfg.WarningWindow,
		"watchdogInterval", cfg.WatchdogInterval,
		"rearm", cfg.Rearm)
	return nil
}

func (e *Engine) close() {
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			e.logger.Warn("Close failed on shutdown", "err", err)
		}
	}
}

func lifecycleFromOptions(opts *options.TriageOptions) triage.LifecycleConfig {
	cfg := triage.LifecycleConfig{
		WarningWindow:    opts.WarningWindow,
		WatchdogInterval: opts.WatchdogInterval,
		Rearm:            triage.RearmPolicy(opts.RearmPolicy),
	}
	if cfg.Rearm != triage.RearmHold {
		cfg.Rearm = triage.RearmReset
	}
	return cfg
}
