// Package mqtt ingests fleet telemetry from the broker and feeds it into
// the triage processor.
package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/guardian-iov/guardian/internal/triage"
	"github.com/guardian-iov/guardian/pkg/log"
	"github.com/guardian-iov/guardian/pkg/mqtt"
	"github.com/guardian-iov/guardian/pkg/mqtt/topic"
)

const (
	telemetryQoS    = 1
	teardownTimeout = 5 * time.Second
)

// Server subscribes to the fleet telemetry tree and forwards every payload
// to the processor. Vehicles publish either a single sample or a JSON array
// batch; both are accepted.
type Server struct {
	client    mqtt.Client
	topics    *topic.Builder
	processor *triage.Processor
	logger    log.Logger
}

// New creates a telemetry ingress over an already configured client.
func New(client mqtt.Client, topics *topic.Builder, processor *triage.Processor, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		client:    client,
		topics:    topics,
		processor: processor,
		logger:    logger,
	}
}

// Run subscribes and then blocks until the context is canceled. The client
// re-subscribes on reconnect, so a broker restart needs no action here.
func (s *Server) Run(ctx context.Context) error {
	if err := s.client.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("await broker connection: %w", err)
	}

	filter := s.topics.TelemetryWildcard()
	if err := s.client.Subscribe(ctx, filter, telemetryQoS, s.handleTelemetry); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	s.logger.Info("Telemetry ingress subscribed", "filter", filter)

	<-ctx.Done()

	unsubCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := s.client.Unsubscribe(unsubCtx, filter); err != nil {
		s.logger.Warn("Unsubscribe on shutdown failed", "filter", filter, "err", err)
	}
	return ctx.Err()
}

func (s *Server) handleTelemetry(ctx context.Context, msgTopic string, payload []byte) {
	payloads := splitPayload(payload)
	report := s.processor.ProcessBatch(ctx, payloads)

	if report.Malformed > 0 || report.Rejected > 0 {
		s.logger.Warn("Telemetry batch had bad samples",
			"topic", msgTopic,
			"received", report.Received,
			"malformed", report.Malformed,
			"rejected", report.Rejected)
	}
	s.logger.Debug("Processed telemetry batch",
		"topic", msgTopic, "received", report.Received, "applied", report.Applied)
}

// splitPayload turns the raw message into individual sample payloads. An
// array payload is unpacked; anything else is passed through as a single
// sample and judged by the decoder downstream.
func splitPayload(payload []byte) [][]byte {
	trimmed := bytes.TrimLeft(payload, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return [][]byte{payload}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return [][]byte{payload}
	}

	out := make([][]byte, 0, len(items))
	for _, item := range items {
		out = append(out, []byte(item))
	}
	return out
}
