package topic

import (
	"fmt"
	"strings"
)

// Constants defining the standard topic segments.
// These act as the protocol contract between the fleet (producers) and the
// triage engine. Changing these values will strand in-flight telemetry.
const (
	// SuffixTelemetry is the upstream telemetry topic (Vehicle -> Engine).
	// Structure: {root}/telemetry/{vin}
	SuffixTelemetry = "telemetry"

	// SuffixAlertEmergency is the downstream emergency alert topic.
	// Structure: {root}/alerts/emergency/{vin}
	SuffixAlertEmergency = "alerts/emergency"

	// SuffixAlertWarning is the downstream warning alert topic.
	// Structure: {root}/alerts/warning/{vin}
	SuffixAlertWarning = "alerts/warning"
)

// Builder encapsulates the logic for constructing MQTT topic strings.
// It keeps topic layout decisions in one place.
type Builder struct {
	// root is the base namespace for all topics (e.g., "guardian/v1").
	root string
}

// NewBuilder creates a new Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Telemetry returns the topic a specific vehicle publishes samples on.
// Direction: Vehicle -> Engine
func (b *Builder) Telemetry(vin string) string {
	return b.build(SuffixTelemetry, vin)
}

// TelemetryWildcard returns the filter the engine subscribes with to receive
// telemetry from the whole fleet.
// Result: {root}/telemetry/+
func (b *Builder) TelemetryWildcard() string {
	return b.build(SuffixTelemetry, Wildcard)
}

// AlertEmergency returns the emergency channel topic for a vehicle.
func (b *Builder) AlertEmergency(vin string) string {
	return b.build(SuffixAlertEmergency, vin)
}

// AlertWarning returns the warning channel topic for a vehicle.
func (b *Builder) AlertWarning(vin string) string {
	return b.build(SuffixAlertWarning, vin)
}

// VINFromTelemetry extracts the vin (partition key) from a telemetry topic.
// Returns "" when the topic does not belong to the telemetry tree.
func (b *Builder) VINFromTelemetry(topic string) string {
	prefix := b.root + "/" + SuffixTelemetry + "/"
	if !strings.HasPrefix(topic, prefix) {
		return ""
	}
	vin := strings.TrimPrefix(topic, prefix)
	if strings.Contains(vin, "/") {
		return ""
	}
	return vin
}

// build is a private helper to construct the final topic string.
// Pattern: {root}/{suffix}/{identifier}
func (b *Builder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
