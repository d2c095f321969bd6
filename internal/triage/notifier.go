package triage

import (
	"context"
	"fmt"
)

// Channel routes an alert to emergency responders or to the occupant.
type Channel string

const (
	// ChannelEmergency pages responders. Delivery failures here are never
	// silently swallowed.
	ChannelEmergency Channel = "emergency"

	// ChannelWarning notifies the occupant with a dismissal link.
	ChannelWarning Channel = "warning"
)

// Alert is one notification to deliver. Delivery is at-least-once;
// duplicates are idempotent on the human side.
type Alert struct {
	Channel Channel `json:"channel"`
	VIN     string  `json:"vin"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
}

// Notifier delivers alerts to a channel. Implementations live in
// internal/notifier.
type Notifier interface {
	Publish(ctx context.Context, alert *Alert) error
}

// EmergencyAlert builds the responder page for an escalation.
func EmergencyAlert(vin, message string) *Alert {
	return &Alert{
		Channel: ChannelEmergency,
		VIN:     vin,
		Subject: fmt.Sprintf("URGENT: Guardian Emergency (%s)", vin),
		Body:    message + "\n\nDispatching services to your GPS coordinates.",
	}
}

// WarningAlert builds the occupant safety check. dismissBaseURL is the
// externally reachable dismissal endpoint; the vin parameter makes the link
// usable exactly once per warning window.
func WarningAlert(vin, dismissBaseURL string) *Alert {
	return &Alert{
		Channel: ChannelWarning,
		VIN:     vin,
		Subject: fmt.Sprintf("Guardian Safety Alert (%s)", vin),
		Body:    fmt.Sprintf("WARNING: %s\n\nCLICK TO DISMISS: %s?vin=%s", ReasonHighImpact, dismissBaseURL, vin),
	}
}

// CodeRed formats the emergency message for a classifier-driven escalation.
func CodeRed(reason string) string {
	return fmt.Sprintf("CODE RED: %s!", reason)
}

// UnresponsiveMessage is the emergency message for a watchdog escalation.
const UnresponsiveMessage = "AUTOMATIC ESCALATION: Occupant unresponsive to safety check."
