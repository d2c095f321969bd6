// Package triage contains the Guardian crash triage core: the severity
// classifier, the per-vehicle incident state machine, the telemetry stream
// processor and the escalation watchdog. Persistence and alert delivery are
// injected behind the IncidentStore and Notifier interfaces.
package triage
