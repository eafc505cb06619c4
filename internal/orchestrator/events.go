package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventInstanceSpawned indicates an instance joined the registry.
	EventInstanceSpawned EventType = "instance_spawned"
	// EventInstanceClosed indicates an instance was closed and removed.
	EventInstanceClosed EventType = "instance_closed"
	// EventSpawnFailed indicates an instance subprocess could not start.
	EventSpawnFailed EventType = "spawn_failed"
	// EventTurnFinished indicates an instance finished a turn.
	EventTurnFinished EventType = "turn_finished"
	// EventCoordinationStarted indicates a coordination decision is in flight.
	EventCoordinationStarted EventType = "coordination_started"
	// EventCoordinationFinished indicates a coordination decision was applied.
	EventCoordinationFinished EventType = "coordination_finished"
	// EventStallDetected indicates an instance went quiet past the threshold.
	EventStallDetected EventType = "stall_detected"
	// EventStallIntervention indicates a stall intervention finished.
	EventStallIntervention EventType = "stall_intervention"
)

// Event represents an event emitted by the orchestrator.
// These events are used to update the TUI status line.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// InstanceID is the id of the related instance, if applicable.
	InstanceID string
	// InstanceName is the name of the related instance, if applicable.
	InstanceName string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
