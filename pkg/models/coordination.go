package models

import "strings"

// Priority is the urgency attached to a coordinated subtask.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// ParsePriority normalises free text to a known priority.
// Unknown or empty values map to PriorityMedium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(s), "[]*.")) {
	case "high", "h", "critical", "urgent":
		return PriorityHigh
	case "low", "l":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Valid returns true if the priority is one of High, Medium or Low.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Subtask is one unit of a coordinated task.
type Subtask struct {
	// Description is what the instance should accomplish.
	Description string `json:"description"`
	// Scope is the free-text file or module boundary for the work.
	Scope string `json:"scope"`
	// Priority is the relative urgency of the subtask.
	Priority Priority `json:"priority"`
}

// CoordinationRequest describes a task to be fanned out to new instances.
type CoordinationRequest struct {
	// TaskDescription is the original task text.
	TaskDescription string `json:"task_description"`
	// NumInstances is the number of instances to spawn (always >= 1).
	NumInstances int `json:"num_instances"`
	// WorkingDirectory is where the new instances run.
	WorkingDirectory string `json:"working_directory"`
	// InitiatingInstanceID is the instance whose message triggered coordination.
	InitiatingInstanceID string `json:"initiating_instance_id"`
	// Subtasks holds one entry per unit of work.
	Subtasks []Subtask `json:"subtasks"`
	// Fallback is set when analysis failed or timed out and the task
	// continues on the initiating instance.
	Fallback bool `json:"fallback,omitempty"`
	// FallbackReason is the informational text for the fallback.
	FallbackReason string `json:"fallback_reason,omitempty"`
}
