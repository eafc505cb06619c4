package models

import "time"

// ActivityState represents what a Claude instance is currently doing.
type ActivityState string

const (
	// StateAvailable indicates the instance is idle and ready for work.
	StateAvailable ActivityState = "available"
	// StateWorking indicates the instance is streaming a response.
	StateWorking ActivityState = "working_on_task"
	// StateStallCheckPending indicates a stall was detected and analysis is running.
	StateStallCheckPending ActivityState = "stall_check_pending"
	// StateCoordinating indicates a coordination decision is in flight.
	StateCoordinating ActivityState = "coordination_in_progress"
)

// Valid returns true if the state is a known value.
func (s ActivityState) Valid() bool {
	switch s {
	case StateAvailable, StateWorking, StateStallCheckPending, StateCoordinating:
		return true
	default:
		return false
	}
}

// Label returns a short human readable label for display.
func (s ActivityState) Label() string {
	switch s {
	case StateAvailable:
		return "Idle"
	case StateWorking:
		return "Processing"
	case StateStallCheckPending:
		return "Stall check"
	case StateCoordinating:
		return "Coordinating"
	default:
		return string(s)
	}
}

// Sender identifies who authored a transcript message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
	SenderAnalyzer  Sender = "analyzer"
	SenderTool      Sender = "tool"
)

// Message is one entry in an instance transcript.
type Message struct {
	// Timestamp is when the message was created.
	Timestamp time.Time `json:"timestamp"`
	// Sender is the author of the message.
	Sender Sender `json:"sender"`
	// Content is the message body. Streaming responses extend it in place.
	Content string `json:"content"`
	// IsThinking marks a reasoning-only segment.
	IsThinking bool `json:"is_thinking,omitempty"`
	// IsCollapsed is a display hint only.
	IsCollapsed bool `json:"is_collapsed,omitempty"`
}

// InstanceView is a read-only copy of an instance for rendering and listing.
type InstanceView struct {
	ID                     string        `json:"id"`
	Name                   string        `json:"name"`
	WorkingDirectory       string        `json:"working_directory"`
	State                  ActivityState `json:"state"`
	LastActivityAt         time.Time     `json:"last_activity_at"`
	StallCheckSent         bool          `json:"stall_check_sent"`
	CoordinationInProgress bool          `json:"coordination_in_progress"`
	SessionID              string        `json:"session_id,omitempty"`
	PID                    int           `json:"pid,omitempty"`
	Closed                 bool          `json:"closed"`
	Transcript             []Message     `json:"transcript"`
	ToolAttempts           []string      `json:"tool_attempts,omitempty"`
}

// SessionView is the snapshot handed to the rendering collaborator.
type SessionView struct {
	// SessionID identifies this orchestrator session.
	SessionID string `json:"session_id"`
	// Instances lists all instances in display order.
	Instances []InstanceView `json:"instances"`
	// Current is the index of the focused instance, or -1 when empty.
	Current int `json:"current"`
	// PendingCoordinations counts coordination decisions still in flight.
	PendingCoordinations int `json:"pending_coordinations"`
	// AutoMode reports whether automatic interventions are enabled.
	AutoMode bool `json:"auto_mode"`
	// CoordinationEnabled reports whether automatic coordination is enabled.
	CoordinationEnabled bool `json:"coordination_enabled"`
	// TakenAt is when the snapshot was taken.
	TakenAt time.Time `json:"taken_at"`
}
