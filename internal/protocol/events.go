// Package protocol decodes the line-delimited JSON stream emitted by Claude
// subprocesses into typed events.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the variant of a decoded Event.
type Kind string

const (
	KindStart     Kind = "start"
	KindTextDelta Kind = "text_delta"
	KindToolUse   Kind = "tool_use"
	KindEnd       Kind = "end"
	KindError     Kind = "error"
)

// Event is a decoded protocol event. The set of implementations is closed:
// Start, TextDelta, ToolUse, End and Error.
type Event interface {
	Kind() Kind
	sealed()
}

// Start opens a new streamed response.
type Start struct {
	// Thinking is true when the opening block is a reasoning segment.
	Thinking bool
	// SessionID is the Claude session reported by an init event, if any.
	SessionID string
}

// TextDelta carries a chunk of streamed text.
type TextDelta struct {
	Text     string
	Thinking bool
}

// ToolUse reports a tool invocation by the assistant.
type ToolUse struct {
	Name   string
	Params json.RawMessage
}

// End closes the current stream.
type End struct {
	// Result is the final result text when the subprocess reports one.
	Result string
}

// Error closes the current stream with a failure.
type Error struct {
	Message string
}

func (Start) Kind() Kind     { return KindStart }
func (TextDelta) Kind() Kind { return KindTextDelta }
func (ToolUse) Kind() Kind   { return KindToolUse }
func (End) Kind() Kind       { return KindEnd }
func (Error) Kind() Kind     { return KindError }

func (Start) sealed()     {}
func (TextDelta) sealed() {}
func (ToolUse) sealed()   {}
func (End) sealed()       {}
func (Error) sealed()     {}

// IsTerminal reports whether the event closes the current stream.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case End, Error:
		return true
	default:
		return false
	}
}

// DecodeError is returned for lines that cannot be decoded.
// Callers log it and keep reading; it is never fatal to the stream.
type DecodeError struct {
	Line []byte
	Err  error
}

func (e *DecodeError) Error() string {
	preview := string(e.Line)
	if len(preview) > 120 {
		preview = preview[:117] + "..."
	}
	return fmt.Sprintf("decode stream line %q: %v", preview, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
