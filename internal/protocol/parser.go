package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds a single JSON line. Tool inputs can be large.
const maxLineSize = 1024 * 1024

var errNoType = errors.New("missing type discriminator")

// ErrLineTooLong is wrapped by the *DecodeError reported for a line that
// exceeds the line limit.
var ErrLineTooLong = errors.New("stream line too long")

// rawLine is the union of fields used by the supported wire shapes.
type rawLine struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Text      string          `json:"text,omitempty"`
	Thinking  *bool           `json:"thinking,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    *string         `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`

	ContentBlock *contentBlock `json:"content_block,omitempty"`
	Delta        *delta        `json:"delta,omitempty"`
}

type contentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
}

type delta struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

type assistantMessage struct {
	Content []contentBlock `json:"content"`
}

// Parse decodes one line of subprocess output.
//
// It returns (nil, nil) for lines that decode cleanly but carry no event
// (blank lines, pings, user echoes). Malformed lines return a *DecodeError.
func Parse(line []byte) (Event, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}

	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, &DecodeError{Line: line, Err: err}
	}
	if raw.Type == "" {
		return nil, &DecodeError{Line: line, Err: errNoType}
	}

	ev, err := raw.event()
	if err != nil {
		return nil, &DecodeError{Line: line, Err: err}
	}
	return ev, nil
}

func (r *rawLine) event() (Event, error) {
	switch r.Type {
	// Native delta protocol.
	case "start":
		return Start{Thinking: r.Thinking != nil && *r.Thinking, SessionID: r.SessionID}, nil
	case "text_delta", "assistant_text_delta":
		return TextDelta{Text: r.Text}, nil
	case "thinking_delta", "assistant_thinking_delta":
		return TextDelta{Text: r.Text, Thinking: true}, nil
	case "tool_use":
		params := r.Input
		if len(params) == 0 {
			params = r.Params
		}
		if r.Name == "" {
			return nil, errors.New("tool_use without name")
		}
		return ToolUse{Name: r.Name, Params: params}, nil
	case "end":
		return End{}, nil
	case "error":
		return Error{Message: r.errorMessage()}, nil

	// Claude Code --output-format stream-json.
	case "system":
		if r.Subtype == "init" {
			return Start{SessionID: r.SessionID}, nil
		}
		return nil, nil
	case "assistant":
		return r.assistantEvent()
	case "user":
		return nil, nil
	case "result":
		result := ""
		if r.Result != nil {
			result = *r.Result
		}
		if r.IsError {
			if result == "" {
				result = "subprocess reported an error result"
			}
			return Error{Message: result}, nil
		}
		return End{Result: result}, nil

	// Anthropic API streaming events.
	case "message_start":
		return Start{}, nil
	case "content_block_start":
		if r.ContentBlock != nil {
			switch r.ContentBlock.Type {
			case "thinking":
				return Start{Thinking: true}, nil
			case "tool_use":
				return ToolUse{Name: r.ContentBlock.Name, Params: r.ContentBlock.Input}, nil
			}
		}
		return nil, nil
	case "content_block_delta":
		if r.Delta == nil {
			return nil, errors.New("content_block_delta without delta")
		}
		switch r.Delta.Type {
		case "text_delta":
			return TextDelta{Text: r.Delta.Text}, nil
		case "thinking_delta":
			return TextDelta{Text: r.Delta.Thinking, Thinking: true}, nil
		}
		return nil, nil
	case "message_stop":
		return End{}, nil
	case "ping", "content_block_stop", "message_delta":
		return nil, nil
	}

	return nil, fmt.Errorf("unknown event type %q", r.Type)
}

// assistantEvent maps the first content block of a Claude Code assistant
// message. Claude Code emits one assistant line per content block.
func (r *rawLine) assistantEvent() (Event, error) {
	if len(r.Message) == 0 {
		return nil, errors.New("assistant event without message")
	}
	var msg assistantMessage
	if err := json.Unmarshal(r.Message, &msg); err != nil {
		return nil, fmt.Errorf("assistant message: %w", err)
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			return TextDelta{Text: block.Text}, nil
		case "thinking":
			text := block.Thinking
			if text == "" {
				text = block.Text
			}
			return TextDelta{Text: text, Thinking: true}, nil
		case "tool_use":
			return ToolUse{Name: block.Name, Params: block.Input}, nil
		}
	}
	return nil, nil
}

// errorMessage extracts the message from the error field, which may be a
// string or an object with a message field.
func (r *rawLine) errorMessage() string {
	for _, field := range []json.RawMessage{r.Error, r.Message} {
		if len(field) == 0 {
			continue
		}
		var s string
		if err := json.Unmarshal(field, &s); err == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(field, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
	}
	if r.Text != "" {
		return r.Text
	}
	return "unknown error"
}

// Scanner reads newline-delimited events from a reader.
// Lines longer than the line limit are discarded and reported as a
// *DecodeError wrapping ErrLineTooLong; reading continues with the next line.
type Scanner struct {
	r       *bufio.Reader
	max     int
	buf     []byte
	ev      Event
	err     error
	readErr error
}

// NewScanner creates a Scanner with a line limit large enough for tool payloads.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64*1024), max: maxLineSize}
}

// Next advances to the next line. It returns false at end of input.
// After Next returns true, exactly one of Event and DecodeErr is meaningful;
// both are nil for lines that carry no event.
func (s *Scanner) Next() bool {
	s.ev, s.err = nil, nil
	if s.readErr != nil {
		return false
	}

	line, overflow, err := s.readLine()
	if err != nil {
		s.readErr = err
		if len(line) == 0 && !overflow {
			return false
		}
	}

	if overflow {
		preview := line
		if len(preview) > 128 {
			preview = preview[:128]
		}
		s.err = &DecodeError{Line: bytes.Clone(preview), Err: ErrLineTooLong}
		return true
	}
	s.ev, s.err = Parse(line)
	return true
}

// readLine returns the next line without its terminator. Bytes past the
// limit are read and dropped so the writer is never blocked.
func (s *Scanner) readLine() ([]byte, bool, error) {
	s.buf = s.buf[:0]
	overflow := false
	for {
		chunk, err := s.r.ReadSlice('\n')
		if !overflow {
			if len(s.buf)+len(chunk) > s.max {
				overflow = true
			} else {
				s.buf = append(s.buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(s.buf, "\r\n"), overflow, err
	}
}

// Event returns the event decoded by the last call to Next.
func (s *Scanner) Event() Event {
	return s.ev
}

// DecodeErr returns the decode failure of the last line, if any.
func (s *Scanner) DecodeErr() error {
	return s.err
}

// Err returns the first non-EOF read error.
func (s *Scanner) Err() error {
	if errors.Is(s.readErr, io.EOF) {
		return nil
	}
	return s.readErr
}

// Describe renders an event for debug logs.
func Describe(ev Event) string {
	switch e := ev.(type) {
	case Start:
		return fmt.Sprintf("start(thinking=%t session=%s)", e.Thinking, e.SessionID)
	case TextDelta:
		return fmt.Sprintf("text_delta(%d bytes, thinking=%t)", len(e.Text), e.Thinking)
	case ToolUse:
		return "tool_use(" + e.Name + ")"
	case End:
		return "end"
	case Error:
		return "error(" + strings.TrimSpace(e.Message) + ")"
	default:
		return "<nil>"
	}
}
