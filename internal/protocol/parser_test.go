package protocol

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{"native start", `{"type":"start"}`, Start{}},
		{"native thinking start", `{"type":"start","thinking":true}`, Start{Thinking: true}},
		{"native text", `{"type":"text_delta","text":"hel"}`, TextDelta{Text: "hel"}},
		{"native thinking", `{"type":"thinking_delta","text":"hmm"}`, TextDelta{Text: "hmm", Thinking: true}},
		{"native end", `{"type":"end"}`, End{}},
		{"native error object", `{"type":"error","error":{"message":"overloaded"}}`, Error{Message: "overloaded"}},
		{"native error string", `{"type":"error","error":"boom"}`, Error{Message: "boom"}},
		{"cli init", `{"type":"system","subtype":"init","session_id":"abc"}`, Start{SessionID: "abc"}},
		{
			"cli assistant text",
			`{"type":"assistant","message":{"content":[{"type":"text","text":"Hi"},{"type":"text","text":"ignored"}]}}`,
			TextDelta{Text: "Hi"},
		},
		{
			"cli assistant thinking",
			`{"type":"assistant","message":{"content":[{"type":"thinking","thinking":"plan"}]}}`,
			TextDelta{Text: "plan", Thinking: true},
		},
		{"cli result", `{"type":"result","subtype":"success","result":"done"}`, End{Result: "done"}},
		{"cli error result", `{"type":"result","is_error":true,"result":"limit"}`, Error{Message: "limit"}},
		{"api message start", `{"type":"message_start","message":{"id":"m"}}`, Start{}},
		{"api thinking block", `{"type":"content_block_start","content_block":{"type":"thinking"}}`, Start{Thinking: true}},
		{"api text delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"x"}}`, TextDelta{Text: "x"}},
		{"api thinking delta", `{"type":"content_block_delta","delta":{"type":"thinking_delta","thinking":"y"}}`, TextDelta{Text: "y", Thinking: true}},
		{"api stop", `{"type":"message_stop"}`, End{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_ToolUse(t *testing.T) {
	got, err := Parse([]byte(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read","input":{"file_path":"a.go"}}]}}`))
	require.NoError(t, err)

	tu, ok := got.(ToolUse)
	require.True(t, ok)
	assert.Equal(t, "Read", tu.Name)
	assert.JSONEq(t, `{"file_path":"a.go"}`, string(tu.Params))
	assert.Equal(t, KindToolUse, tu.Kind())
}

func TestParse_Ignored(t *testing.T) {
	for _, line := range []string{
		"",
		"   ",
		`{"type":"ping"}`,
		`{"type":"user","message":{"content":[]}}`,
		`{"type":"system","subtype":"compact"}`,
		`{"type":"content_block_stop","index":0}`,
	} {
		got, err := Parse([]byte(line))
		assert.NoError(t, err, "line %q", line)
		assert.Nil(t, got, "line %q", line)
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, line := range []string{
		`{not json`,
		`{"text":"no type"}`,
		`{"type":"bogus"}`,
		`{"type":"tool_use"}`,
		`{"type":"assistant"}`,
	} {
		_, err := Parse([]byte(line))
		require.Error(t, err, "line %q", line)

		var de *DecodeError
		assert.True(t, errors.As(err, &de), "line %q", line)
	}
}

func TestScanner_SkipsBadLines(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"start"}`,
		`garbage`,
		`{"type":"text_delta","text":"a"}`,
		``,
		`{"type":"end"}`,
	}, "\n")

	sc := NewScanner(strings.NewReader(input))
	var events []Event
	var decodeErrs int
	for sc.Next() {
		if sc.DecodeErr() != nil {
			decodeErrs++
			continue
		}
		if ev := sc.Event(); ev != nil {
			events = append(events, ev)
		}
	}
	require.NoError(t, sc.Err())

	assert.Equal(t, 1, decodeErrs)
	assert.Equal(t, []Event{Start{}, TextDelta{Text: "a"}, End{}}, events)
}

func TestScanner_DropsOverlongLine(t *testing.T) {
	input := `{"type":"start"}` + "\n" +
		`{"type":"text_delta","text":"` + strings.Repeat("x", maxLineSize+10) + `"}` + "\n" +
		`{"type":"text_delta","text":"after"}` + "\n" +
		`{"type":"end"}`

	sc := NewScanner(strings.NewReader(input))
	var events []Event
	var tooLong int
	for sc.Next() {
		if err := sc.DecodeErr(); err != nil {
			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.ErrorIs(t, err, ErrLineTooLong)
			assert.LessOrEqual(t, len(de.Line), 128)
			tooLong++
			continue
		}
		if ev := sc.Event(); ev != nil {
			events = append(events, ev)
		}
	}
	require.NoError(t, sc.Err())

	assert.Equal(t, 1, tooLong)
	assert.Equal(t, []Event{Start{}, TextDelta{Text: "after"}, End{}}, events)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(End{}))
	assert.True(t, IsTerminal(Error{Message: "x"}))
	assert.False(t, IsTerminal(Start{}))
	assert.False(t, IsTerminal(TextDelta{}))
	assert.False(t, IsTerminal(nil))
}

func TestDecodeError_TruncatesLongLines(t *testing.T) {
	err := &DecodeError{Line: []byte(strings.Repeat("x", 500)), Err: errNoType}
	assert.Less(t, len(err.Error()), 200)
	assert.ErrorIs(t, err, errNoType)
}
