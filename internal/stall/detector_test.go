package stall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/veda/internal/instance"
	"github.com/ShayCichocki/veda/internal/protocol"
	"github.com/ShayCichocki/veda/pkg/models"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newInstance(t *testing.T, name string) *instance.Instance {
	t.Helper()
	inst := instance.New(instance.Options{Name: name, Now: func() time.Time { return t0 }})
	t.Cleanup(inst.Close)
	return inst
}

func systemMessages(inst *instance.Instance) int {
	n := 0
	for _, m := range inst.Transcript() {
		if m.Sender == models.SenderSystem {
			n++
		}
	}
	return n
}

func TestCheck_FiresOncePerWindow(t *testing.T) {
	inst := newInstance(t, "A")
	d := &Detector{Threshold: 300 * time.Second}

	triggers := d.Check(t0.Add(400*time.Second), []*instance.Instance{inst})
	require.Len(t, triggers, 1)
	assert.Equal(t, inst.ID(), triggers[0].InstanceID)
	assert.Equal(t, 400*time.Second, triggers[0].Idle)
	assert.Equal(t, models.StateStallCheckPending, inst.State())
	assert.True(t, inst.StallCheckSent())
	assert.Equal(t, 1, systemMessages(inst))
	assert.Equal(t, "Conversation stalled (400s) - analyzing...", inst.Transcript()[0].Content)

	// A second tick in the same window adds nothing.
	triggers = d.Check(t0.Add(460*time.Second), []*instance.Instance{inst})
	assert.Empty(t, triggers)
	assert.Equal(t, 1, systemMessages(inst))
}

func TestCheck_BelowThreshold(t *testing.T) {
	inst := newInstance(t, "A")
	d := &Detector{Threshold: 300 * time.Second}

	assert.Empty(t, d.Check(t0.Add(300*time.Second), []*instance.Instance{inst}))
	assert.Equal(t, models.StateAvailable, inst.State())
}

func TestCheck_ActivityClearsFlag(t *testing.T) {
	inst := newInstance(t, "A")
	require.NoError(t, inst.MarkBusy())
	d := &Detector{Threshold: time.Minute}

	require.Len(t, d.Check(t0.Add(2*time.Minute), []*instance.Instance{inst}), 1)
	require.NoError(t, inst.Ingest(protocol.TextDelta{Text: "still here"}))

	assert.False(t, inst.StallCheckSent())
	assert.Equal(t, models.StateWorking, inst.State())

	// The clock is frozen at t0, so a new window opens from the ingest.
	require.Len(t, d.Check(t0.Add(2*time.Minute), []*instance.Instance{inst}), 1)
	assert.Equal(t, 2, systemMessages(inst))
}

func TestCheck_SkipsCoordinating(t *testing.T) {
	inst := newInstance(t, "A")
	ok, err := inst.BeginCoordination()
	require.NoError(t, err)
	require.True(t, ok)

	d := &Detector{Threshold: time.Second}
	assert.Empty(t, d.Check(t0.Add(time.Hour), []*instance.Instance{inst}))
	assert.False(t, inst.StallCheckSent())
}

func TestCheck_RequireUserMessage(t *testing.T) {
	quiet := newInstance(t, "quiet")
	talked := newInstance(t, "talked")
	require.NoError(t, talked.Append(models.SenderUser, "build the parser"))
	require.NoError(t, talked.Append(models.SenderAssistant, "Done. Anything else?"))

	d := &Detector{Threshold: time.Second, RequireUserMessage: true}
	triggers := d.Check(t0.Add(time.Minute), []*instance.Instance{quiet, talked})

	require.Len(t, triggers, 1)
	assert.Equal(t, "talked", triggers[0].Name)
	assert.Equal(t, "Done. Anything else?", triggers[0].LastAssistant)
	assert.Equal(t, []string{"build the parser"}, triggers[0].RecentUser)
}

func TestCheck_ZeroThresholdUsesDefault(t *testing.T) {
	inst := newInstance(t, "A")
	d := &Detector{}
	assert.Empty(t, d.Check(t0.Add(DefaultThreshold), []*instance.Instance{inst}))
	assert.Len(t, d.Check(t0.Add(DefaultThreshold+time.Second), []*instance.Instance{inst}), 1)
}

func TestExtractReply(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"marker", "reasoning...\nMESSAGE_TO_CLAUDE_WITH_VERDICT: Please run the tests.", "Please run the tests."},
		{"think block", "<think>hmm</think>\nConfirm the build passes.", "Confirm the build passes."},
		{"dangling think close", "thinking out loud</think> Ship it.", "Ship it."},
		{"plain", "  Keep going.  ", "Keep going."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractReply(tt.in))
		})
	}
}

func TestPrompt(t *testing.T) {
	p := Prompt(Trigger{Idle: 90 * time.Second, LastAssistant: "I updated main.go", RecentUser: []string{"fix the bug"}})
	assert.Contains(t, p, "idle for 90 seconds")
	assert.Contains(t, p, "I updated main.go")
	assert.Contains(t, p, "fix the bug")
	assert.Contains(t, p, replyMarker)
}
