package instance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/veda/internal/agent"
	"github.com/ShayCichocki/veda/internal/protocol"
	"github.com/ShayCichocki/veda/pkg/models"
)

type fakeRunner struct {
	mu       sync.Mutex
	prompt   string
	opts     agent.StartOptions
	startErr error
	events   chan protocol.Event
	killed   bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{events: make(chan protocol.Event, 16)}
}

func (f *fakeRunner) Start(prompt string, opts agent.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.prompt = prompt
	f.opts = opts
	return nil
}

func (f *fakeRunner) Events() <-chan protocol.Event { return f.events }
func (f *fakeRunner) Wait() error                   { return nil }
func (f *fakeRunner) Stderr() string                { return "" }
func (f *fakeRunner) PID() int                      { return 4242 }

func (f *fakeRunner) Kill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.killed {
		f.killed = true
		close(f.events)
	}
	return nil
}

func (f *fakeRunner) finish(evs ...protocol.Event) {
	for _, ev := range evs {
		f.events <- ev
	}
	f.Kill()
}

type fakeFactory struct {
	mu      sync.Mutex
	runners []*fakeRunner
	err     error
}

func (ff *fakeFactory) factory() agent.Factory {
	return func(ctx context.Context) agent.Runner {
		ff.mu.Lock()
		defer ff.mu.Unlock()
		r := newFakeRunner()
		r.startErr = ff.err
		ff.runners = append(ff.runners, r)
		return r
	}
}

func (ff *fakeFactory) last() *fakeRunner {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.runners[len(ff.runners)-1]
}

func fixedClock(t0 time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	now := t0
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(d)
		}
}

func ingestAll(t *testing.T, inst *Instance, evs ...protocol.Event) {
	t.Helper()
	for _, ev := range evs {
		require.NoError(t, inst.Ingest(ev))
	}
}

func TestNew_Defaults(t *testing.T) {
	inst := New(Options{Name: "Veda-1", WorkDir: "/repo"})
	defer inst.Close()

	assert.NotEqual(t, uuid.Nil, inst.ID())
	assert.Equal(t, "Veda-1", inst.Name())
	assert.Equal(t, "/repo", inst.WorkDir())
	assert.Equal(t, models.StateAvailable, inst.State())
	assert.False(t, inst.StallCheckSent())
	assert.False(t, inst.CoordinationInProgress())
	assert.Empty(t, inst.Transcript())
}

func TestIngest_StreamingIsOneMessage(t *testing.T) {
	inst := New(Options{Name: "Veda-1"})
	defer inst.Close()

	ingestAll(t, inst,
		protocol.Start{},
		protocol.TextDelta{Text: "Hel"},
		protocol.TextDelta{Text: "lo"},
	)
	assert.Equal(t, models.StateWorking, inst.State())

	ingestAll(t, inst, protocol.End{})

	tr := inst.Transcript()
	require.Len(t, tr, 1)
	assert.Equal(t, models.SenderAssistant, tr[0].Sender)
	assert.Equal(t, "Hello", tr[0].Content)
	assert.Equal(t, models.StateAvailable, inst.State())
}

func TestIngest_StartReusesEmptyAccumulator(t *testing.T) {
	inst := New(Options{})
	defer inst.Close()

	ingestAll(t, inst, protocol.Start{}, protocol.Start{Thinking: true}, protocol.TextDelta{Text: "plan", Thinking: true})

	tr := inst.Transcript()
	require.Len(t, tr, 1)
	assert.True(t, tr[0].IsThinking)
	assert.Equal(t, "plan", tr[0].Content)
}

func TestIngest_ThinkingSwitchStartsNewMessage(t *testing.T) {
	inst := New(Options{})
	defer inst.Close()

	ingestAll(t, inst,
		protocol.Start{Thinking: true},
		protocol.TextDelta{Text: "considering", Thinking: true},
		protocol.TextDelta{Text: "Answer"},
		protocol.End{},
	)

	tr := inst.Transcript()
	require.Len(t, tr, 2)
	assert.True(t, tr[0].IsThinking)
	assert.Equal(t, "considering", tr[0].Content)
	assert.False(t, tr[1].IsThinking)
	assert.Equal(t, "Answer", tr[1].Content)
}

func TestIngest_ErrorAppendsSystemMessage(t *testing.T) {
	inst := New(Options{})
	defer inst.Close()

	ingestAll(t, inst, protocol.Start{}, protocol.TextDelta{Text: "partial"}, protocol.Error{Message: "overloaded"})

	tr := inst.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, "partial", tr[0].Content)
	assert.Equal(t, models.SenderSystem, tr[1].Sender)
	assert.Contains(t, tr[1].Content, "overloaded")
	assert.Equal(t, models.StateAvailable, inst.State())

	// A following delta opens a fresh message rather than extending the closed one.
	ingestAll(t, inst, protocol.TextDelta{Text: "next"})
	tr = inst.Transcript()
	require.Len(t, tr, 3)
	assert.Equal(t, "next", tr[2].Content)
}

func TestIngest_ResultUsedWhenNothingStreamed(t *testing.T) {
	inst := New(Options{})
	defer inst.Close()

	ingestAll(t, inst, protocol.Start{SessionID: "sess-9"}, protocol.End{Result: "final answer"})

	tr := inst.Transcript()
	require.Len(t, tr, 1)
	assert.Equal(t, "final answer", tr[0].Content)
	assert.Equal(t, "sess-9", inst.ClaudeSessionID())

	ingestAll(t, inst, protocol.TextDelta{Text: "streamed"}, protocol.End{Result: "streamed"})
	assert.Len(t, inst.Transcript(), 2)
}

func TestIngest_ToolUse(t *testing.T) {
	inst := New(Options{})
	defer inst.Close()

	ingestAll(t, inst, protocol.ToolUse{Name: "Read", Params: []byte(`{"file_path":"/x/main.go"}`)})

	tr := inst.Transcript()
	require.Len(t, tr, 1)
	assert.Equal(t, models.SenderTool, tr[0].Sender)
	assert.Equal(t, "Reading main.go", tr[0].Content)
	assert.Equal(t, []string{"Read"}, inst.View().ToolAttempts)
}

func TestIngest_UpdatesLastActivity(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now, advance := fixedClock(t0)
	inst := New(Options{Now: now})
	defer inst.Close()

	advance(time.Minute)
	ingestAll(t, inst, protocol.TextDelta{Text: "x"})
	assert.Equal(t, t0.Add(time.Minute), inst.LastActivity())
}

func TestMarkBusyIdle_Idempotent(t *testing.T) {
	inst := New(Options{})
	defer inst.Close()

	require.NoError(t, inst.MarkBusy())
	require.NoError(t, inst.MarkBusy())
	assert.Equal(t, models.StateWorking, inst.State())

	require.NoError(t, inst.MarkIdle())
	require.NoError(t, inst.MarkIdle())
	assert.Equal(t, models.StateAvailable, inst.State())
}

func TestStallCheck_ClearedByActivity(t *testing.T) {
	inst := New(Options{})
	defer inst.Close()
	require.NoError(t, inst.MarkBusy())

	ok, err := inst.BeginStallCheck("stalled")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.StateStallCheckPending, inst.State())

	ok, err = inst.BeginStallCheck("stalled again")
	require.NoError(t, err)
	assert.False(t, ok)

	ingestAll(t, inst, protocol.TextDelta{Text: "back"})
	assert.False(t, inst.StallCheckSent())
	assert.Equal(t, models.StateWorking, inst.State())
}

func TestCoordination_Lifecycle(t *testing.T) {
	inst := New(Options{})
	defer inst.Close()

	_, err := inst.BeginStallCheck("stalled")
	require.NoError(t, err)

	ok, err := inst.BeginCoordination()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.StateCoordinating, inst.State())

	ok, err = inst.BeginCoordination()
	require.NoError(t, err)
	assert.False(t, ok, "only one coordination attempt may be in flight")

	ok, err = inst.BeginStallCheck("stalled")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, inst.EndCoordination())
	assert.False(t, inst.CoordinationInProgress())
	assert.Equal(t, models.StateAvailable, inst.State())
}

func TestSend_InjectsFreshIdentity(t *testing.T) {
	t.Setenv(agent.EnvTargetInstanceID, "parent-instance")

	ff := &fakeFactory{}
	inst, err := Spawn(context.Background(), Options{
		Name:      "Veda-2",
		WorkDir:   "/repo",
		Prompt:    "do the thing",
		SessionID: "sess",
		Factory:   ff.factory(),
		Process:   agent.StartOptions{MCPConfig: ".mcp.json"},
	})
	require.NoError(t, err)
	defer inst.Close()

	r := ff.last()
	assert.Equal(t, "do the thing", r.prompt)
	assert.Equal(t, "/repo", r.opts.WorkDir)
	assert.Equal(t, ".mcp.json", r.opts.MCPConfig)
	assert.Contains(t, r.opts.Env, agent.EnvTargetInstanceID+"="+inst.ID().String())
	assert.NotContains(t, r.opts.Env, agent.EnvTargetInstanceID+"=parent-instance")
	assert.Contains(t, r.opts.Env, agent.EnvSessionID+"=sess")

	assert.Equal(t, models.StateWorking, inst.State())
	tr := inst.Transcript()
	require.Len(t, tr, 1)
	assert.Equal(t, models.SenderUser, tr[0].Sender)
}

func TestSend_ResumesAndRejectsWhileBusy(t *testing.T) {
	ff := &fakeFactory{}
	inst := New(Options{Name: "Veda-1", Factory: ff.factory()})
	defer inst.Close()

	require.NoError(t, inst.Send(context.Background(), "first"))
	assert.ErrorIs(t, inst.Send(context.Background(), "second"), ErrBusy)

	first := ff.last()
	go first.finish(protocol.Start{SessionID: "claude-sess"}, protocol.TextDelta{Text: "ok"}, protocol.End{})

	for n := 0; n < 3; n++ {
		select {
		case ev := <-inst.Events():
			require.NoError(t, inst.Ingest(ev))
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	require.Eventually(t, func() bool { return !inst.Busy() }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, inst.Send(context.Background(), "second"))
	assert.Equal(t, "claude-sess", ff.last().opts.ResumeSessionID)
}

func TestSpawn_FailureIsSpawnError(t *testing.T) {
	ff := &fakeFactory{err: errors.New("exec: not found")}
	_, err := Spawn(context.Background(), Options{Name: "Veda-3", Prompt: "x", Factory: ff.factory()})
	require.Error(t, err)

	var se *agent.SpawnError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Veda-3", se.Instance)
}

func TestClose_LaterOperationsFail(t *testing.T) {
	ff := &fakeFactory{}
	inst := New(Options{Factory: ff.factory()})
	require.NoError(t, inst.Send(context.Background(), "work"))

	inst.Close()
	inst.Close()

	assert.True(t, ff.last().killed)
	assert.True(t, inst.Closed())
	assert.ErrorIs(t, inst.Ingest(protocol.End{}), ErrClosed)
	assert.ErrorIs(t, inst.MarkBusy(), ErrClosed)
	assert.ErrorIs(t, inst.Send(context.Background(), "more"), ErrClosed)
	assert.ErrorIs(t, inst.Append(models.SenderSystem, "x"), ErrClosed)

	_, open := <-inst.Events()
	assert.False(t, open, "event channel should be closed")
}

func TestRecentUserMessages(t *testing.T) {
	inst := New(Options{})
	defer inst.Close()

	for _, m := range []string{"one", "two", "three", "four"} {
		require.NoError(t, inst.Append(models.SenderUser, m))
	}
	require.NoError(t, inst.Append(models.SenderAssistant, "reply"))

	assert.Equal(t, []string{"two", "three", "four"}, inst.RecentUserMessages(3))
	assert.Equal(t, "reply", inst.LastAssistantMessage())
	assert.True(t, inst.HasUserMessage())
}

func TestSetWorkDir_AppliesToNextTurn(t *testing.T) {
	ff := &fakeFactory{}
	inst := New(Options{Name: "Veda-1", WorkDir: "/a", Factory: ff.factory()})
	defer inst.Close()

	require.NoError(t, inst.SetWorkDir("/b"))
	assert.Equal(t, "/b", inst.WorkDir())

	require.NoError(t, inst.Send(context.Background(), "hi"))
	ff.mu.Lock()
	r := ff.runners[0]
	ff.mu.Unlock()
	r.mu.Lock()
	assert.Equal(t, "/b", r.opts.WorkDir)
	r.mu.Unlock()

	inst.Close()
	assert.ErrorIs(t, inst.SetWorkDir("/c"), ErrClosed)
}
