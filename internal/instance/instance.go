// Package instance models one supervised Claude subprocess together with its
// conversation transcript and activity state.
//
// An Instance is mutated only by the orchestration loop. Its RWMutex exists
// so renderers and IPC listings can take consistent snapshots concurrently.
package instance

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/veda/internal/agent"
	"github.com/ShayCichocki/veda/internal/protocol"
	"github.com/ShayCichocki/veda/pkg/models"
)

var (
	// ErrClosed is returned by every operation on a closed Instance.
	ErrClosed = errors.New("instance closed")
	// ErrBusy is returned by Send while a turn is still running.
	ErrBusy = errors.New("instance busy")
)

// eventBuffer is the capacity of an instance's event channel.
const eventBuffer = 256

// Options configures a new Instance.
type Options struct {
	// Name is the display label, e.g. "Veda-2".
	Name string
	// WorkDir is the subprocess working directory.
	WorkDir string
	// Prompt, when set, starts the first turn immediately.
	Prompt string
	// SessionID is the orchestrator session shared by all instances.
	SessionID string
	// Factory creates subprocess runners. Required to Send.
	Factory agent.Factory
	// Process holds the CLI settings applied to every turn.
	Process agent.StartOptions
	// Logger receives lifecycle logs.
	Logger *zap.Logger
	// Now overrides the clock.
	Now func() time.Time
}

// Instance is one Claude subprocess plus its conversation state.
type Instance struct {
	id      uuid.UUID
	name    string
	workDir string
	session string
	factory agent.Factory
	process agent.StartOptions
	log     *zap.Logger
	now     func() time.Time

	mu             sync.RWMutex
	transcript     []models.Message
	open           int // index of the streaming message, -1 when none
	state          models.ActivityState
	preStall       models.ActivityState
	lastActivity   time.Time
	stallCheckSent bool
	coordinating   bool
	claudeSession  string
	toolAttempts   []string
	closed         bool

	runner   agent.Runner
	turnDone chan struct{}

	events chan protocol.Event
	ctx    context.Context
	cancel context.CancelFunc
	pumps  sync.WaitGroup
}

// New creates an Instance with a fresh id without starting a subprocess.
func New(opts Options) *Instance {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	inst := &Instance{
		id:      uuid.New(),
		name:    opts.Name,
		workDir: opts.WorkDir,
		session: opts.SessionID,
		factory: opts.Factory,
		process: opts.Process,
		now:     now,
		open:    -1,
		state:   models.StateAvailable,
		events:  make(chan protocol.Event, eventBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
	inst.lastActivity = now()
	inst.log = log.With(zap.String("instance", inst.name), zap.String("instance_id", inst.id.String()))
	return inst
}

// Spawn creates an Instance and, when opts.Prompt is set, launches its first
// turn. A launch failure closes the Instance and returns a *agent.SpawnError.
func Spawn(ctx context.Context, opts Options) (*Instance, error) {
	inst := New(opts)
	if opts.Prompt == "" {
		return inst, nil
	}
	if err := inst.Send(ctx, opts.Prompt); err != nil {
		inst.Close()
		return nil, &agent.SpawnError{Instance: opts.Name, Err: err}
	}
	return inst, nil
}

// ID returns the immutable instance id.
func (i *Instance) ID() uuid.UUID { return i.id }

// Name returns the display label.
func (i *Instance) Name() string { return i.name }

// WorkDir returns the working directory.
func (i *Instance) WorkDir() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.workDir
}

// SetWorkDir changes the directory used by subsequent turns.
func (i *Instance) SetWorkDir(dir string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	i.workDir = dir
	return nil
}

// Events returns the channel of decoded subprocess events.
// It is closed by Close.
func (i *Instance) Events() <-chan protocol.Event { return i.events }

// Send appends a user message and starts a new subprocess turn with prompt.
// Turns after the first resume the Claude session reported by the
// subprocess.
func (i *Instance) Send(ctx context.Context, prompt string) error {
	return i.SendAs(ctx, models.SenderUser, prompt)
}

// SendAs is Send with the transcript entry attributed to sender.
func (i *Instance) SendAs(ctx context.Context, sender models.Sender, prompt string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}
	if i.factory == nil {
		return errors.New("no process factory configured")
	}
	if i.turnDone != nil {
		select {
		case <-i.turnDone:
		default:
			return ErrBusy
		}
	}

	opts := i.process
	opts.WorkDir = i.workDir
	opts.ResumeSessionID = i.claudeSession
	opts.Env = agent.BuildEnv(os.Environ(), i.session, i.id.String())

	runner := i.factory(i.ctx)
	if err := runner.Start(prompt, opts); err != nil {
		return err
	}

	i.appendLocked(sender, prompt)
	i.lastActivity = i.now()
	i.markBusyLocked()
	i.runner = runner
	done := make(chan struct{})
	i.turnDone = done

	i.pumps.Add(1)
	go i.pump(runner, done)

	i.log.Info("turn started", zap.Int("pid", runner.PID()), zap.Bool("resume", opts.ResumeSessionID != ""))
	return nil
}

// pump forwards runner events to the instance channel until the runner
// closes its stream or the instance is closed.
func (i *Instance) pump(runner agent.Runner, done chan struct{}) {
	defer i.pumps.Done()
	defer close(done)

	for ev := range runner.Events() {
		select {
		case i.events <- ev:
		case <-i.ctx.Done():
			return
		}
	}
	if err := runner.Wait(); err != nil {
		i.log.Debug("turn exited", zap.Error(err))
	}
}

// Ingest applies a decoded protocol event to the transcript and state.
func (i *Instance) Ingest(ev protocol.Event) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}

	i.lastActivity = i.now()
	if i.stallCheckSent {
		i.stallCheckSent = false
		if i.state == models.StateStallCheckPending {
			i.state = i.preStall
		}
	}

	switch e := ev.(type) {
	case protocol.Start:
		if e.SessionID != "" {
			i.claudeSession = e.SessionID
		}
		i.openStreamLocked(e.Thinking)
		i.markBusyLocked()
	case protocol.TextDelta:
		i.appendDeltaLocked(e.Text, e.Thinking)
		i.markBusyLocked()
	case protocol.ToolUse:
		i.closeStreamLocked()
		action := agent.DescribeTool(e.Name, e.Params)
		i.toolAttempts = append(i.toolAttempts, e.Name)
		i.appendLocked(models.SenderTool, action)
		i.markBusyLocked()
	case protocol.End:
		if e.Result != "" && !i.hasStreamedLocked() {
			i.appendDeltaLocked(e.Result, false)
		}
		i.closeStreamLocked()
		i.toolAttempts = nil
		i.markIdleLocked()
	case protocol.Error:
		i.closeStreamLocked()
		i.toolAttempts = nil
		i.appendLocked(models.SenderSystem, "Error: "+e.Message)
		i.markIdleLocked()
	}
	return nil
}

// openStreamLocked opens a streaming assistant message, reusing an empty
// accumulator when one is already open.
func (i *Instance) openStreamLocked(thinking bool) {
	if i.open >= 0 {
		if i.transcript[i.open].Content == "" {
			i.transcript[i.open].IsThinking = thinking
			return
		}
		i.closeStreamLocked()
	}
	i.transcript = append(i.transcript, models.Message{
		Timestamp:   i.now(),
		Sender:      models.SenderAssistant,
		IsThinking:  thinking,
		IsCollapsed: thinking,
	})
	i.open = len(i.transcript) - 1
}

// appendDeltaLocked extends the open message. A change between thinking and
// visible text starts a new message so the two never share content.
func (i *Instance) appendDeltaLocked(text string, thinking bool) {
	if i.open < 0 {
		i.openStreamLocked(thinking)
	}
	msg := &i.transcript[i.open]
	if msg.IsThinking != thinking {
		if msg.Content == "" {
			msg.IsThinking = thinking
			msg.IsCollapsed = thinking
		} else {
			i.closeStreamLocked()
			i.openStreamLocked(thinking)
			msg = &i.transcript[i.open]
		}
	}
	msg.Content += text
}

func (i *Instance) closeStreamLocked() {
	if i.open < 0 {
		return
	}
	if i.transcript[i.open].Content == "" {
		i.transcript = append(i.transcript[:i.open], i.transcript[i.open+1:]...)
	}
	i.open = -1
}

// hasStreamedLocked reports whether visible assistant text was produced
// since the prompt that started the current turn.
func (i *Instance) hasStreamedLocked() bool {
	for j := len(i.transcript) - 1; j >= 0; j-- {
		m := i.transcript[j]
		switch {
		case m.Sender == models.SenderUser || m.Sender == models.SenderAnalyzer:
			return false
		case m.Sender == models.SenderAssistant && !m.IsThinking && m.Content != "":
			return true
		}
	}
	return false
}

func (i *Instance) appendLocked(sender models.Sender, content string) {
	i.transcript = append(i.transcript, models.Message{
		Timestamp: i.now(),
		Sender:    sender,
		Content:   content,
	})
}

// Append adds a complete message from sender to the transcript.
func (i *Instance) Append(sender models.Sender, content string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	i.appendLocked(sender, content)
	return nil
}

// MarkBusy transitions Available to WorkingOnTask. It is a no-op in any
// other state.
func (i *Instance) MarkBusy() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	i.markBusyLocked()
	return nil
}

// MarkIdle transitions WorkingOnTask to Available. It is a no-op in any
// other state.
func (i *Instance) MarkIdle() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	i.markIdleLocked()
	return nil
}

func (i *Instance) markBusyLocked() {
	if i.state == models.StateAvailable {
		i.state = models.StateWorking
	}
}

func (i *Instance) markIdleLocked() {
	if i.state == models.StateWorking {
		i.state = models.StateAvailable
	}
}

// Close kills the subprocess and releases the event channel.
// Closing twice is a no-op.
func (i *Instance) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	runner := i.runner
	i.open = -1
	i.mu.Unlock()

	i.cancel()
	if runner != nil {
		if err := runner.Kill(); err != nil {
			i.log.Warn("kill subprocess", zap.Error(err))
		}
	}
	i.pumps.Wait()
	close(i.events)
	i.log.Info("instance closed")
}

// Closed reports whether Close has been called.
func (i *Instance) Closed() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.closed
}
