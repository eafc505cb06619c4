package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/veda/internal/agent"
	"github.com/ShayCichocki/veda/internal/coordination"
	"github.com/ShayCichocki/veda/internal/ipc"
	"github.com/ShayCichocki/veda/internal/journal"
	"github.com/ShayCichocki/veda/internal/registry"
	"github.com/ShayCichocki/veda/pkg/models"
)

var (
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("orchestrator already running")
	// ErrStopped is returned for requests made after Run has returned.
	ErrStopped = errors.New("orchestrator stopped")
	// ErrAtCapacity is returned when the instance limit is reached.
	ErrAtCapacity = errors.New("instance limit reached")
	// ErrCoordinationInFlight is returned when the requesting instance
	// already has a coordination decision pending.
	ErrCoordinationInFlight = errors.New("coordination already in progress")
)

const (
	inputBuffer  = 64
	resultBuffer = 16
	eventBuffer  = 256
	// maxEventsPerTick bounds how many events one instance may apply per
	// tick so a chatty instance cannot starve the others.
	maxEventsPerTick = 512
)

// Orchestrator is the process-wide context object. It owns the registry and
// is the only writer of instance state.
type Orchestrator struct {
	opts      orchestratorOptions
	workDir   string
	factory   agent.Factory
	sessionID string
	log       *zap.Logger

	registry *registry.Registry
	router   *ipc.Router
	emitter  *EventEmitter

	// settingsMu protects settings, which are read by the loop and by
	// Snapshot callers and replaced by UpdateSettings.
	settingsMu sync.RWMutex
	settings   Settings

	inputs  chan input
	ipcReqs chan ipcRequest
	results chan result

	// pending counts coordination decisions in flight.
	pending atomic.Int32

	// bgCtx bounds background analysis; cancelled on shutdown.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	running atomic.Bool
	done    chan struct{}
}

// New creates an Orchestrator. Call Run to start it.
func New(cfg RequiredConfig, opts ...Option) *Orchestrator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.sessionID == "" {
		o.sessionID = uuid.New().String()[:8]
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.process.SystemPrompt == "" {
		o.process.SystemPrompt = capabilitiesPrompt
	}

	log := o.logger.With(zap.String("session", o.sessionID))
	bgCtx, bgCancel := context.WithCancel(context.Background())

	orch := &Orchestrator{
		opts:      o,
		workDir:   cfg.WorkDir,
		factory:   cfg.Factory,
		sessionID: o.sessionID,
		log:       log,
		registry:  registry.New(),
		emitter:   NewEventEmitter(eventBuffer, log),
		settings:  o.settings,
		inputs:    make(chan input, inputBuffer),
		ipcReqs:   make(chan ipcRequest),
		results:   make(chan result, resultBuffer),
		bgCtx:     bgCtx,
		bgCancel:  bgCancel,
		done:      make(chan struct{}),
	}
	orch.router = ipc.NewRouter(orch, log)
	return orch
}

// SessionID returns the session id shared by every instance.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// Events returns orchestrator events for status displays.
// The channel is closed when Run returns.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// Done is closed when Run has returned.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Settings returns the current tunables.
func (o *Orchestrator) Settings() Settings {
	o.settingsMu.RLock()
	defer o.settingsMu.RUnlock()
	return o.settings
}

// UpdateSettings replaces the tunables. It is safe to call from any
// goroutine; the loop picks the new values up on its next step.
func (o *Orchestrator) UpdateSettings(s Settings) {
	o.settingsMu.Lock()
	o.settings = s
	o.settingsMu.Unlock()
	o.log.Info("settings updated",
		zap.Duration("stall_threshold", s.StallThreshold),
		zap.Bool("auto_mode", s.AutoMode),
		zap.Bool("coordination", s.CoordinationEnabled),
		zap.Int("max_instances", s.MaxInstances))
}

func (o *Orchestrator) updateSettings(fn func(*Settings)) Settings {
	o.settingsMu.Lock()
	defer o.settingsMu.Unlock()
	fn(&o.settings)
	return o.settings
}

// Snapshot returns a read-only view of the session for rendering.
func (o *Orchestrator) Snapshot() models.SessionView {
	s := o.Settings()
	return models.SessionView{
		SessionID:            o.sessionID,
		Instances:            o.registry.Snapshot(),
		Current:              o.registry.CurrentIndex(),
		PendingCoordinations: int(o.pending.Load()),
		AutoMode:             s.AutoMode,
		CoordinationEnabled:  s.CoordinationEnabled,
		TakenAt:              o.opts.now(),
	}
}

// Submit queues text as user input for the focused instance. Lines starting
// with "!cd " change the instance's working directory. It reports false when
// the input queue is full or the orchestrator has stopped.
func (o *Orchestrator) Submit(text string) bool {
	return o.enqueue(promptInput{text: text})
}

// NewInstance queues the creation of an idle instance.
func (o *Orchestrator) NewInstance() bool {
	return o.enqueue(newInstanceInput{})
}

// CloseCurrent queues closing the focused instance.
func (o *Orchestrator) CloseCurrent() bool {
	return o.enqueue(closeCurrentInput{})
}

// ToggleAutoMode queues flipping auto mode.
func (o *Orchestrator) ToggleAutoMode() bool {
	return o.enqueue(toggleInput{auto: true})
}

// ToggleCoordination queues flipping automatic coordination.
func (o *Orchestrator) ToggleCoordination() bool {
	return o.enqueue(toggleInput{coordination: true})
}

func (o *Orchestrator) enqueue(in input) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.inputs <- in:
		return true
	default:
		o.log.Warn("input queue full, dropping input")
		return false
	}
}

// FocusNext moves focus to the following instance.
func (o *Orchestrator) FocusNext() { o.registry.Next() }

// FocusPrev moves focus to the preceding instance.
func (o *Orchestrator) FocusPrev() { o.registry.Prev() }

// Focus moves focus to the instance at idx.
func (o *Orchestrator) Focus(idx int) bool { return o.registry.SetCurrent(idx) }

// Handle executes an IPC command on the loop. It implements ipc.Handler.
func (o *Orchestrator) Handle(ctx context.Context, cmd ipc.Command) ipc.Reply {
	req := ipcRequest{cmd: cmd, reply: make(chan ipc.Reply, 1)}
	select {
	case o.ipcReqs <- req:
	case <-ctx.Done():
		return ipc.Failure(ctx.Err())
	case <-o.done:
		return ipc.Failure(ErrStopped)
	}
	select {
	case r := <-req.reply:
		return r
	case <-ctx.Done():
		return ipc.Failure(ctx.Err())
	case <-o.done:
		return ipc.Failure(ErrStopped)
	}
}

// now returns the orchestrator clock.
func (o *Orchestrator) now() time.Time {
	return o.opts.now()
}

func (o *Orchestrator) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = o.now()
	}
	o.emitter.Emit(ev)
}

func (o *Orchestrator) record(e journal.Entry) {
	if o.opts.journal == nil {
		return
	}
	e.SessionID = o.sessionID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = o.now()
	}
	if err := o.opts.journal.Record(e); err != nil {
		o.log.Warn("journal write failed", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}

// engine builds a coordination engine for the current settings.
func (o *Orchestrator) engine(s Settings) *coordination.Engine {
	return &coordination.Engine{
		Analyzer: o.opts.analyzer,
		Timeout:  s.CoordinationTimeout,
		Logger:   o.log,
	}
}

// capacity returns how many more instances may be spawned, or 0 when there
// is no limit.
func (o *Orchestrator) capacity(s Settings) int {
	if s.MaxInstances <= 0 {
		return 0
	}
	return s.MaxInstances - o.registry.Len()
}

func (o *Orchestrator) atCapacity(s Settings) bool {
	return s.MaxInstances > 0 && o.registry.Len() >= s.MaxInstances
}
