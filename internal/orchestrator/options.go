package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/veda/internal/agent"
	"github.com/ShayCichocki/veda/internal/coordination"
	"github.com/ShayCichocki/veda/internal/journal"
	"github.com/ShayCichocki/veda/internal/stall"
)

// RequiredConfig contains the minimal required configuration for an Orchestrator.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// WorkDir is the working directory of the main instance.
	WorkDir string
	// Factory creates the subprocess runner for every turn.
	Factory agent.Factory
}

// Recorder receives journal entries. *journal.DB implements it.
type Recorder interface {
	Record(e journal.Entry) error
}

// Settings holds the tunables that may change while a session runs.
type Settings struct {
	// MaxInstances caps the registry size. Zero means no limit.
	MaxInstances int
	// CoordinationEnabled allows automatic coordination after turns and on
	// explicit requests in user input.
	CoordinationEnabled bool
	// CoordinationTimeout bounds each coordination analyzer call.
	CoordinationTimeout time.Duration
	// StallThreshold is the inactivity period before a stall fires.
	StallThreshold time.Duration
	// InterventionTimeout bounds the stall analyzer call.
	InterventionTimeout time.Duration
	// RequireUserMessage skips stall checks on instances never prompted.
	RequireUserMessage bool
	// AutoMode enables stall checks, turn assessment and sending analyzer
	// replies to instances.
	AutoMode bool
}

// DefaultSettings returns the settings used when none are supplied.
func DefaultSettings() Settings {
	return Settings{
		MaxInstances:        6,
		CoordinationEnabled: true,
		CoordinationTimeout: coordination.DefaultTimeout,
		StallThreshold:      stall.DefaultThreshold,
		InterventionTimeout: 60 * time.Second,
		RequireUserMessage:  true,
		AutoMode:            true,
	}
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	sessionID     string
	analyzer      coordination.Analyzer
	logger        *zap.Logger
	journal       Recorder
	process       agent.StartOptions
	settings      Settings
	pollInterval  time.Duration
	initialPrompt string
	now           func() time.Time
}

func defaultOptions() orchestratorOptions {
	return orchestratorOptions{
		settings:     DefaultSettings(),
		pollInterval: 50 * time.Millisecond,
		now:          time.Now,
	}
}

// WithSessionID sets the session id shared by every instance. A random id
// is generated otherwise.
func WithSessionID(id string) Option {
	return func(o *orchestratorOptions) { o.sessionID = id }
}

// WithAnalyzer sets the secondary model. Without one, coordination only
// runs on explicit requests and stall interventions are skipped.
func WithAnalyzer(a coordination.Analyzer) Option {
	return func(o *orchestratorOptions) { o.analyzer = a }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithJournal sets the audit journal.
func WithJournal(r Recorder) Option {
	return func(o *orchestratorOptions) { o.journal = r }
}

// WithProcess sets the CLI options applied to every instance turn.
func WithProcess(p agent.StartOptions) Option {
	return func(o *orchestratorOptions) { o.process = p }
}

// WithSettings sets the initial tunables.
func WithSettings(s Settings) Option {
	return func(o *orchestratorOptions) { o.settings = s }
}

// WithPollInterval sets how often instance events are drained.
func WithPollInterval(d time.Duration) Option {
	return func(o *orchestratorOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithInitialPrompt starts the main instance with prompt.
func WithInitialPrompt(prompt string) Option {
	return func(o *orchestratorOptions) { o.initialPrompt = prompt }
}

// WithClock overrides the clock (mainly for testing).
func WithClock(now func() time.Time) Option {
	return func(o *orchestratorOptions) { o.now = now }
}
