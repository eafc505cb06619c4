// Package coordination decides whether a task should be split across
// several instances and builds the scoped instruction for each.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/veda/pkg/models"
)

// DefaultTimeout bounds a single analyzer call.
const DefaultTimeout = 180 * time.Second

// ErrNoVerdict is returned when an analyzer response carries no verdict.
var ErrNoVerdict = errors.New("analyzer response has no verdict")

// Analyzer is the secondary model used for coordination and stall analysis.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string) (string, error)
}

// OutcomeKind classifies how an analysis attempt finished.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeError
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one analysis step.
type Outcome struct {
	Kind OutcomeKind
	// Beneficial is the verdict; meaningful only for OutcomeSuccess.
	Beneficial bool
	// Phrase is the explicit request phrase when the fast path was taken.
	Phrase string
	// Response is the raw analyzer response.
	Response string
	// Err is set for OutcomeError.
	Err error
	// Elapsed is how long the analyzer call took.
	Elapsed time.Duration
}

// Input describes one coordination attempt.
type Input struct {
	// Task is the triggering message text.
	Task string
	// WorkDir is where spawned instances run.
	WorkDir string
	// Initiator is the instance whose message triggered coordination.
	Initiator uuid.UUID
	// Requested is the number of instances asked for; zero lets the
	// breakdown decide.
	Requested int
	// Capacity is how many more instances may be spawned; zero or less means
	// no limit.
	Capacity int
}

// Decision is the full result of a coordination attempt.
type Decision struct {
	// Outcome is the step that decided the result.
	Outcome Outcome
	// Request is nil when coordination was judged not beneficial.
	Request *models.CoordinationRequest
}

// Engine runs the two-stage coordination decision.
type Engine struct {
	Analyzer Analyzer
	// Timeout bounds each analyzer call. Zero means DefaultTimeout.
	Timeout time.Duration
	Logger  *zap.Logger
}

func (e *Engine) timeout() time.Duration {
	if e.Timeout <= 0 {
		return DefaultTimeout
	}
	return e.Timeout
}

func (e *Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Assess decides whether message benefits from coordination. An explicit
// request phrase short-circuits without calling the analyzer.
func (e *Engine) Assess(ctx context.Context, message string) Outcome {
	if phrase, ok := ExplicitRequest(message); ok {
		e.log().Info("explicit coordination request", zap.String("phrase", phrase))
		return Outcome{Kind: OutcomeSuccess, Beneficial: true, Phrase: phrase}
	}

	out := e.call(ctx, AnalysisPrompt(message))
	if out.Kind != OutcomeSuccess {
		return out
	}

	beneficial, ok := ParseVerdict(out.Response)
	if !ok {
		e.log().Warn("analyzer gave no verdict", zap.String("response", out.Response))
		return Outcome{Kind: OutcomeError, Err: ErrNoVerdict, Response: out.Response, Elapsed: out.Elapsed}
	}
	out.Beneficial = beneficial
	return out
}

// Breakdown asks the analyzer for n subtasks of task.
func (e *Engine) Breakdown(ctx context.Context, task, workDir string, n int) Outcome {
	out := e.call(ctx, BreakdownPrompt(task, workDir, n))
	if out.Kind == OutcomeSuccess {
		out.Beneficial = true
	}
	return out
}

// call runs one analyzer request bounded by the engine timeout. On timeout
// the request context is cancelled and any late response is discarded.
func (e *Engine) call(ctx context.Context, prompt string) Outcome {
	if e.Analyzer == nil {
		return Outcome{Kind: OutcomeError, Err: errors.New("no analyzer configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	type result struct {
		resp string
		err  error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		resp, err := e.Analyzer.Analyze(ctx, prompt)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		elapsed := time.Since(start)
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == context.DeadlineExceeded {
				return Outcome{Kind: OutcomeTimeout, Elapsed: elapsed}
			}
			e.log().Warn("analyzer call failed", zap.Error(r.err), zap.Duration("elapsed", elapsed))
			return Outcome{Kind: OutcomeError, Err: r.err, Elapsed: elapsed}
		}
		return Outcome{Kind: OutcomeSuccess, Response: r.resp, Elapsed: elapsed}
	case <-ctx.Done():
		elapsed := time.Since(start)
		if ctx.Err() == context.DeadlineExceeded {
			e.log().Warn("analyzer call timed out", zap.Duration("timeout", e.timeout()))
			return Outcome{Kind: OutcomeTimeout, Elapsed: elapsed}
		}
		return Outcome{Kind: OutcomeError, Err: ctx.Err(), Elapsed: elapsed}
	}
}

// Decide runs Assess and, when beneficial, Breakdown, and plans the
// resulting request.
func (e *Engine) Decide(ctx context.Context, in Input) Decision {
	verdict := e.Assess(ctx, in.Task)
	if verdict.Kind != OutcomeSuccess || !verdict.Beneficial {
		return Decision{Outcome: verdict, Request: e.Plan(verdict, in)}
	}

	n := in.Requested
	if n <= 0 {
		n = 3
	}
	if in.Capacity > 0 && n > in.Capacity {
		n = in.Capacity
	}
	breakdown := e.Breakdown(ctx, in.Task, in.WorkDir, n)
	breakdown.Phrase = verdict.Phrase
	return Decision{Outcome: breakdown, Request: e.Plan(breakdown, in)}
}

// Plan turns an outcome into a CoordinationRequest.
//
// A failed or timed-out analysis yields exactly one subtask spanning the
// whole task with Fallback set; the task continues on the initiating
// instance. A not-beneficial verdict yields nil.
func (e *Engine) Plan(o Outcome, in Input) *models.CoordinationRequest {
	req := &models.CoordinationRequest{
		TaskDescription:      in.Task,
		WorkingDirectory:     in.WorkDir,
		InitiatingInstanceID: in.Initiator.String(),
	}

	switch o.Kind {
	case OutcomeError, OutcomeTimeout:
		req.NumInstances = 1
		req.Subtasks = []models.Subtask{spanning(in.Task)}
		req.Fallback = true
		req.FallbackReason = FallbackMessage(o.Kind, o.Err, e.timeout())
		return req
	}

	if !o.Beneficial {
		return nil
	}

	subtasks := ParseSubtasks(o.Response)
	if len(subtasks) == 0 {
		subtasks = []models.Subtask{spanning(in.Task)}
	}

	n := in.Requested
	if n <= 0 {
		n = len(subtasks)
	}
	if in.Capacity > 0 && n > in.Capacity {
		n = in.Capacity
	}
	if n < 1 {
		n = 1
	}

	// Fewer subtasks than instances are handed out round-robin.
	req.NumInstances = n
	req.Subtasks = make([]models.Subtask, n)
	for i := range req.Subtasks {
		req.Subtasks[i] = subtasks[i%len(subtasks)]
	}
	return req
}

func spanning(task string) models.Subtask {
	return models.Subtask{Description: task, Scope: NoScope, Priority: models.PriorityMedium}
}
