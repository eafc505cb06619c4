package coordination

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/veda/pkg/models"
)

type countingAnalyzer struct {
	calls atomic.Int32
	reply func(prompt string) (string, error)
}

func (a *countingAnalyzer) Analyze(ctx context.Context, prompt string) (string, error) {
	a.calls.Add(1)
	return a.reply(prompt)
}

type blockingAnalyzer struct{}

func (blockingAnalyzer) Analyze(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestAssess_ExplicitPhraseSkipsAnalyzer(t *testing.T) {
	a := &countingAnalyzer{reply: func(string) (string, error) { return VerdictSingle, nil }}
	e := &Engine{Analyzer: a}

	for _, phrase := range explicitPhrases {
		msg := "Please " + strings.ToUpper(phrase) + " for the migration."
		out := e.Assess(context.Background(), msg)
		assert.Equal(t, OutcomeSuccess, out.Kind)
		assert.True(t, out.Beneficial, "phrase %q", phrase)
		assert.Equal(t, phrase, out.Phrase)
	}
	assert.Zero(t, a.calls.Load())
}

func TestAssess_AnalyzerVerdicts(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		err        error
		kind       OutcomeKind
		beneficial bool
	}{
		{"beneficial", "COORDINATE_BENEFICIAL: separable", nil, OutcomeSuccess, true},
		{"single", "SINGLE_INSTANCE_SUFFICIENT: small", nil, OutcomeSuccess, false},
		{"no verdict", "hmm", nil, OutcomeError, false},
		{"error", "", errors.New("connection refused"), OutcomeError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &countingAnalyzer{reply: func(string) (string, error) { return tt.reply, tt.err }}
			out := (&Engine{Analyzer: a}).Assess(context.Background(), "refactor the parser")
			assert.Equal(t, tt.kind, out.Kind)
			assert.Equal(t, tt.beneficial, out.Beneficial)
			assert.EqualValues(t, 1, a.calls.Load())
		})
	}
}

func TestAssess_Timeout(t *testing.T) {
	e := &Engine{Analyzer: blockingAnalyzer{}, Timeout: 20 * time.Millisecond}
	out := e.Assess(context.Background(), "refactor the parser")
	assert.Equal(t, OutcomeTimeout, out.Kind)
}

func TestPlan_FallbackIsOneSpanningSubtask(t *testing.T) {
	e := &Engine{Timeout: time.Minute}
	in := Input{Task: "rewrite the build", WorkDir: "/repo", Initiator: uuid.New(), Requested: 4, Capacity: 5}

	for _, o := range []Outcome{
		{Kind: OutcomeTimeout},
		{Kind: OutcomeError, Err: errors.New("boom")},
	} {
		req := e.Plan(o, in)
		require.NotNil(t, req)
		assert.True(t, req.Fallback)
		assert.Equal(t, 1, req.NumInstances)
		require.Len(t, req.Subtasks, 1)
		assert.Equal(t, "rewrite the build", req.Subtasks[0].Description)
		assert.Equal(t, in.Initiator.String(), req.InitiatingInstanceID)
	}

	assert.Contains(t, e.Plan(Outcome{Kind: OutcomeTimeout}, in).FallbackReason, "timed out")
	assert.Contains(t, e.Plan(Outcome{Kind: OutcomeError, Err: errors.New("boom")}, in).FallbackReason, "failed (boom)")
}

func TestPlan_NotBeneficial(t *testing.T) {
	e := &Engine{}
	assert.Nil(t, e.Plan(Outcome{Kind: OutcomeSuccess}, Input{Task: "x"}))
}

func TestPlan_Beneficial(t *testing.T) {
	resp := "SUBTASK_1: a | SCOPE: a/ | PRIORITY: High\nSUBTASK_2: b | SCOPE: b/ | PRIORITY: Low"
	e := &Engine{}

	req := e.Plan(Outcome{Kind: OutcomeSuccess, Beneficial: true, Response: resp}, Input{Task: "t", WorkDir: "/w"})
	require.NotNil(t, req)
	assert.False(t, req.Fallback)
	assert.Equal(t, 2, req.NumInstances)
	assert.Equal(t, "/w", req.WorkingDirectory)

	// More instances than subtasks are assigned round-robin.
	req = e.Plan(Outcome{Kind: OutcomeSuccess, Beneficial: true, Response: resp}, Input{Task: "t", Requested: 3})
	require.Len(t, req.Subtasks, 3)
	assert.Equal(t, "a", req.Subtasks[2].Description)

	// Capacity clamps.
	req = e.Plan(Outcome{Kind: OutcomeSuccess, Beneficial: true, Response: resp}, Input{Task: "t", Requested: 5, Capacity: 1})
	assert.Equal(t, 1, req.NumInstances)

	// Unparsable beneficial response spans the task.
	req = e.Plan(Outcome{Kind: OutcomeSuccess, Beneficial: true, Response: "yes"}, Input{Task: "whole task"})
	require.Len(t, req.Subtasks, 1)
	assert.Equal(t, models.Subtask{Description: "whole task", Scope: NoScope, Priority: models.PriorityMedium}, req.Subtasks[0])
}

func TestDecide(t *testing.T) {
	a := &countingAnalyzer{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Break this task") {
			return "SUBTASK_1: api | SCOPE: api/ | PRIORITY: High\nSUBTASK_2: ui | SCOPE: ui/ | PRIORITY: Medium", nil
		}
		return VerdictBeneficial + ": two services", nil
	}}
	e := &Engine{Analyzer: a}

	d := e.Decide(context.Background(), Input{Task: "build api and ui", WorkDir: "/w", Capacity: 4})
	require.NotNil(t, d.Request)
	assert.Equal(t, OutcomeSuccess, d.Outcome.Kind)
	assert.Equal(t, 2, d.Request.NumInstances)
	assert.EqualValues(t, 2, a.calls.Load())
}

func TestDecide_ExplicitThenBreakdownTimeout(t *testing.T) {
	e := &Engine{Analyzer: blockingAnalyzer{}, Timeout: 20 * time.Millisecond}

	d := e.Decide(context.Background(), Input{Task: "work in parallel on docs"})
	assert.Equal(t, OutcomeTimeout, d.Outcome.Kind)
	assert.Equal(t, "work in parallel", d.Outcome.Phrase)
	require.NotNil(t, d.Request)
	assert.True(t, d.Request.Fallback)
	assert.Len(t, d.Request.Subtasks, 1)
}

func TestInstruction(t *testing.T) {
	msg := Instruction(models.Subtask{Description: "Add tests", Scope: "pkg/", Priority: models.PriorityHigh}, "/repo")
	assert.Contains(t, msg, "MULTI-INSTANCE COORDINATION MODE")
	assert.Contains(t, msg, "YOUR ASSIGNED SUBTASK: Add tests")
	assert.Contains(t, msg, "SCOPE: pkg/")
	assert.Contains(t, msg, "PRIORITY: High")
	assert.Contains(t, msg, "WORKING DIRECTORY: /repo")
}

func TestOutcomeKind_String(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "timeout", OutcomeTimeout.String())
	assert.Equal(t, "error", OutcomeError.String())
}
