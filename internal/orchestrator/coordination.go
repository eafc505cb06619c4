package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/veda/internal/coordination"
	"github.com/ShayCichocki/veda/internal/instance"
	"github.com/ShayCichocki/veda/internal/journal"
	"github.com/ShayCichocki/veda/pkg/models"
)

// coordinationSource says what triggered a coordination attempt.
type coordinationSource string

const (
	sourceTurn  coordinationSource = "turn"
	sourceUser  coordinationSource = "user"
	sourceStall coordinationSource = "stall"
	sourceIPC   coordinationSource = "ipc"
)

type coordinationJob struct {
	source coordinationSource
	// breakdownOnly skips the assessment; the caller already asked for
	// coordination.
	breakdownOnly bool
	input         coordination.Input
}

type coordinationResult struct {
	job      coordinationJob
	decision coordination.Decision
}

// startCoordination sets the initiator's coordination guard and runs the
// decision in the background. It reports false when the guard was already
// held.
func (o *Orchestrator) startCoordination(inst *instance.Instance, job coordinationJob) bool {
	ok, err := inst.BeginCoordination()
	if err != nil || !ok {
		return false
	}
	o.pending.Add(1)

	log := o.log.With(zap.String("instance", inst.Name()), zap.String("source", string(job.source)))
	log.Info("coordination started", zap.Bool("breakdown_only", job.breakdownOnly))
	o.emit(Event{
		Type:         EventCoordinationStarted,
		InstanceID:   inst.ID().String(),
		InstanceName: inst.Name(),
		Message:      string(job.source),
	})

	engine := o.engine(o.Settings())
	engine.Logger = log

	o.bg.Add(1)
	go func() {
		defer o.bg.Done()

		var d coordination.Decision
		if job.breakdownOnly {
			out := engine.Breakdown(o.bgCtx, job.input.Task, job.input.WorkDir, job.input.Requested)
			d = coordination.Decision{Outcome: out, Request: engine.Plan(out, job.input)}
		} else {
			d = engine.Decide(o.bgCtx, job.input)
		}

		select {
		case o.results <- coordinationResult{job: job, decision: d}:
		case <-o.bgCtx.Done():
		}
	}()
	return true
}

// handleCoordination applies a finished decision. The initiator's guard is
// cleared whatever the outcome.
func (o *Orchestrator) handleCoordination(ctx context.Context, r coordinationResult) {
	o.pending.Add(-1)

	inst := o.registry.Get(r.job.input.Initiator)
	if inst != nil {
		defer func() { _ = inst.EndCoordination() }()
	}

	d := r.decision
	o.record(journal.Entry{
		Kind:         journal.KindCoordination,
		InstanceID:   r.job.input.Initiator.String(),
		InstanceName: nameOf(inst),
		Detail:       coordinationDetail(r.job, d),
	})

	var msg string
	switch {
	case d.Request == nil:
		if r.job.source != sourceTurn {
			msg = "Coordination not beneficial - continuing with a single instance."
		}
	case d.Request.Fallback:
		msg = d.Request.FallbackReason
	default:
		msg = o.spawnSubtasks(ctx, inst, d.Request)
	}
	o.notify(inst, msg)

	o.emit(Event{
		Type:         EventCoordinationFinished,
		InstanceID:   r.job.input.Initiator.String(),
		InstanceName: nameOf(inst),
		Message:      msg,
	})
}

// spawnSubtasks starts one instance per subtask, bounded by the remaining
// capacity, and returns the summary for the initiator.
func (o *Orchestrator) spawnSubtasks(ctx context.Context, initiator *instance.Instance, req *models.CoordinationRequest) string {
	subtasks := req.Subtasks
	if s := o.Settings(); s.MaxInstances > 0 {
		c := o.capacity(s)
		if c <= 0 {
			return "Instance limit reached - continuing with a single instance."
		}
		if len(subtasks) > c {
			subtasks = subtasks[:c]
		}
	}

	names := o.registry.NextNames(len(subtasks))
	var spawned, failed []string
	for i, st := range subtasks {
		_, err := o.spawnInstance(ctx, names[i], req.WorkingDirectory, coordination.Instruction(st, req.WorkingDirectory))
		if err != nil {
			failed = append(failed, fmt.Sprintf("Failed to spawn %s: %v", names[i], err))
			continue
		}
		spawned = append(spawned, names[i])
	}

	var b strings.Builder
	if len(spawned) > 0 {
		fmt.Fprintf(&b, "Spawned %d instance(s) for coordinated work: %s", len(spawned), strings.Join(spawned, ", "))
	}
	for _, f := range failed {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(f)
	}
	o.log.Info("coordination applied",
		zap.String("initiator", nameOf(initiator)),
		zap.Strings("spawned", spawned),
		zap.Int("failed", len(failed)))
	return b.String()
}

// spawnInstance creates and registers an instance. A non-empty prompt starts
// its first turn immediately.
func (o *Orchestrator) spawnInstance(ctx context.Context, name, workDir, prompt string) (*instance.Instance, error) {
	inst, err := instance.Spawn(ctx, instance.Options{
		Name:      name,
		WorkDir:   workDir,
		Prompt:    prompt,
		SessionID: o.sessionID,
		Factory:   o.factory,
		Process:   o.opts.process,
		Logger:    o.log,
		Now:       o.opts.now,
	})
	if err == nil {
		if err = o.registry.Insert(inst); err != nil {
			inst.Close()
		}
	}
	if err != nil {
		o.log.Error("spawn failed", zap.String("instance", name), zap.Error(err))
		o.record(journal.Entry{Kind: journal.KindSpawnFailed, InstanceName: name, Detail: err.Error()})
		o.emit(Event{Type: EventSpawnFailed, InstanceName: name, Error: err})
		return nil, err
	}

	o.log.Info("instance spawned", zap.String("instance", name), zap.String("work_dir", workDir))
	o.record(journal.Entry{
		Kind:         journal.KindInstanceSpawned,
		InstanceID:   inst.ID().String(),
		InstanceName: name,
		Detail:       workDir,
	})
	o.emit(Event{Type: EventInstanceSpawned, InstanceID: inst.ID().String(), InstanceName: name})
	return inst, nil
}

func coordinationDetail(job coordinationJob, d coordination.Decision) string {
	detail := fmt.Sprintf("source=%s outcome=%s", job.source, d.Outcome.Kind)
	switch {
	case d.Request == nil:
		detail += " beneficial=false"
	case d.Request.Fallback:
		detail += " fallback=true"
	default:
		detail += fmt.Sprintf(" instances=%d", d.Request.NumInstances)
	}
	if d.Outcome.Phrase != "" {
		detail += fmt.Sprintf(" phrase=%q", d.Outcome.Phrase)
	}
	return detail
}

func nameOf(inst *instance.Instance) string {
	if inst == nil {
		return ""
	}
	return inst.Name()
}
