package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/veda/internal/coordination"
	"github.com/ShayCichocki/veda/internal/journal"
	"github.com/ShayCichocki/veda/internal/stall"
	"github.com/ShayCichocki/veda/pkg/models"
)

type interventionResult struct {
	trigger  stall.Trigger
	response string
	err      error
	timedOut bool
	timeout  time.Duration
}

// checkStalls runs the detector and dispatches every trigger either to
// coordination, when the last assistant message explicitly asks for it, or
// to an analyzer intervention.
func (o *Orchestrator) checkStalls() {
	s := o.Settings()
	if !s.AutoMode {
		return
	}

	d := stall.Detector{Threshold: s.StallThreshold, RequireUserMessage: s.RequireUserMessage}
	for _, t := range d.Check(o.now(), o.registry.Iter()) {
		inst := o.registry.Get(t.InstanceID)
		if inst == nil {
			continue
		}

		o.log.Info("stall detected", zap.String("instance", t.Name), zap.Duration("idle", t.Idle))
		o.record(journal.Entry{
			Kind:         journal.KindStallIntervention,
			InstanceID:   t.InstanceID.String(),
			InstanceName: t.Name,
			Detail:       fmt.Sprintf("detected idle=%s", t.Idle.Round(time.Second)),
		})
		o.emit(Event{
			Type:         EventStallDetected,
			InstanceID:   t.InstanceID.String(),
			InstanceName: t.Name,
			Message:      stall.Notice(t.Idle),
		})

		if _, ok := coordination.ExplicitRequest(t.LastAssistant); ok && s.CoordinationEnabled && !o.atCapacity(s) {
			started := o.startCoordination(inst, coordinationJob{
				source: sourceStall,
				input: coordination.Input{
					Task:      t.LastAssistant,
					WorkDir:   inst.WorkDir(),
					Initiator: inst.ID(),
					Capacity:  o.capacity(s),
				},
			})
			if started {
				continue
			}
		}

		if o.opts.analyzer == nil {
			o.notify(inst, "No analyzer configured - stall intervention skipped.")
			_ = inst.EndStallCheck()
			continue
		}
		o.startIntervention(t, s.InterventionTimeout)
	}
}

// startIntervention asks the analyzer for a message that gets the stalled
// instance moving again.
func (o *Orchestrator) startIntervention(t stall.Trigger, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultSettings().InterventionTimeout
	}
	analyzer := o.opts.analyzer
	prompt := stall.Prompt(t)

	o.bg.Add(1)
	go func() {
		defer o.bg.Done()

		ctx, cancel := context.WithTimeout(o.bgCtx, timeout)
		defer cancel()

		resp, err := analyzer.Analyze(ctx, prompt)
		res := interventionResult{trigger: t, response: resp, err: err, timeout: timeout}
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.timedOut = true
		}

		select {
		case o.results <- res:
		case <-o.bgCtx.Done():
		}
	}()
}

// handleIntervention delivers the analyzer's reply to the stalled instance.
// In auto mode the reply starts a new turn; otherwise it is only shown.
func (o *Orchestrator) handleIntervention(ctx context.Context, r interventionResult) {
	inst := o.registry.Get(r.trigger.InstanceID)
	if inst == nil {
		return
	}
	log := o.log.With(zap.String("instance", inst.Name()))

	var detail string
	switch {
	case r.timedOut:
		detail = fmt.Sprintf("Stall analysis timed out after %s", r.timeout)
		o.notify(inst, detail)
		_ = inst.EndStallCheck()
	case r.err != nil:
		detail = fmt.Sprintf("Stall analysis failed: %v", r.err)
		o.notify(inst, detail)
		_ = inst.EndStallCheck()
	default:
		reply := stall.ExtractReply(r.response)
		_ = inst.EndStallCheck()
		switch {
		case reply == "":
			detail = "Stall analysis produced no message."
			o.notify(inst, detail)
		case o.Settings().AutoMode:
			detail = "sent: " + reply
			if err := inst.SendAs(ctx, models.SenderAnalyzer, reply); err != nil {
				log.Warn("intervention send failed", zap.Error(err))
				detail = fmt.Sprintf("Could not deliver stall intervention: %v", err)
				_ = inst.Append(models.SenderAnalyzer, reply)
				o.notify(inst, detail)
			}
		default:
			detail = "shown: " + reply
			_ = inst.Append(models.SenderAnalyzer, reply)
		}
	}

	log.Info("stall intervention finished", zap.String("detail", detail))
	o.record(journal.Entry{
		Kind:         journal.KindStallIntervention,
		InstanceID:   inst.ID().String(),
		InstanceName: inst.Name(),
		Detail:       detail,
	})
	o.emit(Event{
		Type:         EventStallIntervention,
		InstanceID:   inst.ID().String(),
		InstanceName: inst.Name(),
		Message:      detail,
		Error:        r.err,
	})
}
