package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/veda/internal/coordination"
	"github.com/ShayCichocki/veda/internal/instance"
	"github.com/ShayCichocki/veda/internal/ipc"
	"github.com/ShayCichocki/veda/internal/journal"
	"github.com/ShayCichocki/veda/internal/protocol"
	"github.com/ShayCichocki/veda/pkg/models"
)

// input is a user action queued for the loop.
type input interface{ isInput() }

type promptInput struct{ text string }

type newInstanceInput struct{}

type closeCurrentInput struct{}

type toggleInput struct{ auto, coordination bool }

func (promptInput) isInput()       {}
func (newInstanceInput) isInput()  {}
func (closeCurrentInput) isInput() {}
func (toggleInput) isInput()       {}

// ipcRequest carries one IPC command to the loop and its reply back.
type ipcRequest struct {
	cmd   ipc.Command
	reply chan ipc.Reply
}

// result is the outcome of background analysis delivered to the loop.
type result interface{ isResult() }

func (coordinationResult) isResult() {}
func (interventionResult) isResult() {}

// Run bootstraps the main instance and runs the orchestration loop until
// ctx is cancelled. All instance state changes happen on this goroutine.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer o.shutdown()

	o.log.Info("orchestrator starting", zap.String("work_dir", o.workDir))
	if _, err := o.spawnInstance(ctx, o.registry.NextName(), o.workDir, o.opts.initialPrompt); err != nil {
		return fmt.Errorf("start main instance: %w", err)
	}

	ticker := time.NewTicker(o.opts.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("orchestrator stopping", zap.Error(ctx.Err()))
			return nil
		case in := <-o.inputs:
			o.handleInput(ctx, in)
		case req := <-o.ipcReqs:
			req.reply <- o.handleIPC(ctx, req.cmd)
		case res := <-o.results:
			o.handleResult(ctx, res)
		case <-ticker.C:
			o.tick()
		}
	}
}

// shutdown stops background analysis, closes every instance and releases
// waiters.
func (o *Orchestrator) shutdown() {
	o.bgCancel()
	o.bg.Wait()
	o.registry.CloseAll()
	close(o.done)
	o.emitter.Close()
	o.log.Info("orchestrator stopped")
}

// tick drains pending subprocess events into every instance and runs the
// stall check.
func (o *Orchestrator) tick() {
	for _, inst := range o.registry.Iter() {
		o.drain(inst)
	}
	o.checkStalls()
}

func (o *Orchestrator) drain(inst *instance.Instance) {
	for n := 0; n < maxEventsPerTick; n++ {
		select {
		case ev, ok := <-inst.Events():
			if !ok {
				return
			}
			if err := inst.Ingest(ev); err != nil {
				return
			}
			if _, isEnd := ev.(protocol.End); isEnd {
				o.afterTurn(inst)
			}
		default:
			return
		}
	}
}

// afterTurn assesses a finished turn for automatic coordination.
func (o *Orchestrator) afterTurn(inst *instance.Instance) {
	o.emit(Event{
		Type:         EventTurnFinished,
		InstanceID:   inst.ID().String(),
		InstanceName: inst.Name(),
	})

	s := o.Settings()
	if !s.AutoMode || !s.CoordinationEnabled || o.atCapacity(s) {
		return
	}
	msg := inst.LastAssistantMessage()
	if strings.TrimSpace(msg) == "" {
		return
	}
	if o.opts.analyzer == nil {
		if _, ok := coordination.ExplicitRequest(msg); !ok {
			return
		}
	}
	o.startCoordination(inst, coordinationJob{
		source: sourceTurn,
		input: coordination.Input{
			Task:      msg,
			WorkDir:   inst.WorkDir(),
			Initiator: inst.ID(),
			Capacity:  o.capacity(s),
		},
	})
}

func (o *Orchestrator) handleInput(ctx context.Context, in input) {
	switch in := in.(type) {
	case promptInput:
		o.handlePrompt(ctx, in.text)
	case newInstanceInput:
		if o.atCapacity(o.Settings()) {
			o.notifyCurrent(fmt.Sprintf("Instance limit reached (%d).", o.Settings().MaxInstances))
			return
		}
		if _, err := o.spawnInstance(ctx, o.registry.NextName(), o.workDir, ""); err == nil {
			o.registry.SetCurrent(o.registry.Len() - 1)
		}
	case closeCurrentInput:
		cur := o.registry.Current()
		if cur == nil {
			return
		}
		reply := o.router.Route(ctx, ipc.CloseInstance{InstanceName: cur.Name()})
		if !reply.OK {
			o.notify(cur, reply.Error)
		}
	case toggleInput:
		o.handleToggle(in)
	}
}

func (o *Orchestrator) handleToggle(in toggleInput) {
	s := o.updateSettings(func(s *Settings) {
		if in.auto {
			s.AutoMode = !s.AutoMode
		}
		if in.coordination {
			s.CoordinationEnabled = !s.CoordinationEnabled
		}
	})
	switch {
	case in.auto:
		o.notifyCurrent("Auto mode " + onOff(s.AutoMode))
	case in.coordination:
		o.notifyCurrent("Multi-instance coordination " + onOff(s.CoordinationEnabled))
	}
}

func onOff(b bool) string {
	if b {
		return "ENABLED"
	}
	return "DISABLED"
}

// cdPrefix marks input that changes the working directory.
const cdPrefix = "!cd "

func (o *Orchestrator) handlePrompt(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	inst := o.registry.Current()
	if inst == nil || text == "" {
		return
	}

	if strings.HasPrefix(text, cdPrefix) {
		o.changeDir(inst, strings.TrimSpace(strings.TrimPrefix(text, cdPrefix)))
		return
	}

	if err := inst.Send(ctx, text); err != nil {
		o.log.Warn("send failed", zap.String("instance", inst.Name()), zap.Error(err))
		o.notify(inst, fmt.Sprintf("Could not send message: %v", err))
		return
	}

	s := o.Settings()
	if !s.CoordinationEnabled || o.atCapacity(s) {
		return
	}
	if _, ok := coordination.ExplicitRequest(text); !ok {
		return
	}
	o.startCoordination(inst, coordinationJob{
		source: sourceUser,
		input: coordination.Input{
			Task:      text,
			WorkDir:   inst.WorkDir(),
			Initiator: inst.ID(),
			Capacity:  o.capacity(s),
		},
	})
}

// changeDir sets the working directory used by the instance's next turn.
func (o *Orchestrator) changeDir(inst *instance.Instance, path string) {
	dir, err := resolveDir(inst.WorkDir(), path)
	if err == nil {
		err = inst.SetWorkDir(dir)
	}
	if err != nil {
		o.notify(inst, fmt.Sprintf("Could not change directory: %v", err))
		return
	}
	o.log.Info("working directory changed", zap.String("instance", inst.Name()), zap.String("dir", dir))
	o.notify(inst, "Working directory: "+dir)
}

func resolveDir(base, path string) (string, error) {
	if path == "" || path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", path)
	}
	return path, nil
}

func (o *Orchestrator) handleIPC(ctx context.Context, cmd ipc.Command) ipc.Reply {
	reply := o.router.Route(ctx, cmd)

	detail := string(cmd.Type())
	if !reply.OK {
		detail += ": " + reply.Error
	}
	var target string
	if t := cmd.Target(); t != nil {
		target = *t
	}
	o.record(journal.Entry{Kind: journal.KindIPCCommand, InstanceID: target, Detail: detail})
	return reply
}

func (o *Orchestrator) handleResult(ctx context.Context, res result) {
	switch r := res.(type) {
	case coordinationResult:
		o.handleCoordination(ctx, r)
	case interventionResult:
		o.handleIntervention(ctx, r)
	}
}

// notify appends a system message to inst, ignoring closed instances.
func (o *Orchestrator) notify(inst *instance.Instance, msg string) {
	if inst == nil || msg == "" {
		return
	}
	_ = inst.Append(models.SenderSystem, msg)
}

func (o *Orchestrator) notifyCurrent(msg string) {
	o.notify(o.registry.Current(), msg)
}
