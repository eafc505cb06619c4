package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/veda/internal/orchestrator"
	"github.com/ShayCichocki/veda/internal/tui"
)

// runTUI shows the session until the user quits or the orchestrator stops.
func runTUI(ctx context.Context, orch *orchestrator.Orchestrator, refresh time.Duration) error {
	program, _ := tui.NewProgram(orch, refresh)

	go forwardEventsToTUI(orch, program)
	go func() {
		select {
		case <-ctx.Done():
		case <-orch.Done():
		}
		program.Send(tui.SessionDoneMsg{Err: ctx.Err()})
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}

// forwardEventsToTUI relays orchestrator events until the event channel
// closes.
func forwardEventsToTUI(orch *orchestrator.Orchestrator, program *tea.Program) {
	for ev := range orch.Events() {
		program.Send(eventMsg(ev))
	}
}

func eventMsg(ev orchestrator.Event) tui.EventMsg {
	msg := tui.EventMsg{
		Type:      string(ev.Type),
		Instance:  ev.InstanceName,
		Message:   ev.Message,
		Timestamp: ev.Timestamp,
	}
	if msg.Message == "" {
		msg.Message = describeEvent(ev.Type)
	}
	if ev.Error != nil {
		msg.Error = ev.Error.Error()
	}
	return msg
}

// describeEvent is the fallback text for events without a message.
func describeEvent(t orchestrator.EventType) string {
	switch t {
	case orchestrator.EventInstanceSpawned:
		return "instance started"
	case orchestrator.EventInstanceClosed:
		return "instance closed"
	case orchestrator.EventSpawnFailed:
		return "spawn failed"
	case orchestrator.EventTurnFinished:
		return "turn finished"
	case orchestrator.EventCoordinationStarted:
		return "coordination started"
	case orchestrator.EventCoordinationFinished:
		return "coordination finished"
	case orchestrator.EventStallDetected:
		return "stall detected"
	case orchestrator.EventStallIntervention:
		return "stall intervention finished"
	default:
		return string(t)
	}
}
