package instance

import (
	"time"

	"github.com/ShayCichocki/veda/pkg/models"
)

// State returns the current activity state.
func (i *Instance) State() models.ActivityState {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// LastActivity returns when the last protocol event was ingested.
func (i *Instance) LastActivity() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastActivity
}

// StallCheckSent reports whether a stall intervention is pending for the
// current inactivity window.
func (i *Instance) StallCheckSent() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.stallCheckSent
}

// CoordinationInProgress reports whether a coordination decision is in flight.
func (i *Instance) CoordinationInProgress() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.coordinating
}

// ClaudeSessionID returns the session reported by the subprocess, if any.
func (i *Instance) ClaudeSessionID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.claudeSession
}

// Busy reports whether a subprocess turn is still running.
func (i *Instance) Busy() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.turnDone == nil {
		return false
	}
	select {
	case <-i.turnDone:
		return false
	default:
		return true
	}
}

// BeginStallCheck marks the instance as stalled for the current inactivity
// window and appends notice as a system message. It returns false without
// changes when a check is already pending, coordination is in flight, or the
// state is not Available or WorkingOnTask.
func (i *Instance) BeginStallCheck(notice string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return false, ErrClosed
	}
	if i.stallCheckSent || i.coordinating {
		return false, nil
	}
	if i.state != models.StateAvailable && i.state != models.StateWorking {
		return false, nil
	}
	i.stallCheckSent = true
	i.preStall = i.state
	i.state = models.StateStallCheckPending
	i.appendLocked(models.SenderSystem, notice)
	return true, nil
}

// BeginCoordination sets the coordination guard. It returns false when a
// coordination attempt is already in flight.
func (i *Instance) BeginCoordination() (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return false, ErrClosed
	}
	if i.coordinating {
		return false, nil
	}
	i.coordinating = true
	if i.state == models.StateStallCheckPending {
		i.state = models.StateCoordinating
	}
	return true, nil
}

// EndCoordination clears the coordination guard. An instance in
// CoordinationInProgress returns to Available.
func (i *Instance) EndCoordination() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	i.coordinating = false
	if i.state == models.StateCoordinating {
		i.state = models.StateAvailable
		i.stallCheckSent = false
	}
	return nil
}

// EndStallCheck clears a pending stall check that produced no further
// action, restoring the prior state.
func (i *Instance) EndStallCheck() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	if i.state == models.StateStallCheckPending {
		i.state = i.preStall
	}
	return nil
}

// HasUserMessage reports whether the transcript contains a user message.
func (i *Instance) HasUserMessage() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for _, m := range i.transcript {
		if m.Sender == models.SenderUser {
			return true
		}
	}
	return false
}

// LastAssistantMessage returns the most recent non-thinking assistant text.
func (i *Instance) LastAssistantMessage() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for j := len(i.transcript) - 1; j >= 0; j-- {
		m := i.transcript[j]
		if m.Sender == models.SenderAssistant && !m.IsThinking && m.Content != "" {
			return m.Content
		}
	}
	return ""
}

// RecentUserMessages returns up to n user messages, oldest first.
func (i *Instance) RecentUserMessages(n int) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []string
	for j := len(i.transcript) - 1; j >= 0 && len(out) < n; j-- {
		if i.transcript[j].Sender == models.SenderUser {
			out = append(out, i.transcript[j].Content)
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// Transcript returns a copy of the transcript.
func (i *Instance) Transcript() []models.Message {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]models.Message(nil), i.transcript...)
}

// View returns a read-only snapshot for rendering and listings.
func (i *Instance) View() models.InstanceView {
	i.mu.RLock()
	defer i.mu.RUnlock()

	pid := 0
	if i.runner != nil {
		pid = i.runner.PID()
	}
	return models.InstanceView{
		ID:                     i.id.String(),
		Name:                   i.name,
		WorkingDirectory:       i.workDir,
		State:                  i.state,
		LastActivityAt:         i.lastActivity,
		StallCheckSent:         i.stallCheckSent,
		CoordinationInProgress: i.coordinating,
		SessionID:              i.claudeSession,
		PID:                    pid,
		Closed:                 i.closed,
		Transcript:             append([]models.Message(nil), i.transcript...),
		ToolAttempts:           append([]string(nil), i.toolAttempts...),
	}
}
