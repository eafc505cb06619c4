// Package stall detects instances whose conversation has gone quiet and
// prepares the context for an automated intervention.
package stall

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/veda/internal/instance"
	"github.com/ShayCichocki/veda/pkg/models"
)

// DefaultThreshold is the inactivity period after which an instance is
// considered stalled.
const DefaultThreshold = 5 * time.Minute

// recentUserMessages is how many user messages a Trigger carries.
const recentUserMessages = 3

// Trigger describes one detected stall.
type Trigger struct {
	InstanceID uuid.UUID
	Name       string
	Idle       time.Duration
	// LastAssistant is the most recent visible assistant text.
	LastAssistant string
	// RecentUser holds up to three recent user messages, oldest first.
	RecentUser []string
}

// Detector runs the per-tick stall check.
type Detector struct {
	// Threshold is the inactivity period. Zero means DefaultThreshold.
	Threshold time.Duration
	// RequireUserMessage skips instances that have never received a user
	// message.
	RequireUserMessage bool
}

func (d *Detector) threshold() time.Duration {
	if d.Threshold <= 0 {
		return DefaultThreshold
	}
	return d.Threshold
}

// Check transitions every newly stalled instance to StallCheckPending,
// appends one system message to it and returns a Trigger for it.
// Instances with a pending stall check or coordination are skipped, so a
// stall window fires at most once.
func (d *Detector) Check(now time.Time, instances []*instance.Instance) []Trigger {
	var triggers []Trigger
	threshold := d.threshold()

	for _, inst := range instances {
		if inst.Closed() || inst.StallCheckSent() || inst.CoordinationInProgress() {
			continue
		}
		switch inst.State() {
		case models.StateAvailable, models.StateWorking:
		default:
			continue
		}
		if d.RequireUserMessage && !inst.HasUserMessage() {
			continue
		}

		idle := now.Sub(inst.LastActivity())
		if idle <= threshold {
			continue
		}

		fired, err := inst.BeginStallCheck(Notice(idle))
		if err != nil || !fired {
			continue
		}
		triggers = append(triggers, Trigger{
			InstanceID:    inst.ID(),
			Name:          inst.Name(),
			Idle:          idle,
			LastAssistant: inst.LastAssistantMessage(),
			RecentUser:    inst.RecentUserMessages(recentUserMessages),
		})
	}
	return triggers
}

// Notice is the system message appended when a stall is detected.
func Notice(idle time.Duration) string {
	return fmt.Sprintf("Conversation stalled (%ds) - analyzing...", int(idle.Seconds()))
}
