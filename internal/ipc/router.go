package ipc

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/veda/pkg/models"
)

// Host is the orchestrator surface the Router acts on. Its methods are
// called from the orchestration loop only.
type Host interface {
	// DefaultInstance returns the main instance id.
	DefaultInstance() uuid.UUID
	// Instances returns views of all instances in display order.
	Instances() []models.InstanceView
	// CurrentInstance returns the focused instance id.
	CurrentInstance() uuid.UUID
	// SpawnInstances starts coordination of task across n new instances on
	// behalf of requester. It returns once the request is accepted.
	SpawnInstances(ctx context.Context, requester uuid.UUID, task string, n int) (int, error)
	// CloseInstance closes the instance with id.
	CloseInstance(id uuid.UUID) error
}

// Router executes decoded commands against a Host.
type Router struct {
	host Host
	log  *zap.Logger
}

// NewRouter creates a Router.
func NewRouter(host Host, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{host: host, log: log}
}

// Route resolves the addressee of cmd and executes it. Resolution failures
// are reported without touching any state.
func (r *Router) Route(ctx context.Context, cmd Command) Reply {
	addressee, err := Resolve(cmd, r.host.DefaultInstance())
	if err != nil {
		r.log.Warn("ipc resolution failed", zap.String("type", string(cmd.Type())), zap.Error(err))
		return Failure(err)
	}

	log := r.log.With(zap.String("type", string(cmd.Type())), zap.String("addressee", addressee.String()))
	log.Debug("routing ipc command")

	switch c := cmd.(type) {
	case SpawnInstances:
		return r.spawn(ctx, log, addressee, c)
	case ListInstances:
		if !r.live(addressee) {
			return Failure(fmt.Errorf("%w: %s", ErrInstanceNotFound, addressee))
		}
		return r.list(addressee)
	case CloseInstance:
		return r.close(log, c)
	default:
		return Failure(fmt.Errorf("%w: unsupported command %T", ErrInvalidCommand, cmd))
	}
}

func (r *Router) spawn(ctx context.Context, log *zap.Logger, requester uuid.UUID, c SpawnInstances) Reply {
	if !r.live(requester) {
		log.Warn("spawn request from unknown instance")
		return Failure(fmt.Errorf("%w: %s", ErrInstanceNotFound, requester))
	}

	n, err := r.host.SpawnInstances(ctx, requester, c.TaskDescription, c.NumInstances)
	if err != nil {
		log.Warn("spawn request rejected", zap.Error(err))
		return Failure(err)
	}
	return Reply{
		OK:      true,
		Message: fmt.Sprintf("Coordinating %d new instance(s) for task: %s", n, c.TaskDescription),
	}
}

func (r *Router) live(id uuid.UUID) bool {
	for _, v := range r.host.Instances() {
		if v.ID == id.String() {
			return true
		}
	}
	return false
}

func (r *Router) list(requester uuid.UUID) Reply {
	views := r.host.Instances()
	main := r.host.DefaultInstance().String()
	current := r.host.CurrentInstance().String()

	var b strings.Builder
	fmt.Fprintf(&b, "Active instances (%d):\n", len(views))
	summaries := make([]InstanceSummary, 0, len(views))
	for _, v := range views {
		s := InstanceSummary{
			ID:      v.ID,
			Name:    v.Name,
			State:   string(v.State),
			Main:    v.ID == main,
			Current: v.ID == current,
		}
		summaries = append(summaries, s)

		var marks []string
		if s.Main {
			marks = append(marks, "main")
		}
		if s.Current {
			marks = append(marks, "current")
		}
		if v.ID == requester.String() {
			marks = append(marks, "you")
		}
		line := fmt.Sprintf("- %s (%s) %s", v.Name, v.ID, v.State.Label())
		if len(marks) > 0 {
			line += " [" + strings.Join(marks, ", ") + "]"
		}
		b.WriteString(line + "\n")
	}

	return Reply{OK: true, Message: strings.TrimRight(b.String(), "\n"), Instances: summaries}
}

// close resolves by name only; the command's target id plays no part.
func (r *Router) close(log *zap.Logger, c CloseInstance) Reply {
	views := r.host.Instances()

	var target *models.InstanceView
	for i := range views {
		if views[i].Name == c.InstanceName {
			target = &views[i]
			break
		}
	}
	if target == nil {
		return Failure(fmt.Errorf("%w: %s", ErrInstanceNotFound, c.InstanceName))
	}
	if target.ID == r.host.DefaultInstance().String() {
		return Failure(fmt.Errorf("%w: %s", ErrCloseMain, c.InstanceName))
	}
	if len(views) == 1 {
		return Failure(fmt.Errorf("%w: %s", ErrCloseLast, c.InstanceName))
	}

	id, err := uuid.Parse(target.ID)
	if err != nil {
		return Failure(err)
	}
	if err := r.host.CloseInstance(id); err != nil {
		return Failure(err)
	}
	log.Info("instance closed via ipc", zap.String("name", c.InstanceName))
	return Reply{OK: true, Message: fmt.Sprintf("Closed instance %s", c.InstanceName)}
}
