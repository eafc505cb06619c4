package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ShayCichocki/veda/internal/coordination"
	"github.com/ShayCichocki/veda/internal/ipc"
	"github.com/ShayCichocki/veda/internal/journal"
	"github.com/ShayCichocki/veda/pkg/models"
)

// Verify Orchestrator implements the IPC surfaces at compile time.
var (
	_ ipc.Host    = (*Orchestrator)(nil)
	_ ipc.Handler = (*Orchestrator)(nil)
)

// DefaultInstance returns the main instance id.
func (o *Orchestrator) DefaultInstance() uuid.UUID {
	return o.registry.Main()
}

// Instances returns views of all instances in display order.
func (o *Orchestrator) Instances() []models.InstanceView {
	return o.registry.Snapshot()
}

// CurrentInstance returns the focused instance id, or uuid.Nil.
func (o *Orchestrator) CurrentInstance() uuid.UUID {
	if cur := o.registry.Current(); cur != nil {
		return cur.ID()
	}
	return uuid.Nil
}

// SpawnInstances starts a breakdown of task into n instances on behalf of
// requester. Explicit requests skip the assessment and are honoured even
// when automatic coordination is toggled off.
func (o *Orchestrator) SpawnInstances(_ context.Context, requester uuid.UUID, task string, n int) (int, error) {
	inst := o.registry.Get(requester)
	if inst == nil {
		return 0, fmt.Errorf("%w: %s", ipc.ErrInstanceNotFound, requester)
	}

	s := o.Settings()
	if o.atCapacity(s) {
		return 0, fmt.Errorf("%w (%d)", ErrAtCapacity, s.MaxInstances)
	}
	if n <= 0 {
		n = ipc.DefaultSpawnCount
	}
	if c := o.capacity(s); s.MaxInstances > 0 && n > c {
		n = c
	}

	started := o.startCoordination(inst, coordinationJob{
		source:        sourceIPC,
		breakdownOnly: true,
		input: coordination.Input{
			Task:      task,
			WorkDir:   inst.WorkDir(),
			Initiator: inst.ID(),
			Requested: n,
			Capacity:  o.capacity(s),
		},
	})
	if !started {
		return 0, fmt.Errorf("%w: %s", ErrCoordinationInFlight, inst.Name())
	}
	return n, nil
}

// CloseInstance closes and removes the instance with id.
func (o *Orchestrator) CloseInstance(id uuid.UUID) error {
	inst := o.registry.Get(id)
	if inst == nil {
		return fmt.Errorf("%w: %s", ipc.ErrInstanceNotFound, id)
	}
	name := inst.Name()
	o.registry.Remove(id)

	o.record(journal.Entry{Kind: journal.KindInstanceClosed, InstanceID: id.String(), InstanceName: name})
	o.emit(Event{Type: EventInstanceClosed, InstanceID: id.String(), InstanceName: name})
	return nil
}
