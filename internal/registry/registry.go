// Package registry maps instance identity to Instance and tracks the
// focused selection.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ShayCichocki/veda/internal/instance"
	"github.com/ShayCichocki/veda/pkg/models"
)

// NamePrefix is the prefix of generated instance names.
const NamePrefix = "Veda-"

var (
	// ErrDuplicateID is returned when inserting an id already present.
	ErrDuplicateID = errors.New("instance id already registered")
	// ErrDuplicateName is returned when inserting a name already present.
	ErrDuplicateName = errors.New("instance name already registered")
)

// Registry manages instances in insertion order.
// Every mutating operation is atomic with respect to readers.
type Registry struct {
	// ids holds instance ids in insertion order.
	ids []uuid.UUID
	// instances maps ids to instances.
	instances map[uuid.UUID]*instance.Instance
	// main is the first instance inserted; IPC commands without a target
	// resolve to it.
	main uuid.UUID
	// current is the index of the focused instance, -1 when empty.
	current int
	// mu protects all fields.
	mu sync.RWMutex
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		instances: make(map[uuid.UUID]*instance.Instance),
		current:   -1,
	}
}

// Insert adds inst. The first instance inserted becomes the main instance
// and receives focus.
func (r *Registry) Insert(inst *instance.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instances[inst.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, inst.ID())
	}
	for _, other := range r.instances {
		if other.Name() == inst.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateName, inst.Name())
		}
	}

	r.ids = append(r.ids, inst.ID())
	r.instances[inst.ID()] = inst
	if r.main == uuid.Nil {
		r.main = inst.ID()
	}
	if r.current < 0 {
		r.current = 0
	}
	return nil
}

// Remove closes and removes the instance with id. Removing an id that is
// not registered is a no-op. It reports whether an instance was removed.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return false
	}

	idx := r.indexLocked(id)
	delete(r.instances, id)
	r.ids = append(r.ids[:idx], r.ids[idx+1:]...)

	switch {
	case len(r.ids) == 0:
		r.current = -1
	case idx < r.current || r.current >= len(r.ids):
		r.current--
	}
	if r.main == id {
		r.main = uuid.Nil
		if len(r.ids) > 0 {
			r.main = r.ids[0]
		}
	}
	r.mu.Unlock()

	inst.Close()
	return true
}

func (r *Registry) indexLocked(id uuid.UUID) int {
	for i, v := range r.ids {
		if v == id {
			return i
		}
	}
	return -1
}

// Get returns the instance with id, or nil.
func (r *Registry) Get(id uuid.UUID) *instance.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[id]
}

// FindByName returns the instance named name, or nil.
func (r *Registry) FindByName(name string) *instance.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.ids {
		if inst := r.instances[id]; inst.Name() == name {
			return inst
		}
	}
	return nil
}

// Iter returns a snapshot of all instances in insertion order.
func (r *Registry) Iter() []*instance.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*instance.Instance, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.instances[id])
	}
	return out
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// Main returns the main instance id, or uuid.Nil when empty.
func (r *Registry) Main() uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.main
}

// NextName returns the next generated name, continuing from the registry
// size and skipping names already in use.
func (r *Registry) NextName() string {
	return r.NextNames(1)[0]
}

// NextNames returns n distinct generated names.
func (r *Registry) NextNames(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	taken := make(map[string]bool, len(r.ids))
	for _, inst := range r.instances {
		taken[inst.Name()] = true
	}

	names := make([]string, 0, n)
	for k := len(r.ids) + 1; len(names) < n; k++ {
		name := fmt.Sprintf("%s%d", NamePrefix, k)
		if !taken[name] {
			names = append(names, name)
		}
	}
	return names
}

// Current returns the focused instance, or nil when empty.
func (r *Registry) Current() *instance.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current < 0 || r.current >= len(r.ids) {
		return nil
	}
	return r.instances[r.ids[r.current]]
}

// CurrentIndex returns the focused index, or -1 when empty.
func (r *Registry) CurrentIndex() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// SetCurrent focuses the instance at idx. Out-of-range values are ignored.
func (r *Registry) SetCurrent(idx int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.ids) {
		return false
	}
	r.current = idx
	return true
}

// Next moves focus to the following instance, wrapping around.
func (r *Registry) Next() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ids) > 0 {
		r.current = (r.current + 1) % len(r.ids)
	}
}

// Prev moves focus to the preceding instance, wrapping around.
func (r *Registry) Prev() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ids) > 0 {
		r.current = (r.current - 1 + len(r.ids)) % len(r.ids)
	}
}

// Snapshot returns read-only views of all instances in display order.
func (r *Registry) Snapshot() []models.InstanceView {
	insts := r.Iter()
	views := make([]models.InstanceView, 0, len(insts))
	for _, inst := range insts {
		views = append(views, inst.View())
	}
	return views
}

// CloseAll closes and removes every instance.
func (r *Registry) CloseAll() {
	for _, inst := range r.Iter() {
		r.Remove(inst.ID())
	}
}
