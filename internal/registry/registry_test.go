package registry

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/ShayCichocki/veda/internal/instance"
)

func insert(t *testing.T, r *Registry, name string) *instance.Instance {
	t.Helper()
	inst := instance.New(instance.Options{Name: name})
	if err := r.Insert(inst); err != nil {
		t.Fatalf("Insert(%q) failed: %v", name, err)
	}
	return inst
}

func TestRegistry_InsertGetFind(t *testing.T) {
	r := New()
	a := insert(t, r, "Veda-1")
	b := insert(t, r, "Veda-2")

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if r.Get(a.ID()) != a {
		t.Error("Get should return the inserted instance")
	}
	if r.FindByName("Veda-2") != b {
		t.Error("FindByName(Veda-2) should return b")
	}
	if r.FindByName("Veda-9") != nil {
		t.Error("FindByName for a missing name should return nil")
	}
	if r.Get(uuid.New()) != nil {
		t.Error("Get for a missing id should return nil")
	}
	if r.Main() != a.ID() {
		t.Errorf("Main() = %s, want %s", r.Main(), a.ID())
	}
	if r.Current() != a {
		t.Error("first instance should be focused")
	}

	iter := r.Iter()
	if len(iter) != 2 || iter[0] != a || iter[1] != b {
		t.Errorf("Iter() not in insertion order: %v", iter)
	}
}

func TestRegistry_InsertDuplicates(t *testing.T) {
	r := New()
	a := insert(t, r, "Veda-1")

	if err := r.Insert(a); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Insert(same) = %v, want ErrDuplicateID", err)
	}
	if err := r.Insert(instance.New(instance.Options{Name: "Veda-1"})); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Insert(same name) = %v, want ErrDuplicateName", err)
	}
}

func TestRegistry_RemoveClosesAndIsIdempotent(t *testing.T) {
	r := New()
	a := insert(t, r, "Veda-1")
	b := insert(t, r, "Veda-2")

	if !r.Remove(b.ID()) {
		t.Fatal("Remove should report removal")
	}
	if !b.Closed() {
		t.Error("removed instance should be closed")
	}
	if r.Get(b.ID()) != nil {
		t.Error("removed instance still registered")
	}

	if r.Remove(b.ID()) {
		t.Error("second Remove should be a no-op")
	}
	if r.Remove(uuid.New()) {
		t.Error("Remove of unknown id should be a no-op")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	if r.Current() != a {
		t.Error("focus should move to the remaining instance")
	}
}

func TestRegistry_RemoveAdjustsFocusAndMain(t *testing.T) {
	r := New()
	a := insert(t, r, "Veda-1")
	b := insert(t, r, "Veda-2")
	c := insert(t, r, "Veda-3")

	if !r.SetCurrent(2) {
		t.Fatal("SetCurrent(2) failed")
	}
	r.Remove(a.ID())
	if r.Current() != c {
		t.Error("focus should stay on Veda-3 after removing an earlier instance")
	}
	if r.Main() != b.ID() {
		t.Errorf("Main() = %s, want Veda-2", r.Main())
	}

	r.Remove(c.ID())
	if r.Current() != b {
		t.Error("focus should fall back to Veda-2")
	}

	r.Remove(b.ID())
	if r.Current() != nil {
		t.Error("empty registry should have no focus")
	}
	if r.CurrentIndex() != -1 {
		t.Errorf("CurrentIndex() = %d, want -1", r.CurrentIndex())
	}
	if r.Main() != uuid.Nil {
		t.Errorf("Main() = %s, want nil uuid", r.Main())
	}
}

func TestRegistry_NextNameContinuesFromSize(t *testing.T) {
	r := New()
	if got := r.NextName(); got != "Veda-1" {
		t.Errorf("NextName() = %q, want Veda-1", got)
	}

	insert(t, r, "Veda-1")
	insert(t, r, "Veda-2")
	if got, want := r.NextNames(2), []string{"Veda-3", "Veda-4"}; !reflect.DeepEqual(got, want) {
		t.Errorf("NextNames(2) = %v, want %v", got, want)
	}

	// After closing Veda-1 the size is 1 but Veda-2 is taken.
	r.Remove(r.FindByName("Veda-1").ID())
	if got := r.NextName(); got != "Veda-3" {
		t.Errorf("NextName() = %q, want Veda-3", got)
	}
}

func TestRegistry_FocusWraps(t *testing.T) {
	r := New()
	r.Next()
	r.Prev()
	if r.Current() != nil {
		t.Error("empty registry should have no focus")
	}

	for i := 1; i <= 3; i++ {
		insert(t, r, fmt.Sprintf("Veda-%d", i))
	}
	r.Prev()
	if r.CurrentIndex() != 2 {
		t.Errorf("Prev from 0: index = %d, want 2", r.CurrentIndex())
	}
	r.Next()
	if r.CurrentIndex() != 0 {
		t.Errorf("Next from 2: index = %d, want 0", r.CurrentIndex())
	}
	if r.SetCurrent(7) {
		t.Error("SetCurrent out of range should fail")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := New()
	insert(t, r, "Veda-1")
	insert(t, r, "Veda-2")

	views := r.Snapshot()
	if len(views) != 2 {
		t.Fatalf("got %d views, want 2", len(views))
	}
	if views[0].Name != "Veda-1" || views[1].Name != "Veda-2" {
		t.Errorf("views out of order: %q, %q", views[0].Name, views[1].Name)
	}

	r.CloseAll()
	if r.Len() != 0 {
		t.Errorf("Len() after CloseAll = %d, want 0", r.Len())
	}
}

func TestRegistry_UniqueIDs(t *testing.T) {
	r := New()
	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 1000; i++ {
		inst := instance.New(instance.Options{Name: r.NextName()})
		if seen[inst.ID()] {
			t.Fatalf("duplicate id %s", inst.ID())
		}
		seen[inst.ID()] = true
		if err := r.Insert(inst); err != nil {
			t.Fatalf("Insert #%d failed: %v", i, err)
		}
	}
	if r.Len() != 1000 {
		t.Errorf("Len() = %d, want 1000", r.Len())
	}
	r.CloseAll()
}
