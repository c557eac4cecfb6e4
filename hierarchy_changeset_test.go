package archlattice

import "testing"

func TestDetermineChangeSetDetectsRemovalsAndReparents(t *testing.T) {
	prev := NewEntityHierarchy()
	root := handle(1)
	a := handle(2)
	b := handle(3)
	prev.AddEntry(root, InvalidEntityHandle)
	prev.AddEntry(a, root)
	prev.AddEntry(b, root)

	next := NewEntityHierarchy()
	next.AddEntry(root, InvalidEntityHandle)
	next.AddEntry(a, root) // unchanged
	// b is removed entirely in next.

	cs := DetermineChangeSet(prev, next)
	if len(cs.RemovedEntities) != 1 || cs.RemovedEntities[0] != b {
		t.Errorf("RemovedEntities = %v, want [%v]", cs.RemovedEntities, b)
	}
	if len(cs.ChangedParents) != 0 {
		t.Errorf("ChangedParents = %v, want none", cs.ChangedParents)
	}
}

func TestDetermineChangeSetDetectsReparent(t *testing.T) {
	prev := NewEntityHierarchy()
	root := handle(1)
	a := handle(2)
	b := handle(3)
	prev.AddEntry(root, InvalidEntityHandle)
	prev.AddEntry(a, root)
	prev.AddEntry(b, root)

	next := NewEntityHierarchy()
	next.AddEntry(root, InvalidEntityHandle)
	next.AddEntry(a, root)
	next.AddEntry(b, a) // b reparented under a

	cs := DetermineChangeSet(prev, next)
	if len(cs.ChangedParents) != 1 {
		t.Fatalf("ChangedParents = %v, want 1 entry", cs.ChangedParents)
	}
	change := cs.ChangedParents[0]
	if change.Child != b || change.NewParent != a {
		t.Errorf("ChangedParents[0] = %+v, want {Child:%v NewParent:%v}", change, b, a)
	}
}

func TestDetermineChangeSetDetectsAddition(t *testing.T) {
	prev := NewEntityHierarchy()
	root := handle(1)
	prev.AddEntry(root, InvalidEntityHandle)

	next := NewEntityHierarchy()
	next.AddEntry(root, InvalidEntityHandle)
	newEntity := handle(7)
	next.AddEntry(newEntity, root)

	cs := DetermineChangeSet(prev, next)
	if len(cs.ChangedParents) != 1 {
		t.Fatalf("ChangedParents = %v, want 1 entry for the addition", cs.ChangedParents)
	}
	change := cs.ChangedParents[0]
	if change.Child != newEntity || change.NewParent != root {
		t.Errorf("ChangedParents[0] = %+v, want {Child:%v NewParent:%v}", change, newEntity, root)
	}

	if err := ApplyChangeSet(prev, cs); err != nil {
		t.Fatalf("ApplyChangeSet() error = %v", err)
	}
	parent, ok := prev.GetParent(newEntity)
	if !ok || parent != root {
		t.Errorf("after apply, GetParent(newEntity) = (%v, %v), want (%v, true)", parent, ok, root)
	}
}

func TestApplyChangeSetRemovesBeforeReparenting(t *testing.T) {
	h := NewEntityHierarchy()
	root := handle(1)
	a := handle(2)
	b := handle(3)
	h.AddEntry(root, InvalidEntityHandle)
	h.AddEntry(a, root)
	h.AddEntry(b, a)

	cs := HierarchyChangeSet{
		RemovedEntities: []EntityHandle{a},
		ChangedParents:  []ParentChange{{Child: b, NewParent: root}},
	}

	if err := ApplyChangeSet(h, cs); err != nil {
		t.Fatalf("ApplyChangeSet() error = %v", err)
	}

	if h.Exists(a) {
		t.Errorf("expected a to have been removed")
	}
	if parent, ok := h.GetParent(b); !ok || parent != root {
		t.Errorf("GetParent(b) = (%v, %v), want (%v, true): b is removed along with a, then re-created under root by its change entry", parent, ok, root)
	}
}

func TestApplyChangeSetCreatesMissingChild(t *testing.T) {
	h := NewEntityHierarchy()
	root := handle(1)
	h.AddEntry(root, InvalidEntityHandle)

	newChild := handle(99)
	cs := HierarchyChangeSet{
		ChangedParents: []ParentChange{{Child: newChild, NewParent: root}},
	}

	if err := ApplyChangeSet(h, cs); err != nil {
		t.Fatalf("ApplyChangeSet() error = %v", err)
	}

	parent, ok := h.GetParent(newChild)
	if !ok || parent != root {
		t.Errorf("GetParent(newChild) = (%v, %v), want (%v, true)", parent, ok, root)
	}
}

func TestApplyChangeSetCreatesMissingParentAsRoot(t *testing.T) {
	h := NewEntityHierarchy()

	parentless := handle(50)
	newChild := handle(99)
	cs := HierarchyChangeSet{
		ChangedParents: []ParentChange{{Child: newChild, NewParent: parentless}},
	}

	if err := ApplyChangeSet(h, cs); err != nil {
		t.Fatalf("ApplyChangeSet() error = %v", err)
	}

	if !h.Exists(parentless) || !h.IsRoot(parentless) {
		t.Errorf("expected missing parent %v to be created as a root", parentless)
	}
	parent, ok := h.GetParent(newChild)
	if !ok || parent != parentless {
		t.Errorf("GetParent(newChild) = (%v, %v), want (%v, true)", parent, ok, parentless)
	}
}

func TestDetermineChangeSetAndApplyRoundTrip(t *testing.T) {
	prev := NewEntityHierarchy()
	root := handle(1)
	a := handle(2)
	b := handle(3)
	prev.AddEntry(root, InvalidEntityHandle)
	prev.AddEntry(a, root)
	prev.AddEntry(b, root)

	next := NewEntityHierarchy()
	next.CopyOther(prev)
	next.ChangeParent(b, a)

	cs := DetermineChangeSet(prev, next)
	if err := ApplyChangeSet(prev, cs); err != nil {
		t.Fatalf("ApplyChangeSet() error = %v", err)
	}

	parent, ok := prev.GetParent(b)
	if !ok || parent != a {
		t.Errorf("after applying change set, GetParent(b) = (%v, %v), want (%v, true)", parent, ok, a)
	}
}
