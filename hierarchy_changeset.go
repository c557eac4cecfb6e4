package archlattice

// ParentChange records that Child's parent became NewParent (or
// InvalidEntityHandle, if Child became a root) between two hierarchy
// snapshots.
type ParentChange struct {
	Child     EntityHandle
	NewParent EntityHandle
}

// HierarchyChangeSet is the diff between two EntityHierarchy snapshots,
// suitable for shipping over the wire instead of a full re-serialization.
type HierarchyChangeSet struct {
	RemovedEntities []EntityHandle
	ChangedParents  []ParentChange
}

func parentOf(h *EntityHierarchy, entity EntityHandle) EntityHandle {
	p, ok := h.GetParent(entity)
	if !ok {
		return InvalidEntityHandle
	}
	return p
}

// DetermineChangeSet compares prev against next and reports every entity
// prev had that next no longer does, every entity present in both whose
// parent differs, and every entity next has that prev doesn't yet know
// about. The last case reuses ParentChange rather than a separate type:
// applying it against an entity absent from the target hierarchy creates
// the entity instead of reparenting it (see ApplyChangeSet).
func DetermineChangeSet(prev, next *EntityHierarchy) HierarchyChangeSet {
	var cs HierarchyChangeSet
	for entity := range prev.byEntity {
		if !next.Exists(entity) {
			cs.RemovedEntities = append(cs.RemovedEntities, entity)
			continue
		}
		if parentOf(prev, entity) != parentOf(next, entity) {
			cs.ChangedParents = append(cs.ChangedParents, ParentChange{
				Child:     entity,
				NewParent: parentOf(next, entity),
			})
		}
	}
	for entity := range next.byEntity {
		if !prev.Exists(entity) {
			cs.ChangedParents = append(cs.ChangedParents, ParentChange{
				Child:     entity,
				NewParent: parentOf(next, entity),
			})
		}
	}
	return cs
}

// ApplyChangeSet applies cs to h in place. Removals are applied before
// reparenting so a reparent naming an entity that was simultaneously
// removed from a different branch of the tree never resolves against a
// stale node.
//
// A change whose Child is unknown to h is a creation, not a reparent: h
// gains Child via AddEntry. If NewParent is itself unknown to h at that
// point (the parent arrives in the same change set, in whichever order
// the caller built it in), the parent is first created as a root so the
// child has somewhere valid to attach; a later change entry for that
// parent then moves it under its own real parent.
func ApplyChangeSet(h *EntityHierarchy, cs HierarchyChangeSet) error {
	for _, entity := range cs.RemovedEntities {
		h.RemoveEntry(entity)
	}
	for _, change := range cs.ChangedParents {
		if change.NewParent != InvalidEntityHandle && !h.Exists(change.NewParent) {
			h.AddEntry(change.NewParent, InvalidEntityHandle)
		}
		if !h.Exists(change.Child) {
			h.AddEntry(change.Child, change.NewParent)
			continue
		}
		h.ChangeParent(change.Child, change.NewParent)
	}
	return nil
}
