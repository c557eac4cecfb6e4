package archlattice

import (
	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
)

type archetypeID uint32

// Archetype is the minimal surface query.go's evaluator needs: an id and a
// default table to read a mask.Maskable from. *ArchetypeImpl implements it;
// richer archetype operations (bases, shared components) live only on the
// concrete type, used directly by storage.go and cursor.go.
type Archetype interface {
	ID() uint32
	Table() table.Table
}

var _ Archetype = (*ArchetypeImpl)(nil)

// ArchetypeImpl groups every ArchetypeBase sharing one unique-component
// signature. A base within an archetype is selected by its shared
// component instance tuple; an archetype with no shared components has
// exactly one base (bases[0]), which is the only base Cursor (the
// teacher-compatible manual iteration API) ever visits — callers that need
// shared-component-aware iteration over every base use the for-each
// dispatcher (foreach.go) instead.
type ArchetypeImpl struct {
	id                 archetypeID
	schema             table.Schema
	entryIndex         table.EntryIndex
	uniqueComponents   []Component
	uniqueSignature    VectorComponentSignature
	uniqueMask         mask.Mask
	sharedComponents   []Component
	sharedComponentIDs []ComponentID
	bases              []*ArchetypeBase
	// componentInfo is a reference to the owning Storage's engine-wide
	// component-info table (Storage.RegisterComponentInfo), not a private
	// copy: a hook registered after this archetype already exists still
	// applies to it, matching "Holds pointers to the engine-wide
	// component-info table."
	componentInfo map[ComponentID]ComponentInfo
}

func newArchetypeImpl(schema table.Schema, entryIndex table.EntryIndex, id archetypeID, components []Component, uniqueMask mask.Mask, sharedComponents []Component, componentInfo map[ComponentID]ComponentInfo) (*ArchetypeImpl, error) {
	ids := make([]ComponentID, len(components))
	for i, c := range components {
		ids[i] = ComponentID(schema.RowIndexFor(c))
	}
	sharedIDs := make([]ComponentID, len(sharedComponents))
	for i, c := range sharedComponents {
		sharedIDs[i] = ComponentID(schema.RowIndexFor(c))
	}
	a := &ArchetypeImpl{
		id:                 id,
		schema:             schema,
		entryIndex:         entryIndex,
		uniqueComponents:   append([]Component(nil), components...),
		uniqueSignature:    NewVectorComponentSignature(NewComponentSignature(ids...)),
		uniqueMask:         uniqueMask,
		sharedComponents:   append([]Component(nil), sharedComponents...),
		sharedComponentIDs: sharedIDs,
		componentInfo:      componentInfo,
	}
	base, err := newArchetypeBase(0, schema, entryIndex, components, nil)
	if err != nil {
		return nil, err
	}
	a.bases = append(a.bases, base)
	return a, nil
}

func (a *ArchetypeImpl) ID() uint32                                { return uint32(a.id) }
func (a *ArchetypeImpl) Table() table.Table                        { return a.bases[0].table }
func (a *ArchetypeImpl) Bases() []*ArchetypeBase                   { return a.bases }
func (a *ArchetypeImpl) UniqueComponents() []Component              { return a.uniqueComponents }
func (a *ArchetypeImpl) UniqueSignature() VectorComponentSignature { return a.uniqueSignature }
func (a *ArchetypeImpl) SharedComponents() []Component              { return a.sharedComponents }

// DeclaresSharedComponent reports whether id is one of this archetype's
// declared shared component types (fixed at archetype creation; a base's
// shared tuple may only name instances of these components).
func (a *ArchetypeImpl) DeclaresSharedComponent(id ComponentID) bool {
	for _, sid := range a.sharedComponentIDs {
		if sid == id {
			return true
		}
	}
	return false
}

// FindBase returns the index of the base whose shared instance tuple
// exactly matches shared, or -1 if no such base exists yet.
func (a *ArchetypeImpl) FindBase(shared []SharedInstance) int {
	for i, b := range a.bases {
		if sharedTupleEqual(b.sharedInstances, shared) {
			return i
		}
	}
	return -1
}

// FindBaseVec returns the indices of every base whose shared tuple
// satisfies query (required present, excluded absent).
func (a *ArchetypeImpl) FindBaseVec(query ArchetypeQuery) []int {
	var out []int
	for i, b := range a.bases {
		if query.VerifiesShared(b.sharedInstances) {
			out = append(out, i)
		}
	}
	return out
}

func sharedTupleEqual(a, b []SharedInstance) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		found := false
		for _, y := range b {
			if x == y {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// CreateBase adds a new base for the given shared instance tuple, which
// must not already exist. In an archetype that declares shared components,
// the first tuple takes over the empty, tuple-less bases[0] that
// newArchetypeImpl built, so every base carries a tuple and the first one
// is returned as index 0. shared must name exactly this archetype's
// declared shared components (validated here, fatal on mismatch or an
// unknown component), mirroring the original engine's create_base
// contract. startingSize is accepted for API parity with the
// capacity-hint this engine's spec allows, but isn't wired to a real
// reservation: table.Table exposes no reserve-without-adding-rows
// primitive.
func (a *ArchetypeImpl) CreateBase(shared []SharedInstance, startingSize int) (int, error) {
	_ = startingSize
	if len(shared) != len(a.sharedComponentIDs) {
		crash("archetype: shared tuple has %d entries, archetype declares %d shared components", len(shared), len(a.sharedComponentIDs))
	}
	for _, s := range shared {
		if !a.DeclaresSharedComponent(s.Component) {
			crash("archetype: shared component %d is not among this archetype's declared shared components", s.Component)
		}
	}
	if a.FindBase(shared) != -1 {
		crash("archetype: base for shared tuple %v already exists", shared)
	}
	if len(shared) > 0 && len(a.bases) == 1 && len(a.bases[0].sharedInstances) == 0 && a.bases[0].Size() == 0 {
		a.bases[0].sharedInstances = append([]SharedInstance(nil), shared...)
		return 0, nil
	}
	base, err := newArchetypeBase(len(a.bases), a.schema, a.entryIndex, a.uniqueComponents, shared)
	if err != nil {
		return -1, err
	}
	a.bases = append(a.bases, base)
	return len(a.bases) - 1, nil
}

// DestroyBase runs deallocate callbacks over every entity still in the
// base, then removes it with a swap-back against the last base. If a
// different base moved into baseIdx as a result, onBaseEntitiesMoved is
// called with that base's owners so the caller (Storage) can patch their
// EntityInfo.BaseArchetype.
func (a *ArchetypeImpl) DestroyBase(baseIdx int, onBaseEntitiesMoved func(handles []EntityHandle, newBaseIdx int)) error {
	if baseIdx < 0 || baseIdx >= len(a.bases) {
		crash("archetype: destroy base index %d out of range (count %d)", baseIdx, len(a.bases))
	}
	base := a.bases[baseIdx]
	a.CallEntityDeallocateBase(base)

	last := len(a.bases) - 1
	a.bases[baseIdx] = a.bases[last]
	a.bases = a.bases[:last]

	for i, b := range a.bases {
		b.id = i
	}

	if baseIdx != last {
		moved := a.bases[baseIdx]
		if onBaseEntitiesMoved != nil {
			onBaseEntitiesMoved(moved.owners, baseIdx)
		}
	}
	return nil
}

// RegisterComponentInfo attaches copy/deallocate hooks for a component.
// Since componentInfo is the owning Storage's engine-wide table (shared by
// every archetype), this is equivalent to calling
// Storage.RegisterComponentInfo directly — provided as a convenience for
// callers that already hold an *ArchetypeImpl.
func (a *ArchetypeImpl) RegisterComponentInfo(id ComponentID, info ComponentInfo) {
	a.componentInfo[id] = info
}

// copyHooksForColumns returns one optional ComponentCopyFunc per unique
// column, in the same order newArchetypeBase built the table's columns.
func (a *ArchetypeImpl) copyHooksForColumns() []ComponentCopyFunc {
	hooks := make([]ComponentCopyFunc, len(a.uniqueComponents))
	for i, c := range a.uniqueComponents {
		id := ComponentID(a.schema.RowIndexFor(c))
		hooks[i] = a.componentInfo[id].Copy
	}
	return hooks
}

// CopyBaseEntities duplicates every entity currently in bases[srcBaseIdx]
// into bases[dstBaseIdx], owned by handles (typically freshly allocated,
// giving each clone a new identity), running any registered
// ComponentCopyFunc in place of a raw column copy. Both bases must belong
// to this archetype. Used to spawn a fresh group of entities starting from
// a template's component values but tied to a different shared instance.
func (a *ArchetypeImpl) CopyBaseEntities(srcBaseIdx, dstBaseIdx int, handles []EntityHandle) error {
	return a.bases[dstBaseIdx].CopyOther(a.bases[srcBaseIdx], handles, a.copyHooksForColumns())
}

// CallEntityDeallocateComponent runs the single registered
// ComponentDeallocateFunc for id over row, if any. Used when a component is
// dropped from a live entity (RemoveComponent) rather than the entity
// itself being destroyed.
func (a *ArchetypeImpl) CallEntityDeallocateComponent(row int, id ComponentID) {
	info, ok := a.componentInfo[id]
	if !ok || info.Deallocate == nil {
		return
	}
	info.Deallocate(row)
}

// CallEntityDeallocateBase runs every registered ComponentDeallocateFunc
// over each row of base, in unique-component order.
func (a *ArchetypeImpl) CallEntityDeallocateBase(base *ArchetypeBase) {
	if len(a.componentInfo) == 0 {
		return
	}
	for _, comp := range a.uniqueComponents {
		id := ComponentID(a.schema.RowIndexFor(comp))
		info, ok := a.componentInfo[id]
		if !ok || info.Deallocate == nil {
			continue
		}
		for row := 0; row < base.Size(); row++ {
			info.Deallocate(row)
		}
	}
}

// CallEntityDeallocateRow runs deallocate hooks for a single row before it
// is removed (used by Storage when destroying specific entities rather
// than a whole base).
func (a *ArchetypeImpl) CallEntityDeallocateRow(row int) {
	for _, comp := range a.uniqueComponents {
		id := ComponentID(a.schema.RowIndexFor(comp))
		info, ok := a.componentInfo[id]
		if !ok || info.Deallocate == nil {
			continue
		}
		info.Deallocate(row)
	}
}
