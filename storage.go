package archlattice

import (
	"fmt"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
)

// Ensure storage implements Storage interface
var _ Storage = &storage{}

// Storage defines the interface for entity storage and manipulation
type Storage interface {
	Entity(h EntityHandle) (Entity, error)
	NewEntities(int, ...Component) ([]Entity, error)
	NewOrExistingArchetype(components ...Component) (Archetype, error)
	EnqueueNewEntities(int, ...Component) error
	DestroyEntities(...Entity) error
	EnqueueDestroyEntities(...Entity) error
	RowIndexFor(Component) uint32
	Locked() bool
	AddLock(bit uint32)
	RemoveLock(bit uint32)
	Register(...Component)

	TransferEntities(target Storage, entities ...Entity) error
	Enqueue(EntityOperation)
	Archetypes() []*ArchetypeImpl
	EntityPool() *EntityPool
	QueryCache() *ArchetypeQueryCache

	// RegisterComponentInfo attaches copy/deallocate hooks for a component
	// id, applied engine-wide: every archetype in this storage (existing or
	// yet to be created) shares the same component-info table.
	RegisterComponentInfo(id ComponentID, info ComponentInfo)

	// NewEntitiesWithShared creates n entities carrying uniqueComponents,
	// placed in the base matching shared (created if it doesn't exist yet).
	// sharedComponents declares the archetype's shared-component axis the
	// first time this unique/shared combination is seen; later calls with
	// the same combination reuse the existing archetype and must supply the
	// same sharedComponents.
	NewEntitiesWithShared(n int, sharedComponents []Component, shared []SharedInstance, uniqueComponents ...Component) ([]Entity, error)

	// CloneEntitiesToSharedInstance duplicates every entity currently in
	// the base matching srcShared into the base matching destShared
	// (created if it doesn't exist), running any registered
	// ComponentCopyFunc hooks instead of a raw column copy, and returns the
	// newly created entities.
	CloneEntitiesToSharedInstance(sharedComponents []Component, srcShared, destShared []SharedInstance, uniqueComponents ...Component) ([]Entity, error)
}

// storage implements the Storage interface. Each storage owns an
// independent EntityPool and EntryIndex: entity handles and table entry ids
// are never shared across Storage instances, so two storages created from
// the same schema still address entities separately.
type storage struct {
	locks          mask.Mask256
	schema         table.Schema
	entryIndex     table.EntryIndex
	pool           *EntityPool
	entities       map[EntityHandle]*entity
	archetypes     *archetypeTable
	queryCache     *ArchetypeQueryCache
	operationQueue EntityOperationsQueue
	// componentInfo is the engine-wide copy/deallocate hook table, shared by
	// every archetype this storage creates (see ArchetypeImpl.componentInfo).
	componentInfo map[ComponentID]ComponentInfo
}

// archetypeKey identifies an archetype by both halves of its signature: the
// unique-component mask (what every base's table columns hold) and the
// shared-component mask (what each base's shared tuple is drawn from). Two
// calls with the same unique components but different declared shared
// components are different archetypes.
type archetypeKey struct {
	unique mask.Mask
	shared mask.Mask
}

// archetypeTable groups the live archetypes of one storage and maps an
// archetypeKey to its archetype's 0-based position in asSlice.
type archetypeTable struct {
	asSlice          []*ArchetypeImpl
	idsGroupedByMask map[archetypeKey]int
}

// newStorage creates a new Storage implementation with the given schema
func newStorage(schema table.Schema) Storage {
	sto := &storage{
		schema:         schema,
		entryIndex:     table.Factory.NewEntryIndex(),
		pool:           NewEntityPool(Config.entityPoolChunkPower),
		entities:       make(map[EntityHandle]*entity),
		archetypes:     &archetypeTable{idsGroupedByMask: make(map[archetypeKey]int)},
		operationQueue: &entityOperationsQueue{},
		componentInfo:  make(map[ComponentID]ComponentInfo),
	}
	sto.queryCache = NewArchetypeQueryCache(sto)
	return sto
}

// RegisterComponentInfo attaches copy/deallocate hooks for id, visible to
// every archetype in this storage immediately (past and future).
func (sto *storage) RegisterComponentInfo(id ComponentID, info ComponentInfo) {
	sto.componentInfo[id] = info
}

// Entity retrieves the live Entity behind a handle.
func (sto *storage) Entity(h EntityHandle) (Entity, error) {
	en, ok := sto.entities[h]
	if !ok {
		return nil, fmt.Errorf("archlattice: entity %v is not known to this storage", h)
	}
	return en, nil
}

// Archetypes returns all archetypes in this storage, satisfying
// ArchetypeMatcher for the query cache as well.
func (sto *storage) Archetypes() []*ArchetypeImpl {
	return sto.archetypes.asSlice
}

// EntityPool exposes the storage's entity pool, e.g. for serialization.
func (sto *storage) EntityPool() *EntityPool {
	return sto.pool
}

// QueryCache exposes the storage's query cache.
func (sto *storage) QueryCache() *ArchetypeQueryCache {
	return sto.queryCache
}

// newOrExistingArchetypeImpl registers comps against the schema, then
// returns the archetype matching their mask (with no declared shared
// components), creating it (and notifying the query cache) if it doesn't
// exist yet.
func (sto *storage) newOrExistingArchetypeImpl(comps []Component) (*ArchetypeImpl, error) {
	return sto.newOrExistingArchetypeImplShared(comps, nil)
}

// newOrExistingArchetypeImplShared is newOrExistingArchetypeImpl's general
// form: comps and sharedComps are both registered against the schema, and
// the archetype is keyed by both halves of the signature (see
// archetypeKey), so the same unique components combined with a different
// declared shared-component set resolve to a distinct archetype.
func (sto *storage) newOrExistingArchetypeImplShared(comps []Component, sharedComps []Component) (*ArchetypeImpl, error) {
	if len(comps) == 0 {
		return nil, fmt.Errorf("archlattice: cannot build an archetype with no components")
	}
	ets := make([]table.ElementType, len(comps))
	for i, c := range comps {
		ets[i] = c
	}
	sto.schema.Register(ets...)
	if len(sharedComps) > 0 {
		sets := make([]table.ElementType, len(sharedComps))
		for i, c := range sharedComps {
			sets[i] = c
		}
		sto.schema.Register(sets...)
	}

	var um mask.Mask
	for _, c := range comps {
		um.Mark(sto.schema.RowIndexFor(c))
	}
	var sm mask.Mask
	for _, c := range sharedComps {
		sm.Mark(sto.schema.RowIndexFor(c))
	}
	key := archetypeKey{unique: um, shared: sm}

	if idx, ok := sto.archetypes.idsGroupedByMask[key]; ok {
		return sto.archetypes.asSlice[idx], nil
	}

	idx := len(sto.archetypes.asSlice)
	arch, err := newArchetypeImpl(sto.schema, sto.entryIndex, archetypeID(idx), comps, um, sharedComps, sto.componentInfo)
	if err != nil {
		return nil, err
	}
	sto.archetypes.asSlice = append(sto.archetypes.asSlice, arch)
	sto.archetypes.idsGroupedByMask[key] = idx
	sto.queryCache.UpdateAdd(uint32(idx))
	return arch, nil
}

// NewEntitiesWithShared creates n entities in the base matching shared,
// within the archetype declaring sharedComponents alongside
// uniqueComponents (created on first use). See Storage.
func (sto *storage) NewEntitiesWithShared(n int, sharedComponents []Component, shared []SharedInstance, uniqueComponents ...Component) ([]Entity, error) {
	if sto.Locked() {
		return nil, LockedStorageError{}
	}
	arch, err := sto.newOrExistingArchetypeImplShared(uniqueComponents, sharedComponents)
	if err != nil {
		return nil, err
	}
	baseIdx := arch.FindBase(shared)
	if baseIdx == -1 {
		baseIdx, err = arch.CreateBase(shared, n)
		if err != nil {
			return nil, err
		}
	}
	base := arch.bases[baseIdx]
	handles := sto.pool.AllocateBatch(n)
	start, err := base.AddEntities(handles)
	if err != nil {
		return nil, err
	}

	entities := make([]Entity, n)
	ownedComponents := append([]Component(nil), uniqueComponents...)
	for i, h := range handles {
		row := start + i
		sto.pool.SetEntityInfo(h, arch.ID(), uint32(baseIdx), uint32(row))
		en := &entity{handle: h, sto: sto, components: ownedComponents}
		sto.entities[h] = en
		entities[i] = en
	}
	return entities, nil
}

// CloneEntitiesToSharedInstance duplicates every entity in the base
// matching srcShared into the base matching destShared (created if
// needed), running any registered ComponentCopyFunc hooks. See Storage.
func (sto *storage) CloneEntitiesToSharedInstance(sharedComponents []Component, srcShared, destShared []SharedInstance, uniqueComponents ...Component) ([]Entity, error) {
	if sto.Locked() {
		return nil, LockedStorageError{}
	}
	arch, err := sto.newOrExistingArchetypeImplShared(uniqueComponents, sharedComponents)
	if err != nil {
		return nil, err
	}
	srcBaseIdx := arch.FindBase(srcShared)
	if srcBaseIdx == -1 {
		return nil, fmt.Errorf("archlattice: no base for source shared tuple %v", srcShared)
	}
	n := arch.bases[srcBaseIdx].Size()
	if n == 0 {
		return nil, nil
	}

	dstBaseIdx := arch.FindBase(destShared)
	if dstBaseIdx == -1 {
		dstBaseIdx, err = arch.CreateBase(destShared, n)
		if err != nil {
			return nil, err
		}
	}

	handles := sto.pool.AllocateBatch(n)
	startRow := arch.bases[dstBaseIdx].Size()
	if err := arch.CopyBaseEntities(srcBaseIdx, dstBaseIdx, handles); err != nil {
		return nil, err
	}

	entities := make([]Entity, n)
	ownedComponents := append([]Component(nil), uniqueComponents...)
	for i, h := range handles {
		row := startRow + i
		sto.pool.SetEntityInfo(h, arch.ID(), uint32(dstBaseIdx), uint32(row))
		en := &entity{handle: h, sto: sto, components: ownedComponents}
		sto.entities[h] = en
		entities[i] = en
	}
	return entities, nil
}

// NewOrExistingArchetype gets an existing archetype matching the component signature or creates a new one
func (sto *storage) NewOrExistingArchetype(components ...Component) (Archetype, error) {
	return sto.newOrExistingArchetypeImpl(components)
}

// NewEntities creates n new entities with the specified components
func (sto *storage) NewEntities(n int, components ...Component) ([]Entity, error) {
	if sto.Locked() {
		return nil, LockedStorageError{}
	}
	arch, err := sto.newOrExistingArchetypeImpl(components)
	if err != nil {
		return nil, err
	}
	base := arch.bases[0]
	handles := sto.pool.AllocateBatch(n)
	start, err := base.AddEntities(handles)
	if err != nil {
		return nil, err
	}

	entities := make([]Entity, n)
	ownedComponents := append([]Component(nil), components...)
	for i, h := range handles {
		row := start + i
		sto.pool.SetEntityInfo(h, arch.ID(), uint32(base.ID()), uint32(row))
		en := &entity{handle: h, sto: sto, components: ownedComponents}
		sto.entities[h] = en
		entities[i] = en
	}
	return entities, nil
}

// RowIndexFor returns the bit index for a component in the schema
func (sto *storage) RowIndexFor(c Component) uint32 {
	return sto.schema.RowIndexFor(c)
}

// Locked checks if the storage is currently locked
func (sto *storage) Locked() bool {
	return !sto.locks.IsEmpty()
}

func (sto *storage) AddLock(bit uint32) {
	sto.locks.Mark(bit)
}

// RemoveLock releases a specific bit lock and processes queued operations if fully unlocked
func (sto *storage) RemoveLock(bit uint32) {
	sto.locks.Unmark(bit)

	if sto.locks.IsEmpty() {
		if err := sto.operationQueue.ProcessAll(sto); err != nil {
			crash("storage: error processing queued operations: %v", err)
		}
	}
}

// EnqueueNewEntities either creates entities immediately or queues creation if storage is locked
func (sto *storage) EnqueueNewEntities(count int, components ...Component) error {
	if !sto.Locked() {
		_, err := sto.NewEntities(count, components...)
		if err != nil {
			return fmt.Errorf("archlattice: failed to create entities directly: %w", err)
		}
		return nil
	}
	sto.operationQueue.Enqueue(NewEntityOperation{
		count:      count,
		components: components,
	})
	return nil
}

// destroyOne removes a single live entity: runs its deallocate hooks,
// swap-back removes its row, patches the EntityInfo of whatever row moved
// to fill the gap, and releases its handle. If this leaves a non-default
// shared base (baseIdx != 0) empty, the base itself is torn down too.
func (sto *storage) destroyOne(e *entity) error {
	info, ok := sto.pool.TryGetInfo(e.handle)
	if !ok {
		return nil
	}
	arch := sto.archetypes.asSlice[info.MainArchetype]
	base := arch.bases[info.BaseArchetype]
	row := int(info.StreamIndex)

	arch.CallEntityDeallocateRow(row)
	moved, hadSwap, err := base.RemoveSwapBack(row)
	if err != nil {
		return fmt.Errorf("archlattice: failed to delete entry: %w", err)
	}
	if hadSwap {
		sto.pool.SetEntityInfo(moved, info.MainArchetype, info.BaseArchetype, info.StreamIndex)
	}
	delete(sto.entities, e.handle)
	if err := sto.pool.Deallocate(e.handle); err != nil {
		return err
	}

	if info.BaseArchetype != 0 && base.Size() == 0 {
		err := arch.DestroyBase(int(info.BaseArchetype), func(handles []EntityHandle, newBaseIdx int) {
			for _, h := range handles {
				hi := sto.pool.GetInfo(h)
				sto.pool.SetEntityInfo(h, hi.MainArchetype, uint32(newBaseIdx), hi.StreamIndex)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// DestroyEntities removes entities from storage
func (sto *storage) DestroyEntities(entities ...Entity) error {
	if sto.Locked() {
		return LockedStorageError{}
	}
	for _, en := range entities {
		e, ok := en.(*entity)
		if !ok || e == nil {
			continue
		}
		if err := sto.destroyOne(e); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueDestroyEntities either destroys entities immediately or queues destruction if storage is locked
func (sto *storage) EnqueueDestroyEntities(entities ...Entity) error {
	if !sto.Locked() {
		return sto.DestroyEntities(entities...)
	}
	for _, en := range entities {
		sto.operationQueue.Enqueue(DestroyEntityOperation{
			entity:   en,
			recycled: en.Recycled(),
		})
	}
	return nil
}

// TransferEntities moves entities from this storage to the target storage,
// reallocating a fresh handle for each entity in target's own pool and
// mutating the caller-held Entity in place so existing references keep
// resolving correctly after the move.
func (sto *storage) TransferEntities(target Storage, entities ...Entity) error {
	if sto.Locked() {
		return LockedStorageError{}
	}
	tgt, ok := target.(*storage)
	if !ok {
		return fmt.Errorf("archlattice: transfer target is not a compatible storage implementation")
	}

	for _, en := range entities {
		e, ok := en.(*entity)
		if !ok || e == nil {
			continue
		}
		info, ok := sto.pool.TryGetInfo(e.handle)
		if !ok {
			continue
		}
		srcArch := sto.archetypes.asSlice[info.MainArchetype]
		srcBase := srcArch.bases[info.BaseArchetype]
		row := int(info.StreamIndex)

		tgt.Register(e.components...)
		dstArch, err := tgt.newOrExistingArchetypeImpl(e.components)
		if err != nil {
			return err
		}
		dstBase := dstArch.bases[0]

		if err := srcBase.table.TransferEntries(dstBase.table, row); err != nil {
			return err
		}
		moved, hadSwap := srcBase.detachRowBookkeeping(row)
		if hadSwap {
			sto.pool.SetEntityInfo(moved, info.MainArchetype, info.BaseArchetype, info.StreamIndex)
		}
		delete(sto.entities, e.handle)
		if err := sto.pool.Deallocate(e.handle); err != nil {
			return err
		}

		newHandle := tgt.pool.Allocate()
		newRow := dstBase.appendRowBookkeeping(newHandle)
		tgt.pool.SetEntityInfo(newHandle, dstArch.ID(), uint32(dstBase.ID()), uint32(newRow))

		e.handle = newHandle
		e.sto = tgt
		tgt.entities[newHandle] = e
	}
	return nil
}

// transferTo moves e's row into the archetype matching newComponents,
// updating its EntityInfo (and whichever entity swapped into its old row)
// to match. e.handle is unchanged: only its archetype/base/row bookkeeping
// moves, unlike TransferEntities which crosses a Storage boundary and must
// reallocate a handle.
func (sto *storage) transferTo(e *entity, newComponents []Component) error {
	info, ok := sto.pool.TryGetInfo(e.handle)
	if !ok {
		return fmt.Errorf("archlattice: entity %v is not valid", e.handle)
	}
	srcArch := sto.archetypes.asSlice[info.MainArchetype]
	srcBase := srcArch.bases[info.BaseArchetype]
	row := int(info.StreamIndex)

	dstArch, err := sto.newOrExistingArchetypeImpl(newComponents)
	if err != nil {
		return err
	}
	dstBase := dstArch.bases[0]

	if err := srcBase.table.TransferEntries(dstBase.table, row); err != nil {
		return err
	}
	moved, hadSwap := srcBase.detachRowBookkeeping(row)
	if hadSwap {
		sto.pool.SetEntityInfo(moved, info.MainArchetype, info.BaseArchetype, info.StreamIndex)
	}
	newRow := dstBase.appendRowBookkeeping(e.handle)
	sto.pool.SetEntityInfo(e.handle, dstArch.ID(), uint32(dstBase.ID()), uint32(newRow))
	e.components = newComponents
	return nil
}

// Register adds components to the storage schema
func (sto *storage) Register(comps ...Component) {
	ets := make([]table.ElementType, len(comps))
	for i, c := range comps {
		ets[i] = c
	}
	sto.schema.Register(ets...)
}

// Enqueue adds an operation to the queue
func (sto *storage) Enqueue(op EntityOperation) {
	sto.operationQueue.Enqueue(op)
}
