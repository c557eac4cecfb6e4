package archlattice

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// EntityHandle is a stable, weak reference to a slot in an EntityPool: an
// index plus the generation that was live when the handle was issued. A
// handle whose generation no longer matches the slot's current generation
// refers to a deallocated (and possibly reallocated) entity.
type EntityHandle struct {
	index      uint32
	generation uint32
}

// InvalidEntityHandle is the sentinel handle (index math.MaxUint32) that
// never resolves to a live slot. It is not the zero value EntityHandle{}.
var InvalidEntityHandle = EntityHandle{index: math.MaxUint32}

func (h EntityHandle) Index() uint32      { return h.index }
func (h EntityHandle) Generation() uint32 { return h.generation }
func (h EntityHandle) IsInvalid() bool    { return h.index == math.MaxUint32 }

func (h EntityHandle) String() string {
	return fmt.Sprintf("Entity(%d#%d)", h.index, h.generation)
}

// EntityInfo is the archetype engine's bookkeeping for where an entity's
// component row currently lives. The archetype/storage layer owns and
// patches this on every structural mutation (new archetype, base swap-back,
// transfer) rather than deriving it implicitly from table internals.
type EntityInfo struct {
	MainArchetype uint32
	BaseArchetype uint32
	StreamIndex   uint32
}

type entitySlot struct {
	allocated  bool
	generation uint32
	info       EntityInfo
}

const virtualEntitySearchCap = 1000
const entityPoolSerializeVersion uint32 = 1

// EntityPool is a chunked slab allocator for EntityHandle values. An index
// decomposes as (chunkIndex, slot) the way the original engine's pool
// addressed entities: chunkIndex = index >> chunkPower, slot = index &
// (chunkSize-1). Generation counters start at 0 (never allocated) and are
// bumped past 0 on every deallocate, so a generation of 0 is never reused
// as a live value.
type EntityPool struct {
	chunkPower uint
	chunkSize  uint32
	chunks     [][]entitySlot
	freeList   []uint32
	nextFresh  uint32
}

// NewEntityPool creates a pool whose chunks hold 1<<chunkPower slots each.
func NewEntityPool(chunkPower uint) *EntityPool {
	if chunkPower == 0 {
		chunkPower = 10
	}
	return &EntityPool{
		chunkPower: chunkPower,
		chunkSize:  1 << chunkPower,
	}
}

func (p *EntityPool) split(index uint32) (chunkIdx, slotIdx uint32) {
	mask := p.chunkSize - 1
	return index >> p.chunkPower, index & mask
}

func (p *EntityPool) ensureChunk(index uint32) {
	chunkIdx, _ := p.split(index)
	for uint32(len(p.chunks)) <= chunkIdx {
		p.chunks = append(p.chunks, make([]entitySlot, p.chunkSize))
	}
}

func (p *EntityPool) slot(index uint32) *entitySlot {
	chunkIdx, slotIdx := p.split(index)
	return &p.chunks[chunkIdx][slotIdx]
}

func (p *EntityPool) takeIndex() uint32 {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return idx
	}
	idx := p.nextFresh
	p.nextFresh++
	p.ensureChunk(idx)
	return idx
}

// Allocate reserves a fresh or recycled index and returns its handle.
func (p *EntityPool) Allocate() EntityHandle {
	idx := p.takeIndex()
	s := p.slot(idx)
	if s.generation == 0 {
		s.generation = 1
	}
	s.allocated = true
	s.info = EntityInfo{}
	return EntityHandle{index: idx, generation: s.generation}
}

// AllocateWithLocation allocates a handle and immediately records its
// EntityInfo, avoiding a separate SetEntityInfo call on the hot creation
// path.
func (p *EntityPool) AllocateWithLocation(info EntityInfo) EntityHandle {
	h := p.Allocate()
	p.slot(h.index).info = info
	return h
}

// AllocateBatch allocates n handles in order.
func (p *EntityPool) AllocateBatch(n int) []EntityHandle {
	out := make([]EntityHandle, n)
	for i := range out {
		out[i] = p.Allocate()
	}
	return out
}

func (p *EntityPool) removeFromFreeList(index uint32) {
	for i, idx := range p.freeList {
		if idx == index {
			last := len(p.freeList) - 1
			p.freeList[i] = p.freeList[last]
			p.freeList = p.freeList[:last]
			return
		}
	}
}

// AllocateSpecific forces allocation of an exact index, used when
// reconstructing a pool to match a previously-serialized layout (e.g. a
// network peer replicating another peer's entity indices). It errors if the
// index is already live.
func (p *EntityPool) AllocateSpecific(index uint32) (EntityHandle, error) {
	p.ensureChunk(index)
	s := p.slot(index)
	if s.allocated {
		return EntityHandle{}, fmt.Errorf("archlattice: entity index %d is already allocated", index)
	}
	if index >= p.nextFresh {
		for i := p.nextFresh; i < index; i++ {
			p.freeList = append(p.freeList, i)
		}
		p.nextFresh = index + 1
	} else {
		p.removeFromFreeList(index)
	}
	if s.generation == 0 {
		s.generation = 1
	}
	s.allocated = true
	s.info = EntityInfo{}
	return EntityHandle{index: index, generation: s.generation}, nil
}

// Deallocate releases h. It returns an error (not a crash) if h is already
// stale, since callers routinely hold weak references that may have already
// been torn down elsewhere.
func (p *EntityPool) Deallocate(h EntityHandle) error {
	if h.index >= p.nextFresh {
		return fmt.Errorf("archlattice: entity %v was never allocated", h)
	}
	s := p.slot(h.index)
	if !s.allocated || s.generation != h.generation {
		return fmt.Errorf("archlattice: entity %v is stale", h)
	}
	s.allocated = false
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	p.freeList = append(p.freeList, h.index)
	return nil
}

// DeallocateBatch releases every handle, collecting (not stopping on) the
// first error encountered.
func (p *EntityPool) DeallocateBatch(handles []EntityHandle) error {
	var firstErr error
	for _, h := range handles {
		if err := p.Deallocate(h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IsValid reports whether h currently refers to a live slot.
func (p *EntityPool) IsValid(h EntityHandle) bool {
	_, ok := p.TryGetInfo(h)
	return ok
}

// TryGetInfo returns the EntityInfo for h and true, or false if h is stale
// or was never allocated. This is the non-fatal lookup path.
func (p *EntityPool) TryGetInfo(h EntityHandle) (EntityInfo, bool) {
	if h.index >= p.nextFresh {
		return EntityInfo{}, false
	}
	s := p.slot(h.index)
	if !s.allocated || s.generation != h.generation {
		return EntityInfo{}, false
	}
	return s.info, true
}

// GetInfo returns the EntityInfo for h, crashing if h is stale. Callers use
// this only where a stale handle would indicate an internal bookkeeping
// bug rather than an expected weak-reference miss.
func (p *EntityPool) GetInfo(h EntityHandle) EntityInfo {
	info, ok := p.TryGetInfo(h)
	if !ok {
		crash("entity pool: generation mismatch for %v, slot is stale or was never allocated", h)
	}
	return info
}

// SetEntityInfo patches the bookkeeping for a live handle.
func (p *EntityPool) SetEntityInfo(h EntityHandle, mainArchetype, baseArchetype, streamIndex uint32) {
	if h.index >= p.nextFresh {
		crash("entity pool: cannot set info for never-allocated entity %v", h)
	}
	s := p.slot(h.index)
	if !s.allocated || s.generation != h.generation {
		crash("entity pool: cannot set info for stale entity %v", h)
	}
	s.info = EntityInfo{MainArchetype: mainArchetype, BaseArchetype: baseArchetype, StreamIndex: streamIndex}
}

// GetVirtualEntity returns a high-valued, currently-unused index for use as
// a temporary reference that will never collide with a real allocation.
// excluded lets the caller rule out indices it has already handed out as
// virtual entities this frame. Search gives up after virtualEntitySearchCap
// candidates, matching the original engine's bound.
func (p *EntityPool) GetVirtualEntity(excluded ...EntityHandle) EntityHandle {
	isExcluded := func(idx uint32) bool {
		for _, e := range excluded {
			if e.index == idx {
				return true
			}
		}
		return false
	}
	start := uint32(math.MaxUint32 - 1)
	for i := uint32(0); i < virtualEntitySearchCap; i++ {
		idx := start - i
		if idx < p.nextFresh {
			break
		}
		if isExcluded(idx) {
			continue
		}
		return EntityHandle{index: idx, generation: 0}
	}
	crash("GetVirtualEntity: exhausted %d candidates without finding a free index", virtualEntitySearchCap)
	return InvalidEntityHandle
}

// Serialize writes the pool's full slot table and free list. The format is
// a fixed version header rather than anything self-describing beyond size,
// matching the original engine's packed EntityInfo records.
func (p *EntityPool) Serialize(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, entityPoolSerializeVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(p.chunkPower)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, p.nextFresh); err != nil {
		return err
	}
	for idx := uint32(0); idx < p.nextFresh; idx++ {
		s := p.slot(idx)
		allocated := uint8(0)
		if s.allocated {
			allocated = 1
		}
		if err := binary.Write(w, binary.LittleEndian, allocated); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, s.generation); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, s.info.MainArchetype); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, s.info.BaseArchetype); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, s.info.StreamIndex); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(p.freeList))); err != nil {
		return err
	}
	for _, idx := range p.freeList {
		if err := binary.Write(w, binary.LittleEndian, idx); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize replaces the pool's contents with a previously-serialized
// snapshot. It fails cleanly (returning an error, leaving the pool
// untouched) on a version mismatch or a truncated/implausible stream.
func (p *EntityPool) Deserialize(r io.Reader) error {
	var version, chunkPower, nextFresh uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("archlattice: short read reconstructing entity pool: %w", err)
	}
	if version != entityPoolSerializeVersion {
		return fmt.Errorf("archlattice: entity pool version mismatch: got %d want %d", version, entityPoolSerializeVersion)
	}
	if err := binary.Read(r, binary.LittleEndian, &chunkPower); err != nil {
		return fmt.Errorf("archlattice: short read reconstructing entity pool: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &nextFresh); err != nil {
		return fmt.Errorf("archlattice: short read reconstructing entity pool: %w", err)
	}
	if nextFresh > maxPlausibleEntityCount {
		return fmt.Errorf("archlattice: implausible entity pool size %d", nextFresh)
	}

	next := NewEntityPool(uint(chunkPower))
	next.nextFresh = nextFresh
	for idx := uint32(0); idx < nextFresh; idx++ {
		next.ensureChunk(idx)
		s := next.slot(idx)
		var allocated uint8
		if err := binary.Read(r, binary.LittleEndian, &allocated); err != nil {
			return fmt.Errorf("archlattice: short read reconstructing entity pool: %w", err)
		}
		s.allocated = allocated != 0
		if err := binary.Read(r, binary.LittleEndian, &s.generation); err != nil {
			return fmt.Errorf("archlattice: short read reconstructing entity pool: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &s.info.MainArchetype); err != nil {
			return fmt.Errorf("archlattice: short read reconstructing entity pool: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &s.info.BaseArchetype); err != nil {
			return fmt.Errorf("archlattice: short read reconstructing entity pool: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &s.info.StreamIndex); err != nil {
			return fmt.Errorf("archlattice: short read reconstructing entity pool: %w", err)
		}
	}
	var freeLen uint32
	if err := binary.Read(r, binary.LittleEndian, &freeLen); err != nil {
		return fmt.Errorf("archlattice: short read reconstructing entity pool: %w", err)
	}
	if freeLen > maxPlausibleEntityCount {
		return fmt.Errorf("archlattice: implausible entity pool free-list size %d", freeLen)
	}
	next.freeList = make([]uint32, freeLen)
	for i := range next.freeList {
		if err := binary.Read(r, binary.LittleEndian, &next.freeList[i]); err != nil {
			return fmt.Errorf("archlattice: short read reconstructing entity pool: %w", err)
		}
	}

	*p = *next
	return nil
}
