package archlattice

import "fmt"

// ComponentID identifies a registered component type within a single
// Storage's schema. It is derived from the schema's own bit-position
// assignment (table.Schema.RowIndexFor), so it is already bounded to the
// small range a VectorComponentSignature's lanes can hold.
type ComponentID uint16

// ComponentSignature is an unordered set of component ids, used as the
// input to build a VectorComponentSignature or to describe a shared
// component's grouping key.
type ComponentSignature struct {
	ids []ComponentID
}

// NewComponentSignature builds a signature from the given ids, silently
// de-duplicating repeats.
func NewComponentSignature(ids ...ComponentID) ComponentSignature {
	seen := make(map[ComponentID]struct{}, len(ids))
	out := make([]ComponentID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return ComponentSignature{ids: out}
}

func (s ComponentSignature) Len() int { return len(s.ids) }

// SharedInstance names one shared component slot (by ComponentID) and the
// grouping key that distinguishes one shared tuple from another (two
// entities in the same archetype but pointing at different shared instances
// live in different ArchetypeBases).
type SharedInstance struct {
	Component ComponentID
	Instance  uint32
}

// VectorComponentSignature is a fixed 16-lane membership set over
// ComponentID values. A lane value of 0 never names a real id: components
// are stored biased by +1 internally so the zero lane value reliably means
// "empty", matching the packed scalar layout the original engine used for
// its SIMD-shaped signature (see original_source/VectorComponentSignature.h).
type VectorComponentSignature struct {
	lanes [MaxSignatureLanes]uint16
}

// NewVectorComponentSignature packs a ComponentSignature into lane form. It
// crashes if the signature carries more components than the lane count can
// hold.
func NewVectorComponentSignature(sig ComponentSignature) VectorComponentSignature {
	var v VectorComponentSignature
	if sig.Len() > MaxSignatureLanes-1 {
		crash("signature overflow: %d components exceeds the %d-lane limit", sig.Len(), MaxSignatureLanes-1)
	}
	for i, id := range sig.ids {
		v.lanes[i] = uint16(id) + 1
	}
	return v
}

// Add inserts id into the first empty lane. It is a no-op if id is already
// present, and crashes if the signature is already full.
func (v *VectorComponentSignature) Add(id ComponentID) {
	biased := uint16(id) + 1
	firstEmpty := -1
	for i, lane := range v.lanes {
		if lane == biased {
			return
		}
		if lane == 0 && firstEmpty == -1 {
			firstEmpty = i
		}
	}
	if firstEmpty == -1 || firstEmpty >= MaxSignatureLanes-1 {
		crash("signature overflow: cannot add component %d, all %d usable lanes occupied", id, MaxSignatureLanes-1)
	}
	v.lanes[firstEmpty] = biased
}

// Find returns the lane index holding id, or -1 if absent.
func (v VectorComponentSignature) Find(id ComponentID) int {
	biased := uint16(id) + 1
	for i, lane := range v.lanes {
		if lane == biased {
			return i
		}
		if lane == 0 {
			break
		}
	}
	return -1
}

// Len reports how many lanes are occupied.
func (v VectorComponentSignature) Len() int {
	n := 0
	for _, lane := range v.lanes {
		if lane == 0 {
			break
		}
		n++
	}
	return n
}

// HasComponents reports whether every component in other is present in v.
func (v VectorComponentSignature) HasComponents(other VectorComponentSignature) bool {
	for _, lane := range other.lanes {
		if lane == 0 {
			break
		}
		found := false
		for _, l := range v.lanes {
			if l == 0 {
				break
			}
			if l == lane {
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

// ExcludesComponents reports whether none of other's components are present
// in v.
func (v VectorComponentSignature) ExcludesComponents(other VectorComponentSignature) bool {
	for _, lane := range other.lanes {
		if lane == 0 {
			break
		}
		for _, l := range v.lanes {
			if l == 0 {
				break
			}
			if l == lane {
				return false
			}
		}
	}
	return true
}

func (v VectorComponentSignature) String() string {
	ids := make([]ComponentID, 0, MaxSignatureLanes)
	for _, lane := range v.lanes {
		if lane == 0 {
			break
		}
		ids = append(ids, ComponentID(lane-1))
	}
	return fmt.Sprintf("%v", ids)
}

// SharedComponentSignatureHasInstances reports whether a base's shared
// instance tuple satisfies the required instance list: every required
// (component, instance) pair must be present among have.
func SharedComponentSignatureHasInstances(have []SharedInstance, required []SharedInstance) bool {
	for _, want := range required {
		found := false
		for _, got := range have {
			if got.Component == want.Component && got.Instance == want.Instance {
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

// ArchetypeQuery describes the unique and shared-component signature an
// archetype (and, for the shared half, one of its bases) must satisfy.
type ArchetypeQuery struct {
	UniqueRequired VectorComponentSignature
	UniqueExcluded VectorComponentSignature

	SharedRequired []SharedInstance
	SharedExcluded []ComponentID
}

// VerifiesUnique checks only the unique-component half of the query.
func (q ArchetypeQuery) VerifiesUnique(unique VectorComponentSignature) bool {
	return unique.HasComponents(q.UniqueRequired) && unique.ExcludesComponents(q.UniqueExcluded)
}

// VerifiesShared checks only the shared-instance half of the query against
// one base's shared tuple.
func (q ArchetypeQuery) VerifiesShared(shared []SharedInstance) bool {
	if !SharedComponentSignatureHasInstances(shared, q.SharedRequired) {
		return false
	}
	for _, excluded := range q.SharedExcluded {
		for _, got := range shared {
			if got.Component == excluded {
				return false
			}
		}
	}
	return true
}

// Verifies checks both halves together against an archetype's unique
// signature and a candidate base's shared tuple.
func (q ArchetypeQuery) Verifies(unique VectorComponentSignature, shared []SharedInstance) bool {
	return q.VerifiesUnique(unique) && q.VerifiesShared(shared)
}
