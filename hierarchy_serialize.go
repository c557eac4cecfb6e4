package archlattice

import (
	"encoding/binary"
	"fmt"
	"io"
)

const hierarchySerializeVersion uint32 = 1

func writeEntityHandle(w io.Writer, h EntityHandle) error {
	if err := binary.Write(w, binary.LittleEndian, h.index); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, h.generation)
}

func readEntityHandle(r io.Reader) (EntityHandle, error) {
	var h EntityHandle
	if err := binary.Read(r, binary.LittleEndian, &h.index); err != nil {
		return EntityHandle{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.generation); err != nil {
		return EntityHandle{}, err
	}
	return h, nil
}

// hierarchyRecord is the flat, handle-addressed form a hierarchy is
// serialized to and from: no arena indices survive the round trip, only
// entity handles, which are meaningful on their own across a
// save/load or network replication boundary.
type hierarchyRecord struct {
	entity   EntityHandle
	parent   EntityHandle
	children []EntityHandle
}

// Serialize writes every node as an (entity, parent, children...) record.
// InvalidEntityHandle marks a root's parent slot.
func (h *EntityHierarchy) Serialize(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, hierarchySerializeVersion); err != nil {
		return err
	}
	live := 0
	for _, n := range h.nodes {
		if n.entity != (EntityHandle{}) {
			live++
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(live)); err != nil {
		return err
	}
	for _, n := range h.nodes {
		if n.entity == (EntityHandle{}) {
			continue
		}
		if err := writeEntityHandle(w, n.entity); err != nil {
			return err
		}
		parent := InvalidEntityHandle
		if n.parent != noParent {
			parent = h.nodes[n.parent].entity
		}
		if err := writeEntityHandle(w, parent); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(n.children))); err != nil {
			return err
		}
		for _, c := range n.children {
			if err := writeEntityHandle(w, h.nodes[c].entity); err != nil {
				return err
			}
		}
	}
	return nil
}

// Deserialize replaces h's contents with a previously-serialized snapshot.
// Reconstruction happens in two passes since a record can reference a
// parent or child that hasn't been read yet: the first pass allocates every
// node by entity handle, the second resolves parent/children links against
// the now-complete set. It fails cleanly, leaving h untouched, on a version
// mismatch, truncated stream, or a record naming an entity never declared.
func (h *EntityHierarchy) Deserialize(r io.Reader) error {
	var version, count uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("archlattice: short read reconstructing entity hierarchy: %w", err)
	}
	if version != hierarchySerializeVersion {
		return fmt.Errorf("archlattice: entity hierarchy version mismatch: got %d want %d", version, hierarchySerializeVersion)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("archlattice: short read reconstructing entity hierarchy: %w", err)
	}
	if count > maxPlausibleHierarchyNodes {
		return fmt.Errorf("archlattice: implausible entity hierarchy size %d", count)
	}

	records := make([]hierarchyRecord, count)
	for i := range records {
		entity, err := readEntityHandle(r)
		if err != nil {
			return fmt.Errorf("archlattice: short read reconstructing entity hierarchy: %w", err)
		}
		parent, err := readEntityHandle(r)
		if err != nil {
			return fmt.Errorf("archlattice: short read reconstructing entity hierarchy: %w", err)
		}
		var childCount uint32
		if err := binary.Read(r, binary.LittleEndian, &childCount); err != nil {
			return fmt.Errorf("archlattice: short read reconstructing entity hierarchy: %w", err)
		}
		if childCount > maxPlausibleHierarchyNodes {
			return fmt.Errorf("archlattice: implausible child count %d", childCount)
		}
		children := make([]EntityHandle, childCount)
		for j := range children {
			c, err := readEntityHandle(r)
			if err != nil {
				return fmt.Errorf("archlattice: short read reconstructing entity hierarchy: %w", err)
			}
			children[j] = c
		}
		records[i] = hierarchyRecord{entity: entity, parent: parent, children: children}
	}

	next := NewEntityHierarchy()
	for _, rec := range records {
		next.byEntity[rec.entity] = next.allocNode(rec.entity, noParent)
	}
	for _, rec := range records {
		idx := next.byEntity[rec.entity]
		if rec.parent == InvalidEntityHandle {
			next.nodes[idx].parent = noParent
			next.roots = append(next.roots, idx)
			continue
		}
		parentIdx, ok := next.byEntity[rec.parent]
		if !ok {
			return fmt.Errorf("archlattice: entity hierarchy record for %v names unknown parent %v", rec.entity, rec.parent)
		}
		next.nodes[idx].parent = parentIdx
	}
	for _, rec := range records {
		idx := next.byEntity[rec.entity]
		children := make([]int32, 0, len(rec.children))
		for _, c := range rec.children {
			childIdx, ok := next.byEntity[c]
			if !ok {
				return fmt.Errorf("archlattice: entity hierarchy record for %v names unknown child %v", rec.entity, c)
			}
			children = append(children, childIdx)
		}
		next.nodes[idx].children = children
	}

	*h = *next
	return nil
}
