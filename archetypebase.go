package archlattice

import (
	"fmt"
	"reflect"

	"github.com/TheBitDrifter/table"
)

// ArchetypeBase is one unique-shared-tuple group within an Archetype: all
// entities sharing the same unique-component signature AND the same shared
// component instances live in the same base, column-packed in a
// table.Table. Splitting storage this way keeps the component columns
// dense for entities that truly share data (e.g. all particles pointing at
// the same emitter) without forcing per-entity duplication of shared state.
type ArchetypeBase struct {
	id              int
	table           table.Table
	owners          []EntityHandle
	sharedInstances []SharedInstance
}

func newArchetypeBase(id int, schema table.Schema, entryIndex table.EntryIndex, components []Component, shared []SharedInstance) (*ArchetypeBase, error) {
	elementTypes := make([]table.ElementType, len(components))
	for i, c := range components {
		elementTypes[i] = c
	}
	tbl, err := table.NewTableBuilder().
		WithSchema(schema).
		WithEntryIndex(entryIndex).
		WithElementTypes(elementTypes...).
		WithEvents(Config.tableEvents).
		Build()
	if err != nil {
		return nil, err
	}
	return &ArchetypeBase{
		id:              id,
		table:           tbl,
		sharedInstances: append([]SharedInstance(nil), shared...),
	}, nil
}

func (b *ArchetypeBase) ID() int                         { return b.id }
func (b *ArchetypeBase) Table() table.Table              { return b.table }
func (b *ArchetypeBase) Size() int                       { return len(b.owners) }
func (b *ArchetypeBase) Entities() []EntityHandle        { return b.owners }
func (b *ArchetypeBase) SharedInstances() []SharedInstance { return b.sharedInstances }

// EntityAt returns the handle owning row.
func (b *ArchetypeBase) EntityAt(row int) EntityHandle {
	if row < 0 || row >= len(b.owners) {
		crash("archetype base: row %d out of range (size %d)", row, len(b.owners))
	}
	return b.owners[row]
}

// AddEntities grows the base by len(handles) rows, all newly zero-valued,
// and records their owners. It returns the row the first new handle landed
// on.
func (b *ArchetypeBase) AddEntities(handles []EntityHandle) (int, error) {
	if _, err := b.table.NewEntries(len(handles)); err != nil {
		return -1, err
	}
	start := len(b.owners)
	b.owners = append(b.owners, handles...)
	return start, nil
}

// appendRowBookkeeping records a handle that was already moved into the
// table by an external TransferEntries call.
func (b *ArchetypeBase) appendRowBookkeeping(h EntityHandle) int {
	b.owners = append(b.owners, h)
	return len(b.owners) - 1
}

// detachRowBookkeeping removes the owners-array bookkeeping for row after
// its table row was already relocated by an external TransferEntries call.
// It reports the handle that was swapped into row, if any.
func (b *ArchetypeBase) detachRowBookkeeping(row int) (moved EntityHandle, hadSwap bool) {
	n := len(b.owners)
	last := n - 1
	if row != last {
		moved = b.owners[last]
		b.owners[row] = moved
		hadSwap = true
	}
	b.owners = b.owners[:last]
	return moved, hadSwap
}

// RemoveSwapBack deletes row from the table (swap-back, mirroring the
// table library's own convention) and keeps owners in lockstep. It reports
// the handle that moved into row as a result, if any.
func (b *ArchetypeBase) RemoveSwapBack(row int) (moved EntityHandle, hadSwap bool, err error) {
	n := len(b.owners)
	if row < 0 || row >= n {
		crash("archetype base: remove row %d out of range (size %d)", row, n)
	}
	entry, err := b.table.Entry(row)
	if err != nil {
		return EntityHandle{}, false, err
	}
	if _, err := b.table.DeleteEntries(int(entry.ID())); err != nil {
		return EntityHandle{}, false, fmt.Errorf("failed to delete entry: %w", err)
	}
	return b.detachRowBookkeeping(row)
}

// CopyOther appends a copy of every row currently in src onto b, owned by
// handles. Passing src's own owners gives a same-identity snapshot clone
// (e.g. a rollback buffer where handles must resolve identically across
// both copies); passing freshly allocated handles gives a duplicate with a
// new identity (e.g. spawning a fresh group of entities from a template).
// copyHooks holds one optional ComponentCopyFunc per column, in column
// order (nil, or an entry itself nil, falls back to a raw reflect column
// copy). b and src must share an identical column layout.
func (b *ArchetypeBase) CopyOther(src *ArchetypeBase, handles []EntityHandle, copyHooks []ComponentCopyFunc) error {
	if src.Size() == 0 {
		return nil
	}
	if len(handles) != src.Size() {
		crash("archetype base: CopyOther given %d handles for %d source rows", len(handles), src.Size())
	}
	start, err := b.AddEntities(handles)
	if err != nil {
		return err
	}
	srcRows := src.table.Rows()
	dstRows := b.table.Rows()
	for col := range srcRows {
		var hook ComponentCopyFunc
		if col < len(copyHooks) {
			hook = copyHooks[col]
		}
		for i := 0; i < src.Size(); i++ {
			if hook != nil {
				hook(ComponentCopyArgs{SourceRow: i, DestRow: start + i})
				continue
			}
			reflect.Value(dstRows[col]).Index(start + i).Set(reflect.Value(srcRows[col]).Index(i))
		}
	}
	return nil
}
