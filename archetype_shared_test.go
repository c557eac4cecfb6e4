package archlattice

import (
	"reflect"
	"testing"

	"github.com/TheBitDrifter/table"
)

// Team is a shared component: entities in the same archetype but on
// different teams belong to different ArchetypeBases.
type Team struct {
	Name string
}

func TestNewEntitiesWithSharedRoutesToDistinctBases(t *testing.T) {
	schema := table.Factory.NewSchema()
	sto := Factory.NewStorage(schema)

	posComp := FactoryNewComponent[Position]()
	teamComp := FactoryNewComponent[Team]()
	teamID := ComponentID(sto.RowIndexFor(teamComp))

	red := []SharedInstance{{Component: teamID, Instance: 1}}
	blue := []SharedInstance{{Component: teamID, Instance: 2}}

	redEntities, err := sto.NewEntitiesWithShared(3, []Component{teamComp}, red, posComp)
	if err != nil {
		t.Fatalf("NewEntitiesWithShared(red) error = %v", err)
	}
	blueEntities, err := sto.NewEntitiesWithShared(2, []Component{teamComp}, blue, posComp)
	if err != nil {
		t.Fatalf("NewEntitiesWithShared(blue) error = %v", err)
	}

	impl := redEntities[0].(*entity).sto.archetypes.asSlice
	var sharedArch *ArchetypeImpl
	for _, a := range impl {
		if a.DeclaresSharedComponent(teamID) {
			sharedArch = a
			break
		}
	}
	if sharedArch == nil {
		t.Fatalf("no archetype declares the Team shared component")
	}
	if len(sharedArch.Bases()) != 2 {
		t.Fatalf("Bases() = %d, want 2 (one per team)", len(sharedArch.Bases()))
	}

	// A plain NewOrExistingArchetype(posComp), with no declared shared
	// components, must resolve to a different archetype than the one
	// declaring Team as a shared component, even though both share the
	// same unique-component set.
	plainArch, err := sto.NewOrExistingArchetype(posComp)
	if err != nil {
		t.Fatalf("NewOrExistingArchetype(posComp) error = %v", err)
	}
	if plainArch.ID() == sharedArch.ID() {
		t.Errorf("plain archetype (id %d) collided with the shared-component archetype; unique+shared combos must key separately", plainArch.ID())
	}

	redBaseIdx := sharedArch.FindBase(red)
	blueBaseIdx := sharedArch.FindBase(blue)
	if redBaseIdx == -1 || blueBaseIdx == -1 || redBaseIdx == blueBaseIdx {
		t.Fatalf("FindBase(red)=%d FindBase(blue)=%d, want two distinct non-negative bases", redBaseIdx, blueBaseIdx)
	}
	if sharedArch.Bases()[redBaseIdx].Size() != len(redEntities) {
		t.Errorf("red base size = %d, want %d", sharedArch.Bases()[redBaseIdx].Size(), len(redEntities))
	}
	if sharedArch.Bases()[blueBaseIdx].Size() != len(blueEntities) {
		t.Errorf("blue base size = %d, want %d", sharedArch.Bases()[blueBaseIdx].Size(), len(blueEntities))
	}

	// A for-each dispatch filtered to the red team must see only red rows.
	dispatcher := NewForEachDispatcher(8)
	cache := NewArchetypeQueryCache(sto)
	seen := 0
	dispatcher.DispatchCommit(sto, cache, ForEachQuery{
		Required:       []Component{posComp},
		SharedRequired: red,
	}, "count-red", func(row int, required, optional []reflect.Value) {
		seen++
	})
	if seen != len(redEntities) {
		t.Errorf("dispatch filtered to red team saw %d rows, want %d", seen, len(redEntities))
	}
}

func TestCloneEntitiesToSharedInstanceRunsCopyHookAndDeallocate(t *testing.T) {
	schema := table.Factory.NewSchema()
	sto := Factory.NewStorage(schema)

	posComp := FactoryNewComponent[Position]()
	teamComp := FactoryNewComponent[Team]()
	teamID := ComponentID(sto.RowIndexFor(teamComp))
	posID := ComponentID(sto.RowIndexFor(posComp))

	copyCalls := 0
	deallocRows := 0
	sto.RegisterComponentInfo(posID, ComponentInfo{
		Copy: func(args ComponentCopyArgs) {
			copyCalls++
		},
		Deallocate: func(row int) {
			deallocRows++
		},
	})

	template := []SharedInstance{{Component: teamID, Instance: 1}}
	clone := []SharedInstance{{Component: teamID, Instance: 2}}

	templateEntities, err := sto.NewEntitiesWithShared(4, []Component{teamComp}, template, posComp)
	if err != nil {
		t.Fatalf("NewEntitiesWithShared error = %v", err)
	}

	cloned, err := sto.CloneEntitiesToSharedInstance([]Component{teamComp}, template, clone, posComp)
	if err != nil {
		t.Fatalf("CloneEntitiesToSharedInstance error = %v", err)
	}
	if len(cloned) != len(templateEntities) {
		t.Fatalf("cloned %d entities, want %d", len(cloned), len(templateEntities))
	}
	if copyCalls != len(templateEntities) {
		t.Errorf("Copy hook ran %d times, want %d (once per cloned row)", copyCalls, len(templateEntities))
	}

	// Destroying every clone should empty and tear down the clone base,
	// running the deallocate hook for each of its rows.
	if err := sto.DestroyEntities(cloned...); err != nil {
		t.Fatalf("DestroyEntities error = %v", err)
	}
	if deallocRows != len(cloned) {
		t.Errorf("Deallocate hook ran %d times, want %d", deallocRows, len(cloned))
	}

	impl := templateEntities[0].(*entity).sto.archetypes.asSlice
	var sharedArch *ArchetypeImpl
	for _, a := range impl {
		if a.DeclaresSharedComponent(teamID) {
			sharedArch = a
			break
		}
	}
	if sharedArch == nil {
		t.Fatalf("no archetype declares the Team shared component")
	}
	if sharedArch.FindBase(clone) != -1 {
		t.Errorf("clone base should have been torn down once emptied, still found at %d", sharedArch.FindBase(clone))
	}
	if sharedArch.FindBase(template) == -1 {
		t.Errorf("template base should still exist")
	}
}
