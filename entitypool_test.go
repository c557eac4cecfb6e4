package archlattice

import (
	"bytes"
	"testing"
)

func TestEntityPoolAllocateAndDeallocate(t *testing.T) {
	p := NewEntityPool(4)

	h1 := p.Allocate()
	h2 := p.Allocate()
	if h1.Index() == h2.Index() {
		t.Fatalf("expected distinct indices, got %v and %v", h1, h2)
	}
	if !p.IsValid(h1) || !p.IsValid(h2) {
		t.Fatalf("freshly allocated handles should be valid")
	}

	if err := p.Deallocate(h1); err != nil {
		t.Fatalf("Deallocate() error = %v", err)
	}
	if p.IsValid(h1) {
		t.Errorf("deallocated handle should no longer be valid")
	}

	h3 := p.Allocate()
	if h3.Index() != h1.Index() {
		t.Errorf("expected recycled index %d, got %d", h1.Index(), h3.Index())
	}
	if h3.Generation() == h1.Generation() {
		t.Errorf("recycled slot should carry a bumped generation, both were %d", h1.Generation())
	}
	if p.IsValid(h1) {
		t.Errorf("stale handle h1 should not resolve as valid after recycling")
	}
}

func TestEntityPoolDeallocateStaleIsError(t *testing.T) {
	p := NewEntityPool(4)
	h := p.Allocate()
	if err := p.Deallocate(h); err != nil {
		t.Fatalf("Deallocate() error = %v", err)
	}
	if err := p.Deallocate(h); err == nil {
		t.Errorf("expected an error deallocating an already-stale handle")
	}
}

func TestEntityPoolSetAndGetInfo(t *testing.T) {
	p := NewEntityPool(4)
	h := p.Allocate()
	p.SetEntityInfo(h, 3, 7, 42)

	info := p.GetInfo(h)
	if info.MainArchetype != 3 || info.BaseArchetype != 7 || info.StreamIndex != 42 {
		t.Errorf("GetInfo() = %+v, want {3 7 42}", info)
	}
}

func TestEntityPoolAllocateSpecific(t *testing.T) {
	p := NewEntityPool(4)
	h, err := p.AllocateSpecific(50)
	if err != nil {
		t.Fatalf("AllocateSpecific() error = %v", err)
	}
	if h.Index() != 50 {
		t.Errorf("AllocateSpecific() index = %d, want 50", h.Index())
	}
	if _, err := p.AllocateSpecific(50); err == nil {
		t.Errorf("expected error re-allocating an already-live index")
	}

	// Gaps left below the forced index become free-list entries.
	h2 := p.Allocate()
	if h2.Index() >= 50 {
		t.Errorf("expected a backfilled index below 50, got %d", h2.Index())
	}
}

func TestEntityPoolGetVirtualEntityAvoidsExcluded(t *testing.T) {
	p := NewEntityPool(4)
	v1 := p.GetVirtualEntity()
	v2 := p.GetVirtualEntity(v1)
	if v1.Index() == v2.Index() {
		t.Errorf("expected distinct virtual entities, both were %d", v1.Index())
	}
	if p.IsValid(v1) {
		t.Errorf("a virtual entity must never be valid")
	}
}

func TestEntityPoolSerializeRoundTrip(t *testing.T) {
	p := NewEntityPool(2)
	handles := p.AllocateBatch(5)
	p.SetEntityInfo(handles[2], 1, 2, 3)
	if err := p.Deallocate(handles[1]); err != nil {
		t.Fatalf("Deallocate() error = %v", err)
	}

	var buf bytes.Buffer
	if err := p.Serialize(&buf); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	restored := NewEntityPool(1)
	if err := restored.Deserialize(&buf); err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}

	for i, h := range handles {
		if i == 1 {
			if restored.IsValid(h) {
				t.Errorf("deallocated handle %d should not be valid after restore", i)
			}
			continue
		}
		if !restored.IsValid(h) {
			t.Errorf("handle %d should be valid after restore", i)
		}
	}

	info := restored.GetInfo(handles[2])
	if info.MainArchetype != 1 || info.BaseArchetype != 2 || info.StreamIndex != 3 {
		t.Errorf("restored info = %+v, want {1 2 3}", info)
	}
}

func TestEntityPoolDeserializeRejectsImplausibleSize(t *testing.T) {
	var buf bytes.Buffer
	p := NewEntityPool(2)
	if err := p.Serialize(&buf); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	data := buf.Bytes()
	// Corrupt the nextFresh field (bytes 8..12, after version+chunkPower) to
	// an implausibly large value.
	data[8] = 0xff
	data[9] = 0xff
	data[10] = 0xff
	data[11] = 0x7f

	restored := NewEntityPool(2)
	if err := restored.Deserialize(bytes.NewReader(data)); err == nil {
		t.Errorf("expected an error deserializing an implausible entity count")
	}
}
