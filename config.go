package archlattice

import "github.com/TheBitDrifter/table"

// Config holds global configuration for the storage/table system
var Config config = config{
	entityPoolChunkPower:      10,
	archetypeBaseStartCapacity: 64,
	dispatchDefaultBatchSize:   256,
}

type config struct {
	tableEvents table.TableEvents

	entityPoolChunkPower       uint
	archetypeBaseStartCapacity int
	dispatchDefaultBatchSize   int
}

// SetTableEvents configures the table event callbacks
func (c *config) SetTableEvents(te table.TableEvents) {
	c.tableEvents = te
}

// SetEntityPoolChunkPower configures the chunk size (as a power of two) new
// EntityPools are created with.
func (c *config) SetEntityPoolChunkPower(power uint) {
	c.entityPoolChunkPower = power
}

// SetArchetypeBaseStartCapacity records a capacity hint for archetype
// bases. The value is stored only: base creation does not read it and
// reserves no capacity up front.
func (c *config) SetArchetypeBaseStartCapacity(capacity int) {
	c.archetypeBaseStartCapacity = capacity
}

// SetDispatchDefaultBatchSize configures the row batch size a
// ForEachDispatcher uses when none is given explicitly.
func (c *config) SetDispatchDefaultBatchSize(size int) {
	c.dispatchDefaultBatchSize = size
}
