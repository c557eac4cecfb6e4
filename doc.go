/*
Package archlattice provides an archetype-based Entity-Component-System
(ECS) storage engine for games and simulations.

It keeps entities with the same component types grouped into column-packed
archetypes for cache-friendly iteration, further splitting each archetype
into bases by shared-component instance, and layers a stable entity pool,
a query cache, a parallel for-each dispatcher, and an entity hierarchy on
top.

Core Concepts:

  - Entity: a stable handle into an EntityPool.
  - Component: a data container that defines entity attributes.
  - Archetype: the set of entities sharing the same component types, split
    into bases by shared component instance.
  - Query: a way to find entities (or, through the for-each dispatcher,
    archetypes) with specific component combinations.

Basic Usage:

	// Create storage with schema
	schema := table.Factory.NewSchema()
	storage := archlattice.Factory.NewStorage(schema)

	// Define components
	position := archlattice.FactoryNewComponent[Position]()
	velocity := archlattice.FactoryNewComponent[Velocity]()

	// Create entities
	entities, _ := storage.NewEntities(100, position, velocity)

	// Query entities and process them
	query := archlattice.Factory.NewQuery()
	queryNode := query.And(position, velocity)
	cursor := archlattice.Factory.NewCursor(queryNode, storage)

	for cursor.Next() {
		pos := position.GetFromCursor(cursor)
		vel := velocity.GetFromCursor(cursor)
		pos.X += vel.X
		pos.Y += vel.Y
	}
*/
package archlattice
