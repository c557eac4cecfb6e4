package archlattice

import "github.com/TheBitDrifter/table"

// factory implements the factory pattern for archlattice components.
type factory struct{}

// Factory is the global factory instance for creating archlattice components.
var Factory factory

// NewStorage creates a new Storage instance with the given schema.
func (f factory) NewStorage(schema table.Schema) Storage {
	return newStorage(schema)
}

// NewQuery creates a new Query instance.
func (f factory) NewQuery() Query {
	return newQuery()
}

// NewCursor creates a new Cursor with the specified query and storage.
func (f factory) NewCursor(query QueryNode, storage Storage) *Cursor {
	return newCursor(query, storage)
}

// NewEntityPool creates a standalone EntityPool, independent of any Storage
// (e.g. for a replication or serialization test harness).
func (f factory) NewEntityPool(chunkPower uint) *EntityPool {
	return NewEntityPool(chunkPower)
}

// NewEntityHierarchy creates an empty entity hierarchy.
func (f factory) NewEntityHierarchy() *EntityHierarchy {
	return NewEntityHierarchy()
}

// NewForEachDispatcher creates a for-each dispatcher with the given batch
// size (or Config.dispatchDefaultBatchSize if size <= 0).
func (f factory) NewForEachDispatcher(batchSize int) *ForEachDispatcher {
	return NewForEachDispatcher(batchSize)
}

// NewArchetypeQueryCache creates a query cache over the given storage.
func (f factory) NewArchetypeQueryCache(matcher ArchetypeMatcher) *ArchetypeQueryCache {
	return NewArchetypeQueryCache(matcher)
}

// FactoryNewComponent creates a new AccessibleComponent for type T.
func FactoryNewComponent[T any]() AccessibleComponent[T] {
	iden := table.FactoryNewElementType[T]()
	return AccessibleComponent[T]{
		Component: iden,
		Accessor:  table.FactoryNewAccessor[T](iden),
	}
}

// FactoryNewCache creates a new Cache with the specified capacity.
func FactoryNewCache[T any](cap int) Cache[T] {
	return &SimpleCache[T]{
		itemIndices: make(map[string]int),
		maxCapacity: cap,
	}
}
