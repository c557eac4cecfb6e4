package archlattice

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/TheBitDrifter/table"
)

// Verify entity implements Entity interface
var _ Entity = &entity{}

// Entity represents a game object with components and hierarchical relationships
type Entity interface {
	Handle() EntityHandle
	Index() int
	Recycled() int
	Table() table.Table

	SetParent(parent Entity, callback EntityDestroyCallback) error
	Parent() Entity

	SetDestroyCallback(EntityDestroyCallback) error

	AddComponent(Component) error
	AddComponentWithValue(Component, any) error
	RemoveComponent(Component) error

	EnqueueAddComponent(Component) error
	EnqueueAddComponentWithValue(Component, any) error
	EnqueueRemoveComponent(Component) error

	Components() []Component
	ComponentsAsString() string

	Valid() bool
	Storage() Storage
	SetStorage(Storage)
}

// EntityDestroyCallback is called when an entity is destroyed
type EntityDestroyCallback func(Entity)

// entity implements the Entity interface. Its position in storage is
// resolved on demand through its handle rather than cached, since a
// swap-back elsewhere in the same base can silently change the row a
// handle maps to between calls.
type entity struct {
	handle        EntityHandle
	sto           *storage
	relationships relationships
	components    []Component
}

// relationships tracks parent-child relationships and destroy callbacks
type relationships struct {
	recycled  int
	parent    Entity
	onDestroy EntityDestroyCallback
}

// Handle returns the entity's stable pool handle.
func (e *entity) Handle() EntityHandle {
	return e.handle
}

// Index returns the entity's current row within its archetype base's table
func (e *entity) Index() int {
	return int(e.sto.pool.GetInfo(e.handle).StreamIndex)
}

// Recycled returns the entity's generation, used to detect a stale
// reference surviving past a deallocate/reallocate cycle.
func (e *entity) Recycled() int {
	return int(e.handle.Generation())
}

// Table returns the table this entity belongs to
func (e *entity) Table() table.Table {
	info := e.sto.pool.GetInfo(e.handle)
	arch := e.sto.archetypes.asSlice[info.MainArchetype]
	return arch.bases[info.BaseArchetype].table
}

// Storage returns the storage this entity belongs to
func (e *entity) Storage() Storage {
	return e.sto
}

// SetParent establishes a parent-child relationship with another entity
func (e *entity) SetParent(parent Entity, callback EntityDestroyCallback) error {
	if e.relationships.parent != nil {
		return EntityRelationError{child: e, parent: e.relationships.parent}
	}
	e.relationships.parent = parent
	e.relationships.recycled = parent.Recycled()
	return parent.SetDestroyCallback(callback)
}

// Parent returns the parent entity if it exists and hasn't been recycled
func (e *entity) Parent() Entity {
	if e.relationships.parent != nil {
		if e.relationships.parent.Recycled() != e.relationships.recycled {
			return nil
		}
		return e.relationships.parent
	}
	return nil
}

// SetDestroyCallback sets the callback to be invoked when this entity is destroyed
func (e *entity) SetDestroyCallback(callback EntityDestroyCallback) error {
	e.relationships.onDestroy = callback
	return nil
}

// hasComponent reports whether c is already attached, by component id.
func (e *entity) hasComponent(c Component) bool {
	for _, comp := range e.components {
		if comp.ID() == c.ID() {
			return true
		}
	}
	return false
}

// AddComponent adds a component to the entity, moving it to a new archetype if needed
func (e *entity) AddComponent(c Component) error {
	if e.sto.Locked() {
		return LockedStorageError{}
	}
	if e.hasComponent(c) {
		return nil
	}
	newComps := append(append([]Component(nil), e.components...), c)
	return e.sto.transferTo(e, newComps)
}

// AddComponentWithValue adds a component with an initial value
func (e *entity) AddComponentWithValue(c Component, value any) error {
	if err := e.AddComponent(c); err != nil {
		return err
	}
	valueType := reflect.TypeOf(value)
	for _, row := range e.Table().Rows() {
		if row.Type().Elem() == valueType {
			reflect.Value(row).Index(e.Index()).Set(reflect.ValueOf(value))
			return nil
		}
	}
	return fmt.Errorf("archlattice: invalid value type %v for component %T", valueType, c)
}

// RemoveComponent removes a component from the entity, moving it to a new archetype
func (e *entity) RemoveComponent(c Component) error {
	if e.sto.Locked() {
		return LockedStorageError{}
	}
	if !e.hasComponent(c) {
		return nil
	}
	if info, ok := e.sto.pool.TryGetInfo(e.handle); ok {
		arch := e.sto.archetypes.asSlice[info.MainArchetype]
		arch.CallEntityDeallocateComponent(int(info.StreamIndex), ComponentID(e.sto.schema.RowIndexFor(c)))
	}
	newComps := make([]Component, 0, len(e.components))
	for _, comp := range e.components {
		if comp.ID() != c.ID() {
			newComps = append(newComps, comp)
		}
	}
	return e.sto.transferTo(e, newComps)
}

// EnqueueAddComponent queues a component addition or executes immediately if storage isn't locked
func (e *entity) EnqueueAddComponent(c Component) error {
	if !e.sto.Locked() {
		return e.AddComponent(c)
	}
	e.sto.Enqueue(AddComponentOperation{
		entity:    e,
		recycled:  e.Recycled(),
		component: c,
		storage:   e.sto,
	})
	return nil
}

// EnqueueAddComponentWithValue queues a component addition with value or executes immediately
func (e *entity) EnqueueAddComponentWithValue(c Component, val any) error {
	if !e.sto.Locked() {
		return e.AddComponentWithValue(c, val)
	}
	e.sto.Enqueue(AddComponentOperation{
		entity:    e,
		recycled:  e.Recycled(),
		component: c,
		value:     val,
		storage:   e.sto,
	})
	return nil
}

// EnqueueRemoveComponent queues a component removal or executes immediately if storage isn't locked
func (e *entity) EnqueueRemoveComponent(c Component) error {
	if !e.sto.Locked() {
		return e.RemoveComponent(c)
	}
	e.sto.Enqueue(RemoveComponentOperation{
		entity:    e,
		recycled:  e.Recycled(),
		component: c,
		storage:   e.sto,
	})
	return nil
}

// Components returns all components attached to this entity
func (e *entity) Components() []Component {
	return e.components
}

// ComponentsAsString returns a sorted, formatted string of component names
func (e *entity) ComponentsAsString() string {
	if len(e.components) == 0 {
		return "[]"
	}

	var components []string
	for _, c := range e.components {
		typeName := reflect.TypeOf(c).String()
		typeName = strings.TrimPrefix(typeName, "*")
		parts := strings.Split(typeName, ".")
		name := parts[len(parts)-1]
		name = strings.TrimSuffix(name, "]")

		components = append(components, name)
	}

	sort.Strings(components)

	return "[" + strings.Join(components, ", ") + "]"
}

// Valid returns whether this entity's handle still resolves to a live slot
func (e *entity) Valid() bool {
	return e.sto.pool.IsValid(e.handle)
}

// SetStorage sets the storage for this entity
func (e *entity) SetStorage(sto Storage) {
	s, ok := sto.(*storage)
	if !ok {
		crash("entity: SetStorage given an incompatible Storage implementation")
	}
	e.sto = s
}
