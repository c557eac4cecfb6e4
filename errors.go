package archlattice

import (
	"errors"
	"fmt"
)

type LockedStorageError struct{}

func (e LockedStorageError) Error() string {
	return "archlattice: storage is currently locked"
}

type EntityRelationError struct {
	child, parent Entity
}

func (e EntityRelationError) Error() string {
	return fmt.Sprintf("entity already has parent: child %v, existing parent %v", e.child, e.parent)
}

type ComponentExistsError struct {
	Component Component
}

func (e ComponentExistsError) Error() string {
	return fmt.Sprintf("component already exists on entity: %T", e.Component)
}

type ComponentNotFoundError struct {
	Component Component
}

func (e ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component does not exist on entity: %T", e.Component)
}

// Sentinel errors naming routine lookup misses in the archetype and
// query-cache layer. No function in this package returns them: a missing
// base is reported by FindBase's -1 or a formatted error, and an
// out-of-range query handle crashes via crash().
var (
	ErrArchetypeNotFound      = errors.New("archlattice: archetype not found")
	ErrBaseNotFound           = errors.New("archlattice: archetype base not found")
	ErrUnknownSharedComponent = errors.New("archlattice: shared component instance not registered")
	ErrQueryHandleInvalid     = errors.New("archlattice: query handle invalid")
)
