package archlattice

// ComponentCopyArgs carries the source and destination row data a
// ComponentCopyFunc needs to clone one component value into a new base
// (used by ArchetypeBase.CopyOther, which Storage.CloneEntitiesToSharedInstance
// calls to fill a base from a template base).
type ComponentCopyArgs struct {
	SourceRow int
	DestRow   int
}

// ComponentCopyFunc clones a component value from src[args.SourceRow] into
// dst[args.DestRow]. Registered per component via ComponentInfo; components
// without one fall back to a raw reflect copy of the column cell.
type ComponentCopyFunc func(args ComponentCopyArgs)

// ComponentDeallocateFunc runs when an entity carrying this component is
// permanently removed (DestroyEntities, DestroyBase), e.g. to release a
// handle or pooled resource the component value holds.
type ComponentDeallocateFunc func(row int)

// ComponentInfo bundles the optional copy/deallocate hooks for a component
// type. A zero-value ComponentInfo is a component with no special cleanup,
// which is the common case.
type ComponentInfo struct {
	Copy       ComponentCopyFunc
	Deallocate ComponentDeallocateFunc
}
