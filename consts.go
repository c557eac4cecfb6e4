package archlattice

// MaxSignatureLanes is the number of component slots a VectorComponentSignature
// carries. Lane value 0 is the empty-lane sentinel (ids are stored biased by
// +1) and the last lane always stays empty as a terminator, so a signature
// holds at most MaxSignatureLanes-1 distinct components.
const MaxSignatureLanes = 16

// maxPlausibleEntityCount and maxPlausibleHierarchyNodes guard deserialize
// paths against corrupted or truncated streams claiming an absurd size.
const (
	maxPlausibleEntityCount    = 64 * 1024 * 1024
	maxPlausibleHierarchyNodes = 64 * 1024 * 1024
)
