package archlattice

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/semaphore"
)

// QueryHandle identifies a registered query within an ArchetypeQueryCache.
type QueryHandle uint32

// ArchetypeMatcher is the slice of Storage the query cache needs: enough to
// scan every live archetype when a query is first registered.
type ArchetypeMatcher interface {
	Archetypes() []*ArchetypeImpl
}

type cachedQuery struct {
	query   ArchetypeQuery
	results []uint32
}

// ArchetypeQueryCache maintains, for each distinct ArchetypeQuery ever
// registered, the up-to-date list of archetype indices that satisfy it
// (matched on the unique-component signature, plus a check that the
// archetype declares every shared component the query requires — matching
// shared instances happens per-base, after the caller already has the
// archetype, via ArchetypeImpl.FindBaseVec). Registration does a one-time full scan;
// afterward callers push incremental changes through UpdateAdd/UpdateRemove
// or a batched Update instead of re-scanning.
//
// The single table-wide lock is modeled with a weighted semaphore
// (capacity 1) rather than a literal spin loop: contention is expected to
// be rare (queries are registered once and read many times), so
// TryAcquire-in-a-loop gives the same "mostly uncontended fast path"
// behavior without embedding a busy-wait primitive in application code.
type ArchetypeQueryCache struct {
	matcher       ArchetypeMatcher
	lock          *semaphore.Weighted
	queries       []cachedQuery
	byFingerprint map[string]QueryHandle
}

// NewArchetypeQueryCache creates a cache that scans matcher on demand.
func NewArchetypeQueryCache(matcher ArchetypeMatcher) *ArchetypeQueryCache {
	return &ArchetypeQueryCache{
		matcher:       matcher,
		lock:          semaphore.NewWeighted(1),
		byFingerprint: make(map[string]QueryHandle),
	}
}

func (c *ArchetypeQueryCache) acquire() {
	for !c.lock.TryAcquire(1) {
	}
}

func (c *ArchetypeQueryCache) release() {
	c.lock.Release(1)
}

func fingerprint(q ArchetypeQuery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "U%s;E%s;", q.UniqueRequired.String(), q.UniqueExcluded.String())

	req := append([]SharedInstance(nil), q.SharedRequired...)
	sort.Slice(req, func(i, j int) bool {
		if req[i].Component != req[j].Component {
			return req[i].Component < req[j].Component
		}
		return req[i].Instance < req[j].Instance
	})
	fmt.Fprintf(&b, "SR%v;", req)

	exc := append([]ComponentID(nil), q.SharedExcluded...)
	sort.Slice(exc, func(i, j int) bool { return exc[i] < exc[j] })
	fmt.Fprintf(&b, "SE%v", exc)
	return b.String()
}

// matches tests the unique-component half of q against archIdx directly,
// plus a necessary (not sufficient) pre-filter on the shared half: if q
// requires a shared component the archetype never declared, no base of it
// could ever satisfy q, so it's excluded here rather than left for every
// caller to re-discover via FindBaseVec. Satisfying q's shared predicate
// against a specific base's instance tuple is still the caller's job,
// through ArchetypeImpl.FindBaseVec, once it holds the archetype.
func (c *ArchetypeQueryCache) matches(q ArchetypeQuery, archIdx uint32) bool {
	archetypes := c.matcher.Archetypes()
	if int(archIdx) >= len(archetypes) {
		return false
	}
	arch := archetypes[archIdx]
	if !q.VerifiesUnique(arch.uniqueSignature) {
		return false
	}
	for _, want := range q.SharedRequired {
		if !arch.DeclaresSharedComponent(want.Component) {
			return false
		}
	}
	return true
}

// AddQuery registers q if it hasn't been seen before (doing a full scan of
// the current archetypes to seed its results) and returns its handle.
// Registering the same query twice returns the same handle without
// re-scanning.
func (c *ArchetypeQueryCache) AddQuery(q ArchetypeQuery) QueryHandle {
	c.acquire()
	defer c.release()

	fp := fingerprint(q)
	if h, ok := c.byFingerprint[fp]; ok {
		return h
	}

	cq := cachedQuery{query: q}
	for idx := range c.matcher.Archetypes() {
		if c.matches(q, uint32(idx)) {
			cq.results = append(cq.results, uint32(idx))
		}
	}
	handle := QueryHandle(len(c.queries))
	c.queries = append(c.queries, cq)
	c.byFingerprint[fp] = handle
	return handle
}

// GetResults returns a copy of the archetype indices currently matching h.
func (c *ArchetypeQueryCache) GetResults(h QueryHandle) []uint32 {
	c.acquire()
	defer c.release()
	if int(h) >= len(c.queries) {
		crash("query cache: handle %d out of range (have %d queries)", h, len(c.queries))
	}
	out := make([]uint32, len(c.queries[h].results))
	copy(out, c.queries[h].results)
	return out
}

// GetQuery returns the ArchetypeQuery registered under h.
func (c *ArchetypeQueryCache) GetQuery(h QueryHandle) ArchetypeQuery {
	c.acquire()
	defer c.release()
	if int(h) >= len(c.queries) {
		crash("query cache: handle %d out of range (have %d queries)", h, len(c.queries))
	}
	return c.queries[h].query
}

// GetResultsAndQuery returns both in one locked pass.
func (c *ArchetypeQueryCache) GetResultsAndQuery(h QueryHandle) (ArchetypeQuery, []uint32) {
	c.acquire()
	defer c.release()
	if int(h) >= len(c.queries) {
		crash("query cache: handle %d out of range (have %d queries)", h, len(c.queries))
	}
	cq := c.queries[h]
	out := make([]uint32, len(cq.results))
	copy(out, cq.results)
	return cq.query, out
}

// UpdateAdd notifies the cache that archetype archIdx was just created,
// appending it to every query it satisfies.
func (c *ArchetypeQueryCache) UpdateAdd(archIdx uint32) {
	c.acquire()
	defer c.release()
	for i := range c.queries {
		if c.matches(c.queries[i].query, archIdx) {
			c.queries[i].results = append(c.queries[i].results, archIdx)
		}
	}
}

// UpdateRemove notifies the cache that the archetype at removedIdx was
// destroyed, and that the archetype previously at lastIdx (the last index
// before removal, i.e. the live count after it) was swapped down into removedIdx to fill the gap. Every
// query's results are rewritten accordingly: removedIdx entries are
// dropped, lastIdx entries become removedIdx.
func (c *ArchetypeQueryCache) UpdateRemove(removedIdx, lastIdx uint32) {
	c.acquire()
	defer c.release()
	for i := range c.queries {
		results := c.queries[i].results
		out := results[:0]
		for _, idx := range results {
			switch idx {
			case removedIdx:
				continue
			case lastIdx:
				out = append(out, removedIdx)
			default:
				out = append(out, idx)
			}
		}
		c.queries[i].results = out
	}
}

// Update applies a batch of newly-created archetype indices across every
// registered query in one locked pass: for each query, each new archetype
// index is tested against that query's own predicate and, on a match,
// appended to that same query's own results. (A batched update could
// instead test new archetypes against a running, shared result set across
// queries; that reading would let one query's match leak into another's
// results through a shadowed loop variable, which this cache never does.)
func (c *ArchetypeQueryCache) Update(newArchetypeIndices []uint32) {
	c.acquire()
	defer c.release()
	for i := range c.queries {
		for _, archIdx := range newArchetypeIndices {
			if c.matches(c.queries[i].query, archIdx) {
				c.queries[i].results = append(c.queries[i].results, archIdx)
			}
		}
	}
}

// Reset clears every registered query, used when a Storage is torn down.
func (c *ArchetypeQueryCache) Reset() {
	c.acquire()
	defer c.release()
	c.queries = nil
	c.byFingerprint = make(map[string]QueryHandle)
}
