package archlattice

import (
	"context"
	"reflect"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ForEachQuery describes which components a for-each dispatch requires,
// optionally wants, and must exclude, expressed in terms of the caller's
// own AccessibleComponent values. SharedRequired/SharedExcluded filter
// which base of a matching archetype is visited, by shared-instance tuple;
// left empty, every base of a matching archetype is visited.
type ForEachQuery struct {
	Required []Component
	Optional []Component
	Excluded []Component

	SharedRequired []SharedInstance
	SharedExcluded []ComponentID
}

func componentIDs(schema interface{ RowIndexFor(Component) uint32 }, comps []Component) []ComponentID {
	ids := make([]ComponentID, len(comps))
	for i, c := range comps {
		ids[i] = ComponentID(schema.RowIndexFor(c))
	}
	return ids
}

func (q ForEachQuery) toArchetypeQuery(sto Storage) ArchetypeQuery {
	required := NewVectorComponentSignature(NewComponentSignature(componentIDs(sto, q.Required)...))
	excluded := NewVectorComponentSignature(NewComponentSignature(componentIDs(sto, q.Excluded)...))
	return ArchetypeQuery{
		UniqueRequired: required,
		UniqueExcluded: excluded,
		SharedRequired: q.SharedRequired,
		SharedExcluded: q.SharedExcluded,
	}
}

const missingColumn = -1

// ForEachFunc is invoked once per matched row. required/optional hold one
// reflect.Value (addressable, pointing at the live column cell) per
// requested component, in the order given in ForEachQuery; a zero
// reflect.Value in optional marks a component missing from that archetype.
type ForEachFunc func(row int, required, optional []reflect.Value)

// ForEachDispatcher fans a query out across matching archetypes and bases,
// batching rows into tasks that either run inline or across a worker pool
// built on errgroup. It is stateless aside from its batch size and can be
// shared across queries and storages.
type ForEachDispatcher struct {
	batchSize int
}

// NewForEachDispatcher creates a dispatcher with the given batch size. A
// non-positive size falls back to Config.dispatchDefaultBatchSize.
func NewForEachDispatcher(batchSize int) *ForEachDispatcher {
	if batchSize <= 0 {
		batchSize = Config.dispatchDefaultBatchSize
	}
	return &ForEachDispatcher{batchSize: batchSize}
}

type forEachTask struct {
	base         *ArchetypeBase
	requiredCols []int
	optionalCols []int
	start, count int
}

func resolveColumns(arch *ArchetypeImpl, components []Component, functorName string, requireAll bool) []int {
	cols := make([]int, len(components))
	for i, c := range components {
		found := missingColumn
		for j, uc := range arch.uniqueComponents {
			if uc.ID() == c.ID() {
				found = j
				break
			}
		}
		if found == missingColumn && requireAll {
			crash("for-each %q: archetype missing a required component it was matched on", functorName)
		}
		cols[i] = found
	}
	return cols
}

func (d *ForEachDispatcher) packTasks(sto Storage, cache *ArchetypeQueryCache, q ForEachQuery, functorName string) []forEachTask {
	aq := q.toArchetypeQuery(sto)
	handle := cache.AddQuery(aq)
	archetypeIdxs := cache.GetResults(handle)

	var tasks []forEachTask
	archetypes := sto.Archetypes()
	for _, idx := range archetypeIdxs {
		arch := archetypes[idx]
		requiredCols := resolveColumns(arch, q.Required, functorName, true)
		optionalCols := resolveColumns(arch, q.Optional, functorName, false)
		for _, baseIdx := range arch.FindBaseVec(aq) {
			base := arch.bases[baseIdx]
			n := base.Size()
			for start := 0; start < n; start += d.batchSize {
				count := min(d.batchSize, n-start)
				tasks = append(tasks, forEachTask{
					base:         base,
					requiredCols: requiredCols,
					optionalCols: optionalCols,
					start:        start,
					count:        count,
				})
			}
		}
	}
	return tasks
}

func runForEachTask(t forEachTask, fn ForEachFunc) {
	rows := t.base.table.Rows()
	required := make([]reflect.Value, len(t.requiredCols))
	optional := make([]reflect.Value, len(t.optionalCols))
	for row := t.start; row < t.start+t.count; row++ {
		for i, col := range t.requiredCols {
			required[i] = reflect.Value(rows[col]).Index(row).Addr()
		}
		for i, col := range t.optionalCols {
			if col == missingColumn {
				optional[i] = reflect.Value{}
				continue
			}
			optional[i] = reflect.Value(rows[col]).Index(row).Addr()
		}
		fn(row, required, optional)
	}
}

// Dispatch runs fn over every entity matching q across a worker pool. Each
// task only ever touches its own batch of rows; if fn needs to mutate
// storage structure (add/remove components, destroy entities) it should
// post to a CommandBuffer instead and flush it after Dispatch returns,
// since concurrent structural writes from worker goroutines are not safe.
func (d *ForEachDispatcher) Dispatch(ctx context.Context, sto Storage, cache *ArchetypeQueryCache, q ForEachQuery, functorName string, fn ForEachFunc) error {
	tasks := d.packTasks(sto, cache, q, functorName)
	g, _ := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			runForEachTask(t, fn)
			return nil
		})
	}
	return g.Wait()
}

// DispatchCommit runs the same query synchronously on the calling
// goroutine. Used when the caller has no worker budget available (or is
// itself already running inside a dispatched task) and needs a
// single-threaded fallback rather than spawning nested work.
func (d *ForEachDispatcher) DispatchCommit(sto Storage, cache *ArchetypeQueryCache, q ForEachQuery, functorName string, fn ForEachFunc) {
	for _, t := range d.packTasks(sto, cache, q, functorName) {
		runForEachTask(t, fn)
	}
}

// DispatchSelection runs fn over an explicit, already-known list of
// entities rather than a query-cache result. If the caller can't guarantee
// entities stays stable for the duration of the call (e.g. it's a live
// slice another goroutine might mutate), pass stable=false and the
// dispatcher copies it first.
func (d *ForEachDispatcher) DispatchSelection(ctx context.Context, entities []Entity, stable bool, fn func(index int, en Entity)) error {
	work := entities
	if !stable {
		work = append([]Entity(nil), entities...)
	}
	g, _ := errgroup.WithContext(ctx)
	for start := 0; start < len(work); start += d.batchSize {
		start := start
		end := min(start+d.batchSize, len(work))
		g.Go(func() error {
			for i := start; i < end; i++ {
				fn(i, work[i])
			}
			return nil
		})
	}
	return g.Wait()
}

// DispatchSelectionGrouped groups entities by groupKey and runs initialize
// once per group before its members, then finalize once after. initialize
// returning false skips that group's members and its finalize call. Groups
// run sequentially (initialize/finalize are expected to touch shared
// per-group state, e.g. a shared component instance, which would race if
// groups ran concurrently); only within a group's fn calls does nothing
// prevent the caller from parallelizing further.
func (d *ForEachDispatcher) DispatchSelectionGrouped(
	entities []Entity,
	groupKey func(Entity) any,
	initialize func(key any, members []Entity) bool,
	fn func(index int, en Entity),
	finalize func(key any, members []Entity),
) {
	groups := make(map[any][]Entity)
	order := make([]any, 0)
	for _, en := range entities {
		key := groupKey(en)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], en)
	}
	for _, key := range order {
		members := groups[key]
		if initialize != nil && !initialize(key, members) {
			continue
		}
		for i, en := range members {
			fn(i, en)
		}
		if finalize != nil {
			finalize(key, members)
		}
	}
}

// CommandBuffer collects operations produced by worker tasks during a
// parallel for-each dispatch. Workers call Post concurrently; the caller
// flushes the buffer on a single-threaded phase once the dispatch has
// returned.
type CommandBuffer struct {
	mu  sync.Mutex
	ops []EntityOperation
}

// NewCommandBuffer creates an empty buffer, optionally pre-sizing its
// backing slice.
func NewCommandBuffer(capacityHint int) *CommandBuffer {
	return &CommandBuffer{ops: make([]EntityOperation, 0, capacityHint)}
}

// Post queues op for later application. Safe to call concurrently.
func (b *CommandBuffer) Post(op EntityOperation) {
	b.mu.Lock()
	b.ops = append(b.ops, op)
	b.mu.Unlock()
}

// Flush applies every queued operation to sto, in post order, and empties
// the buffer.
func (b *CommandBuffer) Flush(sto Storage) error {
	b.mu.Lock()
	ops := b.ops
	b.ops = nil
	b.mu.Unlock()
	for _, op := range ops {
		if err := op.Apply(sto); err != nil {
			return err
		}
	}
	return nil
}
