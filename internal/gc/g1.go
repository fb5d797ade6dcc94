package gc

import (
	"sort"

	"github.com/orizon-lang/orizon-gc/internal/gcheap"
)

// RegionGarbage pairs a region with its garbage_bytes priority, per
// spec.md §4.6: garbage_bytes = (top - begin) - live_bytes.
type RegionGarbage struct {
	Region       *gcheap.Region
	GarbageBytes uint64
}

// G1 is the region-based, mostly-concurrent collector of spec.md §4.6.
// It traces inter-region references via a post-barrier queue instead of
// (or alongside) a card table, toggles concurrent_marking_flag to gate
// the SATB pre-barrier, and selects tenured regions to compact by
// garbage-byte priority.
type G1 struct {
	Base

	Young   *gcheap.RegionSpace
	Old     *gcheap.RegionSpace
	Alloc   *gcheap.RegionAllocator
	Model   gcheap.ObjectModel

	// InterRegionRefs drains the post-barrier queue of (from, to) region
	// references accumulated since the last collection; the concurrent
	// marker consumes these to extend its root set across regions.
	InterRegionRefs func() []uintptr

	concurrentMarking bool

	UpdateMovedRefs func(resolve func(addr uintptr) (newAddr uintptr, moved bool))

	// RegionsToCompact overrides the default garbage-priority selection,
	// for tests; nil uses SelectTenuredRegions.
	RegionsToCompact func(candidates []RegionGarbage) []*gcheap.Region
}

// NewG1 creates a G1 collector over young/old region spaces.
func NewG1(lock WriteLocker, graph ObjectGraph, young, old *gcheap.RegionSpace, alloc *gcheap.RegionAllocator, model gcheap.ObjectModel) *G1 {
	return &G1{
		Base:  Base{Lock: lock, Graph: graph},
		Young: young,
		Old:   old,
		Alloc: alloc,
		Model: model,
	}
}

// ConcurrentMarkingFlag reports whether the SATB pre-barrier should be
// active right now.
func (g *G1) ConcurrentMarkingFlag() bool { return g.concurrentMarking }

func (g *G1) Trigger(task *Task) {}

func (g *G1) MarkObject(addr uintptr)                { g.markObject(addr) }
func (g *G1) MarkObjectIfNotMarked(addr uintptr) bool { return g.markObjectIfNotMarked(addr) }
func (g *G1) UnMarkObject(addr uintptr)               { g.unmarkObject(addr) }
func (g *G1) IsMarked(addr uintptr) bool              { return g.isMarked(addr) }
func (g *G1) InitializeImpl()                         {}

func (g *G1) MarkReferences(task *Task) {
	roots := g.Graph.Roots()

	if g.InterRegionRefs != nil {
		roots = append(roots, g.InterRegionRefs()...)
	}

	g.markTransitively(roots)
}

// RunPhasesImpl runs a STW young collection (copying survivors into Old)
// followed by a concurrent-marking-gated selection and compaction of
// the most-garbage Old regions.
func (g *G1) RunPhasesImpl(task *Task) {
	g.runYoungCollection(task)

	g.concurrentMarking = true
	g.setPhase(PhaseMark)
	g.MarkReferences(task)
	g.concurrentMarking = false

	g.setPhase(PhaseCompact)
	g.compactMostGarbage()
}

func (g *G1) runYoungCollection(task *Task) {
	g.Lock.WriteLock()
	defer g.Lock.Unlock()

	g.setPhase(PhaseMark)
	g.markTransitively(g.Graph.Roots())

	g.setPhase(PhaseCompact)

	gcheap.CompactAllSpecificRegions(g.Young, gcheap.FlagEden|gcheap.FlagSurvivor, gcheap.FlagOld, g.Alloc, false, g.Model, g.Graph.Decode, func(obj gcheap.Object) bool {
		return !g.isMarked(obj.Address())
	})

	gcheap.ResetAllSpecificRegions(g.Young, gcheap.FlagEden)
	gcheap.ResetAllSpecificRegions(g.Young, gcheap.FlagSurvivor)

	if g.UpdateMovedRefs != nil {
		g.UpdateMovedRefs(func(addr uintptr) (uintptr, bool) {
			obj := g.Graph.Decode(addr)
			if obj == nil || !gcheap.IsForwarded(obj) {
				return 0, false
			}

			return gcheap.ForwardAddress(obj), true
		})
	}
}

// SelectTenuredRegions ranks candidates by GarbageBytes descending and
// returns every region (the embedding runtime typically caps this by
// a byte or time budget before calling CompactAllSpecificRegions-style
// logic; this package selects, the caller bounds).
func SelectTenuredRegions(candidates []RegionGarbage) []*gcheap.Region {
	sorted := make([]RegionGarbage, len(candidates))
	copy(sorted, candidates)

	sort.Slice(sorted, func(i, j int) bool { return sorted[i].GarbageBytes > sorted[j].GarbageBytes })

	out := make([]*gcheap.Region, len(sorted))
	for i, c := range sorted {
		out[i] = c.Region
	}

	return out
}

func (g *G1) compactMostGarbage() {
	var candidates []RegionGarbage

	g.Old.ForEach(func(r *gcheap.Region) {
		top := uint64(r.Top())
		begin := uint64(r.Begin)
		live := r.LiveBytes.Load()

		garbage := (top - begin) - live
		candidates = append(candidates, RegionGarbage{Region: r, GarbageBytes: garbage})
	})

	selector := g.RegionsToCompact
	if selector == nil {
		selector = SelectTenuredRegions
	}

	selected := selector(candidates)
	if len(selected) == 0 {
		return
	}

	gcheap.CompactSpecificRegions(g.Old, selected, gcheap.FlagOld, g.Alloc, g.Model, g.Graph.Decode)
}
