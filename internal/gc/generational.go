package gc

import "github.com/orizon-lang/orizon-gc/internal/gcheap"

// DefaultMajorPeriod is how many young collections run between tenured
// collections, per spec.md §4.6.
const DefaultMajorPeriod = 3

// Generational is the young/tenured copying collector of spec.md §4.6.
type Generational struct {
	Base

	Young   *gcheap.RegionSpace
	Tenured *gcheap.RegionSpace
	Alloc   *gcheap.RegionAllocator
	Model   gcheap.ObjectModel

	// CardRoots returns addresses of objects in Tenured with a dirty
	// card pointing into Young — the cross-generation roots a young
	// collection must also trace from.
	CardRoots func() []uintptr

	// UpdateMovedRefs is invoked after a young collection with a
	// resolver that reports an object's post-move address, so VM roots,
	// thread-local frames and reference storage can be fixed up.
	UpdateMovedRefs func(resolve func(addr uintptr) (newAddr uintptr, moved bool))

	// SweepTenured reclaims tenured objects isLive reports as dead,
	// invoked at the end of a tenured collection's remark section.
	SweepTenured func(isLive func(addr uintptr) bool)

	majorPeriod int
	youngCycles int
}

// NewGenerational creates a Generational collector with the default
// major period.
func NewGenerational(lock WriteLocker, graph ObjectGraph, young, tenured *gcheap.RegionSpace, alloc *gcheap.RegionAllocator, model gcheap.ObjectModel) *Generational {
	return &Generational{
		Base:        Base{Lock: lock, Graph: graph},
		Young:       young,
		Tenured:     tenured,
		Alloc:       alloc,
		Model:       model,
		majorPeriod: DefaultMajorPeriod,
	}
}

// SetMajorPeriod overrides DefaultMajorPeriod.
func (g *Generational) SetMajorPeriod(n int) { g.majorPeriod = n }

func (g *Generational) Trigger(task *Task) {}

func (g *Generational) MarkObject(addr uintptr)                 { g.markObject(addr) }
func (g *Generational) MarkObjectIfNotMarked(addr uintptr) bool  { return g.markObjectIfNotMarked(addr) }
func (g *Generational) UnMarkObject(addr uintptr)                { g.unmarkObject(addr) }
func (g *Generational) IsMarked(addr uintptr) bool               { return g.isMarked(addr) }
func (g *Generational) MarkReferences(task *Task)                { g.markTransitively(g.roots()) }
func (g *Generational) InitializeImpl()                          {}

func (g *Generational) roots() []uintptr {
	roots := g.Graph.Roots()

	if g.CardRoots != nil {
		roots = append(roots, g.CardRoots()...)
	}

	return roots
}

// ShouldRunTenuredGC reports whether task warrants a tenured collection
// in addition to (or instead of) the young collection, per spec.md
// §4.6: explicit/OOM causes always do, otherwise every majorPeriod'th
// young cycle does.
func (g *Generational) ShouldRunTenuredGC(task *Task) bool {
	if task.Cause == CauseExplicit || task.Cause == CauseOOM {
		return true
	}

	period := g.majorPeriod
	if period <= 0 {
		period = DefaultMajorPeriod
	}

	return g.youngCycles%period == 0
}

// RunPhasesImpl runs a young collection, then a tenured one if
// ShouldRunTenuredGC agrees.
func (g *Generational) RunPhasesImpl(task *Task) {
	g.RunYoungGC(task)

	g.youngCycles++

	if g.ShouldRunTenuredGC(task) {
		g.RunTenuredGC(task)
	}
}

// RunYoungGC is STW: roots and card-table roots seed a trace over the
// young generation, survivors are copied into tenured space with
// forwarding pointers installed, and every remembered reference is
// fixed up via UpdateMovedRefs.
func (g *Generational) RunYoungGC(task *Task) {
	g.Lock.WriteLock()
	defer g.Lock.Unlock()

	g.setPhase(PhaseMark)
	g.markTransitively(g.roots())

	g.setPhase(PhaseCompact)

	result := gcheap.CompactAllSpecificRegions(
		g.Young, gcheap.FlagEden|gcheap.FlagSurvivor, gcheap.FlagOld,
		g.Alloc, false, g.Model, g.Graph.Decode, g.deathChecker,
	)

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

	_ = result
}

func (g *Generational) deathChecker(obj gcheap.Object) bool {
	return !g.isMarked(obj.Address())
}

// RunTenuredGC is initial-mark (STW) + concurrent-mark + remark (STW) +
// sweep, per spec.md §4.6. This package has no background marking
// thread of its own, so "concurrent" mark runs inline between the two
// STW brackets; a caller wanting true concurrency runs RunTenuredGC from
// a goroutine and relies on Lock's RW semantics to let mutators proceed
// between the two WriteLock sections.
func (g *Generational) RunTenuredGC(task *Task) {
	g.Lock.WriteLock()
	g.setPhase(PhaseMark)
	initialRoots := g.roots()
	g.Lock.Unlock()

	g.markTransitively(initialRoots)

	g.Lock.WriteLock()
	defer g.Lock.Unlock()

	g.setPhase(PhaseMark)
	g.markTransitively(g.roots())

	g.setPhase(PhaseSweep)

	if g.SweepTenured != nil {
		g.SweepTenured(g.isMarked)
	}
}
