package gcruntime

import (
	"sync"

	"github.com/orizon-lang/orizon-gc/internal/barrier"
	"github.com/orizon-lang/orizon-gc/internal/cardtable"
)

// noopBarrierSet is wired in for collectors (epsilon, stop-the-world)
// that never move objects across card-table-relevant boundaries and so
// need no write barrier, matching NullCollector's "never reclaims, never
// traces" stance.
type noopBarrierSet struct{}

func (noopBarrierSet) PreBarrier(uintptr, uintptr)                {}
func (noopBarrierSet) PostBarrier(uintptr, uintptr)                {}
func (noopBarrierSet) PostBarrierArrayWrite(uintptr, uintptr)      {}
func (noopBarrierSet) PostBarrierEveryObjectFieldWrite(uintptr, uintptr) {}
func (noopBarrierSet) Operand(string) (barrier.Operand, bool)      { return barrier.Operand{}, false }

// growableCardTable owns the shared card table and the barrier set built
// on top of it. internal/gcheap.RegionPool acquires each region via its
// own pageSource.MapPages call rather than one contiguous upfront
// reservation, so a cardtable.CardTable sized once at startup cannot
// safely promise to cover every region a collector will ever see. Growth
// rebuilds a wider table spanning the union of the old range and the new
// address, and carries every already-Marked card forward via
// CardTable.VisitMarked before the old table is dropped — lossless, if
// conservative: a Processed card collapses back to Marked rather than
// being dropped.
//
// GenBarrierSet and G1BarrierSet both close over a concrete
// *cardtable.CardTable pointer at construction, so growth alone would
// silently leave the active barrier set marking a table the collector no
// longer reads from. rebuildBarrier is invoked every time the table is
// replaced so the two always change together.
type growableCardTable struct {
	mu sync.RWMutex

	table *cardtable.CardTable

	rebuildBarrier func(*cardtable.CardTable) barrier.BarrierSet
	barrierSet     barrier.BarrierSet
}

func newGrowableCardTable(minAddr, maxAddr uintptr) *growableCardTable {
	if maxAddr <= minAddr {
		maxAddr = minAddr + cardtable.CardSize
	}

	return &growableCardTable{table: cardtable.New(minAddr, maxAddr-minAddr)}
}

// setBarrierFactory installs fn and immediately builds the first barrier
// set from the current table.
func (g *growableCardTable) setBarrierFactory(fn func(*cardtable.CardTable) barrier.BarrierSet) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rebuildBarrier = fn
	g.barrierSet = fn(g.table)
}

// barrier returns the barrier set built over the current table.
func (g *growableCardTable) barrier() barrier.BarrierSet {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.barrierSet
}

func (g *growableCardTable) current() *cardtable.CardTable {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.table
}

func (g *growableCardTable) covers(begin, end uintptr) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	min := g.table.MinAddress()
	max := min + uintptr(g.table.CardsCount())*cardtable.CardSize

	return begin >= min && end <= max
}

// ensure grows the table (and rebuilds the barrier set over it) so that
// [begin, end) falls within its covered range. A no-op if it already does.
func (g *growableCardTable) ensure(begin, end uintptr) {
	if g.covers(begin, end) {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	min := g.table.MinAddress()
	max := min + uintptr(g.table.CardsCount())*cardtable.CardSize

	if begin >= min && end <= max {
		return
	}

	newMin, newMax := min, max
	if begin < newMin {
		newMin = begin
	}

	if end > newMax {
		newMax = end
	}

	grown := cardtable.New(newMin, newMax-newMin)

	old := g.table
	old.VisitMarked(func(r cardtable.MemRange) (remark bool) {
		grown.MarkCard(r.Begin)
		return false
	}, cardtable.VisitMarkedFlag|cardtable.VisitProcessedFlag)

	g.table = grown

	if g.rebuildBarrier != nil {
		g.barrierSet = g.rebuildBarrier(grown)
	}
}

// unionRange merges two [min,max) spans, tolerating either being empty
// (min==max==0, the case before any region has ever been acquired).
func unionRange(aMin, aMax, bMin, bMax uintptr) (min, max uintptr) {
	min, max = aMin, aMax

	if bMin != 0 && (min == 0 || bMin < min) {
		min = bMin
	}

	if bMax > max {
		max = bMax
	}

	return min, max
}
