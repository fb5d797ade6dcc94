// Package barrier implements the write-barrier sets (component C10):
// the SATB pre-barrier shared by both collector flavors, the
// generational post-barrier (card marking), and the G1 post-barrier
// (inter-region remembered-set enqueue). Grounded on spec.md §4.10 and
// original_source/runtime/mem/gc/gc_barrier_set.cpp.
package barrier

import (
	"sync/atomic"
	"unsafe"

	"github.com/orizon-lang/orizon-gc/internal/cardtable"
)

// ptrOf returns p's address as a uintptr, used to publish the card
// table's backing array base as a named JIT operand.
func ptrOf(p *uint8) uintptr { return uintptr(unsafe.Pointer(p)) }

// PreStoreFunc is invoked with the overwritten reference value when a
// concurrent mark is in progress, so the marker can still visit it
// (snapshot-at-the-beginning).
type PreStoreFunc func(preVal uintptr)

// PreSATBBarrier enqueues preVal into the marking worklist via store
// when concurrentMarking is set and preVal is non-zero, per
// gc_barrier_set.cpp's PreSATBBarrier.
func PreSATBBarrier(concurrentMarking *atomic.Bool, store PreStoreFunc, preVal uintptr) {
	if !concurrentMarking.Load() {
		return
	}

	if preVal == 0 {
		return
	}

	store(preVal)
}

// PostIntergenerationalBarrier marks the single card covering
// objFieldAddr, per gc_barrier_set.cpp's PostIntergenerationalBarrier.
func PostIntergenerationalBarrier(ct *cardtable.CardTable, objFieldAddr uintptr) {
	ct.MarkCard(objFieldAddr)
}

// PostIntergenerationalBarrierInRange marks every card covered by
// [objFieldAddr, objFieldAddr+size), per
// PostIntergenerationalBarrierInRange.
func PostIntergenerationalBarrierInRange(ct *cardtable.CardTable, objFieldAddr uintptr, size uintptr) {
	if size == 0 {
		return
	}

	last := objFieldAddr + size - 1

	for addr := objFieldAddr; addr <= last; addr += cardtable.CardSize {
		ct.MarkCard(addr)
	}

	ct.MarkCard(last)
}

// InterregionUpdateFunc records a cross-region reference, typically by
// enqueuing (objAddr, ref) into the from-region's remembered set.
type InterregionUpdateFunc func(objAddr, ref uintptr)

// PostInterregionBarrier invokes update when ref is non-zero and
// objAddr/ref fall in different regions (their addresses diverge above
// regionSizeBits), per gc_barrier_set.cpp's PostInterregionBarrier.
func PostInterregionBarrier(objAddr, ref uintptr, regionSizeBits uint, update InterregionUpdateFunc) {
	if ref == 0 {
		return
	}

	if (objAddr^ref)>>regionSizeBits != 0 {
		update(objAddr, ref)
	}
}

// Operand is a named value the JIT barrier emitter inlines as an
// immediate, per spec.md §4.10: "the runtime looks up operands by name
// so JIT-emitted barrier code can inline the correct immediate
// values."
type Operand struct {
	Name  string
	Value uintptr
}

// BarrierSet is the interface collectors and the heap facade program
// against; GenBarrierSet and G1BarrierSet implement it with different
// PostBarrier/PostBarrierArrayWrite bodies.
type BarrierSet interface {
	PreBarrier(fieldAddr uintptr, preVal uintptr)
	PostBarrier(objAddr uintptr, storedVal uintptr)
	PostBarrierArrayWrite(objAddr uintptr, size uintptr)
	PostBarrierEveryObjectFieldWrite(objAddr uintptr, size uintptr)
	Operand(name string) (Operand, bool)
}
