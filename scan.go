package gcruntime

import (
	"github.com/orizon-lang/orizon-gc/internal/cardtable"
	"github.com/orizon-lang/orizon-gc/internal/gcheap"
	"github.com/orizon-lang/orizon-gc/internal/remset"
)

// regionFor returns the region owning addr, searching young before
// tenured. Region lookups are linear scans over each space's region
// list; both spaces stay small at this module's scale (a handful of
// 256 KiB regions), so this trades a real index for simplicity rather
// than performance.
func (h *Heap) regionFor(addr uintptr) *gcheap.Region {
	var found *gcheap.Region

	locate := func(r *gcheap.Region) {
		if found == nil && r.Contains(addr) {
			found = r
		}
	}

	h.young.ForEach(locate)

	if found != nil {
		return found
	}

	h.tenured.ForEach(locate)

	return found
}

func (h *Heap) regionByID(id gcheap.RegionID) *gcheap.Region {
	var found *gcheap.Region

	locate := func(r *gcheap.Region) {
		if found == nil && r.ID == id {
			found = r
		}
	}

	h.young.ForEach(locate)

	if found != nil {
		return found
	}

	h.tenured.ForEach(locate)

	return found
}

func cardAlign(addr uintptr) uintptr {
	return addr &^ (cardtable.CardSize - 1)
}

// recordInterregionRef is the G1 barrier's InterregionUpdateFunc: it
// records, in the region owning ref, that the card owning objAddr (in
// the region owning objAddr) holds a reference into it.
func (h *Heap) recordInterregionRef(objAddr, ref uintptr) {
	target := h.regionFor(ref)
	if target == nil {
		return
	}

	source := h.regionFor(objAddr)
	if source == nil {
		return
	}

	target.RemSet.AddRef(remset.RegionID(source.ID), remset.CardPtr(cardAlign(objAddr)))
}

// addrsInRange collects every address marked live in space's regions
// that falls within [begin, end), used to turn a dirty card or
// remembered card range into concrete GC roots.
func addrsInRange(space *gcheap.RegionSpace, begin, end uintptr) []uintptr {
	var out []uintptr

	space.ForEach(func(r *gcheap.Region) {
		if r.End <= begin || r.Begin >= end {
			return
		}

		if r.MarkBitmap == nil {
			return
		}

		r.MarkBitmap.ForEachSet(func(addr uintptr) {
			if addr >= begin && addr < end {
				out = append(out, addr)
			}
		})
	})

	return out
}

// cardRoots is the Generational collector's CardRoots hook: every
// tenured object whose address falls under a dirty shared card is a
// cross-generation root a young collection must also trace from.
func (h *Heap) cardRoots() []uintptr {
	var roots []uintptr

	h.cards.current().VisitMarked(func(r cardtable.MemRange) (remark bool) {
		roots = append(roots, addrsInRange(h.tenured, r.Begin, r.End)...)
		return true
	}, cardtable.VisitMarkedFlag)

	return roots
}

// interRegionRoots is the G1 collector's InterRegionRefs hook: every
// remembered (from-region, card) pair across every old-space region
// names additional roots the concurrent marker must trace from.
func (h *Heap) interRegionRoots() []uintptr {
	var roots []uintptr

	h.tenured.ForEach(func(r *gcheap.Region) {
		r.RemSet.VisitMarkedCards(func(from remset.RegionID, card remset.CardPtr) {
			src := h.regionByID(gcheap.RegionID(from))
			if src == nil {
				return
			}

			begin := uintptr(card)
			roots = append(roots, addrsInRange(h.young, begin, begin+cardtable.CardSize)...)
			roots = append(roots, addrsInRange(h.tenured, begin, begin+cardtable.CardSize)...)
		})
	})

	return roots
}

// applyMovedRefs is shared by the Generational and G1 UpdateMovedRefs
// hooks: it fixes up reference storage first (spec.md §4.7), then the
// facade's own object graph (roots and reference fields).
func (h *Heap) applyMovedRefs(resolve func(addr uintptr) (newAddr uintptr, moved bool)) {
	h.refs.UpdateMovedRefs(resolve)
	h.graph.applyMoves(resolve)
}
