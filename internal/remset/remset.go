// Package remset implements the per-region remembered set (component C4):
// for a region R, the set of cards in other regions that hold a reference
// into R. It is populated by the post-write barrier (internal/barrier) and
// consulted by the generational and G1 collectors during young/region
// collections so they can avoid a full-heap scan for roots outside the
// collection set.
package remset

import "sync"

// RegionID identifies the region that a remembered card lives in. It is a
// plain alias rather than a pointer so the remset package has no
// dependency on internal/gcheap's Region type (Design Notes: "cyclic
// ownership... model with arena + index").
type RegionID uint64

// CardPtr is the address of the first byte of a card, used as the
// dedup key within a bucket.
type CardPtr uintptr

// RemSet is the remembered set owned by a single region: it records,
// bucketed by the region the write occurred in, every card that contains
// a reference into the owning region.
type RemSet struct {
	mu      sync.Mutex
	buckets map[RegionID][]CardPtr
}

// New creates an empty remembered set.
func New() *RemSet {
	return &RemSet{buckets: make(map[RegionID][]CardPtr)}
}

// AddRef records that card (in fromRegion) contains a reference into the
// region that owns this RemSet. Buckets are expected to stay small, so
// dedup is a linear scan as in the original.
func (rs *RemSet) AddRef(fromRegion RegionID, card CardPtr) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	bucket := rs.buckets[fromRegion]
	for _, c := range bucket {
		if c == card {
			return
		}
	}

	rs.buckets[fromRegion] = append(bucket, card)
}

// CardVisitor is called once per recorded card.
type CardVisitor func(from RegionID, card CardPtr)

// VisitMarkedCards scans every bucket and invokes visitor for each
// recorded card, regardless of the from-region's collection status; the
// caller is expected to skip entries whose from-region is in the current
// collection set (those references are already covered by a root/young
// scan).
func (rs *RemSet) VisitMarkedCards(visitor CardVisitor) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for from, cards := range rs.buckets {
		for _, c := range cards {
			visitor(from, c)
		}
	}
}

// Clear removes every recorded card, used after a region has been fully
// processed by a collection cycle (the remembered references are now
// either promoted roots or dead).
func (rs *RemSet) Clear() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.buckets = make(map[RegionID][]CardPtr)
}

// Len returns the total number of recorded (from-region, card) pairs,
// used by tests and heap statistics.
func (rs *RemSet) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	n := 0
	for _, cards := range rs.buckets {
		n += len(cards)
	}

	return n
}

// RemoveRegion drops every card recorded against fromRegion, used when
// fromRegion is reclaimed (e.g. an Eden region returned to the pool after
// a young collection: its cards can no longer be meaningful).
func (rs *RemSet) RemoveRegion(fromRegion RegionID) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	delete(rs.buckets, fromRegion)
}
