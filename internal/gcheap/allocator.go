package gcheap

import (
	"sync"
)

// maxRegularObjectFraction sets the per-object-size threshold past which
// RegionAllocator spills into a dedicated large region, per spec.md §4.2:
// the threshold is the pool's region size divided by this value, so a
// regular region can still host several objects.
const maxRegularObjectFraction = 4

// RegionAllocator implements the bump-pointer allocator of spec.md §4.2:
// it holds one "current" region per RegionFlag (Eden, Old, ...) and
// spills oversized objects into dedicated large regions.
type RegionAllocator struct {
	mu    sync.Mutex
	space *RegionSpace
	pool  *RegionPool

	current map[RegionFlag]*Region

	retainedMu      sync.Mutex
	retainedTLABs   map[uintptr][]*TLAB
	retainThreshold uintptr
}

// NewRegionAllocator creates a bump allocator that carves regions from
// space/pool.
func NewRegionAllocator(space *RegionSpace, pool *RegionPool, retainThreshold uintptr) *RegionAllocator {
	return &RegionAllocator{
		space:           space,
		pool:            pool,
		current:         make(map[RegionFlag]*Region),
		retainedTLABs:   make(map[uintptr][]*TLAB),
		retainThreshold: retainThreshold,
	}
}

func (a *RegionAllocator) maxRegular() uintptr {
	return a.pool.regionSize / maxRegularObjectFraction
}

// Alloc allocates size bytes (aligned to align) tagged with flag. It
// follows the three-step protocol of spec.md §4.2: try the current
// region with an atomic bump, then retry/replace the current region under a lock,
// then fall back to a dedicated large region for oversized requests.
func (a *RegionAllocator) Alloc(flag RegionFlag, size, align uintptr) (uintptr, *Region) {
	want := alignUp(size, align)

	if want <= a.maxRegular() {
		if r := a.currentRegion(flag); r != nil {
			if addr := r.Alloc(size, align); addr != 0 {
				return addr, r
			}
		}

		a.mu.Lock()
		defer a.mu.Unlock()

		if r := a.current[flag]; r != nil {
			if addr := r.Alloc(size, align); addr != 0 {
				return addr, r
			}
		}

		fresh := a.space.AddRegion(DefaultRegionSize, flag)
		if fresh == nil {
			return 0, nil
		}

		fresh.EnsureBitmaps()
		a.current[flag] = fresh

		return fresh.Alloc(size, align), fresh
	}

	large := a.space.AddRegion(want, flag|FlagLarge)
	if large == nil {
		return 0, nil
	}

	large.EnsureBitmaps()
	addr := large.Alloc(size, align)

	return addr, large
}

func (a *RegionAllocator) currentRegion(flag RegionFlag) *Region {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.current[flag]
}

// TLAB is a Thread-Local Allocation Buffer: a slice of an Eden region
// owned by one thread for lock-free bump allocation, per spec.md's
// Glossary entry and §4.2.
type TLAB struct {
	begin  uintptr
	end    uintptr
	top    uintptr
	region *Region
}

// Alloc bump-allocates size bytes from the TLAB without any
// synchronization; callers must ensure a TLAB is never shared across
// threads.
func (t *TLAB) Alloc(size, align uintptr) uintptr {
	aligned := alignUp(t.top, align)
	want := alignUp(size, align)
	next := aligned + want

	if next > t.end {
		return 0
	}

	t.top = next

	return aligned
}

// Remaining reports how many bytes are left in the TLAB.
func (t *TLAB) Remaining() uintptr { return t.end - t.top }

// Region returns the region this TLAB was carved from.
func (t *TLAB) Region() *Region { return t.region }

// retainBucket buckets a TLAB's remaining bytes down to retainThreshold
// granularity for the multimap lookup described in spec.md §4.2.
func (a *RegionAllocator) retainBucket(remaining uintptr) uintptr {
	if a.retainThreshold == 0 {
		return remaining
	}

	return (remaining / a.retainThreshold) * a.retainThreshold
}

func (a *RegionAllocator) revokeTLAB(t *TLAB) {
	if t == nil {
		return
	}

	t.region.SetTop(t.top)

	remaining := t.Remaining()
	if remaining < a.retainThreshold {
		return
	}

	bucket := a.retainBucket(remaining)

	a.retainedMu.Lock()
	a.retainedTLABs[bucket] = append(a.retainedTLABs[bucket], t)
	a.retainedMu.Unlock()
}

// popRetained finds the largest retained-bucket TLAB that can satisfy
// minSize, removing and returning it. Returns nil if none qualifies.
func (a *RegionAllocator) popRetained(minSize uintptr) *TLAB {
	a.retainedMu.Lock()
	defer a.retainedMu.Unlock()

	var bestBucket uintptr

	found := false

	for bucket, list := range a.retainedTLABs {
		if bucket < minSize || len(list) == 0 {
			continue
		}

		if !found || bucket > bestBucket {
			bestBucket = bucket
			found = true
		}
	}

	if !found {
		return nil
	}

	list := a.retainedTLABs[bestBucket]
	t := list[len(list)-1]
	a.retainedTLABs[bestBucket] = list[:len(list)-1]

	return t
}

// CreateNewTLAB implements the protocol of spec.md §4.2: revoke the
// thread's current TLAB (old may be nil for a thread's first TLAB), then
// either reuse a retained TLAB or allocate a fresh Eden region and hand
// its [top, end) to the thread.
func (a *RegionAllocator) CreateNewTLAB(old *TLAB, size uintptr) *TLAB {
	a.revokeTLAB(old)

	if reused := a.popRetained(size); reused != nil {
		return reused
	}

	r := a.space.AddRegion(DefaultRegionSize, FlagEden)
	if r == nil {
		return nil
	}

	r.EnsureBitmaps()

	return &TLAB{begin: r.Top(), end: r.End, top: r.Top(), region: r}
}
