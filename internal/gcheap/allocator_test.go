package gcheap

import "testing"

func newTestPool(t *testing.T, regionSize RegionSize, slots int) *RegionPool {
	t.Helper()

	pool, err := NewRegionPool(regionSize, slots, genericPageSourceForTest{})
	if err != nil {
		t.Fatalf("NewRegionPool: %v", err)
	}

	return pool
}

func TestRegionAllocatorRegularAndLarge(t *testing.T) {
	pool := newTestPool(t, 4096, 2)
	space := NewRegionSpace(pool, SpaceObject, AllocatorBump)
	alloc := NewRegionAllocator(space, pool, 256)

	addr, r := alloc.Alloc(FlagEden, 32, 8)
	if addr == 0 || r == nil {
		t.Fatalf("expected successful regular allocation")
	}

	if !r.Flags().Has(FlagEden) {
		t.Fatalf("expected region flagged Eden")
	}

	// A request larger than maxRegular() must spill into a dedicated
	// large region per spec.md §4.2.
	bigSize := alloc.maxRegular() + 1

	bigAddr, bigRegion := alloc.Alloc(FlagOld, bigSize, 8)
	if bigAddr == 0 || bigRegion == nil {
		t.Fatalf("expected successful large allocation")
	}

	if !bigRegion.Flags().Has(FlagLarge) {
		t.Fatalf("expected large region to carry FlagLarge, got %v", bigRegion.Flags())
	}
}

func TestTLABCreateAndAlloc(t *testing.T) {
	pool := newTestPool(t, 4096, 2)
	space := NewRegionSpace(pool, SpaceObject, AllocatorBump)
	alloc := NewRegionAllocator(space, pool, 256)

	tlab := alloc.CreateNewTLAB(nil, 64)
	if tlab == nil {
		t.Fatalf("expected TLAB creation to succeed")
	}

	addr := tlab.Alloc(64, 8)
	if addr == 0 {
		t.Fatalf("expected TLAB allocation to succeed")
	}
}

func TestTLABExhaustionYieldsFreshTLAB(t *testing.T) {
	pool := newTestPool(t, 256, 2)
	space := NewRegionSpace(pool, SpaceObject, AllocatorBump)
	alloc := NewRegionAllocator(space, pool, 16)

	tlab := alloc.CreateNewTLAB(nil, 256)
	if tlab == nil {
		t.Fatalf("expected initial TLAB")
	}

	// Exhaust the TLAB entirely.
	for tlab.Alloc(32, 8) != 0 {
	}

	next := alloc.CreateNewTLAB(tlab, 32)
	if next == nil {
		t.Fatalf("expected a fresh TLAB after exhaustion, not a failure")
	}

	if addr := next.Alloc(32, 8); addr == 0 {
		t.Fatalf("expected allocation from fresh TLAB to succeed")
	}
}

func TestTLABRetainedReuse(t *testing.T) {
	pool := newTestPool(t, 4096, 4)
	space := NewRegionSpace(pool, SpaceObject, AllocatorBump)
	alloc := NewRegionAllocator(space, pool, 256)

	first := alloc.CreateNewTLAB(nil, 64)
	first.Alloc(64, 8) // leave a large remaining tail to retain

	second := alloc.CreateNewTLAB(first, 64)
	if second == nil {
		t.Fatalf("expected TLAB after revocation")
	}

	// The revoked TLAB's remaining tail is retained and, being large enough,
	// is handed straight back as the new TLAB, leaving nothing retained.
	alloc.retainedMu.Lock()
	total := 0
	for _, list := range alloc.retainedTLABs {
		total += len(list)
	}
	alloc.retainedMu.Unlock()

	if second != first || total != 0 {
		t.Fatalf("expected the retained TLAB to be reused (reused=%v, still retained=%d)", second == first, total)
	}
}

func TestNonmovableAllocatorFreelistReuse(t *testing.T) {
	pool := newTestPool(t, 4096, 2)
	space := NewRegionSpace(pool, SpaceObject, AllocatorFreeList)
	nm := NewNonmovableAllocator(space)

	a := nm.Alloc(64, 8)
	if a == 0 {
		t.Fatalf("expected allocation to succeed")
	}

	nm.Free(a, 64)

	b := nm.Alloc(64, 8)
	if b != a {
		t.Fatalf("expected freelist reuse to return the same address, got %x want %x", b, a)
	}
}
