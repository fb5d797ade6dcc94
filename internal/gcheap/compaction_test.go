package gcheap

import "testing"

// testObjectModel treats every object as class.Size bytes with no
// reference fields, sufficient to exercise compaction's copy path.
type testObjectModel struct{}

func (testObjectModel) Size(obj Object) uintptr { return obj.ClassInfo().Size }

func (testObjectModel) ForEachReference(Object, func(uintptr, Object)) {}

func TestCompactAllSpecificRegionsMovesLiveObjects(t *testing.T) {
	pool := newTestPool(t, 4096, 4)
	space := NewRegionSpace(pool, SpaceObject, AllocatorBump)
	alloc := NewRegionAllocator(space, pool, 256)

	model := testObjectModel{}
	class := &ClassInfo{Name: "Test", Size: 32}

	objects := make(map[uintptr]*AtomicObject)
	decode := func(addr uintptr) Object {
		if o, ok := objects[addr]; ok {
			return o
		}
		return nil
	}

	addr, region := alloc.Alloc(FlagEden, 32, 8)
	if addr == 0 {
		t.Fatalf("expected allocation to succeed")
	}

	obj := NewAtomicObject(addr, class)
	objects[addr] = obj
	region.EnsureBitmaps()
	region.MarkBitmap.Set(addr)

	result := CompactAllSpecificRegions(space, FlagEden, FlagOld, alloc, true, model, decode, nil)

	if result.ObjectsMoved != 1 {
		t.Fatalf("expected 1 object moved, got %d", result.ObjectsMoved)
	}

	if !IsForwarded(obj) {
		t.Fatalf("expected source object to be forwarded")
	}

	fwd := ForwardAddress(obj)
	if fwd == 0 {
		t.Fatalf("expected non-zero forward address")
	}
}

func TestResetAllSpecificRegionsReturnsToPool(t *testing.T) {
	pool := newTestPool(t, 4096, 4)
	space := NewRegionSpace(pool, SpaceObject, AllocatorBump)

	space.AddRegion(4096, FlagEden)
	space.AddRegion(4096, FlagOld)

	ResetAllSpecificRegions(space, FlagEden)

	if space.Count() != 1 {
		t.Fatalf("expected 1 region remaining, got %d", space.Count())
	}

	var remaining RegionFlag
	space.ForEach(func(r *Region) { remaining = r.Flags() })

	if !remaining.Has(FlagOld) {
		t.Fatalf("expected remaining region to be Old-flagged")
	}
}
