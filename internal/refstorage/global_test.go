package refstorage

import "testing"

func TestArrayStorageAddGetRemove(t *testing.T) {
	s := newArrayStorage(2, 16)

	idx1, ok := s.Add(0x1000)
	if !ok {
		t.Fatalf("expected Add to succeed")
	}

	idx2, ok := s.Add(0x2000)
	if !ok {
		t.Fatalf("expected Add to succeed")
	}

	if idx1 == idx2 {
		t.Fatalf("expected distinct indices, got %d and %d", idx1, idx2)
	}

	if got := s.Get(idx1); got != 0x1000 {
		t.Fatalf("Get(idx1) = %#x, want 0x1000", got)
	}

	if !s.Remove(idx1) {
		t.Fatalf("expected Remove to succeed")
	}

	if got := s.Get(idx1); got != 0 {
		t.Fatalf("Get after Remove = %#x, want 0", got)
	}

	if s.Remove(idx1) {
		t.Fatalf("expected double-Remove to fail")
	}
}

func TestArrayStorageReusesFreedSlot(t *testing.T) {
	s := newArrayStorage(1, 16)

	idx1, _ := s.Add(0x1000)
	s.Remove(idx1)

	idx2, ok := s.Add(0x2000)
	if !ok {
		t.Fatalf("expected Add to succeed")
	}

	if idx2 != idx1 {
		t.Fatalf("expected freed slot %d to be reused, got %d", idx1, idx2)
	}
}

func TestArrayStorageGrowsOnExhaustion(t *testing.T) {
	s := newArrayStorage(1, 16)

	var last uint32

	for i := 0; i < 5; i++ {
		idx, ok := s.Add(uintptr(0x1000 + i*8))
		if !ok {
			t.Fatalf("Add %d unexpectedly failed", i)
		}

		last = idx
	}

	if got := s.Get(last); got == 0 {
		t.Fatalf("expected last slot to hold a payload")
	}
}

func TestArrayStorageRespectsMaxSize(t *testing.T) {
	s := newArrayStorage(1, 2)

	for i := 0; i < 2; i++ {
		if _, ok := s.Add(uintptr(0x1000 + i*8)); !ok {
			t.Fatalf("Add %d should have succeeded within maxSize", i)
		}
	}

	if _, ok := s.Add(0x9000); ok {
		t.Fatalf("expected Add beyond maxSize to fail")
	}
}

func TestGlobalObjectStorageRoutesByKind(t *testing.T) {
	g := NewGlobalObjectStorage(2, 16)

	globalRef, ok := g.Add(KindGlobal, 0x1000)
	if !ok || !globalRef.IsGlobal() {
		t.Fatalf("expected a GLOBAL reference, got %v ok=%v", globalRef, ok)
	}

	weakRef, ok := g.Add(KindWeak, 0x2000)
	if !ok || !weakRef.IsWeak() {
		t.Fatalf("expected a WEAK reference, got %v ok=%v", weakRef, ok)
	}

	if got := g.Get(globalRef); got != 0x1000 {
		t.Fatalf("Get(globalRef) = %#x, want 0x1000", got)
	}

	if got := g.Get(weakRef); got != 0x2000 {
		t.Fatalf("Get(weakRef) = %#x, want 0x2000", got)
	}
}

func TestGlobalObjectStorageUpdateMovedRefs(t *testing.T) {
	g := NewGlobalObjectStorage(2, 16)

	ref, _ := g.Add(KindGlobal, 0x1000)

	g.UpdateMovedRefs(func(payload uintptr) (uintptr, bool) {
		if payload == 0x1000 {
			return 0x9000, true
		}

		return payload, false
	})

	if got := g.Get(ref); got != 0x9000 {
		t.Fatalf("Get after UpdateMovedRefs = %#x, want 0x9000", got)
	}
}

func TestGlobalObjectStorageClearUnmarkedWeakRefs(t *testing.T) {
	g := NewGlobalObjectStorage(2, 16)

	weakRef, _ := g.Add(KindWeak, 0x1000)

	g.ClearUnmarkedWeakRefs(
		func(addr uintptr) bool { return addr == 0x1000 },
		func(uintptr) bool { return false },
	)

	if got := g.Get(weakRef); got != 0 {
		t.Fatalf("expected unmarked weak ref cleared, got %#x", got)
	}
}
