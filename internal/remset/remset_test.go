package remset

import "testing"

// TestAddRefAndVisit mirrors scenario S6 from spec.md §8: region A holds o1,
// region B holds o2. After RemSet::AddRefWithAddr(&o1.field, o2), B's
// remset should yield a card whose range contains &o1.field. Here we
// exercise just the RemSet primitive; the region-flag gating (Eden skip)
// lives in internal/barrier.
func TestAddRefAndVisit(t *testing.T) {
	rs := New()

	const regionA RegionID = 1
	fieldAddr := CardPtr(0x4000)

	rs.AddRef(regionA, fieldAddr)

	var got []CardPtr
	rs.VisitMarkedCards(func(from RegionID, card CardPtr) {
		if from != regionA {
			t.Fatalf("unexpected from-region %d", from)
		}
		got = append(got, card)
	})

	if len(got) != 1 || got[0] != fieldAddr {
		t.Fatalf("expected single card %v, got %v", fieldAddr, got)
	}
}

func TestAddRefDedup(t *testing.T) {
	rs := New()
	rs.AddRef(1, 0x1000)
	rs.AddRef(1, 0x1000)
	rs.AddRef(1, 0x2000)

	if n := rs.Len(); n != 2 {
		t.Fatalf("expected 2 deduplicated entries, got %d", n)
	}
}

func TestRemoveRegion(t *testing.T) {
	rs := New()
	rs.AddRef(1, 0x1000)
	rs.AddRef(2, 0x2000)

	rs.RemoveRegion(1)

	if n := rs.Len(); n != 1 {
		t.Fatalf("expected 1 entry after RemoveRegion, got %d", n)
	}
}

func TestClear(t *testing.T) {
	rs := New()
	rs.AddRef(1, 0x1000)
	rs.Clear()

	if n := rs.Len(); n != 0 {
		t.Fatalf("expected 0 entries after Clear, got %d", n)
	}
}
