package gcruntime

import (
	"bytes"
	"testing"

	"github.com/orizon-lang/orizon-gc/internal/gc"
)

func testConfig(gcType GCType) Config {
	cfg := DefaultConfig()
	cfg.GCType = gcType
	cfg.RegionSize = 64 * 1024
	cfg.YoungSpaceSize = 64 * 1024 * 4
	cfg.HeapSizeLimit = 64 * 1024 * 4

	return cfg
}

func TestNewHeapConstructsEveryCollectorVariant(t *testing.T) {
	for _, gcType := range []GCType{GCEpsilon, GCStopTheWorld, GCGenerational, GCG1} {
		h, err := NewHeap(testConfig(gcType))
		if err != nil {
			t.Fatalf("NewHeap(%v): %v", gcType, err)
		}

		if h.collector == nil {
			t.Fatalf("NewHeap(%v): expected a non-nil collector", gcType)
		}
	}
}

func TestAllocateRegistersObjectInGraph(t *testing.T) {
	h, err := NewHeap(testConfig(GCGenerational))
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	addr, err := h.Allocate("Point", 32, true, 2)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if addr == 0 {
		t.Fatalf("expected a non-zero address")
	}

	obj := h.graph.Decode(addr)
	if obj == nil {
		t.Fatalf("expected Allocate to register the object in the graph")
	}

	if obj.ClassInfo().Name != "Point" {
		t.Fatalf("expected class name Point, got %q", obj.ClassInfo().Name)
	}
}

func TestSetReferenceStoresAndReadsBack(t *testing.T) {
	h, err := NewHeap(testConfig(GCGenerational))
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	a, err := h.Allocate("A", 16, true, 1)
	if err != nil {
		t.Fatalf("Allocate a: %v", err)
	}

	b, err := h.Allocate("B", 16, true, 0)
	if err != nil {
		t.Fatalf("Allocate b: %v", err)
	}

	if err := h.SetReference(a, 0, b); err != nil {
		t.Fatalf("SetReference: %v", err)
	}

	obj, ok := h.graph.lookup(a)
	if !ok {
		t.Fatalf("expected object a to be registered")
	}

	if got := obj.refAt(0); got != b {
		t.Fatalf("expected field 0 to hold %#x, got %#x", b, got)
	}
}

func TestSetReferenceRejectsOutOfRangeField(t *testing.T) {
	h, err := NewHeap(testConfig(GCGenerational))
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	a, err := h.Allocate("A", 16, true, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := h.SetReference(a, 5, 0); err == nil {
		t.Fatalf("expected an error for an out-of-range field index")
	}
}

func TestAddRootAndRemoveRoot(t *testing.T) {
	h, err := NewHeap(testConfig(GCStopTheWorld))
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	addr, err := h.Allocate("Root", 8, false, 0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	h.AddRoot(addr)

	roots := h.graph.Roots()
	if len(roots) != 1 || roots[0] != addr {
		t.Fatalf("expected exactly one root at %#x, got %v", addr, roots)
	}

	h.RemoveRoot(addr)

	if len(h.graph.Roots()) != 0 {
		t.Fatalf("expected no roots after RemoveRoot")
	}
}

func TestCollectNowReclaimsUnreachableObjects(t *testing.T) {
	h, err := NewHeap(testConfig(GCStopTheWorld))
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	root, err := h.Allocate("Root", 8, true, 1)
	if err != nil {
		t.Fatalf("Allocate root: %v", err)
	}

	h.AddRoot(root)

	garbage, err := h.Allocate("Garbage", 8, false, 0)
	if err != nil {
		t.Fatalf("Allocate garbage: %v", err)
	}

	if err := h.CollectNow(gc.CauseExplicit); err != nil {
		t.Fatalf("CollectNow: %v", err)
	}

	if h.graph.Decode(root) == nil {
		t.Fatalf("expected the rooted object to survive collection")
	}

	if h.graph.Decode(garbage) != nil {
		t.Fatalf("expected the unreachable object to be swept")
	}
}

func TestAllocateGrowsCardTableToCoverNewRegions(t *testing.T) {
	h, err := NewHeap(testConfig(GCGenerational))
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	addr, err := h.Allocate("A", 16, true, 0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if !h.cards.covers(addr, addr+16) {
		t.Fatalf("expected the card table to cover a freshly allocated object")
	}
}

func TestDumpMemoryWritesAllocationRecord(t *testing.T) {
	h, err := NewHeap(testConfig(GCEpsilon))
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	if _, err := h.Allocate("A", 16, false, 0); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	var buf bytes.Buffer
	if err := h.DumpMemory(&buf); err != nil {
		t.Fatalf("DumpMemory: %v", err)
	}

	if buf.Len() == 0 {
		t.Fatalf("expected a non-empty memory dump")
	}
}

func TestStatsReportsOccupancyAndGCCycles(t *testing.T) {
	h, err := NewHeap(testConfig(GCStopTheWorld))
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	if _, err := h.Allocate("A", 16, false, 0); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := h.CollectNow(gc.CauseExplicit); err != nil {
		t.Fatalf("CollectNow: %v", err)
	}

	stats := h.Stats()
	if stats.GCCycles != 1 {
		t.Fatalf("expected one GC cycle recorded, got %d", stats.GCCycles)
	}

	if stats.YoungRegions == 0 {
		t.Fatalf("expected at least one young region after allocation")
	}
}

func TestVerifyHeapFailsOnDanglingRoot(t *testing.T) {
	h, err := NewHeap(testConfig(GCStopTheWorld))
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	h.AddRoot(0x1234)

	if err := h.VerifyHeap(); err == nil {
		t.Fatalf("expected VerifyHeap to reject a root with no live object")
	}
}
