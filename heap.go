package gcruntime

import (
	"fmt"
	"io"
	"math/bits"
	"sync/atomic"

	"github.com/orizon-lang/orizon-gc/internal/barrier"
	"github.com/orizon-lang/orizon-gc/internal/cardtable"
	gcerrors "github.com/orizon-lang/orizon-gc/internal/errors"
	"github.com/orizon-lang/orizon-gc/internal/gc"
	"github.com/orizon-lang/orizon-gc/internal/gcheap"
	"github.com/orizon-lang/orizon-gc/internal/gclog"
	"github.com/orizon-lang/orizon-gc/internal/memdump"
	"github.com/orizon-lang/orizon-gc/internal/mutator"
	"github.com/orizon-lang/orizon-gc/internal/refstorage"
)

// Heap is the module's public facade: an explicit value wiring the
// region heap (C1/C2), the shared card table and its barrier set (C3,
// C10), remembered sets (C4, reached through internal/gcheap's Regions),
// the GC phase machine and collector variants (C5, C6, C9), reference
// storage (C7) and mutator/thread coordination (C8) into one object a
// caller constructs once via NewHeap and threads through its own calls,
// in place of the global mutable Runtime singleton the original
// implementation relies on.
type Heap struct {
	cfg Config

	young   *gcheap.RegionSpace
	tenured *gcheap.RegionSpace

	alloc        *gcheap.RegionAllocator
	tenuredAlloc *gcheap.RegionAllocator

	cards *growableCardTable
	graph *heapGraph

	core      *gc.Core
	queue     *gc.Queue
	collector gc.Collector

	concurrentMarking atomic.Bool

	refs    *refstorage.ReferenceStorage
	lock    *mutator.MutatorLock
	threads *mutator.ThreadManager
	gcSelf  *mutator.ManagedThread

	dump *memdump.Tracker
	log  *gclog.Logger
}

// NewHeap builds a Heap from cfg: two region spaces (young/eden and
// tenured/old), a shared growable card table, and whichever Collector
// variant cfg.GCType names, fully wired with its barrier set, card/remset
// root hooks and post-compaction reference fixups.
func NewHeap(cfg Config) (*Heap, error) {
	regionSize := cfg.regionSize()
	source := gcheap.NewOSPageSource()

	youngPool, err := gcheap.NewRegionPool(regionSize, cfg.youngSlotCount(), source)
	if err != nil {
		return nil, err
	}

	tenuredPool, err := gcheap.NewRegionPool(regionSize, cfg.tenuredSlotCount(), source)
	if err != nil {
		return nil, err
	}

	young := gcheap.NewRegionSpace(youngPool, gcheap.SpaceObject, gcheap.AllocatorBump)
	tenured := gcheap.NewRegionSpace(tenuredPool, gcheap.SpaceObject, gcheap.AllocatorBump)

	retainThreshold := regionSize / 16
	youngAlloc := gcheap.NewRegionAllocator(young, youngPool, retainThreshold)
	tenuredAlloc := gcheap.NewRegionAllocator(tenured, tenuredPool, retainThreshold)

	youngMin, youngMax := youngPool.AddressRange()
	tenuredMin, tenuredMax := tenuredPool.AddressRange()
	cardMin, cardMax := unionRange(youngMin, youngMax, tenuredMin, tenuredMax)

	h := &Heap{
		cfg:          cfg,
		young:        young,
		tenured:      tenured,
		alloc:        youngAlloc,
		tenuredAlloc: tenuredAlloc,
		cards:        newGrowableCardTable(cardMin, cardMax),
		graph:        newHeapGraph(),
		refs:         refstorage.NewReferenceStorage(refstorage.DefaultConfig()),
		dump:         memdump.New(),
		log:          gclog.New("GC", gclog.LevelInfo),
		lock:         mutator.NewMutatorLock(),
	}

	h.threads = mutator.NewThreadManager(h.lock)

	gcSelf, err := h.threads.RegisterThread(true)
	if err != nil {
		return nil, err
	}

	h.gcSelf = gcSelf
	writeLocker := mutator.NewGCWriteLocker(h.lock, gcSelf.ID)

	h.queue = gc.NewQueue(func() bool { return h.core.IsGCRunning() })

	regionSizeBits := uint(bits.TrailingZeros64(uint64(regionSize)))

	preStore := barrier.PreStoreFunc(func(preVal uintptr) {
		if h.collector != nil {
			h.collector.MarkObject(preVal)
		}
	})

	postFunc := barrier.InterregionUpdateFunc(h.recordInterregionRef)

	h.cards.setBarrierFactory(func(ct *cardtable.CardTable) barrier.BarrierSet {
		switch cfg.GCType {
		case GCG1:
			return barrier.NewG1BarrierSet(ct, &h.concurrentMarking, preStore, regionSizeBits, postFunc)
		case GCGenerational, GCHybrid:
			return barrier.NewGenBarrierSet(ct, &h.concurrentMarking, preStore)
		default:
			return noopBarrierSet{}
		}
	})

	onPhase := func(p gc.Phase) {
		switch p {
		case gc.PhaseMark:
			h.concurrentMarking.Store(true)
		case gc.PhaseSweep, gc.PhaseCompact:
			h.concurrentMarking.Store(false)
		}
	}

	switch cfg.GCType {
	case GCEpsilon:
		h.collector = gc.NewNullCollector(func(format string, args ...interface{}) { h.log.Fatal(format, args...) })
	case GCStopTheWorld:
		stw := gc.NewStopTheWorld(writeLocker, h.graph)
		stw.SetPhase = onPhase
		stw.SweepDeadObjects = func(isLive func(uintptr) bool) { h.graph.sweep(isLive, h.dump.TrackFree) }
		h.collector = stw
	case GCG1:
		g1 := gc.NewG1(writeLocker, h.graph, young, tenured, tenuredAlloc, h.graph)
		g1.SetPhase = onPhase
		g1.InterRegionRefs = h.interRegionRoots
		g1.UpdateMovedRefs = h.applyMovedRefs
		h.collector = g1
	default: // GCGenerational, GCHybrid
		gen := gc.NewGenerational(writeLocker, h.graph, young, tenured, tenuredAlloc, h.graph)
		gen.SetMajorPeriod(cfg.majorPeriod())
		gen.SetPhase = onPhase
		gen.CardRoots = h.cardRoots
		gen.UpdateMovedRefs = h.applyMovedRefs
		h.collector = gen
	}

	h.core = gc.NewCore(h.collector, h.queue, h.heapBytes, h.log)
	h.core.SetPreVerify(cfg.PreGCHeapVerification)
	h.core.SetPostVerify(cfg.PostGCHeapVerification)

	if cfg.FailOnHeapVerification {
		h.core.SetVerifier(h)
	}

	return h, nil
}

// Allocate bump-allocates size bytes for an object of the given class
// into Eden, registers it in the object graph with refCount reference
// fields, and tracks it in the memory-dump tracker. It triggers one
// synchronous GC cycle and retries once if Eden has no room left.
func (h *Heap) Allocate(className string, size uintptr, hasPointers bool, refCount int) (uintptr, error) {
	addr, region := h.alloc.Alloc(gcheap.FlagEden, size, gcheap.ObjectAlignment)

	if addr == 0 {
		if err := h.CollectNow(gc.CauseNativeAlloc); err != nil {
			return 0, err
		}

		addr, region = h.alloc.Alloc(gcheap.FlagEden, size, gcheap.ObjectAlignment)
	}

	if addr == 0 || region == nil {
		return 0, gcerrors.OutOfMemory(size, "gcruntime.Heap.Allocate")
	}

	class := &gcheap.ClassInfo{Name: className, Size: size, HasPointers: hasPointers}
	h.graph.register(addr, class, size, refCount)
	h.collector.InitGCBits(addr)

	h.cards.ensure(region.Begin, region.End)
	h.dump.TrackAlloc(addr, uint32(size), memdump.SpaceObject)

	return addr, nil
}

// SetReference overwrites field fieldIndex of the object at objAddr with
// refAddr (0 clears it), running it through the heap's current write
// barrier (spec.md §4.10) before and after the store.
func (h *Heap) SetReference(objAddr uintptr, fieldIndex int, refAddr uintptr) error {
	obj, ok := h.graph.lookup(objAddr)
	if !ok {
		return gcerrors.InvalidRuntimeState("SetReference", fmt.Sprintf("no object at %#x", objAddr))
	}

	if fieldIndex < 0 || fieldIndex >= len(obj.refs) {
		return gcerrors.IndexOutOfBounds(uintptr(fieldIndex), uintptr(len(obj.refs)))
	}

	bs := h.cards.barrier()
	fieldAddr := objAddr + uintptr(fieldIndex)*refSlotSize

	preVal := obj.refAt(fieldIndex)
	bs.PreBarrier(fieldAddr, preVal)

	obj.setRefAt(fieldIndex, refAddr)

	bs.PostBarrier(objAddr, refAddr)

	return nil
}

// AddRoot and RemoveRoot register or unregister addr as a GC root (a VM
// root, thread stack slot, or reference-storage entry the embedding
// caller wants traced independently of this module's own
// internal/refstorage usage).
func (h *Heap) AddRoot(addr uintptr)    { h.graph.addRoot(addr) }
func (h *Heap) RemoveRoot(addr uintptr) { h.graph.removeRoot(addr) }

// References exposes the reference-storage facade (component C7) so an
// embedder can hand out LOCAL/GLOBAL/WEAK references alongside raw roots.
func (h *Heap) References() *refstorage.ReferenceStorage { return h.refs }

// Threads exposes the mutator/thread coordination facade (component C8).
func (h *Heap) Threads() *mutator.ThreadManager { return h.threads }

// CollectNow runs one GC cycle synchronously for cause, per spec.md
// §4.5's ten-step task lifecycle.
func (h *Heap) CollectNow(cause gc.Cause) error {
	return h.core.RunTask(gc.NewTask(cause))
}

// ScheduleGC enqueues cause for the background worker started by
// RunWorker, per spec.md §4.9's ascending-priority task queue.
func (h *Heap) ScheduleGC(cause gc.Cause) {
	h.queue.AddTask(gc.NewTask(cause))
}

// RunWorker runs the dedicated GC worker loop until Stop is called,
// consuming tasks queued by ScheduleGC.
func (h *Heap) RunWorker() { h.core.RunWorker() }

// Stop shuts the GC worker and task queue down.
func (h *Heap) Stop() {
	h.core.Stop()
	h.queue.Finalize()
}

// DumpMemory writes the allocation-tracker's binary dump to out, per
// spec.md §6's "Memory dump file (binary)".
func (h *Heap) DumpMemory(out io.Writer) error {
	return h.dump.Dump(out)
}

// VerifyHeap implements gc.Verifier for cfg.FailOnHeapVerification: it
// checks that every current root still decodes to a live object.
func (h *Heap) VerifyHeap() error {
	for _, addr := range h.graph.Roots() {
		if h.graph.Decode(addr) == nil {
			return gcerrors.InvalidRuntimeState("VerifyHeap", fmt.Sprintf("root %#x has no live object", addr))
		}
	}

	return nil
}

func (h *Heap) heapBytes() uint64 {
	var total uint64

	sum := func(r *gcheap.Region) { total += uint64(r.Top() - r.Begin) }

	h.young.ForEach(sum)
	h.tenured.ForEach(sum)

	return total
}

// Stats is a snapshot of the heap's occupancy and GC activity, printed
// by --print-memory-statistics/--print-gc-statistics.
type Stats struct {
	GCCycles       uint64
	YoungRegions   int
	TenuredRegions int
	AllocCount     uint64
	HeapBytes      uint64
}

// Stats reports the current heap statistics.
func (h *Heap) Stats() Stats {
	return Stats{
		GCCycles:       h.core.GCCounter(),
		YoungRegions:   h.young.Count(),
		TenuredRegions: h.tenured.Count(),
		AllocCount:     h.dump.AllocCount(),
		HeapBytes:      h.heapBytes(),
	}
}
