package gc

import (
	"sync"
	"testing"

	"github.com/orizon-lang/orizon-gc/internal/gcheap"
)

// fakeLock is a no-op WriteLocker sufficient for single-goroutine tests.
type fakeLock struct{ mu sync.Mutex }

func (f *fakeLock) WriteLock() { f.mu.Lock() }
func (f *fakeLock) Unlock()    { f.mu.Unlock() }

// fakeGraph is a tiny in-memory object graph: nodes reference each other
// by address, and Roots() is fixed at construction.
type fakeGraph struct {
	objects map[uintptr]*gcheap.AtomicObject
	refs    map[uintptr][]uintptr
	roots   []uintptr
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{objects: map[uintptr]*gcheap.AtomicObject{}, refs: map[uintptr][]uintptr{}}
}

func (g *fakeGraph) addObject(addr uintptr, refs ...uintptr) {
	g.objects[addr] = gcheap.NewAtomicObject(addr, &gcheap.ClassInfo{Name: "T", Size: 16})
	g.refs[addr] = refs
}

func (g *fakeGraph) Decode(addr uintptr) gcheap.Object {
	obj, ok := g.objects[addr]
	if !ok {
		return nil
	}

	return obj
}

func (g *fakeGraph) ForEachReference(obj gcheap.Object, fn func(uintptr, gcheap.Object)) {
	for _, ref := range g.refs[obj.Address()] {
		fn(ref, g.Decode(ref))
	}
}

func (g *fakeGraph) Roots() []uintptr { return g.roots }

func TestBaseMarkTransitivelyReachesTransitiveClosure(t *testing.T) {
	graph := newFakeGraph()
	graph.addObject(1, 2)
	graph.addObject(2, 3)
	graph.addObject(3)
	graph.addObject(4) // unreachable
	graph.roots = []uintptr{1}

	b := &Base{Graph: graph}
	b.markTransitively(graph.Roots())

	for _, addr := range []uintptr{1, 2, 3} {
		if !b.isMarked(addr) {
			t.Fatalf("expected object %d to be marked", addr)
		}
	}

	if b.isMarked(4) {
		t.Fatalf("expected unreachable object 4 to stay unmarked")
	}
}

func TestNullCollectorNeverMarksAndIsAlwaysLive(t *testing.T) {
	called := false
	n := NewNullCollector(func(format string, args ...interface{}) { called = true })

	n.MarkObject(1)
	if !n.IsMarked(1) {
		t.Fatalf("NullCollector.IsMarked must always report true")
	}

	n.RunPhasesImpl(NewTask(CauseExplicit))

	n.InitGCBitsForAllocationInTLAB(1)
	if !called {
		t.Fatalf("expected TLAB allocation under epsilon collector to invoke fatal hook")
	}
}

func TestStopTheWorldMarksReachableAndTogglesPolarity(t *testing.T) {
	graph := newFakeGraph()
	graph.addObject(1, 2)
	graph.addObject(2)
	graph.addObject(3) // garbage
	graph.roots = []uintptr{1}

	stw := NewStopTheWorld(&fakeLock{}, graph)

	var swept []uintptr

	stw.SweepDeadObjects = func(isLive func(uintptr) bool) {
		for _, addr := range []uintptr{1, 2, 3} {
			if !isLive(addr) {
				swept = append(swept, addr)
			}
		}
	}

	stw.RunPhasesImpl(NewTask(CauseExplicit))

	if len(swept) != 1 || swept[0] != 3 {
		t.Fatalf("expected only object 3 swept, got %v", swept)
	}

	firstReversed := stw.reversedMark
	if !firstReversed {
		t.Fatalf("expected reversedMark to toggle to true after first cycle")
	}

	stw.RunPhasesImpl(NewTask(CauseExplicit))

	if stw.reversedMark == firstReversed {
		t.Fatalf("expected reversedMark to toggle again on the second cycle")
	}
}

func TestGenerationalShouldRunTenuredGC(t *testing.T) {
	graph := newFakeGraph()
	g := NewGenerational(&fakeLock{}, graph, nil, nil, nil, nil)
	g.SetMajorPeriod(3)

	if !g.ShouldRunTenuredGC(NewTask(CauseYoungGC)) {
		t.Fatalf("expected cycle 0 (0%%3==0) to run a tenured GC")
	}

	g.youngCycles = 1

	if g.ShouldRunTenuredGC(NewTask(CauseYoungGC)) {
		t.Fatalf("expected cycle 1 to skip tenured GC")
	}

	if !g.ShouldRunTenuredGC(NewTask(CauseOOM)) {
		t.Fatalf("expected OOM cause to always force a tenured GC")
	}
}

func TestNativeAllocTrackerTriggersAtWatermark(t *testing.T) {
	var triggered []*Task

	tracker := NewNativeAllocTracker(
		func() uint64 { return 100 },
		func(task *Task) { triggered = append(triggered, task) },
	)

	tracker.RegisterNativeAllocation(40)
	if len(triggered) != 0 {
		t.Fatalf("expected no trigger below watermark, got %d", len(triggered))
	}

	tracker.RegisterNativeAllocation(70)
	if len(triggered) != 1 || triggered[0].Cause != CauseNativeAlloc {
		t.Fatalf("expected one CauseNativeAlloc trigger, got %v", triggered)
	}

	if tracker.Registered() != 0 {
		t.Fatalf("expected counter reset after trigger, got %d", tracker.Registered())
	}
}

func TestCoreRunTaskNotifiesListenersAndRunsCollector(t *testing.T) {
	graph := newFakeGraph()
	graph.addObject(1)
	graph.roots = []uintptr{1}

	stw := NewStopTheWorld(&fakeLock{}, graph)
	stw.SweepDeadObjects = func(func(uintptr) bool) {}

	queue := NewQueue(alwaysRunning)

	var started, finished int

	core := NewCore(stw, queue, func() uint64 { return 1024 }, nil)
	core.AddListener(fakeListener{
		onStart:  func(uint64) { started++ },
		onFinish: func(*Task, uint64, uint64) { finished++ },
	})

	if err := core.RunTask(NewTask(CauseExplicit)); err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	if started != 1 || finished != 1 {
		t.Fatalf("expected listener called once each, got started=%d finished=%d", started, finished)
	}

	if core.Phase() != PhaseIdle {
		t.Fatalf("expected phase to return to IDLE, got %v", core.Phase())
	}

	if core.GCCounter() != 1 {
		t.Fatalf("expected gc counter 1, got %d", core.GCCounter())
	}
}

type fakeListener struct {
	onStart  func(uint64)
	onFinish func(*Task, uint64, uint64)
}

func (f fakeListener) GCStarted(before uint64) { f.onStart(before) }
func (f fakeListener) GCFinished(task *Task, before, after uint64) {
	f.onFinish(task, before, after)
}
