package gc

import (
	"runtime"
	"sync/atomic"

	"github.com/orizon-lang/orizon-gc/internal/gclog"
)

// Phase is the GC core's one-writer, many-readers state machine, per
// spec.md §4.5.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseMark
	PhaseSweep
	PhaseCompact
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseRunning:
		return "RUNNING"
	case PhaseMark:
		return "MARK"
	case PhaseSweep:
		return "SWEEP"
	case PhaseCompact:
		return "COMPACT"
	default:
		return "UNKNOWN"
	}
}

// Listener observes the start and end of every GC cycle, per spec.md
// §4.5 step 4 and 8.
type Listener interface {
	GCStarted(heapBytesBefore uint64)
	GCFinished(task *Task, heapBytesBefore, heapBytesAfter uint64)
}

// Verifier validates heap invariants before and/or after a cycle.
type Verifier interface {
	VerifyHeap() error
}

// Collector is the pluggable strategy every variant (Null, STW,
// Generational, G1) implements, per spec.md §4.6.
type Collector interface {
	InitGCBits(obj uintptr)
	InitGCBitsForAllocationInTLAB(obj uintptr)
	Trigger(task *Task)
	MarkObject(obj uintptr)
	MarkObjectIfNotMarked(obj uintptr) bool
	UnMarkObject(obj uintptr)
	IsMarked(obj uintptr) bool
	MarkReferences(task *Task)
	InitializeImpl()
	RunPhasesImpl(task *Task)
}

// HeapSizer reports heap occupancy for listener notifications and
// pre/post verification bookkeeping.
type HeapSizer func() uint64

// Core drives the ten-step task lifecycle of spec.md §4.5, delegating
// the collector-specific work (step 5 and 6) to a Collector.
type Core struct {
	phase atomic.Int32

	collector Collector
	queue     *Queue
	log       *gclog.Logger

	heapBytes HeapSizer

	listeners []Listener
	verifier  Verifier

	preVerify  bool
	postVerify bool

	gcCounter atomic.Uint64

	trimPools func()

	running atomic.Bool
}

// NewCore wires a Core around collector, consuming tasks from queue.
func NewCore(collector Collector, queue *Queue, heapBytes HeapSizer, log *gclog.Logger) *Core {
	c := &Core{
		collector: collector,
		queue:     queue,
		heapBytes: heapBytes,
		log:       log,
	}
	c.running.Store(true)

	return c
}

// Phase returns the current phase.
func (c *Core) Phase() Phase { return Phase(c.phase.Load()) }

// IsGCRunning reports whether the core is still accepting/processing
// tasks; the Queue consults this to decide whether GetTask should block
// or return nil for shutdown.
func (c *Core) IsGCRunning() bool { return c.running.Load() }

// SetPreVerify and SetPostVerify toggle heap verification around a cycle.
func (c *Core) SetPreVerify(v bool) { c.preVerify = v }

func (c *Core) SetPostVerify(v bool) { c.postVerify = v }

// SetVerifier installs the heap verifier used by pre/post verification.
func (c *Core) SetVerifier(v Verifier) { c.verifier = v }

// SetTrimPools installs the step-7 hook that trims free internal
// allocator pools (global and per-thread) after a cycle runs.
func (c *Core) SetTrimPools(fn func()) { c.trimPools = fn }

// AddListener registers a listener notified at cycle start/finish.
func (c *Core) AddListener(l Listener) { c.listeners = append(c.listeners, l) }

// RunTask executes the full ten-step lifecycle for task, spinning until
// it can transition IDLE → RUNNING.
func (c *Core) RunTask(task *Task) error {
	for !c.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseRunning)) {
		// Another cycle is already in flight; a real mutator would poll
		// its safepoint here. This package has no mutator to suspend, so
		// it simply yields the caller back to the scheduler.
		runtime.Gosched()
	}

	defer c.phase.Store(int32(PhaseIdle))

	if c.preVerify && c.verifier != nil {
		if err := c.verifier.VerifyHeap(); err != nil {
			return err
		}
	}

	c.gcCounter.Add(1)

	before := c.heapBytesOrZero()

	for _, l := range c.listeners {
		l.GCStarted(before)
	}

	c.collector.InitializeImpl()
	c.collector.RunPhasesImpl(task)

	if c.trimPools != nil {
		c.trimPools()
	}

	after := c.heapBytesOrZero()

	for _, l := range c.listeners {
		l.GCFinished(task, before, after)
	}

	if c.postVerify && c.verifier != nil {
		if err := c.verifier.VerifyHeap(); err != nil {
			return err
		}
	}

	c.log.Debug("gc cycle %d finished: cause=%s before=%d after=%d", c.gcCounter.Load(), task.Cause, before, after)

	return nil
}

func (c *Core) heapBytesOrZero() uint64 {
	if c.heapBytes == nil {
		return 0
	}

	return c.heapBytes()
}

// RunWorker pops tasks from queue and runs them until the queue returns
// nil (shutdown), matching spec.md §4.5's dedicated GC worker thread.
func (c *Core) RunWorker() {
	for {
		task := c.queue.GetTask()
		if task == nil {
			return
		}

		if err := c.RunTask(task); err != nil {
			c.log.Error("gc cycle failed: %v", err)
		}
	}
}

// Stop marks the core no longer running and wakes any blocked worker.
func (c *Core) Stop() {
	c.running.Store(false)
	c.queue.Signal()
}

// GCCounter returns the number of cycles run so far.
func (c *Core) GCCounter() uint64 { return c.gcCounter.Load() }
