// Package gc implements components C5, C6 and C9: the GC phase machine,
// the pluggable collector variants and the task queue that feeds them.
// Grounded on original_source/runtime/include/gc_task.h and
// original_source/runtime/mem/gc/gc_queue.{h,cpp}.
package gc

// Cause identifies why a GC cycle was requested. Causes are ordered by
// priority: a bigger value means a bigger priority, mirroring
// GCTaskCause in gc_task.h.
type Cause uint8

const (
	CauseInvalid Cause = iota
	CauseYoungGC
	CausePygoteFork
	CauseStartupComplete
	CauseNativeAlloc
	CauseHeapUsageThreshold
	CauseExplicit
	CauseOOM
)

func (c Cause) String() string {
	switch c {
	case CauseInvalid:
		return "INVALID"
	case CauseYoungGC:
		return "YOUNG_GC"
	case CausePygoteFork:
		return "PYGOTE_FORK"
	case CauseStartupComplete:
		return "STARTUP_COMPLETE"
	case CauseNativeAlloc:
		return "NATIVE_ALLOC"
	case CauseHeapUsageThreshold:
		return "HEAP_USAGE_THRESHOLD"
	case CauseExplicit:
		return "EXPLICIT"
	case CauseOOM:
		return "OOM"
	default:
		return "UNKNOWN"
	}
}

// Task is one request to run a GC cycle, keyed for priority-queue
// ordering by TargetTime (nanoseconds since an arbitrary epoch, not
// wall-clock — callers stamp it themselves since this package never
// calls time.Now directly in its ordering logic).
type Task struct {
	Cause             Cause
	TargetTime        int64
	TriggeredByThreshold bool

	// CallerGoroutine optionally names the goroutine that requested the
	// cycle, for diagnostics; the teacher's caller_thread_ pointer has no
	// direct Go analogue since goroutines are not addressable values.
	CallerGoroutine string
}

// NewTask builds a Task for cause, due immediately (targetTime 0).
func NewTask(cause Cause) *Task {
	return &Task{Cause: cause}
}

// NewTaskAt builds a Task for cause due at targetTime.
func NewTaskAt(cause Cause, targetTime int64) *Task {
	return &Task{Cause: cause, TargetTime: targetTime}
}
