package gc

import "sync/atomic"

// NativeAllocTracker implements spec.md §4.5's native-allocation
// tracking: RegisterNativeAllocation accumulates bytes charged against
// the managed heap by native (non-GC-visible) allocations, and crosses
// a watermark to request a GC cycle.
type NativeAllocTracker struct {
	registered atomic.Uint64
	watermark  func() uint64

	trigger func(task *Task)
}

// NewNativeAllocTracker creates a tracker. watermark reports the
// current trigger threshold (the teacher's GetMaxFree()); trigger
// enqueues a CauseNativeAlloc task once the threshold is crossed.
func NewNativeAllocTracker(watermark func() uint64, trigger func(task *Task)) *NativeAllocTracker {
	return &NativeAllocTracker{watermark: watermark, trigger: trigger}
}

// RegisterNativeAllocation adds bytes to the running total and, if it
// now crosses the watermark, enqueues a native-alloc GC task and resets
// the counter so repeated small allocations don't each re-trigger.
func (n *NativeAllocTracker) RegisterNativeAllocation(bytes uint64) {
	total := n.registered.Add(bytes)

	if total < n.watermark() {
		return
	}

	if n.registered.CompareAndSwap(total, 0) {
		n.trigger(NewTask(CauseNativeAlloc))
	}
}

// NotifyNativeAllocations increments the counter by a fixed per-call
// amount, used by a periodic background poller that samples native
// allocation activity at a fixed interval rather than being called
// inline from every native allocation site.
func (n *NativeAllocTracker) NotifyNativeAllocations(amount uint64) {
	n.RegisterNativeAllocation(amount)
}

// Registered returns the current uncharged native-allocation total.
func (n *NativeAllocTracker) Registered() uint64 { return n.registered.Load() }
