package gc

import (
	"sync/atomic"
	"testing"
	"time"
)

func alwaysRunning() bool { return true }

func TestQueueAddGetOrdersByTargetTime(t *testing.T) {
	q := NewQueue(alwaysRunning)

	q.AddTask(NewTaskAt(CauseYoungGC, 200))
	q.AddTask(NewTaskAt(CauseExplicit, 100))

	first := q.GetTask()
	if first == nil || first.Cause != CauseExplicit {
		t.Fatalf("expected CauseExplicit first, got %v", first)
	}

	second := q.GetTask()
	if second == nil || second.Cause != CauseYoungGC {
		t.Fatalf("expected CauseYoungGC second, got %v", second)
	}
}

func TestQueueDedupsSameCauseAtHead(t *testing.T) {
	var dropped int32

	q := NewQueue(alwaysRunning)
	q.OnDrop(func(*Task) { atomic.AddInt32(&dropped, 1) })

	q.AddTask(NewTaskAt(CauseHeapUsageThreshold, 100))
	q.AddTask(NewTaskAt(CauseHeapUsageThreshold, 200))

	if q.Len() != 1 {
		t.Fatalf("expected dedup to keep a single task, got %d", q.Len())
	}

	if atomic.LoadInt32(&dropped) != 1 {
		t.Fatalf("expected exactly one dropped task, got %d", dropped)
	}
}

func TestQueueFinalizeDrainsAndRejects(t *testing.T) {
	var dropped []*Task

	q := NewQueue(alwaysRunning)
	q.OnDrop(func(task *Task) { dropped = append(dropped, task) })

	q.AddTask(NewTaskAt(CauseYoungGC, 0))
	q.Finalize()

	if len(dropped) != 1 {
		t.Fatalf("expected 1 drained task, got %d", len(dropped))
	}

	q.AddTask(NewTaskAt(CauseExplicit, 0))

	if len(dropped) != 2 {
		t.Fatalf("expected post-finalize AddTask to be dropped too, got %d drops", len(dropped))
	}
}

func TestQueueGetTaskReturnsNilWhenNotRunning(t *testing.T) {
	var running int32

	q := NewQueue(func() bool { return atomic.LoadInt32(&running) == 1 })

	done := make(chan *Task, 1)
	go func() { done <- q.GetTask() }()

	time.Sleep(5 * time.Millisecond)
	q.Signal()

	select {
	case task := <-done:
		if task != nil {
			t.Fatalf("expected nil task when queue is not running, got %v", task)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("GetTask did not return after Signal")
	}
}

func TestQueueWaitsForTargetTime(t *testing.T) {
	q := NewQueue(alwaysRunning)

	future := nowFn() + int64(20*time.Millisecond)
	q.AddTask(NewTaskAt(CauseYoungGC, future))

	start := time.Now()
	task := q.GetTask()
	elapsed := time.Since(start)

	if task == nil || task.Cause != CauseYoungGC {
		t.Fatalf("expected CauseYoungGC task, got %v", task)
	}

	if elapsed < 15*time.Millisecond {
		t.Fatalf("expected GetTask to wait for target time, elapsed=%v", elapsed)
	}
}
