package mutator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	gcerrors "github.com/orizon-lang/orizon-gc/internal/errors"
)

// maxConcurrentSuspends bounds how many threads SuspendAllThreads waits
// on in flight at once, so a large thread set doesn't spawn one
// goroutine per thread unbounded.
const maxConcurrentSuspends = 32

// MaxInternalThreadID bounds the bitset ThreadManager allocates
// internal ids from, per thread_manager.h's MAX_INTERNAL_THREAD_ID
// ("for performance reasons don't exceed specified amount of bits").
const MaxInternalThreadID = 0xffff

// ThreadManager owns the live thread set: registration, internal-id
// allocation, daemon bookkeeping, and whole-set suspend/resume. Grounded
// on original_source/runtime/thread_manager.h's threads_/
// internal_thread_ids_/daemon_threads_count_/pending_threads_ fields.
type ThreadManager struct {
	lock *MutatorLock

	mu              sync.Mutex
	threads         map[ThreadID]*ManagedThread
	finished        []*ManagedThread
	ids             [MaxInternalThreadID + 1]bool
	daemonCount     int
	pendingThreads  int
	suspendNewCount uint32
}

// NewThreadManager creates an empty ThreadManager bound to lock, the
// MutatorLock every registered thread will acquire to run.
func NewThreadManager(lock *MutatorLock) *ThreadManager {
	return &ThreadManager{
		lock:    lock,
		threads: make(map[ThreadID]*ManagedThread),
	}
}

// allocateID finds the lowest free internal id, mirroring
// GetInternalThreadId's linear bitset scan.
func (m *ThreadManager) allocateID() (ThreadID, error) {
	for i := 0; i <= MaxInternalThreadID; i++ {
		id := ThreadID(i)
		if !m.ids[id] {
			m.ids[id] = true

			return id, nil
		}
	}

	return 0, gcerrors.InvalidRuntimeState("ThreadManager.allocateID", "no free internal thread ids")
}

// RegisterThread allocates an internal id and adds a new ManagedThread
// to the live set, applying any outstanding SuspendAllThreads count to
// it immediately (RegisterThread's "for i := suspend_new_count; i >
// 0; i--" loop).
func (m *ThreadManager) RegisterThread(daemon bool) (*ManagedThread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.allocateID()
	if err != nil {
		return nil, err
	}

	t := newManagedThread(id, m.lock)
	t.daemon = daemon
	m.threads[id] = t

	if daemon {
		m.daemonCount++
	}

	for i := uint32(0); i < m.suspendNewCount; i++ {
		t.IncSuspended(true)
	}

	return t, nil
}

// UnregisterExitedThread moves a finished thread out of the live set
// and frees its internal id, per UnregisterExitedThread.
func (m *ThreadManager) UnregisterExitedThread(t *ManagedThread) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threads[t.ID]; !ok {
		return
	}

	delete(m.threads, t.ID)
	m.finished = append(m.finished, t)
	m.ids[t.ID] = false

	if t.daemon {
		m.daemonCount--
	}
}

// DeleteFinishedThreads drains the finished-thread backlog, mirroring
// DeleteFinishedThreads's pop-and-free loop (Go has no explicit free,
// so this just releases the slice).
func (m *ThreadManager) DeleteFinishedThreads() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finished = nil
}

// ThreadsCount reports the number of currently live threads.
func (m *ThreadManager) ThreadsCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.threads)
}

// IncPendingThreads/DecPendingThreads track threads that have begun
// creation but not yet registered, per thread_manager.h.
func (m *ThreadManager) IncPendingThreads() {
	m.mu.Lock()
	m.pendingThreads++
	m.mu.Unlock()
}

func (m *ThreadManager) DecPendingThreads() {
	m.mu.Lock()
	m.pendingThreads--
	m.mu.Unlock()
}

// ThreadByInternalID looks up a live thread by its internal id.
func (m *ThreadManager) ThreadByInternalID(id ThreadID) (*ManagedThread, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threads[id]

	return t, ok
}

// EnumerateThreads calls fn for every live thread under thread_lock_,
// stopping early if fn returns false, per EnumerateThreadsWithLockheld.
func (m *ThreadManager) EnumerateThreads(fn func(*ManagedThread) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.threads {
		if !fn(t) {
			break
		}
	}
}

// SuspendAllThreads increments suspend_new_count_ so future
// registrants start suspended, then suspends every currently live
// thread, per SuspendAllThreads. The wait for each thread to leave
// RUNNING runs concurrently, bounded by a semaphore so the thread
// count doesn't dictate goroutine count.
func (m *ThreadManager) SuspendAllThreads() {
	m.mu.Lock()
	m.suspendNewCount++
	threads := make([]*ManagedThread, 0, len(m.threads))

	for _, t := range m.threads {
		threads = append(threads, t)
	}
	m.mu.Unlock()

	for _, t := range threads {
		t.IncSuspended(true)
	}

	sem := semaphore.NewWeighted(maxConcurrentSuspends)

	var g errgroup.Group

	for _, t := range threads {
		t := t

		g.Go(func() error {
			if err := sem.Acquire(context.Background(), 1); err != nil {
				return err
			}
			defer sem.Release(1)

			WaitForSuspension(t)

			return nil
		})
	}

	_ = g.Wait()
}

// ResumeAllThreads is SuspendAllThreads's inverse.
func (m *ThreadManager) ResumeAllThreads() {
	m.mu.Lock()
	if m.suspendNewCount > 0 {
		m.suspendNewCount--
	}
	threads := make([]*ManagedThread, 0, len(m.threads))

	for _, t := range m.threads {
		threads = append(threads, t)
	}
	m.mu.Unlock()

	for _, t := range threads {
		t.DecSuspended()
	}
}

const deregistrationPollInterval = 10 * time.Millisecond

// waitForNonDaemonThreads blocks until every non-daemon, non-pending
// thread has unregistered.
func (m *ThreadManager) waitForNonDaemonThreads() {
	for {
		m.mu.Lock()
		remaining := len(m.threads) - m.daemonCount

		if remaining <= 0 && m.pendingThreads == 0 {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		time.Sleep(deregistrationPollInterval)
	}
}

// StopDaemonThreads requests termination of every remaining daemon
// thread concurrently, per thread_manager.h's shutdown sequence.
func (m *ThreadManager) StopDaemonThreads() {
	m.mu.Lock()
	threads := make([]*ManagedThread, 0, len(m.threads))

	for _, t := range m.threads {
		if t.daemon {
			threads = append(threads, t)
		}
	}
	m.mu.Unlock()

	var g errgroup.Group

	for _, t := range threads {
		t := t

		g.Go(func() error {
			t.TransitionTo(StatusTerminating)

			return nil
		})
	}

	_ = g.Wait()
}

// DeregisterSuspendedThreads removes every thread currently in
// StatusSuspended, StatusTerminating or StatusFinished from the live set
// (except those named in keep), mirroring
// the repeated DeregisterSuspendedThreads calls in WaitForDeregistration
// "until only the current plus main remain".
func (m *ThreadManager) DeregisterSuspendedThreads(keep ...ThreadID) {
	keepSet := make(map[ThreadID]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}

	m.mu.Lock()
	var toRemove []*ManagedThread

	for id, t := range m.threads {
		if keepSet[id] {
			continue
		}

		switch t.Status() {
		case StatusSuspended, StatusTerminating, StatusFinished:
			toRemove = append(toRemove, t)
		}
	}
	m.mu.Unlock()

	for _, t := range toRemove {
		m.UnregisterExitedThread(t)
	}
}

// WaitForDeregistration implements thread_manager.h's three-step
// shutdown: wait for non-daemon threads to finish, stop daemon
// threads, then repeatedly deregister suspended threads until only
// keep (typically the current thread plus main) remain.
func (m *ThreadManager) WaitForDeregistration(keep ...ThreadID) {
	m.waitForNonDaemonThreads()
	m.StopDaemonThreads()

	for {
		m.DeregisterSuspendedThreads(keep...)

		m.mu.Lock()
		remaining := len(m.threads)
		m.mu.Unlock()

		if remaining <= len(keep) {
			return
		}

		time.Sleep(deregistrationPollInterval)
	}
}

// CanDeregister reports whether it is safe to tear the manager down:
// no live non-daemon threads and nothing pending registration.
func (m *ThreadManager) CanDeregister() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.threads)-m.daemonCount <= 0 && m.pendingThreads == 0
}

// DaemonCount reports the number of registered daemon threads.
func (m *ThreadManager) DaemonCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.daemonCount
}
