package mutator

import "testing"

func TestThreadManagerRegisterAssignsDistinctIDsAndReusesFreed(t *testing.T) {
	m := NewThreadManager(NewMutatorLock())

	t1, err := m.RegisterThread(false)
	if err != nil {
		t.Fatalf("RegisterThread: %v", err)
	}

	t2, err := m.RegisterThread(false)
	if err != nil {
		t.Fatalf("RegisterThread: %v", err)
	}

	if t1.ID == t2.ID {
		t.Fatalf("expected distinct internal ids, got %d and %d", t1.ID, t2.ID)
	}

	if m.ThreadsCount() != 2 {
		t.Fatalf("expected 2 live threads, got %d", m.ThreadsCount())
	}

	m.UnregisterExitedThread(t1)

	if m.ThreadsCount() != 1 {
		t.Fatalf("expected 1 live thread after unregister, got %d", m.ThreadsCount())
	}

	t3, err := m.RegisterThread(false)
	if err != nil {
		t.Fatalf("RegisterThread: %v", err)
	}

	if t3.ID != t1.ID {
		t.Fatalf("expected freed id %d to be reused, got %d", t1.ID, t3.ID)
	}
}

func TestThreadManagerDaemonCountTracksRegistrations(t *testing.T) {
	m := NewThreadManager(NewMutatorLock())

	daemon, err := m.RegisterThread(true)
	if err != nil {
		t.Fatalf("RegisterThread: %v", err)
	}

	if m.DaemonCount() != 1 {
		t.Fatalf("expected daemon count 1, got %d", m.DaemonCount())
	}

	m.UnregisterExitedThread(daemon)

	if m.DaemonCount() != 0 {
		t.Fatalf("expected daemon count 0 after unregister, got %d", m.DaemonCount())
	}
}

func TestThreadManagerSuspendAllThreadsWaitsForNonRunningThreads(t *testing.T) {
	m := NewThreadManager(NewMutatorLock())

	idle, err := m.RegisterThread(false)
	if err != nil {
		t.Fatalf("RegisterThread: %v", err)
	}

	m.SuspendAllThreads()

	if !idle.suspendRequested() {
		t.Fatalf("expected idle thread to have SUSPEND_REQUEST set")
	}

	m.ResumeAllThreads()

	if idle.suspendRequested() {
		t.Fatalf("expected SUSPEND_REQUEST cleared after ResumeAllThreads")
	}
}

func TestThreadManagerWaitForDeregistrationDrainsDaemonsAndSuspended(t *testing.T) {
	m := NewThreadManager(NewMutatorLock())

	daemon, err := m.RegisterThread(true)
	if err != nil {
		t.Fatalf("RegisterThread: %v", err)
	}

	m.WaitForDeregistration()

	if daemon.Status() != StatusTerminating {
		t.Fatalf("expected daemon thread transitioned to TERMINATING, got %v", daemon.Status())
	}

	if m.ThreadsCount() != 0 {
		t.Fatalf("expected daemon thread deregistered, got %d live threads", m.ThreadsCount())
	}
}
