package mutator

import "testing"

func TestMutatorLockReadWriteRoundTrip(t *testing.T) {
	l := NewMutatorLock()

	l.ReadLock(1)
	if l.State(1) != RDLocked {
		t.Fatalf("expected RDLocked, got %v", l.State(1))
	}
	l.Unlock(1)

	if l.State(1) != Unlocked {
		t.Fatalf("expected Unlocked after release, got %v", l.State(1))
	}

	l.WriteLock(2)
	if l.State(2) != WRLocked {
		t.Fatalf("expected WRLocked, got %v", l.State(2))
	}
	l.Unlock(2)
}

func TestMutatorLockTryReadLockFailsWhileWriteHeld(t *testing.T) {
	l := NewMutatorLock()
	l.WriteLock(1)

	if l.TryReadLock(2) {
		t.Fatalf("expected TryReadLock to fail while write-locked")
	}

	l.Unlock(1)

	if !l.TryReadLock(2) {
		t.Fatalf("expected TryReadLock to succeed once write lock released")
	}

	l.Unlock(2)
}

func TestMutatorLockPanicsOnReentrantAcquire(t *testing.T) {
	l := NewMutatorLock()
	l.ReadLock(1)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on reentrant ReadLock")
		}
	}()

	l.ReadLock(1)
}

func TestMutatorLockPanicsOnUnlockWithoutHold(t *testing.T) {
	l := NewMutatorLock()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on Unlock without a held lock")
		}
	}()

	l.Unlock(1)
}

func TestGCWriteLockerAdaptsSingleThreadID(t *testing.T) {
	l := NewMutatorLock()
	adapter := NewGCWriteLocker(l, 7)

	adapter.WriteLock()
	if l.State(7) != WRLocked {
		t.Fatalf("expected thread 7 to hold WRLocked, got %v", l.State(7))
	}

	adapter.Unlock()
	if l.State(7) != Unlocked {
		t.Fatalf("expected thread 7 unlocked, got %v", l.State(7))
	}
}
