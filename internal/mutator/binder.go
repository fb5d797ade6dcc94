package mutator

// GCWriteLocker adapts a MutatorLock, bound to a single ThreadID (the GC
// worker's own identity), to the zero-argument WriteLock()/Unlock()
// shape internal/gc.WriteLocker expects. internal/gc never needs to
// name a ThreadID itself — only the GC's own STW section acquires the
// write side of the lock.
type GCWriteLocker struct {
	lock *MutatorLock
	self ThreadID
}

// NewGCWriteLocker binds lock to self for use as a gc.WriteLocker.
func NewGCWriteLocker(lock *MutatorLock, self ThreadID) *GCWriteLocker {
	return &GCWriteLocker{lock: lock, self: self}
}

func (g *GCWriteLocker) WriteLock() { g.lock.WriteLock(g.self) }
func (g *GCWriteLocker) Unlock()    { g.lock.Unlock(g.self) }
