package refstorage

import gcerrors "github.com/orizon-lang/orizon-gc/internal/errors"

// Config bounds the global/weak tables' growth, per spec.md §3.
type Config struct {
	GlobalInitialSize int
	GlobalMaxSize     int
}

// DefaultConfig matches the teacher's DFX defaults: a small initial
// table doubling up to a generous ceiling.
func DefaultConfig() Config {
	return Config{GlobalInitialSize: debugInitialSize, GlobalMaxSize: defaultMaxSize}
}

const defaultMaxSize = 1 << 20

// ReferenceStorage is component C7's facade: it dispatches NewRef,
// RemoveRef, GetObject and IsValidRef across the thread-local frame
// stack and the two process-global (GLOBAL/WEAK) tables by Kind, per
// spec.md §4.7.
type ReferenceStorage struct {
	local  *LocalFrameStorage
	global *GlobalObjectStorage
}

// NewReferenceStorage wires together a fresh per-thread local frame
// stack and the shared global/weak tables.
func NewReferenceStorage(cfg Config) *ReferenceStorage {
	return &ReferenceStorage{
		local:  NewLocalFrameStorage(),
		global: NewGlobalObjectStorage(cfg.GlobalInitialSize, cfg.GlobalMaxSize),
	}
}

// NewRef registers payload (a raw, aligned object address) under the
// given Kind. KindStack is rejected: stack references are produced only
// by the native-stack walker via EncodeStack, never allocated here.
func (s *ReferenceStorage) NewRef(payload uintptr, kind Kind) (Reference, error) {
	switch kind {
	case KindLocal:
		return s.local.NewLocalRef(payload), nil
	case KindGlobal, KindWeak:
		ref, ok := s.global.Add(kind, payload)
		if !ok {
			return 0, gcerrors.OutOfMemory(0, "GlobalObjectStorage")
		}

		return ref, nil
	default:
		return 0, gcerrors.InvalidRuntimeState("NewRef", kind.String())
	}
}

// RemoveRef releases ref. Removing an already-free or foreign reference
// is a no-op returning false (spec.md §7).
func (s *ReferenceStorage) RemoveRef(ref Reference) bool {
	switch ref.GetKind() {
	case KindLocal:
		return s.local.RemoveRef(ref)
	case KindGlobal, KindWeak:
		return s.global.Remove(ref)
	default:
		return false
	}
}

// GetObject dereferences ref, returning 0 if it does not currently name
// a live slot.
func (s *ReferenceStorage) GetObject(ref Reference) uintptr {
	switch ref.GetKind() {
	case KindLocal:
		return s.local.GetObject(ref)
	case KindGlobal, KindWeak:
		return s.global.Get(ref)
	default:
		return 0
	}
}

// IsValidRef reports whether ref currently names a live slot.
func (s *ReferenceStorage) IsValidRef(ref Reference) bool {
	switch ref.GetKind() {
	case KindLocal:
		return s.local.IsValidRef(ref)
	case KindGlobal, KindWeak:
		return s.global.IsValid(ref)
	default:
		return false
	}
}

// PushLocalFrame delegates to the local frame stack.
func (s *ReferenceStorage) PushLocalFrame(capacity int) error {
	return s.local.PushLocalFrame(capacity)
}

// PopLocalFrame delegates to the local frame stack.
func (s *ReferenceStorage) PopLocalFrame(result *Reference) Reference {
	return s.local.PopLocalFrame(result)
}

// UpdateMovedRefs rewrites every LOCAL, GLOBAL and WEAK reference whose
// referent moved during compaction. resolve reports the new address for
// a payload that was forwarded, or ok=false if it was not.
func (s *ReferenceStorage) UpdateMovedRefs(resolve func(payload uintptr) (newAddr uintptr, moved bool)) {
	s.local.ForEachBusy(func(_ Reference, payload uintptr) (uintptr, bool) {
		if newAddr, moved := resolve(payload); moved {
			return newAddr, true
		}

		return payload, true
	})

	s.global.UpdateMovedRefs(resolve)
}

// ClearUnmarkedWeakRefs nulls every WEAK reference whose referent falls
// within the swept range and was not marked live.
func (s *ReferenceStorage) ClearUnmarkedWeakRefs(inSweepRange func(uintptr) bool, isMarked func(uintptr) bool) {
	s.global.ClearUnmarkedWeakRefs(inSweepRange, isMarked)
}
