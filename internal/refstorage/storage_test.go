package refstorage

import "testing"

func TestReferenceStorageLocalRoundTrip(t *testing.T) {
	s := NewReferenceStorage(DefaultConfig())

	if err := s.PushLocalFrame(4); err != nil {
		t.Fatalf("PushLocalFrame: %v", err)
	}

	ref, err := s.NewRef(0x1000, KindLocal)
	if err != nil {
		t.Fatalf("NewRef: %v", err)
	}

	if got := s.GetObject(ref); got != 0x1000 {
		t.Fatalf("GetObject = %#x, want 0x1000", got)
	}

	if !s.IsValidRef(ref) {
		t.Fatalf("expected ref to be valid")
	}

	s.PopLocalFrame(nil)

	if s.IsValidRef(ref) {
		t.Fatalf("expected ref to be invalid after PopLocalFrame")
	}
}

func TestReferenceStoragePopLocalFrameSurvivesResult(t *testing.T) {
	s := NewReferenceStorage(DefaultConfig())

	if err := s.PushLocalFrame(4); err != nil {
		t.Fatalf("PushLocalFrame (outer): %v", err)
	}

	if err := s.PushLocalFrame(4); err != nil {
		t.Fatalf("PushLocalFrame (inner): %v", err)
	}

	ref, err := s.NewRef(0x2000, KindLocal)
	if err != nil {
		t.Fatalf("NewRef: %v", err)
	}

	survivor := s.PopLocalFrame(&ref)
	if survivor == 0 {
		t.Fatalf("expected a surviving reference")
	}

	if got := s.GetObject(survivor); got != 0x2000 {
		t.Fatalf("GetObject(survivor) = %#x, want 0x2000", got)
	}

	if s.IsValidRef(ref) {
		t.Fatalf("expected original inner-frame ref to be invalidated")
	}
}

func TestReferenceStorageRejectsStackKind(t *testing.T) {
	s := NewReferenceStorage(DefaultConfig())

	if _, err := s.NewRef(0x1000, KindStack); err == nil {
		t.Fatalf("expected NewRef(KindStack) to be rejected")
	}
}

func TestReferenceStorageGlobalRoundTrip(t *testing.T) {
	s := NewReferenceStorage(DefaultConfig())

	ref, err := s.NewRef(0x3000, KindGlobal)
	if err != nil {
		t.Fatalf("NewRef: %v", err)
	}

	if got := s.GetObject(ref); got != 0x3000 {
		t.Fatalf("GetObject = %#x, want 0x3000", got)
	}

	if !s.RemoveRef(ref) {
		t.Fatalf("expected RemoveRef to succeed")
	}

	if s.IsValidRef(ref) {
		t.Fatalf("expected ref invalid after RemoveRef")
	}
}

func TestReferenceStorageUpdateMovedRefsCoversLocalAndGlobal(t *testing.T) {
	s := NewReferenceStorage(DefaultConfig())

	if err := s.PushLocalFrame(4); err != nil {
		t.Fatalf("PushLocalFrame: %v", err)
	}

	localRef, _ := s.NewRef(0x1000, KindLocal)
	globalRef, _ := s.NewRef(0x2000, KindGlobal)

	moves := map[uintptr]uintptr{0x1000: 0x1998, 0x2000: 0x2998}

	s.UpdateMovedRefs(func(payload uintptr) (uintptr, bool) {
		newAddr, ok := moves[payload]
		return newAddr, ok
	})

	if got := s.GetObject(localRef); got != 0x1998 {
		t.Fatalf("local GetObject after move = %#x, want 0x1998", got)
	}

	if got := s.GetObject(globalRef); got != 0x2998 {
		t.Fatalf("global GetObject after move = %#x, want 0x2998", got)
	}
}
