package gc

import "github.com/orizon-lang/orizon-gc/internal/gcheap"

// StopTheWorld is the single-phase mark-sweep collector of spec.md
// §4.6. It uses a reversedMark flag so live objects' mark bit does not
// need clearing between cycles: odd cycles treat bit=1 as live, even
// cycles treat bit=0 as live.
type StopTheWorld struct {
	Base

	reversedMark bool

	// SweepStringTable and SweepDeadObjects are the two sweep hooks the
	// embedding runtime supplies; isLive reports whether addr survived
	// the mark phase using the cycle's current polarity.
	SweepStringTable func(isLive func(addr uintptr) bool)
	SweepDeadObjects func(isLive func(addr uintptr) bool)
}

// NewStopTheWorld creates a StopTheWorld collector over graph, guarded
// by lock for its single STW section.
func NewStopTheWorld(lock WriteLocker, graph ObjectGraph) *StopTheWorld {
	return &StopTheWorld{Base: Base{Lock: lock, Graph: graph}}
}

func (s *StopTheWorld) liveBit() gcheap.MarkWord {
	if s.reversedMark {
		return gcheap.StateDefault
	}

	return gcheap.StateMarked
}

func (s *StopTheWorld) MarkObject(addr uintptr) {
	obj := s.Graph.Decode(addr)
	if obj == nil {
		return
	}

	obj.StoreMarkWord(s.liveBit())
}

func (s *StopTheWorld) MarkObjectIfNotMarked(addr uintptr) bool {
	obj := s.Graph.Decode(addr)
	if obj == nil {
		return false
	}

	live := s.liveBit()

	old := obj.MarkWord()
	if old == live {
		return false
	}

	return obj.CASMarkWord(old, live)
}

func (s *StopTheWorld) UnMarkObject(addr uintptr) {
	obj := s.Graph.Decode(addr)
	if obj == nil {
		return
	}

	dead := gcheap.StateDefault
	if s.reversedMark {
		dead = gcheap.StateMarked
	}

	obj.StoreMarkWord(dead)
}

func (s *StopTheWorld) IsMarked(addr uintptr) bool {
	obj := s.Graph.Decode(addr)
	if obj == nil {
		return false
	}

	return obj.MarkWord() == s.liveBit()
}

func (s *StopTheWorld) MarkReferences(task *Task) {
	s.markTransitivelyPolarized(s.Graph.Roots())
}

// markTransitivelyPolarized mirrors Base.markTransitively but consults
// this collector's own polarized MarkObjectIfNotMarked/IsMarked instead
// of the fixed-polarity Base helpers.
func (s *StopTheWorld) markTransitivelyPolarized(roots []uintptr) {
	stack := make([]uintptr, 0, len(roots))
	stack = append(stack, roots...)

	for len(stack) > 0 {
		addr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if addr == 0 || !s.MarkObjectIfNotMarked(addr) {
			continue
		}

		obj := s.Graph.Decode(addr)
		if obj == nil {
			continue
		}

		s.Graph.ForEachReference(obj, func(_ uintptr, referent gcheap.Object) {
			if referent != nil {
				stack = append(stack, referent.Address())
			}
		})
	}
}

func (s *StopTheWorld) Trigger(task *Task) {}

func (s *StopTheWorld) InitializeImpl() {}

// RunPhasesImpl is the single STW phase: acquire the write lock, visit
// roots, mark transitively, sweep the string table and dead objects,
// toggle the mark polarity, release the lock.
func (s *StopTheWorld) RunPhasesImpl(task *Task) {
	s.Lock.WriteLock()
	defer s.Lock.Unlock()

	s.setPhase(PhaseMark)
	s.MarkReferences(task)

	s.setPhase(PhaseSweep)

	if s.SweepStringTable != nil {
		s.SweepStringTable(s.IsMarked)
	}

	if s.SweepDeadObjects != nil {
		s.SweepDeadObjects(s.IsMarked)
	}

	s.reversedMark = !s.reversedMark
}
