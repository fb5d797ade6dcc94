package gc

import "github.com/orizon-lang/orizon-gc/internal/gcheap"

// ObjectGraph decouples the collector variants from how the embedding
// runtime decodes addresses into objects, walks their reference fields
// and enumerates GC roots (VM roots, thread stacks, reference storage).
// A concrete gcruntime.Heap supplies one of these.
type ObjectGraph interface {
	Decode(addr uintptr) gcheap.Object
	ForEachReference(obj gcheap.Object, fn func(fieldAddr uintptr, referent gcheap.Object))
	Roots() []uintptr
}

// Base holds the fields and helper methods every Collector variant
// shares: the write-lock used for STW sections, the object graph, and
// the mark-word primitives layered on gcheap.Object.
type Base struct {
	Lock  WriteLocker
	Graph ObjectGraph
	Log   logger

	// SetPhase, if non-nil, lets a variant publish finer-grained sub-phase
	// visibility (MARK/SWEEP/COMPACT) than the Core's own IDLE/RUNNING
	// bracket provides.
	SetPhase func(Phase)
}

func (b *Base) setPhase(p Phase) {
	if b.SetPhase != nil {
		b.SetPhase(p)
	}
}

// WriteLocker is the subset of internal/mutator.MutatorLock a collector
// needs to stop the world; kept minimal here so this package does not
// import internal/mutator (which itself has no reason to import gc).
type WriteLocker interface {
	WriteLock()
	Unlock()
}

type logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
}

// InitGCBits clears obj's mark word to its default state.
func (b *Base) InitGCBits(addr uintptr) {
	obj := b.Graph.Decode(addr)
	if obj == nil {
		return
	}

	obj.StoreMarkWord(0)
}

// InitGCBitsForAllocationInTLAB is identical to InitGCBits: a
// bump-allocated object is already zero-background memory, so there is
// nothing variant-specific to prime beyond the mark word.
func (b *Base) InitGCBitsForAllocationInTLAB(addr uintptr) {
	b.InitGCBits(addr)
}

func (b *Base) markObject(addr uintptr) {
	obj := b.Graph.Decode(addr)
	if obj == nil {
		return
	}

	obj.StoreMarkWord(gcheap.StateMarked)
}

func (b *Base) markObjectIfNotMarked(addr uintptr) bool {
	obj := b.Graph.Decode(addr)
	if obj == nil {
		return false
	}

	old := obj.MarkWord()
	if old.State() == gcheap.StateMarked {
		return false
	}

	return obj.CASMarkWord(old, gcheap.StateMarked)
}

func (b *Base) unmarkObject(addr uintptr) {
	obj := b.Graph.Decode(addr)
	if obj == nil {
		return
	}

	obj.StoreMarkWord(0)
}

func (b *Base) isMarked(addr uintptr) bool {
	obj := b.Graph.Decode(addr)
	if obj == nil {
		return false
	}

	return obj.MarkWord().State() == gcheap.StateMarked
}

// markTransitively performs a work-stack traversal from roots, marking
// every object reachable from them via Graph.ForEachReference.
func (b *Base) markTransitively(roots []uintptr) {
	stack := make([]uintptr, 0, len(roots))
	stack = append(stack, roots...)

	for len(stack) > 0 {
		addr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if addr == 0 {
			continue
		}

		if !b.markObjectIfNotMarked(addr) {
			continue
		}

		obj := b.Graph.Decode(addr)
		if obj == nil {
			continue
		}

		b.Graph.ForEachReference(obj, func(_ uintptr, referent gcheap.Object) {
			if referent != nil {
				stack = append(stack, referent.Address())
			}
		})
	}
}
