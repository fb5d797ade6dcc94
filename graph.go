package gcruntime

import (
	"sync"

	"github.com/orizon-lang/orizon-gc/internal/gcheap"
)

// refSlotSize is the synthetic stride between a heapObject's reference
// fields, mirroring refstorage's slotSize convention: it is never used
// to address real memory, only to hand internal/gc and internal/barrier
// a stable per-field address for card/remset bookkeeping.
const refSlotSize = 8

// heapObject is the concrete gcheap.Object the facade hands the GC core:
// a bump-allocated region address, a fixed class and byte size, and a
// slice of reference-field payloads the embedding "language" would
// otherwise lay out itself. Grounded on internal/gc/gc_test.go's
// fakeGraph fixture, which keys objects and their outgoing references by
// plain uintptr rather than real object layout.
type heapObject struct {
	*gcheap.AtomicObject

	mu   sync.Mutex
	size uintptr
	refs []uintptr
}

func newHeapObject(addr uintptr, class *gcheap.ClassInfo, size uintptr, refCount int) *heapObject {
	return &heapObject{
		AtomicObject: gcheap.NewAtomicObject(addr, class),
		size:         size,
		refs:         make([]uintptr, refCount),
	}
}

func (o *heapObject) refAt(i int) uintptr {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.refs[i]
}

func (o *heapObject) setRefAt(i int, addr uintptr) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.refs[i] = addr
}

func (o *heapObject) refSnapshot() []uintptr {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]uintptr, len(o.refs))
	copy(out, o.refs)

	return out
}

// heapGraph is the Heap's gc.ObjectGraph and gcheap.ObjectModel: it owns
// every live heapObject and the facade's GC root set. A single type
// implements both interfaces since they share the identical
// ForEachReference shape.
type heapGraph struct {
	mu      sync.RWMutex
	objects map[uintptr]*heapObject
	roots   map[uintptr]struct{}
}

func newHeapGraph() *heapGraph {
	return &heapGraph{
		objects: make(map[uintptr]*heapObject),
		roots:   make(map[uintptr]struct{}),
	}
}

func (g *heapGraph) register(addr uintptr, class *gcheap.ClassInfo, size uintptr, refCount int) *heapObject {
	obj := newHeapObject(addr, class, size, refCount)

	g.mu.Lock()
	g.objects[addr] = obj
	g.mu.Unlock()

	return obj
}

func (g *heapGraph) lookup(addr uintptr) (*heapObject, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	obj, ok := g.objects[addr]

	return obj, ok
}

// Decode implements gc.ObjectGraph.
func (g *heapGraph) Decode(addr uintptr) gcheap.Object {
	if addr == 0 {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	obj, ok := g.objects[addr]
	if !ok {
		return nil
	}

	return obj
}

// ForEachReference implements both gc.ObjectGraph and gcheap.ObjectModel.
func (g *heapGraph) ForEachReference(obj gcheap.Object, fn func(fieldAddr uintptr, referent gcheap.Object)) {
	ho, ok := obj.(*heapObject)
	if !ok {
		return
	}

	base := obj.Address()

	for i, ref := range ho.refSnapshot() {
		fn(base+uintptr(i)*refSlotSize, g.Decode(ref))
	}
}

// Roots implements gc.ObjectGraph.
func (g *heapGraph) Roots() []uintptr {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]uintptr, 0, len(g.roots))
	for addr := range g.roots {
		out = append(out, addr)
	}

	return out
}

func (g *heapGraph) addRoot(addr uintptr) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roots[addr] = struct{}{}
}

func (g *heapGraph) removeRoot(addr uintptr) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.roots, addr)
}

// Size implements gcheap.ObjectModel.
func (g *heapGraph) Size(obj gcheap.Object) uintptr {
	ho, ok := obj.(*heapObject)
	if !ok {
		return 0
	}

	return ho.size
}

// sweep deletes every tracked object isLive reports as dead, invoking
// onFree (if non-nil) for each one after the map has been updated.
func (g *heapGraph) sweep(isLive func(addr uintptr) bool, onFree func(addr uintptr)) {
	g.mu.RLock()

	addrs := make([]uintptr, 0, len(g.objects))
	for addr := range g.objects {
		addrs = append(addrs, addr)
	}

	g.mu.RUnlock()

	// isLive decodes through this graph, so it runs without g.mu held.
	var dead []uintptr

	for _, addr := range addrs {
		if !isLive(addr) {
			dead = append(dead, addr)
		}
	}

	g.mu.Lock()

	for _, addr := range dead {
		delete(g.objects, addr)
	}

	g.mu.Unlock()

	if onFree == nil {
		return
	}

	for _, addr := range dead {
		onFree(addr)
	}
}

// applyMoves rewrites every root and every tracked object's reference
// fields through resolve, then re-keys each forwarded object from its
// old address to the address it was copied to. The old, now-forwarded
// entries are left in place rather than deleted: compaction only
// installs a forwarding mark word, it never reuses the source bytes
// within the same cycle, so a stale decode of the old address still
// resolves correctly via gcheap.IsForwarded/ForwardAddress.
func (g *heapGraph) applyMoves(resolve func(addr uintptr) (newAddr uintptr, moved bool)) {
	// resolve may decode through this graph, so it is evaluated on a
	// snapshot before g.mu is taken for writing.
	g.mu.RLock()
	var addrs []uintptr
	for addr := range g.roots {
		addrs = append(addrs, addr)
	}
	for _, obj := range g.objects {
		addrs = append(addrs, obj.refSnapshot()...)
	}
	g.mu.RUnlock()

	moves := make(map[uintptr]uintptr)
	for _, addr := range addrs {
		if newAddr, moved := resolve(addr); addr != 0 && moved {
			moves[addr] = newAddr
		}
	}

	resolve = func(addr uintptr) (uintptr, bool) { newAddr, ok := moves[addr]; return newAddr, ok }

	g.mu.Lock()
	defer g.mu.Unlock()

	for addr := range g.roots {
		if newAddr, moved := resolve(addr); moved {
			delete(g.roots, addr)
			g.roots[newAddr] = struct{}{}
		}
	}

	for _, obj := range g.objects {
		refs := obj.refSnapshot()
		changed := false

		for i, ref := range refs {
			if ref == 0 {
				continue
			}

			if newAddr, moved := resolve(ref); moved {
				refs[i] = newAddr
				changed = true
			}
		}

		if changed {
			obj.mu.Lock()
			copy(obj.refs, refs)
			obj.mu.Unlock()
		}
	}

	for addr, obj := range g.objects {
		if !gcheap.IsForwarded(obj) {
			continue
		}

		newAddr := gcheap.ForwardAddress(obj)
		if _, exists := g.objects[newAddr]; exists {
			continue
		}

		moved := newHeapObject(newAddr, obj.ClassInfo(), obj.size, len(obj.refs))
		copy(moved.refs, obj.refs)
		g.objects[newAddr] = moved

		_ = addr
	}
}
