package gcheap

import "sync"

// freeChunk is one node in NonmovableAllocator's free list (freed chunks
// are pushed at its head, so it is not address-ordered), used to satisfy allocations of whatever object shapes the
// language runtime pins in place.
type freeChunk struct {
	offset uintptr
	size   uintptr
	next   *freeChunk
}

// NonmovableAllocator layers a simple freelist allocator on top of
// regions flagged NonMovable, per spec.md §4.2. Objects that the
// collector must never relocate (JIT-pinned buffers, certain class
// metadata) are allocated here instead of through RegionAllocator.
type NonmovableAllocator struct {
	mu    sync.Mutex
	space *RegionSpace

	current  *Region
	freeList *freeChunk
}

// NewNonmovableAllocator creates a freelist allocator carving NonMovable
// regions out of space.
func NewNonmovableAllocator(space *RegionSpace) *NonmovableAllocator {
	return &NonmovableAllocator{space: space}
}

// Alloc returns size bytes (aligned to align) from the freelist, falling
// back to bump-allocating fresh bytes from the current NonMovable
// region, adding a new one from the pool on exhaustion.
func (n *NonmovableAllocator) Alloc(size, align uintptr) uintptr {
	want := alignUp(size, align)

	n.mu.Lock()
	defer n.mu.Unlock()

	if addr, ok := n.takeFromFreeList(want); ok {
		return addr
	}

	if n.current != nil {
		if addr := n.current.Alloc(size, align); addr != 0 {
			return addr
		}
	}

	fresh := n.space.AddRegion(DefaultRegionSize, FlagNonMovable)
	if fresh == nil {
		return 0
	}

	fresh.EnsureBitmaps()
	n.current = fresh

	return fresh.Alloc(size, align)
}

func (n *NonmovableAllocator) takeFromFreeList(want uintptr) (uintptr, bool) {
	var prev *freeChunk

	for c := n.freeList; c != nil; c = c.next {
		if c.size >= want {
			if prev == nil {
				n.freeList = c.next
			} else {
				prev.next = c.next
			}

			if c.size > want {
				n.freeFromRaw(c.offset+want, c.size-want)
			}

			return c.offset, true
		}

		prev = c
	}

	return 0, false
}

func (n *NonmovableAllocator) freeFromRaw(offset, size uintptr) {
	n.freeList = &freeChunk{offset: offset, size: size, next: n.freeList}
}

// Free returns a previously allocated block of size bytes at addr to the
// freelist for reuse.
func (n *NonmovableAllocator) Free(addr, size uintptr) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.freeFromRaw(addr, size)
}
