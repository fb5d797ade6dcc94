package gcheap

import (
	"sync"
	"sync/atomic"

	gcerrors "github.com/orizon-lang/orizon-gc/internal/errors"
)

// pageSource abstracts the OS-level mmap-style primitive RegionPool falls
// back to once its pre-reserved block is exhausted. It is implemented by
// pool_unix.go (golang.org/x/sys/unix.Mmap/Munmap/Madvise) and
// pool_windows.go (golang.org/x/sys/windows VirtualAlloc/VirtualFree),
// matching the OS-primitives contract of spec.md §1 ("mmap-based pool
// manager").
type pageSource interface {
	MapPages(size uintptr) ([]byte, error)
	UnmapPages(b []byte) error
	ReleasePages(b []byte) error
}

// slot tracks one pre-reserved, regionSize-sized slice of the pool's
// initial block allocation.
type slot struct {
	backing []byte
	base    uintptr
}

// RegionPool is the two-tier region supply described by spec.md §3/§4.1:
// a pre-reserved RegionBlock of fixed-size slots, plus an optional
// unbounded mmap fallback used once the block is exhausted or for
// humongous (larger-than-regionSize) allocations.
type RegionPool struct {
	mu sync.Mutex

	regionSize RegionSize
	source     pageSource

	freeSlots []slot
	// mmapped tracks the backing of every region that came from the mmap
	// fallback (keyed by RegionID) so Release knows which tier to return
	// memory to.
	mmapped map[RegionID][]byte

	nextID atomic.Uint64
}

// NewRegionPool reserves a block of slotCount regions of regionSize bytes
// each via source, plus enables the unbounded mmap fallback through the
// same source.
func NewRegionPool(regionSize RegionSize, slotCount int, source pageSource) (*RegionPool, error) {
	if regionSize == 0 {
		return nil, gcerrors.InvalidSize(regionSize, "RegionPool.regionSize")
	}

	p := &RegionPool{
		regionSize: regionSize,
		source:     source,
		mmapped:    make(map[RegionID][]byte),
	}

	for i := 0; i < slotCount; i++ {
		backing, err := source.MapPages(regionSize)
		if err != nil {
			return nil, err
		}

		p.freeSlots = append(p.freeSlots, slot{backing: backing, base: addrOf(backing)})
	}

	return p, nil
}

func (p *RegionPool) allocID() RegionID {
	return RegionID(p.nextID.Add(1))
}

// Acquire returns a fresh Region of at least minSize bytes, tagged with
// flags. Regular-sized requests are served from the pre-reserved block
// first; larger requests, and any request once the block is exhausted,
// go through the mmap fallback.
func (p *RegionPool) Acquire(minSize RegionSize, flags RegionFlag) *Region {
	size := p.regionSize
	if minSize > size {
		size = alignUp(minSize, p.regionSize)
	}

	p.mu.Lock()

	if size == p.regionSize && len(p.freeSlots) > 0 {
		s := p.freeSlots[len(p.freeSlots)-1]
		p.freeSlots = p.freeSlots[:len(p.freeSlots)-1]
		id := p.allocID()
		p.mu.Unlock()

		return newRegion(id, s.backing, s.base, flags)
	}

	p.mu.Unlock()

	backing, err := p.source.MapPages(size)
	if err != nil {
		return nil
	}

	id := p.allocID()

	p.mu.Lock()
	p.mmapped[id] = backing
	p.mu.Unlock()

	return newRegion(id, backing, addrOf(backing), flags)
}

// Release returns r's backing memory to whichever tier it came from. For
// mmap-backed regions, the pages are unmapped outright; pool-tier slots
// are returned to the free list for reuse.
func (p *RegionPool) Release(r *Region) {
	p.mu.Lock()

	backing, wasMmapped := p.mmapped[r.ID]
	if wasMmapped {
		delete(p.mmapped, r.ID)
	}

	p.mu.Unlock()

	if wasMmapped {
		_ = p.source.UnmapPages(backing)
		return
	}

	p.mu.Lock()
	p.freeSlots = append(p.freeSlots, slot{backing: r.backing, base: r.Begin})
	p.mu.Unlock()
}

// ReleasePages advises the OS that r's backing pages may be reclaimed
// without unmapping them outright (e.g. MADV_DONTNEED), matching the
// RegionPool contract's "optionally releases pages".
func (p *RegionPool) ReleasePages(r *Region) {
	_ = p.source.ReleasePages(r.backing)
}

// AddressRange reports the smallest span covering every region still
// sitting in the pre-reserved free-slot block. A caller that needs to
// size a single card table ahead of any Acquire call (gcruntime.Heap,
// which cannot name the regionSize/slotCount chosen here) uses this to
// anchor it on the pool's actual reservation rather than an arbitrary
// guess; regions later served from the mmap fallback tier fall outside
// this range and are handled by the caller's own grow-on-demand path.
func (p *RegionPool) AddressRange() (min, max uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.freeSlots {
		lo := s.base
		hi := s.base + p.regionSize

		if min == 0 || lo < min {
			min = lo
		}

		if hi > max {
			max = hi
		}
	}

	return min, max
}
