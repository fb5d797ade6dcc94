package gcheap

import (
	"sync"
	"sync/atomic"

	"github.com/orizon-lang/orizon-gc/internal/remset"
)

// RegionID uniquely identifies a region for the lifetime of the process;
// it is also used as the RemSet "from-region" key (see regionKey).
type RegionID uint64

// RegionSize mirrors the teacher's RegionSize type in
// internal/runtime/region_alloc.go. It is an alias of uintptr, not a
// distinct type, so sizes mix freely with addresses in arithmetic.
type RegionSize = uintptr

// RegionFlag is a disjoint-union bitmask of the roles a region can play,
// modeled after the BlockFlag bitmask in
// internal/runtime/block_manager.go.
type RegionFlag uint32

const (
	FlagEden RegionFlag = 1 << iota
	FlagSurvivor
	FlagOld
	FlagLarge
	FlagNonMovable
)

func (f RegionFlag) Has(bit RegionFlag) bool { return f&bit != 0 }

func (f RegionFlag) String() string {
	names := []struct {
		bit  RegionFlag
		name string
	}{
		{FlagEden, "Eden"}, {FlagSurvivor, "Survivor"}, {FlagOld, "Old"},
		{FlagLarge, "Large"}, {FlagNonMovable, "NonMovable"},
	}

	s := ""
	for _, n := range names {
		if f.Has(n.bit) {
			if s != "" {
				s += "|"
			}

			s += n.name
		}
	}

	if s == "" {
		return "None"
	}

	return s
}

// DefaultRegionSize is the fixed slab size described by spec.md §3.
const DefaultRegionSize RegionSize = 256 * 1024

// Region is a power-of-two-aligned contiguous address range hosting
// objects via bump-pointer allocation, per spec.md §3/§4.1.
type Region struct {
	ID    RegionID
	Begin uintptr
	End   uintptr

	top atomic.Uintptr // bump-pointer cursor; begin <= top <= end

	flags atomic.Uint32

	LiveBytes atomic.Uint64

	LiveBitmap *Bitmap
	MarkBitmap *Bitmap

	RemSet *remset.RemSet

	// backing keeps the region's byte slab alive; allocation addresses
	// are derived from &backing[0].
	backing []byte

	// iterMu is held exclusively by IterateObjects and AllocExclusive to
	// enforce spec.md's "alloc-cursor and iteration are mutually exclusive"
	// invariant; the atomic Alloc does not take it.
	iterMu sync.RWMutex

	// next/prev link this region into its owning RegionSpace's
	// doubly-linked list.
	next, prev *Region
}

// newRegion carves a region of size bytes out of backing, starting at
// begin, tagged with the given initial flags.
func newRegion(id RegionID, backing []byte, begin uintptr, flags RegionFlag) *Region {
	r := &Region{
		ID:      id,
		Begin:   begin,
		End:     begin + uintptr(len(backing)),
		backing: backing,
	}
	r.top.Store(begin)
	r.flags.Store(uint32(flags))
	r.RemSet = remset.New()

	return r
}

// Flags returns the region's current flag set.
func (r *Region) Flags() RegionFlag { return RegionFlag(r.flags.Load()) }

// AddFlag ORs bit into the region's flag set.
func (r *Region) AddFlag(bit RegionFlag) {
	for {
		old := r.flags.Load()
		updated := old | uint32(bit)

		if old == updated || r.flags.CompareAndSwap(old, updated) {
			return
		}
	}
}

// Top returns the current bump-pointer cursor.
func (r *Region) Top() uintptr { return r.top.Load() }

// alignUp rounds size up to the nearest multiple of align (align must be a power of two).
func alignUp(size, align uintptr) uintptr {
	if align == 0 {
		return size
	}

	return (size + align - 1) &^ (align - 1)
}

// Alloc bump-allocates size bytes (rounded up to align) from the region,
// atomically. Returns 0 if the allocation would exceed End.
func (r *Region) Alloc(size, align uintptr) uintptr {
	want := alignUp(size, align)

	for {
		cur := r.top.Load()
		aligned := alignUp(cur, align)
		next := aligned + want

		if next > r.End {
			return 0
		}

		if r.top.CompareAndSwap(cur, next) {
			return aligned
		}
	}
}

// AllocExclusive is the non-atomic bump-allocation variant for callers
// that already hold exclusive access to the region (e.g. the allocator's
// slow path under its own lock). It asserts no iteration is in progress.
func (r *Region) AllocExclusive(size, align uintptr) uintptr {
	if !r.iterMu.TryLock() {
		panic("gcheap: AllocExclusive called while region is being iterated")
	}
	defer r.iterMu.Unlock()

	cur := r.top.Load()
	aligned := alignUp(cur, align)
	want := alignUp(size, align)
	next := aligned + want

	if next > r.End {
		return 0
	}

	r.top.Store(next)

	return aligned
}

// SetTop truncates (or extends) the bump cursor, used by TLAB revocation
// to give back unused tail space.
func (r *Region) SetTop(top uintptr) { r.top.Store(top) }

// EnsureBitmaps lazily creates the live/mark bitmaps, as spec.md §4.1
// describes ("created lazily; cleared on creation").
func (r *Region) EnsureBitmaps() {
	if r.LiveBitmap == nil {
		r.LiveBitmap = NewBitmap(r.Begin, r.End-r.Begin)
	}

	if r.MarkBitmap == nil {
		r.MarkBitmap = NewBitmap(r.Begin, r.End-r.Begin)
	}
}

// SwapMarkLive exchanges this region's mark and live bitmaps, the
// end-of-cycle step from spec.md §4.1.
func (r *Region) SwapMarkLive() {
	if r.LiveBitmap == nil || r.MarkBitmap == nil {
		return
	}

	SwapMarkLive(r.MarkBitmap, r.LiveBitmap)
}

// ObjectVisitor is invoked once per live object found while iterating a region.
type ObjectVisitor func(obj Object)

// IterateObjects performs a linear scan from Begin to the current Top,
// stepping by each object's aligned size as reported by model. It takes
// the region's write lock for the duration of the scan, so a concurrent
// AllocExclusive panics instead of racing with it (spec.md: "asserted not
// to overlap an active allocator"); the atomic Alloc is not excluded.
func (r *Region) IterateObjects(model ObjectModel, decode func(addr uintptr) Object, visitor ObjectVisitor) {
	r.iterMu.Lock()
	defer r.iterMu.Unlock()

	addr := r.Begin
	top := r.top.Load()

	for addr < top {
		obj := decode(addr)
		if obj == nil {
			break
		}

		visitor(obj)

		size := model.Size(obj)
		addr += alignUp(size, bitmapAlignment)
	}
}

// ForEachLive walks bitmap's set bits within this region and invokes fn
// with the decoded object at each live address. Used by compaction, per
// SPEC_FULL.md §4.1.
func (r *Region) ForEachLive(bitmap *Bitmap, decode func(addr uintptr) Object, fn func(obj Object)) {
	if bitmap == nil {
		return
	}

	bitmap.ForEachSet(func(addr uintptr) {
		if obj := decode(addr); obj != nil {
			fn(obj)
		}
	})
}

// Contains reports whether addr falls within [Begin, End).
func (r *Region) Contains(addr uintptr) bool {
	return addr >= r.Begin && addr < r.End
}

// RegionSpaceType distinguishes movable object regions from non-movable ones.
type RegionSpaceType int

const (
	SpaceObject RegionSpaceType = iota
	SpaceNonMovableObject
)

// AllocatorType records which allocator flavor owns a RegionSpace, purely
// for statistics/debug reporting.
type AllocatorType int

const (
	AllocatorBump AllocatorType = iota
	AllocatorFreeList
)

// RegionSpace is a doubly-linked list of Regions sharing a RegionPool. It
// owns destruction of its regions.
type RegionSpace struct {
	mu   sync.Mutex
	pool *RegionPool

	head, tail *Region
	count      int

	SpaceType     RegionSpaceType
	AllocatorType AllocatorType
}

// NewRegionSpace creates an empty RegionSpace backed by pool.
func NewRegionSpace(pool *RegionPool, spaceType RegionSpaceType, allocatorType AllocatorType) *RegionSpace {
	return &RegionSpace{pool: pool, SpaceType: spaceType, AllocatorType: allocatorType}
}

// AddRegion obtains a region of at least minSize bytes from the pool and
// appends it to the tail of the list.
func (rs *RegionSpace) AddRegion(minSize RegionSize, flags RegionFlag) *Region {
	r := rs.pool.Acquire(minSize, flags)

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.tail == nil {
		rs.head, rs.tail = r, r
	} else {
		r.prev = rs.tail
		rs.tail.next = r
		rs.tail = r
	}

	rs.count++

	return r
}

// RemoveRegion unlinks r from the list and returns it to the pool. It is
// the caller's responsibility to ensure r holds no more live references
// (e.g. after compaction has evacuated it).
func (rs *RegionSpace) RemoveRegion(r *Region) {
	rs.mu.Lock()

	if r.prev != nil {
		r.prev.next = r.next
	} else if rs.head == r {
		rs.head = r.next
	}

	if r.next != nil {
		r.next.prev = r.prev
	} else if rs.tail == r {
		rs.tail = r.prev
	}

	r.next, r.prev = nil, nil
	rs.count--

	rs.mu.Unlock()

	rs.pool.Release(r)
}

// ForEach invokes fn for every region currently in the space, in list order.
func (rs *RegionSpace) ForEach(fn func(*Region)) {
	rs.mu.Lock()
	regions := make([]*Region, 0, rs.count)

	for r := rs.head; r != nil; r = r.next {
		regions = append(regions, r)
	}
	rs.mu.Unlock()

	for _, r := range regions {
		fn(r)
	}
}

// Count returns the number of regions currently owned by the space.
func (rs *RegionSpace) Count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	return rs.count
}

// Destroy releases every region back to the pool.
func (rs *RegionSpace) Destroy() {
	rs.mu.Lock()
	head := rs.head
	rs.head, rs.tail, rs.count = nil, nil, 0
	rs.mu.Unlock()

	for r := head; r != nil; {
		next := r.next
		r.next, r.prev = nil, nil
		rs.pool.Release(r)
		r = next
	}
}
