package gcheap

// DeathChecker reports whether obj is dead (unreachable) for compaction
// passes that don't rely on a precomputed mark bitmap, per spec.md §4.2.
type DeathChecker func(obj Object) bool

const (
	// Alive and Dead are the two outcomes a DeathChecker can return,
	// named to match spec.md's "death_checker(obj) == ALIVE" phrasing at
	// call sites.
	Alive = false
	Dead  = true
)

// CompactionResult summarizes one CompactAllSpecificRegions pass.
type CompactionResult struct {
	ObjectsMoved int
	BytesMoved   uintptr
}

// CompactAllSpecificRegions iterates every region flagged from in space,
// and for each live object (determined by the region's mark bitmap when
// useMarkedBitmap is set, else by death) allocates space for it in a
// region flagged to via alloc, copies its bytes, and installs a
// forwarding pointer in the source object's mark word. Per spec.md §4.2,
// callers must follow this with ResetAllSpecificRegions to return the
// now-empty source regions to the pool.
func CompactAllSpecificRegions(
	space *RegionSpace,
	from RegionFlag,
	to RegionFlag,
	alloc *RegionAllocator,
	useMarkedBitmap bool,
	model ObjectModel,
	decode func(addr uintptr) Object,
	death DeathChecker,
) CompactionResult {
	var result CompactionResult

	space.ForEach(func(r *Region) {
		if !r.Flags().Has(from) {
			return
		}

		moveObject := func(obj Object) {
			if IsForwarded(obj) {
				return
			}

			size := model.Size(obj)

			dstAddr, dstRegion := alloc.Alloc(to, size, bitmapAlignment)
			if dstRegion == nil || dstAddr == 0 {
				return
			}

			copyBytes(dstAddr, obj.Address(), size)
			SetForwardAddress(obj, dstAddr)

			if dstRegion.LiveBitmap != nil {
				dstRegion.EnsureBitmaps()
				dstRegion.LiveBitmap.Set(dstAddr)
			}

			result.ObjectsMoved++
			result.BytesMoved += size
		}

		if useMarkedBitmap && r.MarkBitmap != nil {
			r.ForEachLive(r.MarkBitmap, decode, moveObject)
			return
		}

		r.IterateObjects(model, decode, func(obj Object) {
			if death(obj) == Alive {
				moveObject(obj)
			}
		})
	})

	return result
}

// CompactSpecificRegions evacuates every live object (per the mark
// bitmap) out of exactly the regions in victims into a region flagged
// to via alloc, then removes each evacuated victim from space. Unlike
// CompactAllSpecificRegions, which sweeps every region sharing a flag,
// this targets an explicit subset — used by the G1 variant's
// garbage-priority region selection (spec.md §4.6).
func CompactSpecificRegions(space *RegionSpace, victims []*Region, to RegionFlag, alloc *RegionAllocator, model ObjectModel, decode func(addr uintptr) Object) CompactionResult {
	var result CompactionResult

	for _, r := range victims {
		moveObject := func(obj Object) {
			if IsForwarded(obj) {
				return
			}

			size := model.Size(obj)

			dstAddr, dstRegion := alloc.Alloc(to, size, bitmapAlignment)
			if dstRegion == nil || dstAddr == 0 {
				return
			}

			copyBytes(dstAddr, obj.Address(), size)
			SetForwardAddress(obj, dstAddr)

			if dstRegion.LiveBitmap != nil {
				dstRegion.EnsureBitmaps()
				dstRegion.LiveBitmap.Set(dstAddr)
			}

			result.ObjectsMoved++
			result.BytesMoved += size
		}

		if r.MarkBitmap != nil {
			r.ForEachLive(r.MarkBitmap, decode, moveObject)
		}

		space.RemoveRegion(r)
	}

	return result
}

// ResetAllSpecificRegions returns every region flagged from in space back
// to its pool, per spec.md §4.2. Callers invoke this after
// CompactAllSpecificRegions has evacuated every live object out of those
// regions.
func ResetAllSpecificRegions(space *RegionSpace, from RegionFlag) {
	var toRemove []*Region

	space.ForEach(func(r *Region) {
		if r.Flags().Has(from) {
			toRemove = append(toRemove, r)
		}
	})

	for _, r := range toRemove {
		space.RemoveRegion(r)
	}
}

// copyBytes performs a raw memcpy-style copy of n bytes from src to dst
// using unsafe byte-slice views over the two addresses.
func copyBytes(dst, src, n uintptr) {
	dstSlice := addrToSlice(dst, n)
	srcSlice := addrToSlice(src, n)
	copy(dstSlice, srcSlice)
}
