package gcheap

import "unsafe"

// addrOf returns the address of b's backing array. Regions use this to
// translate the Go-managed byte slice a pageSource hands back into the
// uintptr address space the bump allocator and card table operate on.
func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}

	return uintptr(unsafe.Pointer(&b[0]))
}

// addrToSlice reinterprets the n bytes starting at addr as a []byte,
// used by compaction's raw object copy. addr must fall within a live
// region's backing allocation.
func addrToSlice(addr, n uintptr) []byte {
	if n == 0 {
		return nil
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(n))
}
