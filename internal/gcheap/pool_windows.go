//go:build windows

package gcheap

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// windowsPageSource backs RegionPool with VirtualAlloc/VirtualFree, the
// Windows analogue of the unix mmap fallback, matching the split already
// present in internal/runtime/asyncio/iocp_poller_windows.go for
// golang.org/x/sys/windows usage.
type windowsPageSource struct{}

// NewOSPageSource returns the platform's pageSource implementation.
func NewOSPageSource() pageSource { return windowsPageSource{} }

func (windowsPageSource) MapPages(size uintptr) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func (windowsPageSource) UnmapPages(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	return windows.VirtualFree(uintptr(unsafe.Pointer(&b[0])), 0, windows.MEM_RELEASE)
}

func (windowsPageSource) ReleasePages(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	return windows.VirtualFree(uintptr(unsafe.Pointer(&b[0])), uintptr(len(b)), windows.MEM_DECOMMIT)
}
