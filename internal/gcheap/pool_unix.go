//go:build unix

package gcheap

import (
	"golang.org/x/sys/unix"
)

// unixPageSource backs RegionPool with anonymous mmap pages, the same
// primitive internal/runtime/asyncio's zerocopy helpers in the teacher
// repo use golang.org/x/sys/unix for, generalized here from socket
// buffers to heap regions.
type unixPageSource struct{}

// NewOSPageSource returns the platform's pageSource implementation.
func NewOSPageSource() pageSource { return unixPageSource{} }

func (unixPageSource) MapPages(size uintptr) ([]byte, error) {
	return unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func (unixPageSource) UnmapPages(b []byte) error {
	return unix.Munmap(b)
}

func (unixPageSource) ReleasePages(b []byte) error {
	return unix.Madvise(b, unix.MADV_DONTNEED)
}
