// Package mmap wraps the memory-mapping system calls the storage engine is
// built on: file-backed read-write maps for the columnar and block writers,
// read-only maps for the scan path, and anonymous huge-page slabs for staged
// column copies. Platform differences (fallocate, mremap, huge pages) are
// isolated behind build-tagged files.
package mmap

import (
	"golang.org/x/sys/unix"
)

// Map memory-maps length bytes of fd starting at offset zero. A writable
// mapping is MAP_SHARED read-write; otherwise PROT_READ only.
func Map(fd uintptr, length int, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(fd), 0, length, prot, unix.MAP_SHARED)
}

// Unmap releases a mapping created by Map, Remap or a slab allocation.
func Unmap(b []byte) error {
	return unix.Munmap(b)
}

// Sync flushes the whole mapping to the backing file with MS_SYNC.
func Sync(b []byte) error {
	return unix.Msync(b, unix.MS_SYNC)
}

// SyncRange flushes the first n bytes of the mapping. The mapping base is
// page-aligned, so syncing a prefix only touches the pages it covers.
func SyncRange(b []byte, n int) error {
	if n > len(b) {
		n = len(b)
	}
	return unix.Msync(b[:n], unix.MS_SYNC)
}

// AdviseSequential tells the kernel the mapping will be read front to back.
func AdviseSequential(b []byte) error {
	return unix.Madvise(b, unix.MADV_SEQUENTIAL)
}

// AdviseWillNeed asks the kernel to start faulting the mapping in.
func AdviseWillNeed(b []byte) error {
	return unix.Madvise(b, unix.MADV_WILLNEED)
}
