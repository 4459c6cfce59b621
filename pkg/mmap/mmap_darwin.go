//go:build darwin

package mmap

import (
	"golang.org/x/sys/unix"
)

// Preallocate extends fd to bytes. Darwin has no posix_fallocate; ftruncate
// creates a sparse extent, which is close enough for development hosts.
func Preallocate(fd uintptr, bytes int64) error {
	return unix.Ftruncate(int(fd), bytes)
}

// Remap replaces the mapping with a larger one from the same fd. There is no
// mremap on darwin, so the old mapping is torn down and re-established;
// logical offsets stay valid because the file contents are unchanged.
func Remap(fd uintptr, old []byte, newLength int) ([]byte, error) {
	if err := unix.Munmap(old); err != nil {
		return nil, err
	}
	return unix.Mmap(int(fd), 0, newLength, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// FadviseSequential is a no-op on darwin.
func FadviseSequential(fd uintptr, length int64) {}

// DataSync falls back to fsync; darwin has no fdatasync.
func DataSync(fd uintptr) error {
	return unix.Fsync(int(fd))
}

// allocSlab returns an ordinary anonymous mapping; darwin has no 2 MiB
// hugetlb interface.
func allocSlab(bytes int) (buf []byte, huge bool, err error) {
	b, err := unix.Mmap(-1, 0, bytes, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	return b, false, err
}
