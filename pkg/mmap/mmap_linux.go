//go:build linux

package mmap

import (
	"golang.org/x/sys/unix"
)

const hugePageSize = 2 << 20

// Preallocate reserves bytes of disk space for fd without writing data.
func Preallocate(fd uintptr, bytes int64) error {
	return unix.Fallocate(int(fd), 0, 0, bytes)
}

// Remap grows a writable mapping to newLength bytes. The mapping may move;
// callers must refresh any pointers derived from the old base. fd is unused
// here but required by the darwin fallback, which has to re-map from the file.
func Remap(fd uintptr, old []byte, newLength int) ([]byte, error) {
	_ = fd
	return unix.Mremap(old, newLength, unix.MREMAP_MAYMOVE)
}

// FadviseSequential hints sequential access for the file behind fd.
func FadviseSequential(fd uintptr, length int64) {
	_ = unix.Fadvise(int(fd), 0, length, unix.FADV_SEQUENTIAL)
}

// DataSync flushes file data without forcing a metadata write.
func DataSync(fd uintptr) error {
	return unix.Fdatasync(int(fd))
}

// allocSlab tries a 2 MiB huge-page anonymous mapping first, rounding the
// request up to a huge-page multiple. Hosts without hugetlb reservations fall
// back to an ordinary anonymous mapping with MADV_HUGEPAGE so transparent
// huge pages can still back it.
func allocSlab(bytes int) (buf []byte, huge bool, err error) {
	want := (bytes + hugePageSize - 1) &^ (hugePageSize - 1)

	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS | unix.MAP_POPULATE |
		unix.MAP_HUGETLB | unix.MAP_HUGE_2MB
	if b, err := unix.Mmap(-1, 0, want, unix.PROT_READ|unix.PROT_WRITE, flags); err == nil {
		return b, true, nil
	}

	b, err := unix.Mmap(-1, 0, bytes, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, false, err
	}
	_ = unix.Madvise(b, unix.MADV_HUGEPAGE)
	return b, false, nil
}
