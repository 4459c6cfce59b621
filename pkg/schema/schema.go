// Package schema describes the record shapes the storage engine persists.
//
// A schema is a zero-size struct implementing Schema[R] for its row type R.
// Writers and readers are generic over the schema, so the per-row marshal
// calls are monomorphized at compile time and the inner loops stay
// branch-free; there is no runtime dispatch on the hot path.
package schema

import (
	"unsafe"
)

// Schema describes a record shape: column layout, file identity, the
// partition key and the row marshal operations. Implementations must be
// zero-size value types so a Writer[S, R] can hold one by value for free.
type Schema[R any] interface {
	// Cols returns the column count.
	Cols() uint32
	// ColSize returns the fixed element width in bytes of column i.
	ColSize(i uint32) uint64
	// Magic returns the 6-byte file magic.
	Magic() [6]byte
	// Version returns the format version stamped into file headers.
	Version() uint16
	// PartitionHour returns the hour bucket of a row in epoch seconds:
	// floor(ts_ns/1e9/3600)*3600. Day partitions derive from it.
	PartitionHour(r *R) uint64
	// WriteRow stores row fields into the column base pointers at index i.
	WriteRow(r *R, cols []unsafe.Pointer, i uint64)
	// ReadRow loads row fields from the column base pointers at index i.
	ReadRow(r *R, cols []unsafe.Pointer, i uint64)
}

// DayFromHour truncates an hour bucket to its UTC day start in epoch seconds.
func DayFromHour(hourSec uint64) uint64 {
	return hourSec - hourSec%86400
}

// hourFromTs is the shared partition function: epoch seconds truncated to
// the hour.
func hourFromTs(tsNs uint64) uint64 {
	s := tsNs / 1_000_000_000
	return s / 3600 * 3600
}
