// Package blockstore implements the block-compressed day-file variant of the
// store: an append-only sequence of self-describing compressed blocks inside
// a memory-mapped, chunk-preallocated file. Blocks delta-encode timestamps
// against a per-block base, zig-zag the price deltas, bit-pack both at the
// narrowest width that fits, and keep sizes verbatim. The format suits
// archival and sequential scans.
package blockstore

// Row is the trade-flavored record the block codec operates on. It is
// distinct from schema.L2Row: block files interleave book updates and prints,
// so every row carries a type tag.
type Row struct {
	TsNs  uint64
	Price uint32
	Size  float32
	Side  uint8
	// Type is 'L' for a book level update, 'T' for a trade print.
	Type byte
}
