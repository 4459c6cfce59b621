// Package columnar implements the day-partitioned columnar store.
//
// A day file is a 256-byte header followed by one contiguous region per
// column, each sized for the file's row capacity. Rows are appended by a
// single writer goroutine fed from a bounded lock-free queue; files rotate
// at UTC day boundaries and grow in place by doubling capacity when full.
// Readers map files read-only and hand callers raw column slices, optionally
// staged into a huge-page slab so downstream code is isolated from mapping
// churn.
//
// The layout is structure-of-arrays: row r of column i lives at
// base + col_off[i] + r*col_sz[i]. Only the first header.rows rows are
// valid; bytes past the written prefix of a region are undefined.
package columnar
