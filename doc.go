// Package mdstore is a write-once, read-many columnar storage engine for
// high-frequency market data. Timestamped event streams (order-book updates,
// trades, derived factors) are persisted to day-partitioned memory-mapped
// files and scanned back at memory-bandwidth speeds without row-by-row
// parsing cost.
//
// # Architecture
//
// Three subsystems form the core:
//
// 1. Columnar day-file store (pkg/columnar): fixed-capacity column regions
// in a memory-mapped file behind a 256-byte header, filled by a single
// writer goroutine drained from a bounded lock-free queue (pkg/lockfree),
// grown in place on overflow and rotated at UTC day boundaries.
//
// 2. Block-compressed day files (pkg/blockstore): an append-only sequence of
// self-describing blocks, each delta-encoding timestamps, zig-zag encoding
// price deltas and bit-packing both at the narrowest width that fits.
// Suited to archival and sequential scans; pkg/compact converts columnar
// days into block days.
//
// 3. Schema registry (pkg/schema): compile-time-dispatched record shapes
// (L2 quotes, L3 orders, derived factor rows) driving both stores through
// one generic interface, keeping the hot loops free of runtime dispatch.
//
// The ambient stack follows the rest of the codebase: zap structured
// logging (pkg/logger), structured errors (pkg/errors), Prometheus metrics
// (pkg/metrics) and YAML/viper configuration (pkg/config). The mdstore CLI
// (cmd/mdstore) inspects day files, scans row counts and runs the
// compaction/archival pass.
package mdstore
