// Package metrics exposes Prometheus metrics for the storage engine: ingest
// throughput, drops, file maintenance events and durability syncs. All
// metrics are registered automatically via promauto and are safe to record
// from hot paths; the writer only touches counters, never histograms, on the
// per-row path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsWritten tracks rows the columnar writer has placed into day files.
	// Labels: product
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdstore_rows_written_total",
			Help: "Total rows written into columnar day files",
		},
		[]string{"product"},
	)

	// RowsDropped tracks rows lost to a full queue, a failed rotation or a
	// failed grow. Labels: product, reason (queue_full/rotate/grow)
	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdstore_rows_dropped_total",
			Help: "Total rows dropped by the columnar writer",
		},
		[]string{"product", "reason"},
	)

	// DayRotations counts day-file rotations.
	DayRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdstore_day_rotations_total",
			Help: "Total columnar day-file rotations",
		},
		[]string{"product"},
	)

	// FileGrows counts in-place capacity doublings of the open day file.
	FileGrows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdstore_file_grows_total",
			Help: "Total in-place day-file capacity grows",
		},
		[]string{"product"},
	)

	// QueueDepth tracks the writer ingest queue depth.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mdstore_queue_depth",
			Help: "Current writer queue depth",
		},
		[]string{"product"},
	)

	// BlocksFlushed counts compressed blocks appended to block day files.
	BlocksFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdstore_blocks_flushed_total",
			Help: "Total compressed blocks appended",
		},
		[]string{"product"},
	)

	// BytesAppended counts encoded block bytes appended to block day files.
	BytesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdstore_block_bytes_appended_total",
			Help: "Total encoded block bytes appended",
		},
		[]string{"product"},
	)

	// SyncOps counts durability flushes (msync/fdatasync) issued by writers.
	// Labels: product, kind (header_msync/fdatasync)
	SyncOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdstore_sync_ops_total",
			Help: "Total durability sync operations",
		},
		[]string{"product", "kind"},
	)

	// SyncFailures counts durability flushes that failed. These are logged
	// and not fatal, so a counter is the only persistent trace.
	SyncFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdstore_sync_failures_total",
			Help: "Total failed durability sync operations",
		},
		[]string{"product", "kind"},
	)

	// FilesSkipped counts files a reader skipped for failed validation.
	// Labels: product, reason (short/magic)
	FilesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdstore_reader_files_skipped_total",
			Help: "Total day files skipped by readers during validation",
		},
		[]string{"product", "reason"},
	)
)
