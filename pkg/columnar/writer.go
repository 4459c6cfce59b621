package columnar

import (
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/DJ824/hft-reader-writer/pkg/errors"
	"github.com/DJ824/hft-reader-writer/pkg/lockfree"
	"github.com/DJ824/hft-reader-writer/pkg/logger"
	"github.com/DJ824/hft-reader-writer/pkg/metrics"
	"github.com/DJ824/hft-reader-writer/pkg/mmap"
	"github.com/DJ824/hft-reader-writer/pkg/schema"
)

// noDay tags the writer state before the first file is open.
const noDay = ^uint64(0)

// WriterOpt configures a columnar day-file writer.
type WriterOpt struct {
	BaseDir string
	Product string
	// RowsPerHour sizes the initial file capacity (2x this value).
	RowsPerHour uint64
	// FsyncEveryRows rewrites the header row count and msyncs the first
	// page every N rows. 0 disables periodic syncs.
	FsyncEveryRows uint32
	// QueueCapacity is the ingest queue slot count, rounded up to a power
	// of 2. The default absorbs multi-second feed bursts without
	// allocating.
	QueueCapacity int
}

func (o *WriterOpt) setDefaults() {
	if o.RowsPerHour == 0 {
		o.RowsPerHour = 1 << 24
	}
	if o.QueueCapacity == 0 {
		o.QueueCapacity = 1 << 26
	}
}

// Writer drains rows from a bounded SPSC queue into memory-mapped columnar
// day files. One worker goroutine owns the mapping, the file descriptor and
// the column write pointers; producers only touch the queue.
//
// Rows whose partition day precedes the currently open day are written into
// the open day: the partition key is non-decreasing in production, and
// rotation only ever moves forward. The first row of a later day closes the
// open file and starts the next one.
type Writer[S schema.Schema[R], R any] struct {
	opt WriterOpt
	sch S

	queue   *lockfree.SPSC[R]
	rows    atomic.Uint64
	dropped atomic.Uint64
	day     atomic.Uint64

	file     *os.File
	data     []byte
	hdr      FileHeader
	capacity uint64
	colPtrs  []unsafe.Pointer

	running  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}

	log *zap.Logger
}

// NewWriter creates a writer for the schema S. Start must be called before
// rows are enqueued.
func NewWriter[S schema.Schema[R], R any](opt WriterOpt) *Writer[S, R] {
	opt.setDefaults()
	w := &Writer[S, R]{
		opt:   opt,
		queue: lockfree.NewSPSC[R](opt.QueueCapacity),
		log:   logger.ForProduct("columnar_writer", opt.Product),
	}
	w.day.Store(noDay)
	return w
}

// Start spawns the worker goroutine.
func (w *Writer[S, R]) Start() {
	if w.running.Swap(true) {
		return
	}
	w.stopping.Store(false)
	w.done = make(chan struct{})
	go w.run()
	w.log.Info("writer started",
		zap.String("dir", filepath.Join(w.opt.BaseDir, w.opt.Product)))
}

// Enqueue offers a row to the worker. It never blocks and returns false when
// the queue is full; the producer decides whether to count or shed.
func (w *Writer[S, R]) Enqueue(r R) bool {
	return w.queue.Enqueue(r)
}

// Stop asks the worker to drain the queue and exit. It returns immediately;
// use Close to wait.
func (w *Writer[S, R]) Stop() {
	w.stopping.Store(true)
}

// Close stops the worker, waits for the queue to drain and closes the open
// day file.
func (w *Writer[S, R]) Close() error {
	w.Stop()
	if w.done != nil {
		<-w.done
	}
	w.closeFile()
	return nil
}

// Rows returns the row count of the currently open day file.
func (w *Writer[S, R]) Rows() uint64 { return w.rows.Load() }

// Dropped returns the total rows dropped by the worker (failed rotation or
// failed grow).
func (w *Writer[S, R]) Dropped() uint64 { return w.dropped.Load() }

// DayStart returns the open file's day partition in epoch seconds.
func (w *Writer[S, R]) DayStart() uint64 { return w.day.Load() }

// QueueLen returns the approximate ingest queue depth.
func (w *Writer[S, R]) QueueLen() int { return w.queue.Len() }

func (w *Writer[S, R]) run() {
	defer close(w.done)
	var sinceFsync uint32

	for w.running.Load() {
		if w.stopping.Load() && w.queue.IsEmpty() {
			break
		}

		row, ok := w.queue.Dequeue()
		if !ok {
			runtime.Gosched()
			continue
		}

		h := w.sch.PartitionHour(&row)
		d := schema.DayFromHour(h)
		if w.data == nil || d > w.day.Load() {
			if err := w.rotateToDay(d); err != nil {
				w.drop("rotate")
				w.log.Error("rotate failed", zap.Uint64("day", d), zap.Error(err))
				continue
			}
		}

		idx := w.rows.Add(1) - 1
		if idx >= w.capacity {
			if err := w.grow(); err != nil {
				w.rows.Store(w.capacity)
				w.drop("grow")
				w.log.Error("grow failed", zap.Error(err))
				continue
			}
		}

		w.sch.WriteRow(&row, w.colPtrs, idx)
		metrics.RowsWritten.WithLabelValues(w.opt.Product).Inc()

		if w.opt.FsyncEveryRows > 0 {
			sinceFsync++
			if sinceFsync >= w.opt.FsyncEveryRows {
				w.updateHeaderRows()
				sinceFsync = 0
			}
		}
	}

	w.updateHeaderRows()
	w.running.Store(false)
}

func (w *Writer[S, R]) drop(reason string) {
	w.dropped.Add(1)
	metrics.RowsDropped.WithLabelValues(w.opt.Product, reason).Inc()
}

// rotateToDay persists the open file and opens the file for day d. If the
// open fails the writer is left fileless; the next row retries the open.
func (w *Writer[S, R]) rotateToDay(d uint64) error {
	if w.data != nil {
		w.log.Info("rotating day file",
			zap.Uint64("rows", w.rows.Load()),
			zap.String("day", dateString(w.day.Load())))
		w.updateHeaderRows()
		w.closeFile()
		metrics.DayRotations.WithLabelValues(w.opt.Product).Inc()
	}
	w.day.Store(d)
	return w.openDayFile(d)
}

func (w *Writer[S, R]) openDayFile(d uint64) error {
	w.capacity = w.opt.RowsPerHour * 2

	cols := w.sch.Cols()
	colBytes := make([]uint64, cols)
	var bodyBytes uint64
	for i := uint32(0); i < cols; i++ {
		colBytes[i] = w.capacity * w.sch.ColSize(i)
		bodyBytes += colBytes[i]
	}
	fileBytes := uint64(HeaderSize) + bodyBytes

	dir := filepath.Join(w.opt.BaseDir, w.opt.Product)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "mkdir "+dir)
	}
	path := filepath.Join(dir, dateString(d)+".bin")

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "open "+path)
	}
	if err := mmap.Preallocate(f.Fd(), int64(fileBytes)); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "preallocate "+path)
	}
	data, err := mmap.Map(f.Fd(), int(fileBytes), true)
	if err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "mmap "+path)
	}

	w.file = f
	w.data = data

	w.hdr = FileHeader{
		Magic:    w.sch.Magic(),
		Version:  w.sch.Version(),
		DayStart: d,
		Rows:     0,
		Capacity: w.capacity,
		ColOff:   make([]uint64, cols),
		ColSz:    make([]uint64, cols),
	}
	copy(w.hdr.Product[:], w.opt.Product)
	off := uint64(HeaderSize)
	for i := uint32(0); i < cols; i++ {
		w.hdr.ColOff[i] = off
		w.hdr.ColSz[i] = w.sch.ColSize(i)
		off += colBytes[i]
	}
	w.hdr.Marshal(w.data)
	w.syncHeader()

	w.colPtrs = make([]unsafe.Pointer, cols)
	for i := uint32(0); i < cols; i++ {
		w.colPtrs[i] = unsafe.Pointer(&w.data[w.hdr.ColOff[i]])
	}
	w.rows.Store(0)

	w.log.Info("opened day file",
		zap.String("path", path),
		zap.Uint64("capacity", w.capacity),
		zap.Uint64("bytes", fileBytes))
	return nil
}

// grow doubles the file capacity in place. Column regions shift because each
// one doubles, so existing column bytes are moved to their new offsets,
// highest column first; regions only ever move toward the end of the file.
func (w *Writer[S, R]) grow() error {
	oldCap := w.capacity
	newCap := oldCap * 2
	cols := w.sch.Cols()

	w.log.Info("growing day file",
		zap.Uint64("capacity", oldCap), zap.Uint64("new_capacity", newCap))

	colBytes := make([]uint64, cols)
	var bodyBytes uint64
	for i := uint32(0); i < cols; i++ {
		colBytes[i] = newCap * w.sch.ColSize(i)
		bodyBytes += colBytes[i]
	}
	newFileBytes := uint64(HeaderSize) + bodyBytes

	if err := mmap.Unmap(w.data); err != nil {
		w.data = nil
		return errors.Wrap(err, errors.ErrorTypeFile, "munmap for grow")
	}
	w.data = nil
	if err := mmap.Preallocate(w.file.Fd(), int64(newFileBytes)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "preallocate for grow")
	}
	data, err := mmap.Map(w.file.Fd(), int(newFileBytes), true)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "mmap for grow")
	}
	w.data = data

	oldOff := w.hdr.ColOff
	newOff := make([]uint64, cols)
	off := uint64(HeaderSize)
	for i := uint32(0); i < cols; i++ {
		newOff[i] = off
		off += colBytes[i]
	}

	// Relocate written rows, last column first. copy handles the
	// overlapping dst>src case like memmove.
	for i := int(cols) - 1; i >= 1; i-- {
		n := oldCap * w.sch.ColSize(uint32(i))
		copy(w.data[newOff[i]:newOff[i]+n], w.data[oldOff[i]:oldOff[i]+n])
	}

	w.capacity = newCap
	w.hdr.Capacity = newCap
	w.hdr.ColOff = newOff
	w.hdr.Marshal(w.data)
	w.syncHeader()

	for i := uint32(0); i < cols; i++ {
		w.colPtrs[i] = unsafe.Pointer(&w.data[newOff[i]])
	}

	metrics.FileGrows.WithLabelValues(w.opt.Product).Inc()
	return nil
}

// updateHeaderRows rewrites the in-header row count and msyncs the first
// page. Sync failures are logged, not fatal.
func (w *Writer[S, R]) updateHeaderRows() {
	metrics.QueueDepth.WithLabelValues(w.opt.Product).Set(float64(w.queue.Len()))
	if w.data == nil {
		return
	}
	w.hdr.Rows = w.rows.Load()
	w.hdr.Marshal(w.data)
	w.syncHeader()
}

func (w *Writer[S, R]) syncHeader() {
	metrics.SyncOps.WithLabelValues(w.opt.Product, "header_msync").Inc()
	if err := mmap.SyncRange(w.data, HeaderSize); err != nil {
		metrics.SyncFailures.WithLabelValues(w.opt.Product, "header_msync").Inc()
		w.log.Warn("header msync failed", zap.Error(err))
	}
}

func (w *Writer[S, R]) closeFile() {
	if w.data == nil {
		if w.file != nil {
			w.file.Close()
			w.file = nil
		}
		return
	}
	if err := mmap.SyncRange(w.data, HeaderSize); err != nil {
		w.log.Warn("header msync on close failed", zap.Error(err))
	}
	if err := mmap.Unmap(w.data); err != nil {
		w.log.Warn("munmap failed", zap.Error(err))
	}
	w.data = nil
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	w.rows.Store(0)
	w.hdr = FileHeader{}
	w.colPtrs = nil
}
