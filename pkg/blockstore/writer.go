package blockstore

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/DJ824/hft-reader-writer/pkg/errors"
	"github.com/DJ824/hft-reader-writer/pkg/logger"
	"github.com/DJ824/hft-reader-writer/pkg/metrics"
	"github.com/DJ824/hft-reader-writer/pkg/mmap"
)

const (
	// DayFileHeaderSize is the fixed prefix of a block day file.
	DayFileHeaderSize = 24

	// syncInterval forces an fdatasync after this many appended bytes.
	syncInterval = 64 << 20
	// mapWindow is the granularity the write mapping grows by.
	mapWindow = 256 << 20
	// fallocateChunk is the granularity of disk reservations.
	fallocateChunk = 1 << 30
)

// DayFileHeader is the 24-byte prefix of a block day file. It is written on
// open with the day and zero totals and rewritten with the real totals on
// close, so a crashed writer
// leaves a header that ignores any partially appended trailing bytes.
type DayFileHeader struct {
	RowsTotal   uint64
	BytesTotal  uint64
	Day         uint32
	BlocksTotal uint32
}

func (h *DayFileHeader) marshal(dst []byte) {
	le := binary.LittleEndian
	le.PutUint64(dst[0:8], h.RowsTotal)
	le.PutUint64(dst[8:16], h.BytesTotal)
	le.PutUint32(dst[16:20], h.Day)
	le.PutUint32(dst[20:24], h.BlocksTotal)
}

// ParseDayFileHeader decodes a day-file header from src.
func ParseDayFileHeader(src []byte) (DayFileHeader, error) {
	var h DayFileHeader
	if len(src) < DayFileHeaderSize {
		return h, errors.Newf(errors.ErrorTypeFormat, "day header short: %d bytes", len(src))
	}
	le := binary.LittleEndian
	h.RowsTotal = le.Uint64(src[0:8])
	h.BytesTotal = le.Uint64(src[8:16])
	h.Day = le.Uint32(src[16:20])
	h.BlocksTotal = le.Uint32(src[20:24])
	return h, nil
}

// WriterOpt configures a block day-file writer.
type WriterOpt struct {
	BaseDir string
	Product string
	// BlockRows is the batch size encoded per block.
	BlockRows uint32
	// FsyncEveryBlocks issues an fdatasync after this many appended
	// blocks. 0 disables the per-block cadence; the 64 MiB byte threshold
	// and the final sync on close always apply.
	FsyncEveryBlocks uint32
	// Flags is applied to every encoded block (e.g. FlagLZ4).
	Flags uint16
}

func (o *WriterOpt) setDefaults() {
	if o.BlockRows == 0 {
		o.BlockRows = 8192
	}
}

// Writer appends encoded blocks to one day file at a time through a growing
// write mapping. The caller drives it single-threaded: BeginDay, then
// WriteRow/WriteBlock, then Close (or another BeginDay, which closes the
// previous file).
type Writer struct {
	opt WriterOpt

	file      *os.File
	path      string
	allocated uint64
	day       uint32

	hdr             DayFileHeader
	rowsTotal       uint64
	bytesTotal      uint64
	blocksSinceSync uint32
	bytesSinceSync  uint64

	data    []byte
	fileOff uint64

	buf      []Row
	blockBuf []byte

	log *zap.Logger
}

// NewWriter creates a block writer. No file is opened until BeginDay.
func NewWriter(opt WriterOpt) *Writer {
	opt.setDefaults()
	return &Writer{
		opt: opt,
		buf: make([]Row, 0, opt.BlockRows),
		log: logger.ForProduct("block_writer", opt.Product),
	}
}

// IsOpen reports whether a day file is open.
func (w *Writer) IsOpen() bool { return w.file != nil }

// BeginDay opens the day file for yyyymmdd, first flushing and closing any
// previously open day. Re-opening the current day is a no-op.
func (w *Writer) BeginDay(yyyymmdd uint32) error {
	if w.day == yyyymmdd && w.IsOpen() {
		return nil
	}
	if w.IsOpen() {
		if err := w.Close(); err != nil {
			return err
		}
	}
	if err := w.openDayFile(yyyymmdd); err != nil {
		return err
	}
	w.day = yyyymmdd
	return nil
}

// WriteRow appends a row to the in-memory batch, flushing a block when the
// batch reaches BlockRows.
func (w *Writer) WriteRow(r Row) error {
	w.buf = append(w.buf, r)
	if uint32(len(w.buf)) >= w.opt.BlockRows {
		return w.flushBlock()
	}
	return nil
}

// WriteBlock encodes rows as one block immediately, flushing any partial
// batch first so ordering is preserved.
func (w *Writer) WriteBlock(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	if !w.IsOpen() {
		return errors.New(errors.ErrorTypeFile, "WriteBlock called without an open day")
	}
	if len(w.buf) > 0 {
		if err := w.flushBlock(); err != nil {
			return err
		}
	}
	return w.appendRowsAsBlock(rows)
}

// Close flushes the partial batch, tears down the mapping, rewrites the day
// header with the final totals, truncates the file to its exact used length
// and closes it.
func (w *Writer) Close() error {
	if !w.IsOpen() {
		return nil
	}

	if err := w.flushBlock(); err != nil {
		return err
	}
	if w.data != nil {
		if err := mmap.Unmap(w.data); err != nil {
			w.log.Warn("munmap failed", zap.Error(err))
		}
		w.data = nil
	}

	w.hdr.RowsTotal = w.rowsTotal
	w.hdr.BytesTotal = w.bytesTotal
	path := w.path

	if err := w.file.Truncate(int64(w.fileOff)); err != nil {
		w.file.Close()
		w.reset()
		return errors.Wrap(err, errors.ErrorTypeFile, "truncate "+path)
	}
	w.allocated = 0

	var hb [DayFileHeaderSize]byte
	w.hdr.marshal(hb[:])
	if _, err := w.file.WriteAt(hb[:], 0); err != nil {
		w.file.Close()
		w.reset()
		return errors.Wrap(err, errors.ErrorTypeFile, "rewrite header "+path)
	}
	if err := mmap.DataSync(w.file.Fd()); err != nil {
		metrics.SyncFailures.WithLabelValues(w.opt.Product, "fdatasync").Inc()
		w.log.Warn("fdatasync on close failed", zap.Error(err))
	}

	w.log.Info("closed day file",
		zap.String("path", w.path),
		zap.Uint64("rows", w.hdr.RowsTotal),
		zap.Uint32("blocks", w.hdr.BlocksTotal),
		zap.Uint64("bytes", w.hdr.BytesTotal))

	err := w.file.Close()
	w.reset()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "close")
	}
	return nil
}

func (w *Writer) reset() {
	w.file = nil
	w.path = ""
	w.rowsTotal = 0
	w.bytesTotal = 0
	w.blocksSinceSync = 0
	w.bytesSinceSync = 0
	w.day = 0
	w.hdr = DayFileHeader{}
	w.buf = w.buf[:0]
	w.data = nil
	w.fileOff = 0
	w.allocated = 0
}

func alignUp(x, a uint64) uint64 {
	return (x + a - 1) / a * a
}

func (w *Writer) openDayFile(yyyymmdd uint32) error {
	dir := filepath.Join(w.opt.BaseDir, w.opt.Product+"-BLOCKS")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "mkdir "+dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("%08d.blocks", yyyymmdd))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "open "+path)
	}

	firstRound := alignUp(DayFileHeaderSize+mapWindow, fallocateChunk)
	if err := mmap.Preallocate(f.Fd(), int64(firstRound)); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "preallocate "+path)
	}

	page := uint64(os.Getpagesize())
	mapLen := alignUp(DayFileHeaderSize+mapWindow, page)
	data, err := mmap.Map(f.Fd(), int(mapLen), true)
	if err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "mmap "+path)
	}

	w.file = f
	w.path = path
	w.allocated = firstRound
	w.data = data
	w.hdr = DayFileHeader{Day: yyyymmdd}
	w.hdr.marshal(w.data)
	if err := mmap.SyncRange(w.data, DayFileHeaderSize); err != nil {
		w.log.Warn("header msync failed", zap.Error(err))
	}
	w.fileOff = DayFileHeaderSize

	mmap.FadviseSequential(f.Fd(), int64(mapLen))
	_ = mmap.AdviseSequential(w.data)

	w.log.Info("opened day file", zap.Uint32("day", yyyymmdd), zap.String("path", path))
	return nil
}

// ensureChunk guarantees need bytes of mapped space at fileOff, growing the
// disk reservation in 1 GiB steps and the mapping in 256 MiB windows. The
// remap may move the base address; fileOff-relative addressing survives.
func (w *Writer) ensureChunk(need uint64) error {
	if w.data != nil && uint64(len(w.data)) >= w.fileOff+need {
		return nil
	}

	minLen := w.fileOff + need
	if err := w.ensureAllocated(minLen); err != nil {
		return err
	}

	newLen := uint64(len(w.data))
	for newLen < minLen {
		newLen += mapWindow
	}

	data, err := mmap.Remap(w.file.Fd(), w.data, int(newLen))
	if err != nil {
		w.data = nil
		return errors.Wrap(err, errors.ErrorTypeFile, "remap "+w.path)
	}
	w.data = data

	mmap.FadviseSequential(w.file.Fd(), int64(newLen))
	_ = mmap.AdviseSequential(w.data)
	return nil
}

func (w *Writer) ensureAllocated(requiredLen uint64) error {
	if requiredLen <= w.allocated {
		return nil
	}
	rounded := alignUp(requiredLen, fallocateChunk)
	if err := mmap.Preallocate(w.file.Fd(), int64(rounded)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "preallocate "+w.path)
	}
	w.allocated = rounded
	return nil
}

func (w *Writer) appendRowsAsBlock(rows []Row) error {
	w.blockBuf = EncodeBlock(w.blockBuf[:0], rows, w.opt.Flags)
	if err := w.ensureChunk(uint64(len(w.blockBuf))); err != nil {
		return err
	}
	copy(w.data[w.fileOff:], w.blockBuf)

	n := uint64(len(w.blockBuf))
	w.fileOff += n
	w.rowsTotal += uint64(len(rows))
	w.bytesTotal += n
	w.bytesSinceSync += n
	w.hdr.BlocksTotal++
	w.blocksSinceSync++

	metrics.BlocksFlushed.WithLabelValues(w.opt.Product).Inc()
	metrics.BytesAppended.WithLabelValues(w.opt.Product).Add(float64(n))

	if w.bytesSinceSync >= syncInterval {
		w.dataSync()
		w.bytesSinceSync = 0
	}
	return nil
}

func (w *Writer) flushBlock() error {
	if !w.IsOpen() || len(w.buf) == 0 {
		return nil
	}
	if err := w.appendRowsAsBlock(w.buf); err != nil {
		return err
	}
	w.buf = w.buf[:0]
	if w.opt.FsyncEveryBlocks > 0 && w.blocksSinceSync >= w.opt.FsyncEveryBlocks {
		w.dataSync()
		w.blocksSinceSync = 0
	}
	return nil
}

func (w *Writer) dataSync() {
	metrics.SyncOps.WithLabelValues(w.opt.Product, "fdatasync").Inc()
	if err := mmap.DataSync(w.file.Fd()); err != nil {
		metrics.SyncFailures.WithLabelValues(w.opt.Product, "fdatasync").Inc()
		w.log.Warn("fdatasync failed", zap.Error(err))
	}
}
