package blockstore

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/DJ824/hft-reader-writer/pkg/errors"
	"github.com/DJ824/hft-reader-writer/pkg/logger"
	"github.com/DJ824/hft-reader-writer/pkg/mmap"
)

// ReaderOpt configures a block day-file reader.
type ReaderOpt struct {
	BaseDir string
	Product string
	// DateFrom and DateTo bound the visited files, inclusive, as YYYYMMDD.
	// Zero values leave the corresponding bound open.
	DateFrom uint32
	DateTo   uint32
}

func (o *ReaderOpt) setDefaults() {
	if o.DateTo == 0 {
		o.DateTo = 99999999
	}
}

var blockFileName = regexp.MustCompile(`^[0-9]{8}\.blocks$`)

// RowsView hands one decoded block to the visit callback. The row slice is
// reused between blocks; callers must copy rows they keep.
type RowsView struct {
	Rows       []Row
	FileOffset uint64
	Day        uint32
}

type dayFile struct {
	day  uint32
	path string
}

// Reader enumerates block day files for one product and streams them back
// block by block.
type Reader struct {
	opt   ReaderOpt
	files []dayFile
	rows  []Row
	log   *zap.Logger
}

// NewReader builds the day-file list for the configured date range.
func NewReader(opt ReaderOpt) *Reader {
	opt.setDefaults()
	r := &Reader{
		opt: opt,
		log: logger.ForProduct("block_reader", opt.Product),
	}
	r.buildDayFileList()
	return r
}

// Days returns the day keys of the files in ascending order.
func (r *Reader) Days() []uint32 {
	days := make([]uint32, len(r.files))
	for i, f := range r.files {
		days[i] = f.day
	}
	return days
}

// VisitDayFiles maps each day file and decodes its blocks in order, invoking
// fn once per block. Returning false from fn stops the iteration. Iteration
// of a file stops when its declared block count is exhausted or the declared
// body is used up; a malformed block, or one whose payload runs past the
// declared body, raises.
func (r *Reader) VisitDayFiles(fn func(v RowsView) bool) error {
	for _, f := range r.files {
		cont, err := r.visitFile(f, fn)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (r *Reader) visitFile(f dayFile, fn func(v RowsView) bool) (bool, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeFile, "open "+f.path)
	}
	defer file.Close()

	st, err := file.Stat()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeFile, "stat "+f.path)
	}
	if st.Size() < DayFileHeaderSize {
		return false, errors.Newf(errors.ErrorTypeFormat,
			"%s: %d bytes, shorter than day header", f.path, st.Size())
	}

	data, err := mmap.Map(file.Fd(), int(st.Size()), false)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeFile, "mmap "+f.path)
	}
	defer func() { _ = mmap.Unmap(data) }()

	mmap.FadviseSequential(file.Fd(), st.Size())
	_ = mmap.AdviseSequential(data)

	hdr, err := ParseDayFileHeader(data)
	if err != nil {
		return false, err
	}

	limit := uint64(DayFileHeaderSize) + hdr.BytesTotal
	if limit > uint64(len(data)) {
		limit = uint64(len(data))
	}

	off := uint64(DayFileHeaderSize)
	var count uint32
	for off < limit && count < hdr.BlocksTotal {
		var consumed int
		r.rows, consumed, err = DecodeBlock(data[off:limit], r.rows[:0])
		if err != nil {
			return false, errors.Wrap(err, errors.ErrorTypeFormat, f.path)
		}
		if consumed == 0 || off+uint64(consumed) > limit {
			r.log.Warn("truncated block, stopping file walk",
				zap.String("path", f.path), zap.Uint64("offset", off))
			break
		}

		view := RowsView{Rows: r.rows, FileOffset: off, Day: hdr.Day}
		if !fn(view) {
			return false, nil
		}

		off += uint64(consumed)
		count++
	}
	return true, nil
}

func (r *Reader) buildDayFileList() {
	dir := filepath.Join(r.opt.BaseDir, r.opt.Product+"-BLOCKS")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if !blockFileName.MatchString(name) {
			continue
		}
		d64, err := strconv.ParseUint(name[:8], 10, 32)
		if err != nil {
			continue
		}
		d := uint32(d64)
		if d < r.opt.DateFrom || d > r.opt.DateTo {
			continue
		}
		r.files = append(r.files, dayFile{day: d, path: filepath.Join(dir, name)})
	}
	sort.Slice(r.files, func(i, j int) bool { return r.files[i].day < r.files[j].day })
}
