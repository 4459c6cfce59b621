package columnar

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"unsafe"

	"go.uber.org/zap"

	"github.com/DJ824/hft-reader-writer/pkg/logger"
	"github.com/DJ824/hft-reader-writer/pkg/metrics"
	"github.com/DJ824/hft-reader-writer/pkg/mmap"
	"github.com/DJ824/hft-reader-writer/pkg/schema"
)

// ReaderOpt configures a columnar day-file reader.
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

var dayFileName = regexp.MustCompile(`^[0-9]{8}\.bin$`)

// Segment exposes one mapped day file: the raw base pointer of every column
// region and the valid row count. Pointers are only good for the duration of
// the visit callback unless the segment was staged.
type Segment struct {
	colPtrs []unsafe.Pointer
	Rows    uint64
}

// Col returns column i of the segment as a typed slice of its rows. T must
// match the column's element width.
func Col[T any](s *Segment, i int) []T {
	return unsafe.Slice((*T)(s.colPtrs[i]), s.Rows)
}

type dayFile struct {
	day  uint32
	path string
}

// Reader enumerates and maps columnar day files for one product. It owns a
// read-only mapping at a time plus an optional staging slab reused across
// files.
type Reader[S schema.Schema[R], R any] struct {
	opt   ReaderOpt
	sch   S
	files []dayFile
	stage stage
	log   *zap.Logger
}

// NewReader builds the day-file list for the configured date range. Files
// that appear after construction are not picked up.
func NewReader[S schema.Schema[R], R any](opt ReaderOpt) *Reader[S, R] {
	opt.setDefaults()
	r := &Reader[S, R]{
		opt: opt,
		log: logger.ForProduct("columnar_reader", opt.Product),
	}
	r.buildDayFileList()
	return r
}

// Days returns the day keys of the files in ascending order.
func (r *Reader[S, R]) Days() []uint32 {
	days := make([]uint32, len(r.files))
	for i, f := range r.files {
		days[i] = f.day
	}
	return days
}

// Paths returns the file paths in ascending day order.
func (r *Reader[S, R]) Paths() []string {
	paths := make([]string, len(r.files))
	for i, f := range r.files {
		paths[i] = f.path
	}
	return paths
}

// Close frees the staging slab.
func (r *Reader[S, R]) Close() error {
	return r.stage.free()
}

// VisitSegments maps each day file read-only and invokes fn with a zero-copy
// segment. Returning false from fn stops the iteration. Files that fail
// validation are skipped.
func (r *Reader[S, R]) VisitSegments(fn func(day uint32, seg *Segment) bool) {
	for _, f := range r.files {
		data, file, hdr, ok := r.mapFile(f.path)
		if !ok {
			continue
		}
		seg := r.segment(data, &hdr)
		cont := fn(f.day, seg)
		r.unmap(data, file)
		if !cont {
			return
		}
	}
}

// VisitStagedSegments is VisitSegments with each column copied into a
// huge-page slab before the callback, so the caller's view survives the
// unmap and is backed by 2 MiB TLB entries where the host provides them.
// Empty files are skipped.
func (r *Reader[S, R]) VisitStagedSegments(fn func(day uint32, seg *Segment) bool) error {
	for _, f := range r.files {
		data, file, hdr, ok := r.mapFile(f.path)
		if !ok {
			continue
		}
		if hdr.Rows == 0 {
			r.unmap(data, file)
			continue
		}
		seg, err := r.stageSegment(data, &hdr)
		if err != nil {
			r.unmap(data, file)
			return err
		}
		cont := fn(f.day, seg)
		r.unmap(data, file)
		if !cont {
			return nil
		}
	}
	return nil
}

// VisitSingleSegment maps one file by path and invokes fn with its zero-copy
// segment. It returns the row count visited, 0 when the file fails
// validation.
func (r *Reader[S, R]) VisitSingleSegment(path string, fn func(seg *Segment)) uint64 {
	data, file, hdr, ok := r.mapFile(path)
	if !ok {
		return 0
	}
	seg := r.segment(data, &hdr)
	fn(seg)
	r.unmap(data, file)
	return hdr.Rows
}

func (r *Reader[S, R]) segment(data []byte, hdr *FileHeader) *Segment {
	cols := r.sch.Cols()
	seg := &Segment{
		colPtrs: make([]unsafe.Pointer, cols),
		Rows:    hdr.Rows,
	}
	for i := uint32(0); i < cols; i++ {
		seg.colPtrs[i] = unsafe.Pointer(&data[hdr.ColOff[i]])
	}
	return seg
}

func (r *Reader[S, R]) stageSegment(data []byte, hdr *FileHeader) (*Segment, error) {
	cols := r.sch.Cols()
	widths := make([]uint64, cols)
	for i := uint32(0); i < cols; i++ {
		widths[i] = r.sch.ColSize(i)
	}
	if err := r.stage.ensure(widths, hdr.Rows); err != nil {
		return nil, err
	}
	seg := &Segment{
		colPtrs: make([]unsafe.Pointer, cols),
		Rows:    hdr.Rows,
	}
	slab := r.stage.slab.Bytes()
	for i := uint32(0); i < cols; i++ {
		n := hdr.Rows * widths[i]
		dst := slab[r.stage.colOff[i] : r.stage.colOff[i]+n]
		copy(dst, data[hdr.ColOff[i]:hdr.ColOff[i]+n])
		seg.colPtrs[i] = unsafe.Pointer(&dst[0])
	}
	return seg, nil
}

// mapFile maps path read-only and validates its header against the schema.
// Invalid files are logged and skipped, never raised.
func (r *Reader[S, R]) mapFile(path string) ([]byte, *os.File, FileHeader, bool) {
	var none FileHeader

	f, err := os.Open(path)
	if err != nil {
		r.log.Warn("open failed, skipping", zap.String("path", path), zap.Error(err))
		return nil, nil, none, false
	}
	st, err := f.Stat()
	if err != nil || st.Size() < HeaderSize {
		f.Close()
		metrics.FilesSkipped.WithLabelValues(r.opt.Product, "short").Inc()
		r.log.Warn("file shorter than header, skipping", zap.String("path", path))
		return nil, nil, none, false
	}

	data, err := mmap.Map(f.Fd(), int(st.Size()), false)
	if err != nil {
		f.Close()
		r.log.Warn("mmap failed, skipping", zap.String("path", path), zap.Error(err))
		return nil, nil, none, false
	}

	mmap.FadviseSequential(f.Fd(), st.Size())
	_ = mmap.AdviseSequential(data)
	_ = mmap.AdviseWillNeed(data)

	hdr, err := ParseHeader(data, r.sch.Cols())
	if err != nil || hdr.Magic != r.sch.Magic() {
		r.unmap(data, f)
		metrics.FilesSkipped.WithLabelValues(r.opt.Product, "magic").Inc()
		r.log.Warn("header validation failed, skipping", zap.String("path", path))
		return nil, nil, none, false
	}
	return data, f, hdr, true
}

func (r *Reader[S, R]) unmap(data []byte, f *os.File) {
	if data != nil {
		_ = mmap.Unmap(data)
	}
	if f != nil {
		f.Close()
	}
}

func (r *Reader[S, R]) buildDayFileList() {
	dir := filepath.Join(r.opt.BaseDir, r.opt.Product)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if !dayFileName.MatchString(name) {
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
