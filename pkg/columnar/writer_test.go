package columnar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DJ824/hft-reader-writer/pkg/schema"
)

const hourNs = 3600 * 1_000_000_000

func testWriter(t *testing.T, dir string, rowsPerHour uint64) *Writer[schema.L2, schema.L2Row] {
	t.Helper()
	return NewWriter[schema.L2, schema.L2Row](WriterOpt{
		BaseDir:       dir,
		Product:       "TEST",
		RowsPerHour:   rowsPerHour,
		QueueCapacity: 1 << 10,
	})
}

func readHeader(t *testing.T, path string, cols uint32) FileHeader {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	buf := make([]byte, HeaderSize)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	hdr, err := ParseHeader(buf, cols)
	require.NoError(t, err)
	return hdr
}

func TestWriterThreeRows(t *testing.T) {
	dir := t.TempDir()
	w := testWriter(t, dir, 4)
	w.Start()

	rows := []schema.L2Row{
		{TsNs: hourNs, Price: 10000, Qty: 0.5, Side: 1},
		{TsNs: hourNs + 500, Price: 10001, Qty: 0.25, Side: 0},
		{TsNs: hourNs + 1000, Price: 9999, Qty: 1.0, Side: 1},
	}
	for _, r := range rows {
		require.True(t, w.Enqueue(r))
	}
	require.NoError(t, w.Close())

	path := filepath.Join(dir, "TEST", "19700101.bin")
	hdr := readHeader(t, path, 4)
	assert.Equal(t, uint64(3), hdr.Rows)
	assert.Equal(t, "TEST", hdr.ProductName())
	assert.Equal(t, uint64(0), hdr.DayStart)
	assert.Equal(t, uint64(0), w.Dropped())

	r := NewReader[schema.L2, schema.L2Row](ReaderOpt{BaseDir: dir, Product: "TEST"})
	defer r.Close()

	visited := 0
	r.VisitSegments(func(day uint32, seg *Segment) bool {
		visited++
		require.Equal(t, uint64(3), seg.Rows)
		ts := Col[uint64](seg, schema.L2ColTs)
		side := Col[uint8](seg, schema.L2ColSide)
		qty := Col[float32](seg, schema.L2ColQty)
		assert.Equal(t, []uint64{hourNs, hourNs + 500, hourNs + 1000}, ts)
		assert.Equal(t, []uint8{1, 0, 1}, side)
		assert.Equal(t, []float32{0.5, 0.25, 1.0}, qty)
		return true
	})
	assert.Equal(t, 1, visited)
}

// TestWriterGrow fills a deliberately tiny file so the writer must double
// capacity, and checks every previously written row survives the move.
func TestWriterGrow(t *testing.T) {
	dir := t.TempDir()
	w := testWriter(t, dir, 2) // initial capacity 4

	w.Start()
	for i := 0; i < 5; i++ {
		require.True(t, w.Enqueue(schema.L2Row{
			TsNs:  uint64(hourNs + i),
			Price: uint32(10000 + i),
			Qty:   float32(i) + 0.5,
			Side:  uint8(i % 2),
		}))
	}
	require.NoError(t, w.Close())

	hdr := readHeader(t, filepath.Join(dir, "TEST", "19700101.bin"), 4)
	assert.Equal(t, uint64(5), hdr.Rows)
	assert.GreaterOrEqual(t, hdr.Capacity, uint64(8), "capacity must have doubled")
	assert.Equal(t, uint64(0), w.Dropped())

	r := NewReader[schema.L2, schema.L2Row](ReaderOpt{BaseDir: dir, Product: "TEST"})
	defer r.Close()
	r.VisitSegments(func(day uint32, seg *Segment) bool {
		require.Equal(t, uint64(5), seg.Rows)
		ts := Col[uint64](seg, schema.L2ColTs)
		px := Col[uint32](seg, schema.L2ColPx)
		qty := Col[float32](seg, schema.L2ColQty)
		side := Col[uint8](seg, schema.L2ColSide)
		for i := 0; i < 5; i++ {
			assert.Equal(t, uint64(hourNs+i), ts[i])
			assert.Equal(t, uint32(10000+i), px[i])
			assert.Equal(t, float32(i)+0.5, qty[i])
			assert.Equal(t, uint8(i%2), side[i])
		}
		return true
	})
}

func TestWriterDayRotation(t *testing.T) {
	dir := t.TempDir()
	w := testWriter(t, dir, 4)
	w.Start()

	day0 := uint64(hourNs)
	day1 := uint64(86400*1_000_000_000 + hourNs)
	for _, ts := range []uint64{day0, day0 + 1, day1, day1 + 1} {
		require.True(t, w.Enqueue(schema.L2Row{TsNs: ts, Price: 1, Qty: 1, Side: 0}))
	}
	require.NoError(t, w.Close())

	h0 := readHeader(t, filepath.Join(dir, "TEST", "19700101.bin"), 4)
	h1 := readHeader(t, filepath.Join(dir, "TEST", "19700102.bin"), 4)
	assert.Equal(t, uint64(2), h0.Rows, "day-0 row count persisted at rotation")
	assert.Equal(t, uint64(2), h1.Rows)
	assert.Equal(t, uint64(0), h0.DayStart)
	assert.Equal(t, uint64(86400), h1.DayStart)
}

// Out-of-order stragglers land in the currently open day; rotation never
// moves backward.
func TestWriterOutOfOrderDay(t *testing.T) {
	dir := t.TempDir()
	w := testWriter(t, dir, 4)
	w.Start()

	day1 := uint64(86400*1_000_000_000 + hourNs)
	straggler := uint64(hourNs) // previous day
	require.True(t, w.Enqueue(schema.L2Row{TsNs: day1, Price: 2, Qty: 1, Side: 1}))
	require.True(t, w.Enqueue(schema.L2Row{TsNs: straggler, Price: 3, Qty: 1, Side: 0}))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(filepath.Join(dir, "TEST"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no backward rotation")
	assert.Equal(t, "19700102.bin", entries[0].Name())

	hdr := readHeader(t, filepath.Join(dir, "TEST", "19700102.bin"), 4)
	assert.Equal(t, uint64(2), hdr.Rows)
}

// P1: written rows equal enqueued minus dropped.
func TestWriterAccounting(t *testing.T) {
	dir := t.TempDir()
	w := testWriter(t, dir, 8)
	w.Start()

	const n = 500
	enqueued := 0
	for i := 0; i < n; i++ {
		if w.Enqueue(schema.L2Row{TsNs: uint64(hourNs + i), Price: 1, Qty: 1, Side: 0}) {
			enqueued++
		}
	}
	require.NoError(t, w.Close())

	hdr := readHeader(t, filepath.Join(dir, "TEST", "19700101.bin"), 4)
	assert.Equal(t, uint64(enqueued)-w.Dropped(), hdr.Rows)
}

func TestWriterFsyncEveryRows(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter[schema.L2, schema.L2Row](WriterOpt{
		BaseDir:        dir,
		Product:        "TEST",
		RowsPerHour:    8,
		FsyncEveryRows: 2,
		QueueCapacity:  64,
	})
	w.Start()
	for i := 0; i < 5; i++ {
		require.True(t, w.Enqueue(schema.L2Row{TsNs: uint64(hourNs + i), Price: 1, Qty: 1, Side: 0}))
	}
	require.NoError(t, w.Close())

	hdr := readHeader(t, filepath.Join(dir, "TEST", "19700101.bin"), 4)
	assert.Equal(t, uint64(5), hdr.Rows)
}
