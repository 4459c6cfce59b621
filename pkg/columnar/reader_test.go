package columnar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DJ824/hft-reader-writer/pkg/schema"
)

// day20240101 is 2024-01-01 00:00:00 UTC in epoch seconds.
const day20240101 = uint64(1704067200)

func writeDays(t *testing.T, dir string, days int, rowsPerDay int) {
	t.Helper()
	w := testWriter(t, dir, 8)
	w.Start()
	for d := 0; d < days; d++ {
		base := (day20240101 + uint64(d)*86400) * 1_000_000_000
		for i := 0; i < rowsPerDay; i++ {
			require.True(t, w.Enqueue(schema.L2Row{
				TsNs:  base + uint64(i),
				Price: uint32(10000 + d),
				Qty:   1,
				Side:  uint8(d % 2),
			}))
		}
	}
	require.NoError(t, w.Close())
}

func TestReaderDateRange(t *testing.T) {
	dir := t.TempDir()
	writeDays(t, dir, 3, 2)

	r := NewReader[schema.L2, schema.L2Row](ReaderOpt{
		BaseDir:  dir,
		Product:  "TEST",
		DateFrom: 20240102,
		DateTo:   20240102,
	})
	defer r.Close()

	require.Equal(t, []uint32{20240102}, r.Days())
	require.Len(t, r.Paths(), 1)
	assert.Equal(t, "20240102.bin", filepath.Base(r.Paths()[0]))

	visited := 0
	r.VisitSegments(func(day uint32, seg *Segment) bool {
		visited++
		assert.Equal(t, uint32(20240102), day)
		return true
	})
	assert.Equal(t, 1, visited)
}

func TestReaderAscendingOrder(t *testing.T) {
	dir := t.TempDir()
	writeDays(t, dir, 3, 1)

	r := NewReader[schema.L2, schema.L2Row](ReaderOpt{BaseDir: dir, Product: "TEST"})
	defer r.Close()
	assert.Equal(t, []uint32{20240101, 20240102, 20240103}, r.Days())
}

func TestReaderSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeDays(t, dir, 1, 2)

	// Too short to hold a header.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "TEST", "20230101.bin"), []byte("junk"), 0o644))
	// Right shape, wrong magic.
	bad := make([]byte, HeaderSize+64)
	copy(bad, "NOTCOL")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "TEST", "20230102.bin"), bad, 0o644))
	// Name that does not match the day-file pattern is ignored outright.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "TEST", "notaday.bin"), bad, 0o644))

	r := NewReader[schema.L2, schema.L2Row](ReaderOpt{BaseDir: dir, Product: "TEST"})
	defer r.Close()

	var days []uint32
	r.VisitSegments(func(day uint32, seg *Segment) bool {
		days = append(days, day)
		return true
	})
	assert.Equal(t, []uint32{20240101}, days, "invalid files skipped without raising")
}

func TestReaderStagedMatchesZeroCopy(t *testing.T) {
	dir := t.TempDir()
	writeDays(t, dir, 2, 5)

	r := NewReader[schema.L2, schema.L2Row](ReaderOpt{BaseDir: dir, Product: "TEST"})
	defer r.Close()

	type snapshot struct {
		day  uint32
		ts   []uint64
		px   []uint32
		qty  []float32
		side []uint8
	}
	snap := func(day uint32, seg *Segment) snapshot {
		s := snapshot{day: day}
		s.ts = append(s.ts, Col[uint64](seg, schema.L2ColTs)...)
		s.px = append(s.px, Col[uint32](seg, schema.L2ColPx)...)
		s.qty = append(s.qty, Col[float32](seg, schema.L2ColQty)...)
		s.side = append(s.side, Col[uint8](seg, schema.L2ColSide)...)
		return s
	}

	var zero []snapshot
	r.VisitSegments(func(day uint32, seg *Segment) bool {
		zero = append(zero, snap(day, seg))
		return true
	})

	var staged []snapshot
	err := r.VisitStagedSegments(func(day uint32, seg *Segment) bool {
		staged = append(staged, snap(day, seg))
		return true
	})
	require.NoError(t, err)

	assert.Equal(t, zero, staged)
}

func TestReaderVisitSingleSegment(t *testing.T) {
	dir := t.TempDir()
	writeDays(t, dir, 1, 3)

	r := NewReader[schema.L2, schema.L2Row](ReaderOpt{BaseDir: dir, Product: "TEST"})
	defer r.Close()

	rows := r.VisitSingleSegment(filepath.Join(dir, "TEST", "20240101.bin"), func(seg *Segment) {
		assert.Equal(t, uint64(3), seg.Rows)
	})
	assert.Equal(t, uint64(3), rows)

	rows = r.VisitSingleSegment(filepath.Join(dir, "TEST", "missing.bin"), func(seg *Segment) {
		t.Fatal("callback must not run for a missing file")
	})
	assert.Equal(t, uint64(0), rows)
}

func TestReaderEmptyDir(t *testing.T) {
	r := NewReader[schema.L2, schema.L2Row](ReaderOpt{BaseDir: t.TempDir(), Product: "NONE"})
	defer r.Close()
	assert.Empty(t, r.Days())
	r.VisitSegments(func(uint32, *Segment) bool {
		t.Fatal("no files to visit")
		return false
	})
}
