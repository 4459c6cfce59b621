package blockstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRows(n int, day uint64) []Row {
	base := day * 1_000_000_000
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{
			TsNs:  base + uint64(i)*DefaultTsScaleNs,
			Price: uint32(10000 + i%100),
			Size:  float32(i % 8),
			Side:  uint8(i % 2),
			Type:  'L',
		}
	}
	return rows
}

func TestBlockWriterReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	const day = uint32(20240101)
	const blockRows = 8192

	w := NewWriter(WriterOpt{BaseDir: dir, Product: "TEST", BlockRows: blockRows})
	require.NoError(t, w.BeginDay(day))

	rows := testRows(3*blockRows, 1704067200)
	for _, r := range rows {
		require.NoError(t, w.WriteRow(r))
	}
	require.NoError(t, w.Close())

	path := filepath.Join(dir, "TEST-BLOCKS", "20240101.blocks")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	hdr, err := ParseDayFileHeader(data)
	require.NoError(t, err)
	assert.Equal(t, day, hdr.Day)
	assert.Equal(t, uint64(3*blockRows), hdr.RowsTotal)
	assert.Equal(t, uint32(3), hdr.BlocksTotal)

	// The file is truncated to exactly header + block bytes on close, and
	// the header totals match what a walk from byte 24 finds.
	assert.Equal(t, int64(DayFileHeaderSize)+int64(hdr.BytesTotal), int64(len(data)))

	var walked uint64
	off := DayFileHeaderSize
	for b := uint32(0); b < hdr.BlocksTotal; b++ {
		_, consumed, err := DecodeBlock(data[off:], nil)
		require.NoError(t, err)
		off += consumed
		walked += uint64(consumed)
	}
	assert.Equal(t, hdr.BytesTotal, walked)

	r := NewReader(ReaderOpt{BaseDir: dir, Product: "TEST"})
	var views int
	var total uint64
	var lastOffset uint64
	err = r.VisitDayFiles(func(v RowsView) bool {
		views++
		total += uint64(len(v.Rows))
		assert.Equal(t, day, v.Day)
		assert.Greater(t, v.FileOffset, lastOffset, "offsets are monotonically increasing")
		lastOffset = v.FileOffset
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 3, views)
	assert.Equal(t, uint64(3*blockRows), total)
}

func TestBlockWriterPartialBatchFlushedOnClose(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(WriterOpt{BaseDir: dir, Product: "TEST", BlockRows: 8192})
	require.NoError(t, w.BeginDay(20240101))

	for _, r := range testRows(100, 1704067200) {
		require.NoError(t, w.WriteRow(r))
	}
	require.NoError(t, w.Close())

	r := NewReader(ReaderOpt{BaseDir: dir, Product: "TEST"})
	var total int
	require.NoError(t, r.VisitDayFiles(func(v RowsView) bool {
		total += len(v.Rows)
		return true
	}))
	assert.Equal(t, 100, total)
}

func TestBlockWriterRowValuesSurvive(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(WriterOpt{BaseDir: dir, Product: "TEST", BlockRows: 64})
	require.NoError(t, w.BeginDay(20240101))

	rows := testRows(64, 1704067200)
	rows[10].Type = 'T'
	rows[10].Side = 1
	for _, r := range rows {
		require.NoError(t, w.WriteRow(r))
	}
	require.NoError(t, w.Close())

	r := NewReader(ReaderOpt{BaseDir: dir, Product: "TEST"})
	require.NoError(t, r.VisitDayFiles(func(v RowsView) bool {
		require.Len(t, v.Rows, 64)
		for i, got := range v.Rows {
			assert.Equal(t, rows[i], got, "row %d", i)
		}
		return true
	}))
}

func TestBlockWriterMultipleDays(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(WriterOpt{BaseDir: dir, Product: "TEST", BlockRows: 32})

	require.NoError(t, w.BeginDay(20240101))
	for _, r := range testRows(32, 1704067200) {
		require.NoError(t, w.WriteRow(r))
	}
	require.NoError(t, w.BeginDay(20240102))
	for _, r := range testRows(32, 1704067200+86400) {
		require.NoError(t, w.WriteRow(r))
	}
	require.NoError(t, w.Close())

	r := NewReader(ReaderOpt{BaseDir: dir, Product: "TEST"})
	assert.Equal(t, []uint32{20240101, 20240102}, r.Days())
}

func TestBlockWriterWriteBlockDirect(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(WriterOpt{BaseDir: dir, Product: "TEST", BlockRows: 8192})

	err := w.WriteBlock(testRows(10, 1704067200))
	require.Error(t, err, "WriteBlock before BeginDay must fail")

	require.NoError(t, w.BeginDay(20240101))
	require.NoError(t, w.WriteBlock(testRows(10, 1704067200)))
	require.NoError(t, w.Close())

	r := NewReader(ReaderOpt{BaseDir: dir, Product: "TEST"})
	var total int
	require.NoError(t, r.VisitDayFiles(func(v RowsView) bool {
		total += len(v.Rows)
		return true
	}))
	assert.Equal(t, 10, total)
}

func TestBlockReaderDateFilter(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(WriterOpt{BaseDir: dir, Product: "TEST", BlockRows: 16})
	for d := uint32(0); d < 3; d++ {
		require.NoError(t, w.BeginDay(20240101+d))
		for _, r := range testRows(16, 1704067200+uint64(d)*86400) {
			require.NoError(t, w.WriteRow(r))
		}
	}
	require.NoError(t, w.Close())

	r := NewReader(ReaderOpt{
		BaseDir:  dir,
		Product:  "TEST",
		DateFrom: 20240102,
		DateTo:   20240102,
	})
	assert.Equal(t, []uint32{20240102}, r.Days())
}

func TestBlockWriterLZ4Blocks(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(WriterOpt{BaseDir: dir, Product: "TEST", BlockRows: 256, Flags: FlagLZ4})
	require.NoError(t, w.BeginDay(20240101))
	rows := testRows(256, 1704067200)
	for _, r := range rows {
		require.NoError(t, w.WriteRow(r))
	}
	require.NoError(t, w.Close())

	r := NewReader(ReaderOpt{BaseDir: dir, Product: "TEST"})
	require.NoError(t, r.VisitDayFiles(func(v RowsView) bool {
		assert.Equal(t, rows, v.Rows)
		return true
	}))
}
