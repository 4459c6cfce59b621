package columnar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DJ824/hft-reader-writer/pkg/errors"
)

func testHeader() FileHeader {
	h := FileHeader{
		Magic:    [6]byte{'L', '2', 'C', 'O', 'L', '\n'},
		Version:  1,
		DayStart: 86400,
		Rows:     123,
		Capacity: 1 << 10,
		ColOff:   []uint64{256, 256 + 8<<10, 256 + 12<<10, 256 + 16<<10},
		ColSz:    []uint64{8, 4, 4, 1},
	}
	copy(h.Product[:], "ESZ4")
	return h
}

func TestHeaderRoundTrip(t *testing.T) {
	h := testHeader()

	buf := make([]byte, HeaderSize)
	h.Marshal(buf)

	got, err := ParseHeader(buf, 4)
	require.NoError(t, err)

	assert.Equal(t, h.Magic, got.Magic)
	assert.Equal(t, h.Version, got.Version)
	assert.Equal(t, "ESZ4", got.ProductName())
	assert.Equal(t, h.DayStart, got.DayStart)
	assert.Equal(t, h.Rows, got.Rows)
	assert.Equal(t, h.Capacity, got.Capacity)
	assert.Equal(t, h.ColOff, got.ColOff)
	assert.Equal(t, h.ColSz, got.ColSz)
}

func TestHeaderShortInput(t *testing.T) {
	_, err := ParseHeader(make([]byte, 100), 4)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFormat))
}

func TestHeaderColumnBound(t *testing.T) {
	buf := make([]byte, HeaderSize)
	h := testHeader()
	h.Marshal(buf)

	_, err := ParseHeader(buf, maxCols+1)
	require.Error(t, err)
}

func TestHeaderSizeFieldValidated(t *testing.T) {
	buf := make([]byte, HeaderSize)
	h := testHeader()
	h.Marshal(buf)
	buf[6] = 1 // corrupt header_size
	buf[7] = 0

	_, err := ParseHeader(buf, 4)
	require.Error(t, err)
}

func TestDateString(t *testing.T) {
	assert.Equal(t, "19700101", dateString(0))
	assert.Equal(t, "19700102", dateString(86400))
	// 2024-01-02 00:00:00 UTC
	assert.Equal(t, "20240102", dateString(1704153600))
}
