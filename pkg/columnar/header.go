package columnar

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/DJ824/hft-reader-writer/pkg/errors"
)

// HeaderSize is the fixed on-disk header length for every schema. The
// trailing pad absorbs the per-schema column tables so the body always
// starts at byte 256.
const HeaderSize = 256

// maxCols bounds the column count so the offset and size tables fit in the
// fixed header: 56 + 16*C <= 256.
const maxCols = 12

// FileHeader is the decoded form of a columnar day-file header.
//
// On-disk layout (little-endian, matching host order on supported targets):
//
//	[0:6)    magic
//	[6:8)    header_size
//	[8:10)   version
//	[10:16)  pad
//	[16:32)  product, NUL padded
//	[32:40)  day start, epoch seconds
//	[40:48)  rows
//	[48:56)  capacity
//	[56:56+8C)      col_off
//	[56+8C:56+16C)  col_sz (element widths)
//	...256   pad
type FileHeader struct {
	Magic    [6]byte
	Version  uint16
	Product  [16]byte
	DayStart uint64
	Rows     uint64
	Capacity uint64
	ColOff   []uint64
	ColSz    []uint64
}

// ProductName returns the product field with NUL padding stripped.
func (h *FileHeader) ProductName() string {
	if i := bytes.IndexByte(h.Product[:], 0); i >= 0 {
		return string(h.Product[:i])
	}
	return string(h.Product[:])
}

// Marshal writes the header into dst, which must hold HeaderSize bytes.
func (h *FileHeader) Marshal(dst []byte) {
	for i := range dst[:HeaderSize] {
		dst[i] = 0
	}
	copy(dst[0:6], h.Magic[:])
	binary.LittleEndian.PutUint16(dst[6:8], HeaderSize)
	binary.LittleEndian.PutUint16(dst[8:10], h.Version)
	copy(dst[16:32], h.Product[:])
	binary.LittleEndian.PutUint64(dst[32:40], h.DayStart)
	binary.LittleEndian.PutUint64(dst[40:48], h.Rows)
	binary.LittleEndian.PutUint64(dst[48:56], h.Capacity)
	off := 56
	for _, v := range h.ColOff {
		binary.LittleEndian.PutUint64(dst[off:off+8], v)
		off += 8
	}
	for _, v := range h.ColSz {
		binary.LittleEndian.PutUint64(dst[off:off+8], v)
		off += 8
	}
}

// ParseHeader decodes a header with the given column count from src.
func ParseHeader(src []byte, cols uint32) (FileHeader, error) {
	var h FileHeader
	if len(src) < HeaderSize {
		return h, errors.Newf(errors.ErrorTypeFormat, "header short: %d bytes", len(src))
	}
	if cols == 0 || cols > maxCols {
		return h, errors.Newf(errors.ErrorTypeFormat, "unsupported column count %d", cols)
	}
	copy(h.Magic[:], src[0:6])
	if hs := binary.LittleEndian.Uint16(src[6:8]); hs != HeaderSize {
		return h, errors.Newf(errors.ErrorTypeFormat, "header size %d, want %d", hs, HeaderSize)
	}
	h.Version = binary.LittleEndian.Uint16(src[8:10])
	copy(h.Product[:], src[16:32])
	h.DayStart = binary.LittleEndian.Uint64(src[32:40])
	h.Rows = binary.LittleEndian.Uint64(src[40:48])
	h.Capacity = binary.LittleEndian.Uint64(src[48:56])
	h.ColOff = make([]uint64, cols)
	h.ColSz = make([]uint64, cols)
	off := 56
	for i := range h.ColOff {
		h.ColOff[i] = binary.LittleEndian.Uint64(src[off : off+8])
		off += 8
	}
	for i := range h.ColSz {
		h.ColSz[i] = binary.LittleEndian.Uint64(src[off : off+8])
		off += 8
	}
	return h, nil
}

// dateString formats a UTC day start (epoch seconds) as YYYYMMDD.
func dateString(daySec uint64) string {
	return time.Unix(int64(daySec), 0).UTC().Format("20060102")
}
