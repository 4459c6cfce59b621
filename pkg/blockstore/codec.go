package blockstore

import (
	"encoding/binary"
	"math"

	"github.com/pierrec/lz4/v4"

	"github.com/DJ824/hft-reader-writer/pkg/errors"
)

// blockMagic identifies one encoded block.
var blockMagic = [8]byte{'M', 'D', 'B', 'L', 'O', 'C', 'K', '\n'}

const (
	// BlockHeaderSize is the packed size of a block header.
	BlockHeaderSize = 76
	// blockVersion is stamped into every encoded block.
	blockVersion = 1
	// DefaultTsScaleNs quantizes timestamp deltas to milliseconds.
	DefaultTsScaleNs = 1_000_000
)

// Block flags.
const (
	// FlagLZ4 marks the five column payloads as one lz4-compressed region
	// following the header, prefixed with the compressed length. Offsets
	// and lengths in the header describe the uncompressed layout.
	FlagLZ4 uint16 = 1 << 0
)

// BlockHeader is the self-describing prefix of an encoded block. Column
// offsets are relative to the block start; the header itself occupies the
// first BlockHeaderSize bytes.
type BlockHeader struct {
	Magic     [8]byte
	Version   uint16
	Flags     uint16
	NRows     uint32
	BaseTs    uint64
	BasePx    uint32
	TsScaleNs uint32
	TsBw      uint8
	PxBw      uint8

	OffTs, LenTs     uint32
	OffPx, LenPx     uint32
	OffSz, LenSz     uint32
	OffSide, LenSide uint32
	OffType, LenType uint32
}

func (h *BlockHeader) marshal(dst []byte) {
	copy(dst[0:8], h.Magic[:])
	le := binary.LittleEndian
	le.PutUint16(dst[8:10], h.Version)
	le.PutUint16(dst[10:12], h.Flags)
	le.PutUint32(dst[12:16], h.NRows)
	le.PutUint64(dst[16:24], h.BaseTs)
	le.PutUint32(dst[24:28], h.BasePx)
	le.PutUint32(dst[28:32], h.TsScaleNs)
	dst[32] = h.TsBw
	dst[33] = h.PxBw
	le.PutUint16(dst[34:36], 0) // reserved
	off := 36
	for _, v := range [10]uint32{
		h.OffTs, h.LenTs, h.OffPx, h.LenPx, h.OffSz, h.LenSz,
		h.OffSide, h.LenSide, h.OffType, h.LenType,
	} {
		le.PutUint32(dst[off:off+4], v)
		off += 4
	}
}

// ParseBlockHeader decodes a block header from src.
func ParseBlockHeader(src []byte) (BlockHeader, error) {
	var h BlockHeader
	if len(src) < BlockHeaderSize {
		return h, errors.Newf(errors.ErrorTypeFormat, "block short: %d bytes", len(src))
	}
	copy(h.Magic[:], src[0:8])
	if h.Magic != blockMagic {
		return h, errors.New(errors.ErrorTypeFormat, "bad block magic")
	}
	le := binary.LittleEndian
	h.Version = le.Uint16(src[8:10])
	h.Flags = le.Uint16(src[10:12])
	h.NRows = le.Uint32(src[12:16])
	h.BaseTs = le.Uint64(src[16:24])
	h.BasePx = le.Uint32(src[24:28])
	h.TsScaleNs = le.Uint32(src[28:32])
	h.TsBw = src[32]
	h.PxBw = src[33]
	fields := [...]*uint32{
		&h.OffTs, &h.LenTs, &h.OffPx, &h.LenPx, &h.OffSz, &h.LenSz,
		&h.OffSide, &h.LenSide, &h.OffType, &h.LenType,
	}
	off := 36
	for _, p := range fields {
		*p = le.Uint32(src[off : off+4])
		off += 4
	}
	return h, nil
}

// end returns the byte just past the furthest column payload, floored at the
// header size.
func (h *BlockHeader) end() uint32 {
	end := uint32(BlockHeaderSize)
	for _, e := range [5]uint32{
		h.OffTs + h.LenTs,
		h.OffPx + h.LenPx,
		h.OffSz + h.LenSz,
		h.OffSide + h.LenSide,
		h.OffType + h.LenType,
	} {
		if e > end {
			end = e
		}
	}
	return end
}

// EncodeBlock appends an encoded block of rows to dst and returns the
// extended slice. Rows must be non-empty for anything to be written.
// Timestamp deltas are quantized to DefaultTsScaleNs relative to the first
// row.
func EncodeBlock(dst []byte, rows []Row, flags uint16) []byte {
	n := len(rows)
	if n == 0 {
		return dst
	}

	hdr := BlockHeader{
		Magic:     blockMagic,
		Version:   blockVersion,
		NRows:     uint32(n),
		BaseTs:    rows[0].TsNs,
		BasePx:    rows[0].Price,
		TsScaleNs: DefaultTsScaleNs,
	}

	tsDelta := make([]uint64, n)
	pxZz := make([]uint32, n)
	side := make([]uint8, n)
	typ := make([]uint8, n)

	var maxDt uint64
	var maxZz uint32
	for i, r := range rows {
		dt := (r.TsNs - hdr.BaseTs) / uint64(hdr.TsScaleNs)
		tsDelta[i] = dt
		if dt > maxDt {
			maxDt = dt
		}

		dz := ZigzagEnc32(int32(int64(r.Price) - int64(hdr.BasePx)))
		pxZz[i] = dz
		if dz > maxZz {
			maxZz = dz
		}

		side[i] = r.Side
		if r.Type == 'T' {
			typ[i] = 1
		}
	}

	hdr.TsBw = CeilLog2(maxDt + 1)
	hdr.PxBw = CeilLog2(uint64(maxZz) + 1)

	// Column payloads, laid out back to back after the header.
	payload := make([]byte, 0, packedBytes(n, hdr.TsBw)+packedBytes(n, hdr.PxBw)+n*4+(n+7)/8*2)

	hdr.OffTs = BlockHeaderSize
	payload = BitpackU64(payload, tsDelta, hdr.TsBw)
	hdr.LenTs = uint32(len(payload))

	hdr.OffPx = hdr.OffTs + hdr.LenTs
	before := len(payload)
	payload = BitpackU32(payload, pxZz, hdr.PxBw)
	hdr.LenPx = uint32(len(payload) - before)

	hdr.OffSz = hdr.OffPx + hdr.LenPx
	hdr.LenSz = uint32(n) * 4
	before = len(payload)
	payload = append(payload, make([]byte, hdr.LenSz)...)
	for i, r := range rows {
		binary.LittleEndian.PutUint32(payload[before+i*4:], math.Float32bits(r.Size))
	}

	hdr.OffSide = hdr.OffSz + hdr.LenSz
	before = len(payload)
	payload = BitpackBool(payload, side)
	hdr.LenSide = uint32(len(payload) - before)

	hdr.OffType = hdr.OffSide + hdr.LenSide
	before = len(payload)
	payload = BitpackBool(payload, typ)
	hdr.LenType = uint32(len(payload) - before)

	start := len(dst)
	dst = append(dst, make([]byte, BlockHeaderSize)...)

	if flags&FlagLZ4 != 0 {
		comp := make([]byte, lz4.CompressBlockBound(len(payload)))
		var c lz4.Compressor
		m, err := c.CompressBlock(payload, comp)
		if err != nil || m == 0 || m >= len(payload) {
			// Incompressible; store raw.
			flags &^= FlagLZ4
			dst = append(dst, payload...)
		} else {
			var sz [4]byte
			binary.LittleEndian.PutUint32(sz[:], uint32(m))
			dst = append(dst, sz[:]...)
			dst = append(dst, comp[:m]...)
		}
	} else {
		dst = append(dst, payload...)
	}

	hdr.Flags = flags
	hdr.marshal(dst[start : start+BlockHeaderSize])
	return dst
}

// DecodeBlock decodes one block from the front of src, appending rows to
// rowsOut (which may be nil or reused with rowsOut[:0]). It returns the
// decoded rows, the bytes consumed from src and any error. Consumed is the
// furthest column end for raw blocks, or header+length prefix+compressed
// bytes for lz4 blocks.
func DecodeBlock(src []byte, rowsOut []Row) ([]Row, int, error) {
	hdr, err := ParseBlockHeader(src)
	if err != nil {
		return rowsOut, 0, err
	}
	if hdr.NRows == 0 {
		return rowsOut, BlockHeaderSize, nil
	}

	n := int(hdr.NRows)
	payloadLen := int(hdr.end()) - BlockHeaderSize

	var payload []byte
	consumed := 0
	if hdr.Flags&FlagLZ4 != 0 {
		if len(src) < BlockHeaderSize+4 {
			return rowsOut, 0, errors.New(errors.ErrorTypeFormat, "lz4 block truncated")
		}
		compLen := int(binary.LittleEndian.Uint32(src[BlockHeaderSize:]))
		end := BlockHeaderSize + 4 + compLen
		if compLen <= 0 || end > len(src) {
			return rowsOut, 0, errors.Newf(errors.ErrorTypeFormat,
				"lz4 payload length %d exceeds block", compLen)
		}
		payload = make([]byte, payloadLen)
		m, err := lz4.UncompressBlock(src[BlockHeaderSize+4:end], payload)
		if err != nil {
			return rowsOut, 0, errors.Wrap(err, errors.ErrorTypeFormat, "lz4 decompress")
		}
		if m != payloadLen {
			return rowsOut, 0, errors.Newf(errors.ErrorTypeFormat,
				"lz4 payload decoded %d bytes, want %d", m, payloadLen)
		}
		consumed = end
	} else {
		if int(hdr.end()) > len(src) {
			return rowsOut, 0, errors.Newf(errors.ErrorTypeFormat,
				"block declares %d bytes past its end", hdr.end())
		}
		payload = src[BlockHeaderSize:hdr.end()]
		consumed = int(hdr.end())
	}

	// col slices a payload region by header-relative offset.
	col := func(off, ln uint32) ([]byte, error) {
		if off < BlockHeaderSize || int(off)+int(ln) > BlockHeaderSize+len(payload) {
			return nil, errors.Newf(errors.ErrorTypeFormat,
				"column at %d+%d outside block payload", off, ln)
		}
		return payload[off-BlockHeaderSize : off-BlockHeaderSize+ln], nil
	}

	tsSrc, err := col(hdr.OffTs, hdr.LenTs)
	if err != nil {
		return rowsOut, 0, err
	}
	pxSrc, err := col(hdr.OffPx, hdr.LenPx)
	if err != nil {
		return rowsOut, 0, err
	}
	szSrc, err := col(hdr.OffSz, hdr.LenSz)
	if err != nil {
		return rowsOut, 0, err
	}
	sideSrc, err := col(hdr.OffSide, hdr.LenSide)
	if err != nil {
		return rowsOut, 0, err
	}
	typeSrc, err := col(hdr.OffType, hdr.LenType)
	if err != nil {
		return rowsOut, 0, err
	}

	tsDelta := make([]uint64, n)
	BitunpackU64(tsSrc, n, hdr.TsBw, tsDelta)
	pxZz := make([]uint32, n)
	BitunpackU32(pxSrc, n, hdr.PxBw, pxZz)
	side := make([]uint8, n)
	BitunpackBool(sideSrc, n, side)
	typ := make([]uint8, n)
	BitunpackBool(typeSrc, n, typ)

	for i := 0; i < n; i++ {
		px := int64(hdr.BasePx) + int64(ZigzagDec32(pxZz[i]))
		if px < 0 || px > math.MaxUint32 {
			return rowsOut, 0, errors.Newf(errors.ErrorTypeIntegrity,
				"decoded price %d overflows u32", px)
		}
		r := Row{
			TsNs:  hdr.BaseTs + tsDelta[i]*uint64(hdr.TsScaleNs),
			Price: uint32(px),
			Size:  math.Float32frombits(binary.LittleEndian.Uint32(szSrc[i*4:])),
			Side:  side[i],
			Type:  'L',
		}
		if typ[i] == 1 {
			r.Type = 'T'
		}
		rowsOut = append(rowsOut, r)
	}
	return rowsOut, consumed, nil
}
