// Package compression provides whole-file compressors for the archival path.
// Block-level delta encoding lives in blockstore; this package wraps the
// general-purpose algorithms used when finished day files are shipped to
// cold storage: lz4 for speed, zstd for ratio, snappy for compatibility.
package compression

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/DJ824/hft-reader-writer/pkg/errors"
	"github.com/DJ824/hft-reader-writer/pkg/pool"
)

// Algorithm selects a compression algorithm.
type Algorithm string

const (
	// None passes data through unchanged.
	None Algorithm = "none"
	// LZ4 favors speed over ratio.
	LZ4 Algorithm = "lz4"
	// Zstd favors ratio.
	Zstd Algorithm = "zstd"
	// Snappy is fast with wide ecosystem support.
	Snappy Algorithm = "snappy"
)

// Compressor compresses and decompresses byte slices and streams. All
// implementations are safe for concurrent use.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	CompressStream(dst io.Writer, src io.Reader) error
	DecompressStream(dst io.Writer, src io.Reader) error
	Algorithm() Algorithm
}

// NewCompressor creates a compressor for the given algorithm.
func NewCompressor(algo Algorithm) (Compressor, error) {
	switch algo {
	case None, "":
		return noneCompressor{}, nil
	case LZ4:
		return lz4Compressor{}, nil
	case Zstd:
		return newZstdCompressor()
	case Snappy:
		return snappyCompressor{}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown compression algorithm %q", algo)
	}
}

// copyStream pipes src to dst through a pooled scratch buffer.
func copyStream(dst io.Writer, src io.Reader) error {
	buf := pool.GetByteSlice()
	defer pool.PutByteSlice(buf)
	_, err := io.CopyBuffer(dst, src, *buf)
	return err
}

type noneCompressor struct{}

func (noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (noneCompressor) Algorithm() Algorithm                   { return None }

func (noneCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	return copyStream(dst, src)
}

func (noneCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	return copyStream(dst, src)
}

type lz4Compressor struct{}

func (lz4Compressor) Algorithm() Algorithm { return LZ4 }

func (lz4Compressor) Compress(data []byte) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	zw := lz4.NewWriter(buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (lz4Compressor) Decompress(data []byte) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	zr := lz4.NewReader(bytes.NewReader(data))
	if err := copyStream(buf, zr); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (lz4Compressor) CompressStream(dst io.Writer, src io.Reader) error {
	zw := lz4.NewWriter(dst)
	if err := copyStream(zw, src); err != nil {
		return err
	}
	return zw.Close()
}

func (lz4Compressor) DecompressStream(dst io.Writer, src io.Reader) error {
	return copyStream(dst, lz4.NewReader(src))
}

type zstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCompressor() (*zstdCompressor, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &zstdCompressor{enc: enc, dec: dec}, nil
}

func (c *zstdCompressor) Algorithm() Algorithm { return Zstd }

func (c *zstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

func (c *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	return c.dec.DecodeAll(data, nil)
}

func (c *zstdCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	zw, err := zstd.NewWriter(dst)
	if err != nil {
		return err
	}
	if err := copyStream(zw, src); err != nil {
		return err
	}
	return zw.Close()
}

func (c *zstdCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	zr, err := zstd.NewReader(src)
	if err != nil {
		return err
	}
	defer zr.Close()
	return copyStream(dst, zr)
}

type snappyCompressor struct{}

func (snappyCompressor) Algorithm() Algorithm { return Snappy }

func (snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCompressor) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

func (snappyCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	zw := snappy.NewBufferedWriter(dst)
	if err := copyStream(zw, src); err != nil {
		return err
	}
	return zw.Close()
}

func (snappyCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	return copyStream(dst, snappy.NewReader(src))
}
