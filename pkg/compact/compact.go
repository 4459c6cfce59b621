// Package compact implements the archival pass: it scans columnar L2 day
// files and re-encodes their rows into block-compressed day files, optionally
// compressing the finished files for cold storage.
package compact

import (
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/DJ824/hft-reader-writer/pkg/blockstore"
	"github.com/DJ824/hft-reader-writer/pkg/columnar"
	"github.com/DJ824/hft-reader-writer/pkg/compression"
	"github.com/DJ824/hft-reader-writer/pkg/errors"
	"github.com/DJ824/hft-reader-writer/pkg/logger"
	"github.com/DJ824/hft-reader-writer/pkg/schema"
)

// Options configures one compaction run.
type Options struct {
	Columnar columnar.ReaderOpt
	Blocks   blockstore.WriterOpt
}

// Stats summarizes a compaction run.
type Stats struct {
	Days int
	Rows uint64
}

// Run reads every L2 columnar day file in the configured range and feeds its
// rows to the block writer, one block day file per columnar day file. Rows
// come out of the columnar store in write order, so block files preserve it.
func Run(opt Options) (Stats, error) {
	log := logger.ForProduct("compact", opt.Columnar.Product)

	r := columnar.NewReader[schema.L2, schema.L2Row](opt.Columnar)
	defer r.Close()
	w := blockstore.NewWriter(opt.Blocks)

	var stats Stats
	var visitErr error
	r.VisitSegments(func(day uint32, seg *columnar.Segment) bool {
		if err := w.BeginDay(day); err != nil {
			visitErr = err
			return false
		}

		ts := columnar.Col[uint64](seg, schema.L2ColTs)
		px := columnar.Col[uint32](seg, schema.L2ColPx)
		qty := columnar.Col[float32](seg, schema.L2ColQty)
		side := columnar.Col[uint8](seg, schema.L2ColSide)

		for i := range ts {
			row := blockstore.Row{
				TsNs:  ts[i],
				Price: px[i],
				Size:  qty[i],
				Side:  side[i],
				Type:  'L',
			}
			if err := w.WriteRow(row); err != nil {
				visitErr = err
				return false
			}
		}

		stats.Days++
		stats.Rows += seg.Rows
		log.Info("compacted day", zap.Uint32("day", day), zap.Uint64("rows", seg.Rows))
		return true
	})

	closeErr := w.Close()
	if visitErr != nil {
		return stats, visitErr
	}
	return stats, closeErr
}

// ArchiveFile compresses path into path+".<algo>" for cold storage and
// returns the archive path. The source file is left in place.
func ArchiveFile(path string, algo compression.Algorithm) (string, error) {
	comp, err := compression.NewCompressor(algo)
	if err != nil {
		return "", err
	}

	src, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "open "+path)
	}
	defer src.Close()

	outPath := path + "." + string(algo)
	dst, err := os.Create(outPath)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "create "+outPath)
	}

	if err := comp.CompressStream(dst, io.Reader(src)); err != nil {
		dst.Close()
		os.Remove(outPath)
		return "", errors.Wrap(err, errors.ErrorTypeFile, "compress "+path)
	}
	if err := dst.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "close "+outPath)
	}
	return outPath, nil
}
