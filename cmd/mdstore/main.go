// Command mdstore is the operator CLI over the market-data store: inspect
// day-file headers, scan row counts, and run the compaction/archival pass.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/DJ824/hft-reader-writer/pkg/blockstore"
	"github.com/DJ824/hft-reader-writer/pkg/columnar"
	"github.com/DJ824/hft-reader-writer/pkg/compact"
	"github.com/DJ824/hft-reader-writer/pkg/compression"
	"github.com/DJ824/hft-reader-writer/pkg/config"
	"github.com/DJ824/hft-reader-writer/pkg/logger"
	"github.com/DJ824/hft-reader-writer/pkg/schema"
)

var version = "0.1.0"

// schemaCols maps the --schema flag to the column count needed to decode a
// columnar file header.
var schemaCols = map[string]uint32{
	"l2":        4,
	"l3":        6,
	"imbalance": 2,
	"vwap":      2,
	"voi":       3,
}

func main() {
	cfg := config.Default()
	var cfgFile string

	root := &cobra.Command{
		Use:     "mdstore",
		Short:   "Columnar market-data store tools",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			v.SetEnvPrefix("MDSTORE")
			v.AutomaticEnv()
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config: %w", err)
				}
			}
			if err := v.Unmarshal(cfg); err != nil {
				return fmt.Errorf("unmarshal config: %w", err)
			}
			if f := cmd.Flags().Lookup("base-dir"); f != nil && f.Changed {
				cfg.BaseDir, _ = cmd.Flags().GetString("base-dir")
			}
			if f := cmd.Flags().Lookup("product"); f != nil && f.Changed {
				cfg.Product, _ = cmd.Flags().GetString("product")
			}
			return logger.Init(logger.Config{
				Level:       cfg.Log.Level,
				Development: cfg.Log.Development,
				Encoding:    cfg.Log.Encoding,
			})
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	root.PersistentFlags().String("base-dir", ".", "store base directory")
	root.PersistentFlags().String("product", "", "product name")

	root.AddCommand(inspectCmd(cfg))
	root.AddCommand(scanCmd(cfg))
	root.AddCommand(compactCmd(cfg))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func inspectCmd(cfg *config.Config) *cobra.Command {
	var schemaName string
	var showBlocks bool

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print a day-file header as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if filepath.Ext(path) == ".blocks" {
				return inspectBlocks(path, showBlocks)
			}
			return inspectColumnar(path, schemaName)
		},
	}
	cmd.Flags().StringVar(&schemaName, "schema", "l2", "schema of .bin files (l2|l3|imbalance|vwap|voi)")
	cmd.Flags().BoolVar(&showBlocks, "blocks", false, "also list per-block headers of .blocks files")
	return cmd
}

func inspectColumnar(path, schemaName string) error {
	cols, ok := schemaCols[schemaName]
	if !ok {
		return fmt.Errorf("unknown schema %q", schemaName)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, columnar.HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	hdr, err := columnar.ParseHeader(buf, cols)
	if err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"magic":     string(hdr.Magic[:]),
		"version":   hdr.Version,
		"product":   hdr.ProductName(),
		"day_start": hdr.DayStart,
		"rows":      hdr.Rows,
		"capacity":  hdr.Capacity,
		"col_off":   hdr.ColOff,
		"col_sz":    hdr.ColSz,
	})
}

func inspectBlocks(path string, showBlocks bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		return err
	}
	hdr, err := blockstore.ParseDayFileHeader(data)
	if err != nil {
		return err
	}

	out := map[string]interface{}{
		"yyyymmdd":     hdr.Day,
		"rows_total":   hdr.RowsTotal,
		"bytes_total":  hdr.BytesTotal,
		"blocks_total": hdr.BlocksTotal,
	}

	if showBlocks {
		var blocks []map[string]interface{}
		off := blockstore.DayFileHeaderSize
		for i := uint32(0); i < hdr.BlocksTotal && off < len(data); i++ {
			bh, err := blockstore.ParseBlockHeader(data[off:])
			if err != nil {
				return err
			}
			var rows []blockstore.Row
			rows, consumed, err := blockstore.DecodeBlock(data[off:], rows)
			if err != nil {
				return err
			}
			blocks = append(blocks, map[string]interface{}{
				"offset":  off,
				"n_rows":  len(rows),
				"base_ts": bh.BaseTs,
				"base_px": bh.BasePx,
				"ts_bw":   bh.TsBw,
				"px_bw":   bh.PxBw,
				"flags":   bh.Flags,
				"bytes":   consumed,
			})
			off += consumed
		}
		out["blocks"] = blocks
	}
	return printJSON(out)
}

func scanCmd(cfg *config.Config) *cobra.Command {
	var schemaName string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan columnar day files and print per-day row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			opt := columnar.ReaderOpt{
				BaseDir:  cfg.BaseDir,
				Product:  cfg.Product,
				DateFrom: cfg.Reader.DateFrom,
				DateTo:   cfg.Reader.DateTo,
			}
			switch schemaName {
			case "l2":
				return scanDays[schema.L2, schema.L2Row](opt)
			case "l3":
				return scanDays[schema.L3, schema.L3Row](opt)
			case "imbalance":
				return scanDays[schema.Imbalance, schema.ImbalanceRow](opt)
			case "vwap":
				return scanDays[schema.Vwap, schema.VwapRow](opt)
			case "voi":
				return scanDays[schema.Voi, schema.VoiRow](opt)
			default:
				return fmt.Errorf("unknown schema %q", schemaName)
			}
		},
	}
	cmd.Flags().StringVar(&schemaName, "schema", "l2", "schema to scan")
	return cmd
}

func scanDays[S schema.Schema[R], R any](opt columnar.ReaderOpt) error {
	r := columnar.NewReader[S, R](opt)
	defer r.Close()

	var total uint64
	r.VisitSegments(func(day uint32, seg *columnar.Segment) bool {
		fmt.Printf("%08d  %d rows\n", day, seg.Rows)
		total += seg.Rows
		return true
	})
	fmt.Printf("total     %d rows\n", total)
	return nil
}

func compactCmd(cfg *config.Config) *cobra.Command {
	var useLZ4 bool
	var archive string

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Re-encode columnar L2 day files into block day files",
		RunE: func(cmd *cobra.Command, args []string) error {
			var flags uint16
			if useLZ4 || cfg.Blocks.LZ4 {
				flags |= blockstore.FlagLZ4
			}
			opt := compact.Options{
				Columnar: columnar.ReaderOpt{
					BaseDir:  cfg.BaseDir,
					Product:  cfg.Product,
					DateFrom: cfg.Reader.DateFrom,
					DateTo:   cfg.Reader.DateTo,
				},
				Blocks: blockstore.WriterOpt{
					BaseDir:          cfg.BaseDir,
					Product:          cfg.Product,
					BlockRows:        cfg.Blocks.BlockRows,
					FsyncEveryBlocks: cfg.Blocks.FsyncEveryBlocks,
					Flags:            flags,
				},
			}

			stats, err := compact.Run(opt)
			if err != nil {
				return err
			}
			logger.Info("compaction finished",
				zap.Int("days", stats.Days), zap.Uint64("rows", stats.Rows))

			if archive != "" {
				return archiveBlocks(cfg, compression.Algorithm(archive))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&useLZ4, "lz4", false, "lz4-compress block payloads")
	cmd.Flags().StringVar(&archive, "archive", "", "also compress finished .blocks files (lz4|zstd|snappy)")
	return cmd
}

var blockFilePattern = regexp.MustCompile(`^[0-9]{8}\.blocks$`)

func archiveBlocks(cfg *config.Config, algo compression.Algorithm) error {
	dir := filepath.Join(cfg.BaseDir, cfg.Product+"-BLOCKS")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if !blockFilePattern.MatchString(name) {
			continue
		}
		day, err := strconv.ParseUint(name[:8], 10, 32)
		if err != nil {
			continue
		}
		if uint32(day) < cfg.Reader.DateFrom || uint32(day) > cfg.Reader.DateTo {
			continue
		}
		out, err := compact.ArchiveFile(filepath.Join(dir, name), algo)
		if err != nil {
			return err
		}
		logger.Info("archived day file", zap.String("archive", out))
	}
	return nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
