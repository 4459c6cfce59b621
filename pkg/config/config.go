// Package config defines the unified configuration for the storage engine
// and a YAML loader with environment variable substitution. The CLI binds
// the same structure through viper so fields can be overridden from the
// environment.
package config

import (
	"fmt"
)

// Config is the top-level configuration for one product's store.
type Config struct {
	// BaseDir is the root under which per-product directories live.
	BaseDir string `yaml:"base_dir" json:"base_dir" mapstructure:"base_dir"`
	// Product names the instrument stream, e.g. "ESZ4".
	Product string `yaml:"product" json:"product" mapstructure:"product"`

	Log    LogConfig    `yaml:"log" json:"log" mapstructure:"log"`
	Writer WriterConfig `yaml:"writer" json:"writer" mapstructure:"writer"`
	Blocks BlockConfig  `yaml:"blocks" json:"blocks" mapstructure:"blocks"`
	Reader ReaderConfig `yaml:"reader" json:"reader" mapstructure:"reader"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" json:"level" mapstructure:"level"`
	Encoding    string `yaml:"encoding" json:"encoding" mapstructure:"encoding"`
	Development bool   `yaml:"development" json:"development" mapstructure:"development"`
}

// WriterConfig configures the columnar day-file writer.
type WriterConfig struct {
	// RowsPerHour sizes the initial day-file capacity (2x this value).
	RowsPerHour uint64 `yaml:"rows_per_hour" json:"rows_per_hour" mapstructure:"rows_per_hour"`
	// FsyncEveryRows syncs the header row count every N rows; 0 disables.
	FsyncEveryRows uint32 `yaml:"fsync_every_rows" json:"fsync_every_rows" mapstructure:"fsync_every_rows"`
	// QueueCapacity is the ingest queue slot count.
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity" mapstructure:"queue_capacity"`
}

// BlockConfig configures the block day-file writer.
type BlockConfig struct {
	// BlockRows is the batch size encoded per block.
	BlockRows uint32 `yaml:"block_rows" json:"block_rows" mapstructure:"block_rows"`
	// FsyncEveryBlocks syncs after N appended blocks; 0 disables.
	FsyncEveryBlocks uint32 `yaml:"fsync_every_blocks" json:"fsync_every_blocks" mapstructure:"fsync_every_blocks"`
	// LZ4 compresses block payloads with lz4.
	LZ4 bool `yaml:"lz4" json:"lz4" mapstructure:"lz4"`
}

// ReaderConfig bounds the day range readers visit, inclusive, as YYYYMMDD.
type ReaderConfig struct {
	DateFrom uint32 `yaml:"date_from" json:"date_from" mapstructure:"date_from"`
	DateTo   uint32 `yaml:"date_to" json:"date_to" mapstructure:"date_to"`
}

// Default returns a configuration with production defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
		Writer: WriterConfig{
			RowsPerHour:   1 << 24,
			QueueCapacity: 1 << 26,
		},
		Blocks: BlockConfig{
			BlockRows: 8192,
		},
		Reader: ReaderConfig{
			DateTo: 99999999,
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir is required")
	}
	if c.Product == "" {
		return fmt.Errorf("product is required")
	}
	if len(c.Product) > 15 {
		return fmt.Errorf("product %q longer than 15 bytes", c.Product)
	}
	if c.Reader.DateFrom > c.Reader.DateTo && c.Reader.DateTo != 0 {
		return fmt.Errorf("date_from %d after date_to %d", c.Reader.DateFrom, c.Reader.DateTo)
	}
	return nil
}
