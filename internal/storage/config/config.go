// Package config holds the storage subsystem configuration: directory
// layout, WAL durability, seal cadence, chunk compression, heatmap
// bucketing, retention, compaction, and backpressure. Configuration is
// loaded from YAML over a fully populated default, so a partial file only
// overrides what it mentions.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete storage configuration.
type Config struct {
	// DataDir is the root directory for all storage files.
	DataDir string `yaml:"data_dir"`

	// Sample describes the expected collection cadence and host size.
	// Storage sizing and heatmap defaults derive from it.
	Sample SampleConfig `yaml:"sample"`

	// WAL configures the write-ahead log.
	WAL WALConfig `yaml:"wal"`

	// Seal configures when pending entries are sealed into a chunk.
	Seal SealConfig `yaml:"seal"`

	// Chunk configures chunk compression.
	Chunk ChunkConfig `yaml:"chunk"`

	// Heatmap configures the activity heatmap sidecar.
	Heatmap HeatmapConfig `yaml:"heatmap"`

	// Retention defines how much sealed history to keep.
	Retention RetentionConfig `yaml:"retention"`

	// Compaction configures merging of undersized chunks.
	Compaction CompactionConfig `yaml:"compaction"`

	// Backpressure configures load shedding.
	Backpressure BackpressureConfig `yaml:"backpressure"`

	// Query configures the SQL query service.
	Query QueryConfig `yaml:"query"`
}

// SampleConfig describes the expected collection cadence and host size.
type SampleConfig struct {
	// Interval is the collector's snapshot interval.
	Interval time.Duration `yaml:"interval"`

	// Processes is the expected process table size, used for sizing
	// estimates only.
	Processes int `yaml:"processes"`

	// Backends is the expected pg_stat_activity row count, used for
	// sizing estimates only.
	Backends int `yaml:"backends"`
}

// WALConfig configures the write-ahead log.
type WALConfig struct {
	// Dir is the WAL directory. Defaults to {DataDir}/wal.
	Dir string `yaml:"dir"`

	// SyncMode is the durability mode: fsync (sync every append) or
	// async (sync on rotation and shutdown only).
	SyncMode string `yaml:"sync_mode"`

	// MaxEntryBytes rejects oversized appends. Zero means the built-in
	// limit.
	MaxEntryBytes int64 `yaml:"max_entry_bytes"`
}

// SealConfig configures when pending entries are sealed into a chunk.
type SealConfig struct {
	// Interval is the periodic seal cadence.
	Interval time.Duration `yaml:"interval"`

	// MaxPending forces an early seal once this many entries are
	// buffered.
	MaxPending int `yaml:"max_pending"`

	// TailCapacity is the in-memory tail ring size. Must be at least
	// MaxPending; the gap absorbs appends that arrive while a seal is
	// in flight.
	TailCapacity int `yaml:"tail_capacity"`
}

// ChunkConfig configures chunk compression.
type ChunkConfig struct {
	// Dir is the chunk directory. Defaults to {DataDir}/chunks.
	Dir string `yaml:"dir"`

	// CompressionLevel is the zstd level (1-19).
	CompressionLevel int `yaml:"compression_level"`

	// TrainDictionary enables per-chunk dictionary training.
	TrainDictionary bool `yaml:"train_dictionary"`

	// DictCapacity caps the trained dictionary size in bytes.
	DictCapacity int `yaml:"dict_capacity"`
}

// HeatmapConfig configures the activity heatmap sidecar.
type HeatmapConfig struct {
	// Path is the heatmap file. Defaults to {DataDir}/activity.hm.
	Path string `yaml:"path"`

	// BucketInterval is the heatmap bucket width.
	BucketInterval time.Duration `yaml:"bucket_interval"`
}

// RetentionConfig defines how much sealed history to keep.
type RetentionConfig struct {
	// Enabled enables retention enforcement after each seal.
	Enabled bool `yaml:"enabled"`

	// MaxAge removes chunks whose newest snapshot is older than this.
	// Zero disables the age bound.
	MaxAge time.Duration `yaml:"max_age"`

	// MaxChunks caps the number of chunks kept. Zero disables the
	// count bound.
	MaxChunks int `yaml:"max_chunks"`
}

// CompactionConfig configures merging of undersized chunks.
type CompactionConfig struct {
	// Enabled enables compaction after each seal.
	Enabled bool `yaml:"enabled"`

	// MinChunkBytes marks chunks below this size as merge candidates.
	MinChunkBytes int64 `yaml:"min_chunk_bytes"`

	// MaxRun caps how many chunks one merge combines.
	MaxRun int `yaml:"max_run"`
}

// BackpressureConfig configures load shedding.
type BackpressureConfig struct {
	// Enabled enables backpressure handling.
	Enabled bool `yaml:"enabled"`

	// Thresholds defines tail ring usage thresholds for level changes.
	Thresholds BackpressureThresholds `yaml:"thresholds"`

	// Recovery configures recovery behavior.
	Recovery BackpressureRecovery `yaml:"recovery"`
}

// BackpressureThresholds defines tail ring usage thresholds.
type BackpressureThresholds struct {
	// Warning threshold (0.0-1.0).
	Warning float64 `yaml:"warning"`

	// Critical threshold (0.0-1.0).
	Critical float64 `yaml:"critical"`

	// Emergency threshold (0.0-1.0).
	Emergency float64 `yaml:"emergency"`
}

// BackpressureRecovery configures recovery behavior.
type BackpressureRecovery struct {
	// Hysteresis to prevent flapping (0.0-0.5).
	Hysteresis float64 `yaml:"hysteresis"`

	// Cooldown is the minimum time between level changes.
	Cooldown time.Duration `yaml:"cooldown"`
}

// QueryConfig configures the SQL query service.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`

	// Timeout is the query timeout.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRows is the maximum number of rows returned.
	MaxRows int `yaml:"max_rows"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults for a single
// PostgreSQL host sampled every 10 seconds.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "/var/lib/rpgtop",
		Sample: SampleConfig{
			Interval:  10 * time.Second,
			Processes: 400,
			Backends:  50,
		},
		WAL: WALConfig{
			SyncMode: "fsync",
		},
		Seal: SealConfig{
			Interval:     5 * time.Minute,
			MaxPending:   512,
			TailCapacity: 1024,
		},
		Chunk: ChunkConfig{
			CompressionLevel: 3,
			TrainDictionary:  true,
			DictCapacity:     64 * 1024,
		},
		Heatmap: HeatmapConfig{
			BucketInterval: time.Minute,
		},
		Retention: RetentionConfig{
			Enabled: true,
			MaxAge:  14 * 24 * time.Hour,
		},
		Compaction: CompactionConfig{
			Enabled:       true,
			MinChunkBytes: 4 * 1024 * 1024,
			MaxRun:        8,
		},
		Backpressure: BackpressureConfig{
			Enabled: true,
			Thresholds: BackpressureThresholds{
				Warning:   0.50,
				Critical:  0.80,
				Emergency: 0.95,
			},
			Recovery: BackpressureRecovery{
				Hysteresis: 0.10,
				Cooldown:   30 * time.Second,
			},
		},
		Query: QueryConfig{
			MemoryLimit: "2GB",
			Timeout:     30 * time.Second,
			MaxRows:     1000000,
		},
	}
}
