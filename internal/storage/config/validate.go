package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rpgtop/rpgtop/internal/errors"
)

// Validate checks the configuration for errors. All findings are collected
// so one pass reports every problem, and each matches ErrInvalidConfig.
func (c *Config) Validate() error {
	v := errors.NewValidationErrors()

	if c.DataDir == "" {
		v.AddField("data_dir", "is required")
	}

	v.Add(errors.Wrap(c.Sample.Validate(), "sample"))
	v.Add(errors.Wrap(c.WAL.Validate(), "wal"))
	v.Add(errors.Wrap(c.Seal.Validate(), "seal"))
	v.Add(errors.Wrap(c.Chunk.Validate(), "chunk"))
	v.Add(errors.Wrap(c.Heatmap.Validate(), "heatmap"))
	v.Add(errors.Wrap(c.Retention.Validate(), "retention"))
	v.Add(errors.Wrap(c.Compaction.Validate(), "compaction"))
	v.Add(errors.Wrap(c.Backpressure.Validate(), "backpressure"))
	v.Add(errors.Wrap(c.Query.Validate(), "query"))

	return v.Err()
}

// Validate checks the sample configuration.
func (c *SampleConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.Interval <= 0 {
		v.AddField("interval", "must be positive")
	}
	if c.Processes < 0 {
		v.AddField("processes", "must be non-negative")
	}
	if c.Backends < 0 {
		v.AddField("backends", "must be non-negative")
	}

	return v.Err()
}

// Validate checks the WAL configuration.
func (c *WALConfig) Validate() error {
	v := errors.NewValidationErrors()

	switch c.SyncMode {
	case "fsync", "async", "":
	default:
		v.AddField("sync_mode", "must be one of: fsync, async")
	}

	if c.MaxEntryBytes < 0 {
		v.AddField("max_entry_bytes", "must be non-negative")
	}

	return v.Err()
}

// Validate checks the seal configuration.
func (c *SealConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.Interval <= 0 {
		v.AddField("interval", "must be positive")
	}
	if c.MaxPending <= 0 {
		v.AddField("max_pending", "must be positive")
	}
	if c.TailCapacity <= 0 {
		v.AddField("tail_capacity", "must be positive")
	}
	if c.TailCapacity < c.MaxPending {
		v.AddField("tail_capacity", "must be >= max_pending")
	}

	return v.Err()
}

// Validate checks the chunk configuration.
func (c *ChunkConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.CompressionLevel < 1 || c.CompressionLevel > 19 {
		v.AddField("compression_level", "must be between 1 and 19")
	}
	if c.DictCapacity < 0 {
		v.AddField("dict_capacity", "must be non-negative")
	}

	return v.Err()
}

// Validate checks the heatmap configuration.
func (c *HeatmapConfig) Validate() error {
	if c.BucketInterval <= 0 {
		return errors.NewValidation("bucket_interval", "must be positive")
	}
	return nil
}

// Validate checks the retention configuration.
func (c *RetentionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	v := errors.NewValidationErrors()

	if c.MaxAge < 0 {
		v.AddField("max_age", "must be non-negative")
	}
	if c.MaxChunks < 0 {
		v.AddField("max_chunks", "must be non-negative")
	}
	if c.MaxAge == 0 && c.MaxChunks == 0 {
		v.AddField("retention", "either max_age or max_chunks required when enabled")
	}

	return v.Err()
}

// Validate checks the compaction configuration.
func (c *CompactionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	v := errors.NewValidationErrors()

	if c.MinChunkBytes <= 0 {
		v.AddField("min_chunk_bytes", "must be positive when enabled")
	}
	if c.MaxRun < 2 {
		v.AddField("max_run", "must be at least 2")
	}

	return v.Err()
}

// Validate checks the backpressure configuration.
func (c *BackpressureConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	v := errors.NewValidationErrors()

	// Thresholds must be in order
	if c.Thresholds.Warning <= 0 || c.Thresholds.Warning >= 1 {
		v.AddField("thresholds.warning", "must be between 0 and 1")
	}
	if c.Thresholds.Critical <= 0 || c.Thresholds.Critical >= 1 {
		v.AddField("thresholds.critical", "must be between 0 and 1")
	}
	if c.Thresholds.Emergency <= 0 || c.Thresholds.Emergency >= 1 {
		v.AddField("thresholds.emergency", "must be between 0 and 1")
	}

	if c.Thresholds.Warning >= c.Thresholds.Critical {
		v.AddField("thresholds.warning", "must be < thresholds.critical")
	}
	if c.Thresholds.Critical >= c.Thresholds.Emergency {
		v.AddField("thresholds.critical", "must be < thresholds.emergency")
	}

	if c.Recovery.Hysteresis < 0 || c.Recovery.Hysteresis >= 0.5 {
		v.AddField("recovery.hysteresis", "must be between 0 and 0.5")
	}
	if c.Recovery.Cooldown <= 0 {
		v.AddField("recovery.cooldown", "must be positive")
	}

	return v.Err()
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.Timeout <= 0 {
		v.AddField("timeout", "must be positive")
	}
	if c.MaxRows <= 0 {
		v.AddField("max_rows", "must be positive")
	}

	return v.Err()
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.WALDir(),
		c.ChunkDir(),
		filepath.Dir(c.HeatmapPath()),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// WALDir returns the WAL directory path.
func (c *Config) WALDir() string {
	if c.WAL.Dir != "" {
		return c.WAL.Dir
	}
	return filepath.Join(c.DataDir, "wal")
}

// WALPath returns the live WAL file path.
func (c *Config) WALPath() string {
	return filepath.Join(c.WALDir(), "rpgtop.wal")
}

// ChunkDir returns the chunk directory path.
func (c *Config) ChunkDir() string {
	if c.Chunk.Dir != "" {
		return c.Chunk.Dir
	}
	return filepath.Join(c.DataDir, "chunks")
}

// HeatmapPath returns the heatmap file path.
func (c *Config) HeatmapPath() string {
	if c.Heatmap.Path != "" {
		return c.Heatmap.Path
	}
	return filepath.Join(c.DataDir, "activity.hm")
}
