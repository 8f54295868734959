package config

import (
	"fmt"
	"time"
)

// Requirements represents calculated resource requirements for a
// configuration: how large snapshots come out on the wire, how fast the WAL
// and chunk directory grow, and how much disk the retention window needs.
type Requirements struct {
	// Per-snapshot estimates
	SnapshotWireBytes int64
	SnapshotsPerDay   int64

	// Write path
	WALBytesPerDay     int64
	ChunkBytesPerDay   int64
	HeatmapBytesPerDay int64

	// Steady state under retention
	RetainedSnapshots    int64
	RetainedChunkBytes   int64
	TailRAMBytes         int64
	RecommendedDiskBytes int64
}

// Wire-format row sizes, matching the snapshot encoding. Fixed per-snapshot
// overhead covers the cpu, memory, and header bytes.
const (
	bytesPerProcessRow = 73
	bytesPerBackendRow = 77
	bytesSnapshotFixed = 9 + 90 + 64 + 200 // header + cpu + memory + disks/nets headroom

	// Sealed chunks compress snapshot frames heavily; the process table
	// and query text repeat almost verbatim between samples. Observed
	// ratios with a trained dictionary sit near 10:1.
	chunkCompressionRatio = 10

	// The WAL stores entries uncompressed, plus 8 framing bytes and the
	// per-entry interner delta.
	walFramingBytes = 8
)

// CalculateRequirements computes resource requirements based on the
// configuration's cadence, host size, and retention window.
func (c *Config) CalculateRequirements() Requirements {
	r := Requirements{}

	intervalSec := int64(c.Sample.Interval / time.Second)
	if intervalSec <= 0 {
		intervalSec = 1
	}
	r.SnapshotsPerDay = 86400 / intervalSec

	r.SnapshotWireBytes = bytesSnapshotFixed +
		int64(c.Sample.Processes)*bytesPerProcessRow +
		int64(c.Sample.Backends)*bytesPerBackendRow

	// WAL: uncompressed entries, rewritten every seal interval, so the
	// live file stays near one seal interval of data. Per-day figure is
	// total bytes pushed through it.
	r.WALBytesPerDay = r.SnapshotsPerDay * (r.SnapshotWireBytes + walFramingBytes)

	// Chunks: compressed frames plus a shared interner per chunk.
	r.ChunkBytesPerDay = r.WALBytesPerDay / chunkCompressionRatio

	// Heatmap: 14 bytes per bucket.
	bucketSec := int64(c.Heatmap.BucketInterval / time.Second)
	if bucketSec <= 0 {
		bucketSec = 60
	}
	r.HeatmapBytesPerDay = (86400 / bucketSec) * 14

	// Retained history.
	retainedDays := float64(c.Retention.MaxAge) / float64(24*time.Hour)
	if !c.Retention.Enabled || c.Retention.MaxAge == 0 {
		retainedDays = 30 // unbounded; assume a month for planning
	}
	r.RetainedSnapshots = int64(float64(r.SnapshotsPerDay) * retainedDays)
	r.RetainedChunkBytes = int64(float64(r.ChunkBytesPerDay) * retainedDays)

	// Tail ring holds decoded snapshots; decoded size runs roughly 2x the
	// wire size once slice headers and the interner are counted.
	r.TailRAMBytes = int64(c.Seal.TailCapacity) * r.SnapshotWireBytes * 2

	// Disk: retained chunks + one seal interval of WAL (live + sealing)
	// + heatmap, with 25% slack for compaction scratch space.
	sealSec := int64(c.Seal.Interval / time.Second)
	if sealSec <= 0 {
		sealSec = 300
	}
	walLive := (sealSec / intervalSec) * (r.SnapshotWireBytes + walFramingBytes) * 2
	heatmap := int64(float64(r.HeatmapBytesPerDay) * retainedDays)
	r.RecommendedDiskBytes = (r.RetainedChunkBytes + walLive + heatmap) * 5 / 4

	return r
}

// FormatRequirements returns a human-readable summary of requirements.
func (r *Requirements) FormatRequirements() string {
	return fmt.Sprintf(`Resource Requirements
=====================

Snapshot:
  Wire size:         %s
  Snapshots/day:     %s

Write path:
  WAL bytes/day:     %s
  Chunk bytes/day:   %s
  Heatmap bytes/day: %s

Steady state:
  Retained samples:  %s
  Retained chunks:   %s
  Tail ring RAM:     %s
  Disk (recommended): %s
`,
		formatBytes(r.SnapshotWireBytes),
		formatNumber(r.SnapshotsPerDay),
		formatBytes(r.WALBytesPerDay),
		formatBytes(r.ChunkBytesPerDay),
		formatBytes(r.HeatmapBytesPerDay),
		formatNumber(r.RetainedSnapshots),
		formatBytes(r.RetainedChunkBytes),
		formatBytes(r.TailRAMBytes),
		formatBytes(r.RecommendedDiskBytes),
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats a number with magnitude suffixes.
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	if n < 1000000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	return fmt.Sprintf("%.1fB", float64(n)/1000000000)
}
