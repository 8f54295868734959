// Package storage implements the persistent history store of rpgtop: the
// write path from a collected snapshot to a sealed, compressed chunk, and
// the unified read path over both.
//
// Architecture:
//
//	┌──────────┐  Append   ┌─────────────┐   drain   ┌─────────────┐
//	│ Snapshot │──────────▶│  WAL + tail │──────────▶│ Sealed RPG3 │
//	│ + intern │           │    ring     │   seal    │   chunks    │
//	└──────────┘           └─────────────┘           └─────────────┘
//	                              │                         │
//	                              ▼                         ▼
//	                       ┌─────────────┐           ┌─────────────┐
//	                       │ Backpressure│           │  Registry + │
//	                       │  controller │           │   heatmap   │
//	                       └─────────────┘           └─────────────┘
//
// The Manager owns the pipeline: every Append is CRC-framed into the WAL
// and mirrored in a bounded tail ring; a worker periodically drains both
// into a zstd-compressed, indexed chunk. The rotated WAL file is discarded
// only after the chunk is fsynced and registered, so no acknowledged
// snapshot is ever lost. Retention, compaction and the heatmap index run
// piggybacked on the seal cycle.
//
// The Registry is rebuilt from the chunk directory at startup and can
// follow it live via fsnotify, which lets a read-only process (the
// inspection CLI) observe chunks sealed by the monitor.
package storage
