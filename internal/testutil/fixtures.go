package testutil

import (
	"path/filepath"
	"testing"

	"github.com/rpgtop/rpgtop/internal/storage/chunk"
	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// FullSnapshot builds a snapshot carrying every block kind, with all text
// fields interned into strings. Counter values are derived from ts so that
// consecutive snapshots look like a live host rather than identical copies.
func FullSnapshot(ts int64, strings *intern.Table) *types.Snapshot {
	snap := types.NewSnapshot(ts)

	snap.Add(&types.CPUBlock{
		User:   40000 + uint64(ts),
		System: 12000,
		Idle:   900000 + uint64(ts)*10,
		Iowait: 3000,
		Cores:  8,
		Load1:  1.4,
	})
	snap.Add(&types.MemoryBlock{
		Total:     32 << 30,
		Free:      4 << 30,
		Available: 12 << 30,
		Cached:    10 << 30,
		SwapTotal: 8 << 30,
	})
	snap.Add(&types.DisksBlock{Disks: []types.DiskStat{
		{Name: strings.Intern("nvme0n1"), ReadOps: 5000 + uint64(ts), WriteOps: 9000, BusyMs: uint64(ts) * 100},
	}})
	snap.Add(&types.NetworksBlock{Interfaces: []types.NetStat{
		{Name: strings.Intern("eth0"), RxBytes: 1 << 30, TxBytes: 1 << 29},
	}})
	snap.Add(&types.ProcessesBlock{Processes: []types.Process{
		{
			PID:     4021,
			Command: strings.Intern("postgres"),
			User:    strings.Intern("postgres"),
			State:   'S',
			RSS:     256 << 20,
			Threads: 1,
		},
	}})
	snap.Add(&types.PGActivityBlock{Backends: []types.PGBackend{
		{
			PID:          4121,
			Database:     strings.Intern("shopdb"),
			User:         strings.Intern("app"),
			State:        types.PGStateActive,
			Query:        strings.Intern("SELECT id, total FROM orders WHERE status = $1"),
			BackendStart: ts - 3600,
			QueryStart:   ts - 1,
		},
	}})
	snap.Add(&types.PGStatementsBlock{Statements: []types.PGStatement{
		{
			QueryID:     -7421839207412345678,
			Query:       strings.Intern("SELECT id, total FROM orders WHERE status = $1"),
			Calls:       10000 + uint64(ts),
			TotalTimeMs: 5200.5,
			Rows:        120000,
		},
	}})
	snap.Add(&types.PGDatabasesBlock{Databases: []types.PGDatabase{
		{Name: strings.Intern("shopdb"), NumBackends: 14, XactCommit: 120000 + uint64(ts), BlksHit: 9 << 20},
	}})
	return snap
}

// SealChunk seals one FullSnapshot per timestamp into a chunk under dir and
// returns its path. Timestamps must already be in order.
func SealChunk(t *testing.T, dir string, timestamps ...int64) string {
	t.Helper()
	if len(timestamps) == 0 {
		t.Fatal("SealChunk needs at least one timestamp")
	}

	strings := intern.New()
	snaps := make([]*types.Snapshot, len(timestamps))
	for i, ts := range timestamps {
		snaps[i] = FullSnapshot(ts, strings)
	}

	path := filepath.Join(dir, chunk.FileName(timestamps[0], timestamps[len(timestamps)-1]))
	if _, err := chunk.Seal(path, snaps, strings, chunk.WriterOptions{CompressionLevel: 1}); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	return path
}
