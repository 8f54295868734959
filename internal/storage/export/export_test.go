package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rpgtop/rpgtop/internal/storage/chunk"
	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

func exportSnapshot(ts int64, strings *intern.Table, extra string) *types.Snapshot {
	snap := types.NewSnapshot(ts)
	snap.Add(&types.CPUBlock{
		User:   4000,
		System: 1000,
		Idle:   90000,
		Iowait: 500,
		Cores:  8,
		Load1:  1.5,
	})
	snap.Add(&types.MemoryBlock{
		Total:     32 << 30,
		Available: 12 << 30,
		SwapTotal: 2 << 30,
		SwapFree:  1 << 30,
	})
	snap.Add(&types.DisksBlock{Disks: []types.DiskStat{
		{Name: strings.Intern("nvme0n1"), ReadOps: 100, WriteOps: 200, BusyMs: 300},
	}})
	snap.Add(&types.NetworksBlock{Interfaces: []types.NetStat{
		{Name: strings.Intern("eth0"), RxBytes: 1000, TxBytes: 500},
	}})
	snap.Add(&types.ProcessesBlock{Processes: []types.Process{
		{
			PID:     4021,
			Command: strings.Intern("postgres"),
			User:    strings.Intern("postgres"),
			State:   'S',
			UTime:   123,
			STime:   45,
			RSS:     256 << 20,
			Threads: 1,
		},
		{
			PID:     4099,
			Command: strings.Intern(extra),
			User:    strings.Intern("postgres"),
			State:   'R',
			RSS:     64 << 20,
			Threads: 2,
		},
	}})
	snap.Add(&types.PGActivityBlock{Backends: []types.PGBackend{
		{PID: 5001, Database: strings.Intern("shopdb"), State: types.PGStateActive},
		{PID: 5002, Database: strings.Intern("shopdb"), State: types.PGStateIdleInTx},
	}})
	snap.Add(&types.PGDatabasesBlock{Databases: []types.PGDatabase{
		{Name: strings.Intern("shopdb"), XactCommit: 1000, BlksHit: 5000, BlksRead: 100},
	}})
	return snap
}

// sealExportChunk seals count snapshots spaced 10s apart and returns the
// chunk path.
func sealExportChunk(t *testing.T, dir string, firstTs int64, count int, extra string) string {
	t.Helper()
	strings := intern.New()
	snaps := make([]*types.Snapshot, count)
	for i := range snaps {
		snaps[i] = exportSnapshot(firstTs+int64(i)*10, strings, extra)
	}
	path := filepath.Join(dir, chunk.FileName(firstTs, firstTs+int64(count-1)*10))
	if _, err := chunk.Seal(path, snaps, strings, chunk.WriterOptions{CompressionLevel: 1}); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	return path
}

func TestSummaryFromSnapshot(t *testing.T) {
	strings := intern.New()
	row := SummaryFromSnapshot(exportSnapshot(100, strings, "checkpointer"))

	if row.Timestamp != 100 {
		t.Errorf("Timestamp = %d, want 100", row.Timestamp)
	}
	if row.CPUBusy != 5000 || row.CPUTotal != 95500 {
		t.Errorf("CPU jiffies = (%d, %d), want (5000, 95500)", row.CPUBusy, row.CPUTotal)
	}
	if row.Load1 != 1.5 || row.Cores != 8 {
		t.Errorf("Load1 = %v, Cores = %d", row.Load1, row.Cores)
	}
	if row.MemUsedPct != 62.5 {
		t.Errorf("MemUsedPct = %v, want 62.5", row.MemUsedPct)
	}
	if row.SwapUsed != 1<<30 {
		t.Errorf("SwapUsed = %d, want %d", row.SwapUsed, int64(1<<30))
	}
	if row.DiskReadOps != 100 || row.DiskWriteOps != 200 || row.DiskBusyMs != 300 {
		t.Errorf("disk counters = (%d, %d, %d)", row.DiskReadOps, row.DiskWriteOps, row.DiskBusyMs)
	}
	if row.NetRxBytes != 1000 || row.NetTxBytes != 500 {
		t.Errorf("net counters = (%d, %d)", row.NetRxBytes, row.NetTxBytes)
	}
	if row.Processes != 2 || row.ProcessRSS != 320<<20 {
		t.Errorf("Processes = %d, ProcessRSS = %d", row.Processes, row.ProcessRSS)
	}
	if row.PGBackends != 2 || row.PGActive != 1 || row.PGIdleInTx != 1 {
		t.Errorf("pg counts = (%d, %d, %d)", row.PGBackends, row.PGActive, row.PGIdleInTx)
	}
	if row.PGXactCommit != 1000 || row.PGBlksHit != 5000 || row.PGBlksRead != 100 {
		t.Errorf("pg counters = (%d, %d, %d)", row.PGXactCommit, row.PGBlksHit, row.PGBlksRead)
	}
}

func TestSummaryFromSnapshotMissingBlocks(t *testing.T) {
	row := SummaryFromSnapshot(types.NewSnapshot(42))
	if row.Timestamp != 42 {
		t.Errorf("Timestamp = %d, want 42", row.Timestamp)
	}
	if row.CPUTotal != 0 || row.MemUsedPct != 0 || row.Processes != 0 || row.PGBackends != 0 {
		t.Errorf("empty snapshot produced non-zero gauges: %+v", row)
	}
}

func TestProcessRowsResolveNames(t *testing.T) {
	strings := intern.New()
	snap := exportSnapshot(100, strings, "walwriter")

	rows := ProcessRowsFromSnapshot(snap, strings)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Command != "postgres" || rows[0].User != "postgres" {
		t.Errorf("row 0 names = (%q, %q)", rows[0].Command, rows[0].User)
	}
	if rows[0].State != "S" || rows[1].State != "R" {
		t.Errorf("states = (%q, %q)", rows[0].State, rows[1].State)
	}
	if rows[1].Command != "walwriter" {
		t.Errorf("row 1 command = %q, want walwriter", rows[1].Command)
	}
	if rows[0].UTime != 123 || rows[0].STime != 45 {
		t.Errorf("row 0 jiffies = (%d, %d)", rows[0].UTime, rows[0].STime)
	}

	// A handle missing from the table renders as hex, not as a lost row.
	snap.Processes().Processes[0].Command = 0xdeadbeef
	rows = ProcessRowsFromSnapshot(snap, strings)
	if rows[0].Command != "00000000deadbeef" {
		t.Errorf("unresolvable command = %q, want 00000000deadbeef", rows[0].Command)
	}
}

func TestExportDirRowCounts(t *testing.T) {
	chunkDir := t.TempDir()
	outDir := t.TempDir()

	sealExportChunk(t, chunkDir, 10, 2, "checkpointer")
	sealExportChunk(t, chunkDir, 100, 3, "walwriter")

	res, err := ExportDir(chunkDir, outDir, DefaultOptions())
	if err != nil {
		t.Fatalf("ExportDir failed: %v", err)
	}
	if res.Chunks != 2 || res.SkippedChunks != 0 {
		t.Errorf("Chunks = %d, Skipped = %d", res.Chunks, res.SkippedChunks)
	}
	if res.Snapshots != 5 || res.SummaryRows != 5 || res.ProcessRows != 10 {
		t.Errorf("rows = %+v", res)
	}

	summaries, err := ReadSummaries(res.SummaryPath)
	if err != nil {
		t.Fatalf("ReadSummaries failed: %v", err)
	}
	if len(summaries) != 5 {
		t.Fatalf("read %d summaries, want 5", len(summaries))
	}
	wantTs := []int64{10, 20, 100, 110, 120}
	for i, row := range summaries {
		if row.Timestamp != wantTs[i] {
			t.Errorf("summary %d timestamp = %d, want %d", i, row.Timestamp, wantTs[i])
		}
		if row.MemUsedPct != 62.5 {
			t.Errorf("summary %d MemUsedPct = %v", i, row.MemUsedPct)
		}
	}

	procs, err := ReadProcesses(res.ProcessPath)
	if err != nil {
		t.Fatalf("ReadProcesses failed: %v", err)
	}
	if len(procs) != 10 {
		t.Fatalf("read %d process rows, want 10", len(procs))
	}
	commands := make(map[string]int)
	for _, row := range procs {
		commands[row.Command]++
	}
	if commands["postgres"] != 5 || commands["checkpointer"] != 2 || commands["walwriter"] != 3 {
		t.Errorf("command counts = %v", commands)
	}
}

func TestExportDirSkipsCorrupt(t *testing.T) {
	chunkDir := t.TempDir()
	outDir := t.TempDir()

	sealExportChunk(t, chunkDir, 10, 2, "checkpointer")
	if err := os.WriteFile(filepath.Join(chunkDir, "chunk-garbage.rpg"), []byte("not a chunk"), 0o644); err != nil {
		t.Fatalf("write garbage failed: %v", err)
	}

	res, err := ExportDir(chunkDir, outDir, DefaultOptions())
	if err != nil {
		t.Fatalf("ExportDir failed: %v", err)
	}
	if res.Chunks != 1 || res.SkippedChunks != 1 {
		t.Errorf("Chunks = %d, Skipped = %d, want 1 and 1", res.Chunks, res.SkippedChunks)
	}
	if res.SummaryRows != 2 {
		t.Errorf("SummaryRows = %d, want 2", res.SummaryRows)
	}
}

func TestExportDirEmpty(t *testing.T) {
	res, err := ExportDir(t.TempDir(), t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("ExportDir failed: %v", err)
	}
	if res.Chunks != 0 || res.SummaryRows != 0 || res.ProcessRows != 0 {
		t.Errorf("empty dir result = %+v", res)
	}

	// The output files exist even with zero rows; a SQL query over them
	// sees an empty table, not a missing one.
	for _, p := range []string{res.SummaryPath, res.ProcessPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("output %s missing: %v", p, err)
		}
	}
}

func TestWriteAfterClose(t *testing.T) {
	dir := t.TempDir()

	sw, err := NewSummaryWriter(filepath.Join(dir, "s.parquet"), DefaultOptions())
	if err != nil {
		t.Fatalf("NewSummaryWriter failed: %v", err)
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sw.Write([]SummaryRow{{Timestamp: 1}}); err != ErrWriterClosed {
		t.Errorf("Write after close = %v, want ErrWriterClosed", err)
	}

	pw, err := NewProcessWriter(filepath.Join(dir, "p.parquet"), DefaultOptions())
	if err != nil {
		t.Fatalf("NewProcessWriter failed: %v", err)
	}
	if err := pw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := pw.Write([]ProcessRow{{Timestamp: 1}}); err != ErrWriterClosed {
		t.Errorf("Write after close = %v, want ErrWriterClosed", err)
	}
}
