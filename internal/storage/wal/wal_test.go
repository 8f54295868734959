package wal

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/rpgtop/rpgtop/internal/errors"
	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// testEntry builds a snapshot with one CPU block and one interned disk
// name, varied by seq so entries are distinguishable.
func testEntry(ts int64, seq int) (*types.Snapshot, *intern.Table) {
	strings := intern.New()
	name := strings.Intern("nvme0n1")

	snap := types.NewSnapshot(ts)
	snap.Add(&types.CPUBlock{
		User:   uint64(100 + seq),
		System: uint64(50 + seq),
		Idle:   1000,
		Cores:  8,
	})
	snap.Add(&types.DisksBlock{
		Disks: []types.DiskStat{{Name: name, ReadOps: uint64(seq), BusyMs: 12}},
	})
	return snap, strings
}

func openTestWAL(t *testing.T, dir string, opts Options) *WAL {
	t.Helper()
	w, err := Open(filepath.Join(dir, "rpgtop.wal"), opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return w
}

func TestAppendRecoverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpgtop.wal")

	w, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		snap, strings := testEntry(int64(1000+i*10), i)
		if err := w.Append(snap, strings); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	res, err := Recover(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if res.Truncated {
		t.Error("unexpected truncation on a clean file")
	}
	if len(res.Entries) != 5 {
		t.Fatalf("recovered %d entries, want 5", len(res.Entries))
	}
	for i, e := range res.Entries {
		wantTS := int64(1000 + i*10)
		if e.Snapshot.Timestamp != wantTS {
			t.Errorf("entry %d timestamp = %d, want %d", i, e.Snapshot.Timestamp, wantTS)
		}
		cpu := e.Snapshot.CPU()
		if cpu == nil || cpu.User != uint64(100+i) {
			t.Errorf("entry %d cpu block mismatch: %+v", i, cpu)
		}
		disks := e.Snapshot.Disks()
		if disks == nil || len(disks.Disks) != 1 {
			t.Fatalf("entry %d missing disks block", i)
		}
		if name, ok := e.Strings.Resolve(disks.Disks[0].Name); !ok || name != "nvme0n1" {
			t.Errorf("entry %d disk name = %q, ok=%v", i, name, ok)
		}
	}
}

func TestRecoverMissingFile(t *testing.T) {
	res, err := Recover(filepath.Join(t.TempDir(), "absent.wal"), DefaultOptions())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(res.Entries) != 0 || res.Truncated {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestRecoverTornHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpgtop.wal")

	w, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		snap, strings := testEntry(int64(100+i), i)
		if err := w.Append(snap, strings); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Simulate a crash mid-write: a few stray bytes after the last frame.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if _, err := f.Write([]byte{0xde, 0xad, 0xbe}); err != nil {
		t.Fatalf("write garbage failed: %v", err)
	}
	f.Close()

	res, err := Recover(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if !res.Truncated {
		t.Error("expected Truncated for torn header")
	}
	if len(res.Entries) != 3 {
		t.Errorf("recovered %d entries, want 3", len(res.Entries))
	}
}

func TestRecoverLengthBeyondFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpgtop.wal")

	w, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	snap, strings := testEntry(100, 0)
	if err := w.Append(snap, strings); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A full header whose declared length runs past the end of the file.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], 1<<20)
	binary.LittleEndian.PutUint32(header[4:8], 0xabcdef01)
	if _, err := f.Write(header[:]); err != nil {
		t.Fatalf("write header failed: %v", err)
	}
	f.Close()

	res, err := Recover(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if !res.Truncated || len(res.Entries) != 1 {
		t.Errorf("got %d entries, truncated=%v; want 1, true", len(res.Entries), res.Truncated)
	}
}

func TestRecoverCRCMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpgtop.wal")

	w, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		snap, strings := testEntry(int64(100+i), i)
		if err := w.Append(snap, strings); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Flip one bit in the last frame's payload.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wal failed: %v", err)
	}
	data[len(data)-1] ^= 0x01
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write wal failed: %v", err)
	}

	res, err := Recover(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if !res.Truncated {
		t.Error("expected Truncated after bit flip")
	}
	if len(res.Entries) != 2 {
		t.Errorf("recovered %d entries, want 2", len(res.Entries))
	}
	if res.TornOffset == 0 {
		t.Error("expected nonzero torn offset")
	}
}

func TestOpenTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpgtop.wal")

	w, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		snap, strings := testEntry(int64(100+i), i)
		if err := w.Append(snap, strings); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if _, err := f.Write([]byte{0x01, 0x02, 0x03, 0x04, 0x05}); err != nil {
		t.Fatalf("write garbage failed: %v", err)
	}
	f.Close()

	// Reopening must truncate the tail so the next frame is readable.
	w, err = Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("reopen after tear failed: %v", err)
	}
	snap, strings := testEntry(300, 9)
	if err := w.Append(snap, strings); err != nil {
		t.Fatalf("Append after tear failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	res, err := Recover(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if res.Truncated {
		t.Error("tail should have been truncated at open")
	}
	if len(res.Entries) != 3 {
		t.Fatalf("recovered %d entries, want 3", len(res.Entries))
	}
	if res.Entries[2].Snapshot.Timestamp != 300 {
		t.Errorf("last entry timestamp = %d, want 300", res.Entries[2].Snapshot.Timestamp)
	}
}

func TestAppendOversizeRejected(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.MaxEntryBytes = 64

	w := openTestWAL(t, dir, opts)
	defer w.Close()

	snap, strings := testEntry(100, 0)
	err := w.Append(snap, strings)
	if !errors.Is(err, errors.ErrEntryTooLarge) {
		t.Fatalf("expected ErrEntryTooLarge, got %v", err)
	}
	if got := w.Stats().OversizeRejected; got != 1 {
		t.Errorf("OversizeRejected = %d, want 1", got)
	}
}

func TestBeginDrainRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpgtop.wal")

	w, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	for i := 0; i < 3; i++ {
		snap, strings := testEntry(int64(100+i), i)
		if err := w.Append(snap, strings); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	d, err := w.BeginDrain()
	if err != nil {
		t.Fatalf("BeginDrain failed: %v", err)
	}
	if d.Path() != SealingPath(path) {
		t.Errorf("drain path = %q, want %q", d.Path(), SealingPath(path))
	}

	// Appends keep flowing into the fresh file during the drain.
	snap, strings := testEntry(500, 9)
	if err := w.Append(snap, strings); err != nil {
		t.Fatalf("Append during drain failed: %v", err)
	}

	sealed, err := Recover(d.Path(), DefaultOptions())
	if err != nil {
		t.Fatalf("Recover sealing failed: %v", err)
	}
	if len(sealed.Entries) != 3 {
		t.Errorf("sealing file has %d entries, want 3", len(sealed.Entries))
	}

	live, err := Recover(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Recover live failed: %v", err)
	}
	if len(live.Entries) != 1 || live.Entries[0].Snapshot.Timestamp != 500 {
		t.Errorf("live wal entries = %d, want the one post-drain entry", len(live.Entries))
	}

	if err := d.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := os.Stat(d.Path()); !os.IsNotExist(err) {
		t.Error("sealing file still present after Commit")
	}
	if got := w.Stats().Rotations; got != 1 {
		t.Errorf("Rotations = %d, want 1", got)
	}
}

func TestBeginDrainWhileDraining(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, DefaultOptions())
	defer w.Close()

	snap, strings := testEntry(100, 0)
	if err := w.Append(snap, strings); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	d, err := w.BeginDrain()
	if err != nil {
		t.Fatalf("BeginDrain failed: %v", err)
	}
	if _, err := w.BeginDrain(); !errors.Is(err, errors.ErrDraining) {
		t.Fatalf("expected ErrDraining, got %v", err)
	}
	if err := d.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func TestAbandonLeavesSealingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpgtop.wal")

	w, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	snap, strings := testEntry(100, 0)
	if err := w.Append(snap, strings); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	d, err := w.BeginDrain()
	if err != nil {
		t.Fatalf("BeginDrain failed: %v", err)
	}
	d.Abandon()

	if _, err := os.Stat(d.Path()); err != nil {
		t.Errorf("sealing file should survive Abandon: %v", err)
	}

	// The unresolved sealing file blocks the next drain.
	snap, strings = testEntry(200, 1)
	if err := w.Append(snap, strings); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := w.BeginDrain(); !errors.Is(err, errors.ErrDraining) {
		t.Fatalf("expected ErrDraining with leftover sealing file, got %v", err)
	}
}

func TestAppendAfterClose(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, DefaultOptions())
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	snap, strings := testEntry(100, 0)
	if err := w.Append(snap, strings); !errors.Is(err, errors.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestOpenRejectsBadSyncMode(t *testing.T) {
	opts := Options{SyncMode: "eventually"}
	_, err := Open(filepath.Join(t.TempDir(), "rpgtop.wal"), opts)
	if !errors.Is(err, errors.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestAsyncModeNeedsExplicitSync(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpgtop.wal")

	opts := DefaultOptions()
	opts.SyncMode = SyncAsync

	w, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	snap, strings := testEntry(100, 0)
	if err := w.Append(snap, strings); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if got := w.Stats().SyncsPerformed; got != 1 {
		t.Errorf("SyncsPerformed = %d, want 1", got)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	res, err := Recover(path, opts)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Errorf("recovered %d entries, want 1", len(res.Entries))
	}
}

func TestSizeTracksFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpgtop.wal")

	w, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	snap, strings := testEntry(100, 0)
	if err := w.Append(snap, strings); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	size := w.Size()
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() != size {
		t.Errorf("Size() = %d, file size = %d", size, info.Size())
	}
}

func BenchmarkAppendAsync(b *testing.B) {
	dir := b.TempDir()
	opts := DefaultOptions()
	opts.SyncMode = SyncAsync

	w, err := Open(filepath.Join(dir, "rpgtop.wal"), opts)
	if err != nil {
		b.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	snap, strings := testEntry(100, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := w.Append(snap, strings); err != nil {
			b.Fatal(err)
		}
	}
}
