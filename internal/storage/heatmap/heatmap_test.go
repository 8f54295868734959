package heatmap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rpgtop/rpgtop/internal/errors"
	"github.com/rpgtop/rpgtop/internal/storage/chunk"
	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// hmSnapshot builds a snapshot at ts whose counters advance by a constant
// step per index: 50% cpu busy, 50% disk busy at 10s spacing, 50% memory
// used, two active backends.
func hmSnapshot(ts int64, idx int, strings *intern.Table) *types.Snapshot {
	snap := types.NewSnapshot(ts)
	snap.Add(&types.CPUBlock{
		User:  uint64(1000 + idx*50),
		Idle:  uint64(1000 + idx*50),
		Cores: 8,
	})
	snap.Add(&types.MemoryBlock{
		Total:     100 << 20,
		Available: 50 << 20,
	})
	snap.Add(&types.DisksBlock{Disks: []types.DiskStat{
		{Name: strings.Intern("nvme0n1"), BusyMs: uint64(idx * 5000)},
	}})
	snap.Add(&types.PGActivityBlock{Backends: []types.PGBackend{
		{PID: 10, Database: strings.Intern("orders"), State: types.PGStateActive},
		{PID: 11, Database: strings.Intern("orders"), State: types.PGStateActive},
		{PID: 12, Database: strings.Intern("orders"), State: types.PGStateIdle},
	}})
	return snap
}

func scoreNear(t *testing.T, name string, got uint8, want int) {
	t.Helper()
	if int(got) < want-1 || int(got) > want+1 {
		t.Errorf("%s score = %d, want about %d", name, got, want)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	r := Record{
		BucketStart: 1700000000,
		Covered:     true,
		CPU:         200,
		Memory:      128,
		Disk:        255,
		PGActive:    3,
		Samples:     60,
	}
	buf := r.AppendBinary(nil)
	if len(buf) != RecordSize {
		t.Fatalf("record serialized to %d bytes, want %d", len(buf), RecordSize)
	}
	if got := parseRecord(buf); got != r {
		t.Errorf("round trip mismatch: %+v != %+v", got, r)
	}

	gap := Record{BucketStart: 300}
	if got := parseRecord(gap.AppendBinary(nil)); got.Covered || got != gap {
		t.Errorf("gap record round trip mismatch: %+v", got)
	}
}

func TestFileAppendRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.hm")

	h, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if err := h.Append(Record{BucketStart: 0, Covered: true, Samples: 6}, Record{BucketStart: 60}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := h.Append(Record{BucketStart: 120, Covered: true, CPU: 80, Samples: 6}); err != nil {
		t.Fatalf("second Append failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	records, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("read %d records, want 3", len(records))
	}
	if records[0].BucketStart != 0 || !records[0].Covered || records[0].Samples != 6 {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[1].BucketStart != 60 || records[1].Covered {
		t.Errorf("record 1 = %+v", records[1])
	}
	if records[2].CPU != 80 {
		t.Errorf("record 2 = %+v", records[2])
	}

	// Reopening an existing file appends after the current records.
	h, err = OpenFile(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if err := h.Append(Record{BucketStart: 180, Covered: true, Samples: 1}); err != nil {
		t.Fatalf("Append after reopen failed: %v", err)
	}
	h.Close()

	records, err = ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile after reopen failed: %v", err)
	}
	if len(records) != 4 || records[3].BucketStart != 180 {
		t.Fatalf("after reopen got %d records, last %+v", len(records), records[len(records)-1])
	}
}

func TestFileSizeIsMagicPlusRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.hm")

	h, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	records := make([]Record, 1000)
	for i := range records {
		records[i] = Record{BucketStart: int64(i * 60), Covered: true, Samples: 6}
	}
	if err := h.Append(records...); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	h.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	want := int64(len(MagicHM) + 1000*RecordSize)
	if info.Size() != want {
		t.Errorf("file size = %d, want %d", info.Size(), want)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(got) != 1000 {
		t.Errorf("read %d records, want 1000", len(got))
	}
}

func TestMisalignedFileRejectedWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.hm")
	body := append([]byte(MagicHM), make([]byte, RecordSize+1)...)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadFile(path); !errors.Is(err, errors.ErrMisaligned) {
		t.Fatalf("ReadFile: expected ErrMisaligned, got %v", err)
	}
	if _, err := OpenFile(path); !errors.Is(err, errors.ErrMisaligned) {
		t.Fatalf("OpenFile: expected ErrMisaligned, got %v", err)
	}

	_, err := ReadFile(path)
	if !errors.IsFormat(err) {
		t.Error("misalignment should classify as a format error")
	}
}

func TestBadMagicRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.hm")
	body := append([]byte("XX03"), make([]byte, RecordSize)...)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); !errors.Is(err, errors.ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestTooShortRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.hm")
	if err := os.WriteFile(path, []byte("HM"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); !errors.Is(err, errors.ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestBuilderScores(t *testing.T) {
	strings := intern.New()
	b := NewBuilder(60 * time.Second)

	// Two full 60s buckets at 10s spacing.
	for i := 0; i < 12; i++ {
		b.Observe(hmSnapshot(int64(i*10), i, strings))
	}

	records := b.FlushCompletedBefore(120)
	if len(records) != 2 {
		t.Fatalf("flushed %d records, want 2", len(records))
	}
	for i, r := range records {
		if r.BucketStart != int64(i*60) {
			t.Errorf("record %d bucket = %d, want %d", i, r.BucketStart, i*60)
		}
		if !r.Covered {
			t.Errorf("record %d not covered", i)
		}
		if r.Samples != 6 {
			t.Errorf("record %d samples = %d, want 6", i, r.Samples)
		}
		scoreNear(t, "memory", r.Memory, 50)
		scoreNear(t, "disk", r.Disk, 50)
		if r.PGActive != 2 {
			t.Errorf("record %d pg_active = %d, want 2", i, r.PGActive)
		}
	}
	// The first snapshot has no predecessor, so only the first bucket's
	// cpu distribution is one sample short; both should still sit at 50.
	scoreNear(t, "cpu bucket 0", records[0].CPU, 50)
	scoreNear(t, "cpu bucket 1", records[1].CPU, 50)
}

func TestBuilderEmitsGapRecords(t *testing.T) {
	strings := intern.New()
	b := NewBuilder(60 * time.Second)

	for i := 0; i < 6; i++ {
		b.Observe(hmSnapshot(int64(i*10), i, strings))
	}
	// Monitor silent for four buckets, then resumes.
	for i := 0; i < 6; i++ {
		b.Observe(hmSnapshot(int64(300+i*10), 100+i, strings))
	}

	records := b.FlushCompletedBefore(360)
	if len(records) != 6 {
		t.Fatalf("flushed %d records, want 6", len(records))
	}
	wantCovered := []bool{true, false, false, false, false, true}
	for i, r := range records {
		if r.BucketStart != int64(i*60) {
			t.Errorf("record %d bucket = %d, want %d", i, r.BucketStart, i*60)
		}
		if r.Covered != wantCovered[i] {
			t.Errorf("record %d covered = %v, want %v", i, r.Covered, wantCovered[i])
		}
		if !r.Covered && (r.CPU != 0 || r.Samples != 0) {
			t.Errorf("gap record %d carries scores: %+v", i, r)
		}
	}
}

func TestBuilderSeedDropsOlderBuckets(t *testing.T) {
	strings := intern.New()
	b := NewBuilder(60 * time.Second)
	b.Seed(120)

	// Bucket 60 is already in the file; its observation must vanish.
	b.Observe(hmSnapshot(70, 0, strings))
	b.Observe(hmSnapshot(130, 1, strings))

	records := b.FlushCompletedBefore(240)
	if len(records) != 2 {
		t.Fatalf("flushed %d records, want 2", len(records))
	}
	if records[0].BucketStart != 120 || !records[0].Covered {
		t.Errorf("record 0 = %+v, want covered bucket 120", records[0])
	}
	if records[1].BucketStart != 180 || records[1].Covered {
		t.Errorf("record 1 = %+v, want gap bucket 180", records[1])
	}
}

func TestBuilderNeverReEmits(t *testing.T) {
	strings := intern.New()
	b := NewBuilder(60 * time.Second)

	for i := 0; i < 6; i++ {
		b.Observe(hmSnapshot(int64(i*10), i, strings))
	}
	if got := b.FlushCompletedBefore(60); len(got) != 1 {
		t.Fatalf("first flush returned %d records, want 1", len(got))
	}
	if got := b.FlushCompletedBefore(60); len(got) != 0 {
		t.Errorf("second flush returned %d records, want 0", len(got))
	}
}

func TestFlushAllIncludesPartialBucket(t *testing.T) {
	strings := intern.New()
	b := NewBuilder(60 * time.Second)

	b.Observe(hmSnapshot(10, 0, strings))
	b.Observe(hmSnapshot(20, 1, strings))

	records := b.FlushAll()
	if len(records) != 1 {
		t.Fatalf("FlushAll returned %d records, want 1", len(records))
	}
	r := records[0]
	if r.BucketStart != 0 || !r.Covered || r.Samples != 2 {
		t.Errorf("record = %+v", r)
	}
	scoreNear(t, "memory", r.Memory, 50)
	if r.PGActive != 2 {
		t.Errorf("pg_active = %d, want 2", r.PGActive)
	}
	if b.Pending() != 0 {
		t.Errorf("Pending = %d after FlushAll", b.Pending())
	}
}

func TestSingleSnapshotGaugesOnly(t *testing.T) {
	strings := intern.New()
	b := NewBuilder(60 * time.Second)

	b.Observe(hmSnapshot(10, 5, strings))
	records := b.FlushAll()
	if len(records) != 1 {
		t.Fatalf("FlushAll returned %d records, want 1", len(records))
	}
	r := records[0]
	if r.CPU != 0 {
		t.Errorf("cpu score = %d without a delta, want 0", r.CPU)
	}
	scoreNear(t, "memory", r.Memory, 50)
	if r.Samples != 1 {
		t.Errorf("samples = %d, want 1", r.Samples)
	}
}

func TestBuildFromChunks(t *testing.T) {
	dir := t.TempDir()
	strings := intern.New()

	var first, second []*types.Snapshot
	for i := 0; i < 6; i++ {
		first = append(first, hmSnapshot(int64(i*10), i, strings))
	}
	for i := 6; i < 12; i++ {
		second = append(second, hmSnapshot(int64(i*10), i, strings))
	}
	if _, err := chunk.Seal(filepath.Join(dir, chunk.FileName(0, 50)), first, strings, chunk.DefaultWriterOptions()); err != nil {
		t.Fatalf("seal first chunk: %v", err)
	}
	if _, err := chunk.Seal(filepath.Join(dir, chunk.FileName(60, 110)), second, strings, chunk.DefaultWriterOptions()); err != nil {
		t.Fatalf("seal second chunk: %v", err)
	}
	// A corrupt file in the directory is skipped, not fatal.
	if err := os.WriteFile(filepath.Join(dir, "zzz-garbage.rpg"), []byte("not a chunk"), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := BuildFromChunks(dir, 60*time.Second)
	if err != nil {
		t.Fatalf("BuildFromChunks failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("rebuilt %d records, want 2", len(records))
	}
	for i, r := range records {
		if r.BucketStart != int64(i*60) || !r.Covered || r.Samples != 6 {
			t.Errorf("record %d = %+v", i, r)
		}
		scoreNear(t, "memory", r.Memory, 50)
	}
	// The delta across the chunk boundary keeps the second bucket's cpu
	// distribution full.
	scoreNear(t, "cpu bucket 1", records[1].CPU, 50)
}
