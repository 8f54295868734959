package chunk

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rpgtop/rpgtop/internal/errors"
	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// chunkSnapshot builds a snapshot with every block kind populated, varied
// by seq. Strings go through the shared table the way the manager merges
// them before sealing.
func chunkSnapshot(ts int64, seq int, strings *intern.Table) *types.Snapshot {
	snap := types.NewSnapshot(ts)
	snap.Add(&types.CPUBlock{
		User:   uint64(1000 + seq*7),
		System: uint64(400 + seq*3),
		Idle:   uint64(8000 + seq),
		Iowait: uint64(seq),
		Cores:  16,
		Load1:  0.5 + float64(seq)*0.01,
	})
	snap.Add(&types.MemoryBlock{
		Total:     32 << 30,
		Free:      uint64(4<<30 + seq),
		Available: 12 << 30,
		Cached:    8 << 30,
	})
	snap.Add(&types.DisksBlock{Disks: []types.DiskStat{
		{Name: strings.Intern("nvme0n1"), ReadOps: uint64(100 + seq), WriteOps: uint64(80 + seq), BusyMs: uint64(50 + seq)},
		{Name: strings.Intern("sda"), ReadOps: uint64(10 + seq), BusyMs: uint64(seq)},
	}})
	snap.Add(&types.ProcessesBlock{Processes: []types.Process{
		{PID: 1, Command: strings.Intern("systemd"), User: strings.Intern("root"), State: 1, RSS: 4 << 20},
		{PID: int32(5000 + seq), Command: strings.Intern("postgres"), User: strings.Intern("postgres"), State: 2, RSS: 256 << 20, UTime: uint64(seq * 10)},
	}})
	snap.Add(&types.PGActivityBlock{Backends: []types.PGBackend{
		{
			PID:             int32(5001 + seq),
			Database:        strings.Intern("orders"),
			User:            strings.Intern("app"),
			ApplicationName: strings.Intern("api-server"),
			State:           types.PGStateActive,
			Query:           strings.Intern("SELECT * FROM orders WHERE id = $1"),
			QueryStart:      ts - 1,
		},
	}})
	return snap
}

// buildTestChunk seals n snapshots at 10s spacing starting at startTS.
func buildTestChunk(t *testing.T, n int, startTS int64, opts WriterOptions) (string, []*types.Snapshot, *intern.Table, *SealResult) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "000100.rpg")
	strings := intern.New()
	snaps := make([]*types.Snapshot, n)
	for i := range snaps {
		snaps[i] = chunkSnapshot(startTS+int64(i)*10, i, strings)
	}

	res, err := Seal(path, snaps, strings, opts)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	return path, snaps, strings, res
}

func TestSealOpenRoundTrip(t *testing.T) {
	for _, dict := range []bool{true, false} {
		name := "plain"
		if dict {
			name = "dictionary"
		}
		t.Run(name, func(t *testing.T) {
			opts := DefaultWriterOptions()
			opts.TrainDictionary = dict

			path, snaps, strings, res := buildTestChunk(t, 12, 1000, opts)
			if res.Snapshots != 12 {
				t.Errorf("SealResult.Snapshots = %d, want 12", res.Snapshots)
			}
			if res.FirstTimestamp != 1000 || res.LastTimestamp != 1110 {
				t.Errorf("time range = [%d,%d], want [1000,1110]", res.FirstTimestamp, res.LastTimestamp)
			}

			r, err := Open(path)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer r.Close()

			if r.SnapshotCount() != 12 {
				t.Fatalf("SnapshotCount = %d, want 12", r.SnapshotCount())
			}
			first, last := r.TimeRange()
			if first != 1000 || last != 1110 {
				t.Errorf("TimeRange = [%d,%d], want [1000,1110]", first, last)
			}

			for i := range snaps {
				got, err := r.ReadSnapshot(i)
				if err != nil {
					t.Fatalf("ReadSnapshot(%d) failed: %v", i, err)
				}
				if !reflect.DeepEqual(got, snaps[i]) {
					t.Errorf("snapshot %d round trip mismatch", i)
				}
			}

			table, err := r.Interner()
			if err != nil {
				t.Fatalf("Interner failed: %v", err)
			}
			if table.Len() != strings.Len() {
				t.Errorf("interner has %d entries, want %d", table.Len(), strings.Len())
			}
			if got, ok := table.Resolve(intern.Hash("postgres")); !ok || got != "postgres" {
				t.Errorf("Resolve(postgres) = %q, %v", got, ok)
			}
		})
	}
}

func TestChunkFileLayout(t *testing.T) {
	path, _, _, _ := buildTestChunk(t, 5, 100, DefaultWriterOptions())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read chunk failed: %v", err)
	}
	if len(data) < HeaderSize+5*IndexEntrySize {
		t.Fatalf("file only %d bytes", len(data))
	}

	if string(data[0:4]) != "RPG3" {
		t.Errorf("magic = %q, want RPG3", data[0:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != 3 {
		t.Errorf("version = %d, want 3", v)
	}
	if n := binary.LittleEndian.Uint16(data[6:8]); n != 5 {
		t.Errorf("snapshot count = %d, want 5", n)
	}
	for i := 40; i < 48; i++ {
		if data[i] != 0 {
			t.Errorf("reserved byte %d = %#x, want 0", i-40, data[i])
		}
	}

	// Index: timestamps ascend, offsets strictly increase, frames abut.
	var prev IndexEntry
	for i := 0; i < 5; i++ {
		off := HeaderSize + i*IndexEntrySize
		e := IndexEntry{
			Offset:          binary.LittleEndian.Uint64(data[off : off+8]),
			CompressedLen:   binary.LittleEndian.Uint64(data[off+8 : off+16]),
			Timestamp:       int64(binary.LittleEndian.Uint64(data[off+16 : off+24])),
			UncompressedLen: binary.LittleEndian.Uint32(data[off+24 : off+28]),
		}
		if e.Timestamp != int64(100+i*10) {
			t.Errorf("entry %d timestamp = %d, want %d", i, e.Timestamp, 100+i*10)
		}
		if i == 0 {
			if e.Offset != uint64(HeaderSize+5*IndexEntrySize) {
				t.Errorf("first frame offset = %d, want %d", e.Offset, HeaderSize+5*IndexEntrySize)
			}
		} else {
			if e.Offset != prev.Offset+prev.CompressedLen {
				t.Errorf("entry %d offset = %d, want %d", i, e.Offset, prev.Offset+prev.CompressedLen)
			}
		}
		prev = e
	}

	// Interner region sits inside the file where the header claims.
	internerOff := binary.LittleEndian.Uint64(data[8:16])
	internerLen := binary.LittleEndian.Uint64(data[16:24])
	if internerLen == 0 || internerOff+internerLen != uint64(len(data)) {
		t.Errorf("interner region [%d,%d) does not end the %d-byte file", internerOff, internerOff+internerLen, len(data))
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after seal")
	}
}

func TestSealSortsByTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out-of-order.rpg")
	strings := intern.New()
	snaps := []*types.Snapshot{
		chunkSnapshot(300, 2, strings),
		chunkSnapshot(100, 0, strings),
		chunkSnapshot(200, 1, strings),
	}

	if _, err := Seal(path, snaps, strings, DefaultWriterOptions()); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	want := []int64{100, 200, 300}
	for i, ts := range want {
		snap, err := r.ReadSnapshot(i)
		if err != nil {
			t.Fatalf("ReadSnapshot(%d) failed: %v", i, err)
		}
		if snap.Timestamp != ts {
			t.Errorf("snapshot %d timestamp = %d, want %d", i, snap.Timestamp, ts)
		}
	}
}

func TestSealRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.rpg")
	if _, err := Seal(path, nil, intern.New(), DefaultWriterOptions()); err == nil {
		t.Fatal("expected error sealing zero snapshots")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not exist after rejected seal")
	}
}

func TestFindByTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "find.rpg")
	strings := intern.New()
	snaps := []*types.Snapshot{
		chunkSnapshot(10, 0, strings),
		chunkSnapshot(20, 1, strings),
		chunkSnapshot(30, 2, strings),
	}
	if _, err := Seal(path, snaps, strings, DefaultWriterOptions()); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	tests := []struct {
		ts     int64
		wantI  int
		wantOK bool
	}{
		{25, 1, true},
		{5, 0, false},
		{30, 2, true},
		{10, 0, true},
		{35, 2, true},
		{20, 1, true},
	}
	for _, tt := range tests {
		i, ok := r.FindByTime(tt.ts)
		if ok != tt.wantOK || (ok && i != tt.wantI) {
			t.Errorf("FindByTime(%d) = (%d, %v), want (%d, %v)", tt.ts, i, ok, tt.wantI, tt.wantOK)
		}
	}
}

func TestOpenTooShort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.rpg")
	if err := os.WriteFile(path, []byte("RPG3 but way too short"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if !errors.Is(err, errors.ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
	if !errors.IsFormat(err) {
		t.Error("short header should classify as a format error")
	}
}

func TestOpenBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "magic.rpg")
	data := make([]byte, HeaderSize)
	copy(data, "NOPE")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if !errors.Is(err, errors.ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestOpenUnsupportedVersion(t *testing.T) {
	path, _, _, _ := buildTestChunk(t, 3, 100, DefaultWriterOptions())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint16(data[4:6], 9)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Open(path)
	if !errors.Is(err, errors.ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestOpenTruncatedIndex(t *testing.T) {
	path, _, _, _ := buildTestChunk(t, 3, 100, DefaultWriterOptions())

	if err := os.Truncate(path, HeaderSize+IndexEntrySize); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if !errors.Is(err, errors.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if !errors.IsTruncation(err) {
		t.Error("truncated index should classify as truncation")
	}
}

func TestOpenIndexOutOfOrder(t *testing.T) {
	path, _, _, _ := buildTestChunk(t, 3, 100, DefaultWriterOptions())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Give the second entry the first entry's offset.
	copy(data[HeaderSize+IndexEntrySize:HeaderSize+IndexEntrySize+8], data[HeaderSize:HeaderSize+8])
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Open(path)
	if !errors.Is(err, errors.ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
	if !errors.IsIntegrity(err) {
		t.Error("index disorder should classify as an integrity error")
	}
}

func TestOpenFramePastEOF(t *testing.T) {
	path, _, _, _ := buildTestChunk(t, 3, 100, DefaultWriterOptions())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Inflate the last entry's compressed length far past the file end.
	lenAt := HeaderSize + 2*IndexEntrySize + 8
	binary.LittleEndian.PutUint64(data[lenAt:lenAt+8], 1<<40)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Open(path)
	if !errors.Is(err, errors.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestCorruptFrameIsIsolated(t *testing.T) {
	path, _, _, _ := buildTestChunk(t, 10, 100, DefaultWriterOptions())

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	target := r.Index()[4]
	r.Close()

	// Destroy the frame's leading magic so decompression cannot succeed.
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte{0, 0, 0, 0}, int64(target.Offset)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	r, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer r.Close()

	_, err = r.ReadSnapshot(4)
	if !errors.Is(err, errors.ErrDecompress) {
		t.Fatalf("expected ErrDecompress for snapshot 4, got %v", err)
	}
	if !errors.IsCodec(err) {
		t.Error("corrupt frame should classify as a codec error")
	}

	// Every other snapshot stays readable.
	for _, i := range []int{0, 3, 5, 9} {
		if _, err := r.ReadSnapshot(i); err != nil {
			t.Errorf("ReadSnapshot(%d) after isolated corruption: %v", i, err)
		}
	}
}

func TestReadSnapshotBounds(t *testing.T) {
	path, _, _, _ := buildTestChunk(t, 3, 100, DefaultWriterOptions())

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	for _, i := range []int{-1, 3, 100} {
		_, err := r.ReadSnapshot(i)
		if !errors.Is(err, errors.ErrOutOfRange) {
			t.Errorf("ReadSnapshot(%d): expected ErrOutOfRange, got %v", i, err)
		}
		if !errors.IsBounds(err) {
			t.Errorf("ReadSnapshot(%d) should classify as a bounds error", i)
		}
	}
}

func TestTwoIndependentReaders(t *testing.T) {
	path, snaps, _, _ := buildTestChunk(t, 6, 100, DefaultWriterOptions())

	r1, err := Open(path)
	if err != nil {
		t.Fatalf("Open first reader failed: %v", err)
	}
	defer r1.Close()
	r2, err := Open(path)
	if err != nil {
		t.Fatalf("Open second reader failed: %v", err)
	}
	defer r2.Close()

	for i := range snaps {
		a, err := r1.ReadSnapshot(i)
		if err != nil {
			t.Fatalf("reader 1 snapshot %d: %v", i, err)
		}
		b, err := r2.ReadSnapshot(i)
		if err != nil {
			t.Fatalf("reader 2 snapshot %d: %v", i, err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Errorf("readers disagree on snapshot %d", i)
		}
	}
}

func TestInternerCached(t *testing.T) {
	path, _, _, _ := buildTestChunk(t, 3, 100, DefaultWriterOptions())

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	a, err := r.Interner()
	if err != nil {
		t.Fatalf("Interner failed: %v", err)
	}
	b, err := r.Interner()
	if err != nil {
		t.Fatalf("second Interner failed: %v", err)
	}
	if a != b {
		t.Error("interner not cached across calls")
	}
}

func TestReservedBytesPreserved(t *testing.T) {
	path, _, _, _ := buildTestChunk(t, 3, 100, DefaultWriterOptions())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	copy(data[40:48], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	want := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	if r.Header().Reserved != want {
		t.Errorf("Reserved = %v, want %v", r.Header().Reserved, want)
	}
	if _, err := r.ReadSnapshot(0); err != nil {
		t.Errorf("read with nonzero reserved bytes failed: %v", err)
	}
}

func BenchmarkSeal(b *testing.B) {
	strings := intern.New()
	snaps := make([]*types.Snapshot, 60)
	for i := range snaps {
		snaps[i] = chunkSnapshot(int64(i*10), i, strings)
	}
	dir := b.TempDir()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		path := filepath.Join(dir, "bench.rpg")
		if _, err := Seal(path, snaps, strings, DefaultWriterOptions()); err != nil {
			b.Fatal(err)
		}
		os.Remove(path)
	}
}

func BenchmarkReadSnapshot(b *testing.B) {
	strings := intern.New()
	snaps := make([]*types.Snapshot, 60)
	for i := range snaps {
		snaps[i] = chunkSnapshot(int64(i*10), i, strings)
	}
	path := filepath.Join(b.TempDir(), "bench.rpg")
	if _, err := Seal(path, snaps, strings, DefaultWriterOptions()); err != nil {
		b.Fatal(err)
	}
	r, err := Open(path)
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.ReadSnapshot(i % 60); err != nil {
			b.Fatal(err)
		}
	}
}
