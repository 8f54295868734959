package chunk

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/rpgtop/rpgtop/internal/errors"
	"github.com/rpgtop/rpgtop/internal/storage/compress"
	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// WriterOptions configures Seal.
type WriterOptions struct {
	// CompressionLevel is the zstd level for snapshot frames.
	// Default: 3
	CompressionLevel int

	// TrainDictionary enables training a shared zstd dictionary from the
	// serialized snapshots. Consecutive snapshots repeat most of their
	// structure, so the dictionary pays for itself quickly. Training
	// failure or too few samples falls back to plain compression.
	TrainDictionary bool

	// DictCapacity bounds the trained dictionary size in bytes.
	// Default: 64KB
	DictCapacity int
}

// DefaultWriterOptions returns default seal options.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		CompressionLevel: 3,
		TrainDictionary:  true,
		DictCapacity:     64 * 1024,
	}
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.CompressionLevel <= 0 {
		o.CompressionLevel = 3
	}
	if o.DictCapacity <= 0 {
		o.DictCapacity = 64 * 1024
	}
	return o
}

// SealResult reports what Seal wrote.
type SealResult struct {
	Path            string
	Snapshots       int
	FirstTimestamp  int64
	LastTimestamp   int64
	RawBytes        int64
	CompressedBytes int64
	DictBytes       int
	FileBytes       int64
}

// Seal writes snapshots and their merged string table to a chunk file.
// The file appears atomically: everything goes to <path>.tmp first, and
// the rename only happens after an fsync, so a crash leaves either the
// complete chunk or no chunk. Callers register the chunk only after Seal
// returns nil.
func Seal(path string, snaps []*types.Snapshot, strings *intern.Table, opts WriterOptions) (*SealResult, error) {
	if len(snaps) == 0 {
		return nil, errors.New("chunk: no snapshots to seal")
	}
	if len(snaps) > MaxSnapshots {
		return nil, fmt.Errorf("chunk: %d snapshots exceeds format limit %d", len(snaps), MaxSnapshots)
	}
	opts = opts.withDefaults()
	if strings == nil {
		strings = intern.New()
	}

	// The index is timestamp-sorted; entries usually arrive that way
	// already, so the stable sort is a near no-op.
	ordered := make([]*types.Snapshot, len(snaps))
	copy(ordered, snaps)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	raw := make([][]byte, len(ordered))
	var rawBytes int64
	for i, s := range ordered {
		encoded, err := types.EncodeSnapshot(nil, s)
		if err != nil {
			return nil, fmt.Errorf("chunk: encode snapshot %d: %w", i, err)
		}
		raw[i] = encoded
		if len(raw[i]) > math.MaxUint32 {
			return nil, fmt.Errorf("chunk: snapshot %d serializes to %d bytes, exceeds format limit", i, len(raw[i]))
		}
		rawBytes += int64(len(raw[i]))
	}

	var dict []byte
	if opts.TrainDictionary {
		if d, err := compress.TrainDict(raw, opts.DictCapacity); err == nil {
			dict = d
		}
	}

	var frameCodec compress.Codec
	if dict != nil {
		dc, err := compress.NewZstdDict(dict, opts.CompressionLevel)
		if err != nil {
			dict = nil
		} else {
			defer dc.Close()
			frameCodec = dc
		}
	}
	if frameCodec == nil {
		lc, err := compress.NewZstdLevel(opts.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("chunk: build codec: %w", err)
		}
		defer lc.Close()
		frameCodec = lc
	}

	offset := uint64(HeaderSize + len(ordered)*IndexEntrySize)
	index := make([]IndexEntry, len(ordered))
	frames := make([][]byte, len(ordered))
	var compressedBytes int64
	for i := range ordered {
		comp, err := frameCodec.Compress(raw[i])
		if err != nil {
			return nil, fmt.Errorf("chunk: compress snapshot %d: %w", i, err)
		}
		frames[i] = comp
		index[i] = IndexEntry{
			Offset:          offset,
			CompressedLen:   uint64(len(comp)),
			Timestamp:       ordered[i].Timestamp,
			UncompressedLen: uint32(len(raw[i])),
		}
		offset += uint64(len(comp))
		compressedBytes += int64(len(comp))
	}

	var dictOffset uint64
	if len(dict) > 0 {
		dictOffset = offset
		offset += uint64(len(dict))
	}

	// The interner compresses on its own, never against the dictionary:
	// it must stay readable even if dictionary support changes.
	internerComp, err := compress.NewZstdCodec().Compress(strings.AppendBinary(nil))
	if err != nil {
		return nil, fmt.Errorf("chunk: compress interner: %w", err)
	}
	internerOffset := offset
	offset += uint64(len(internerComp))

	header := Header{
		SnapshotCount:  uint16(len(ordered)),
		InternerOffset: internerOffset,
		InternerLen:    uint64(len(internerComp)),
		DictOffset:     dictOffset,
		DictLen:        uint64(len(dict)),
	}

	if err := writeFile(path, &header, index, frames, dict, internerComp); err != nil {
		return nil, err
	}

	return &SealResult{
		Path:            path,
		Snapshots:       len(ordered),
		FirstTimestamp:  index[0].Timestamp,
		LastTimestamp:   index[len(index)-1].Timestamp,
		RawBytes:        rawBytes,
		CompressedBytes: compressedBytes,
		DictBytes:       len(dict),
		FileBytes:       int64(offset),
	}, nil
}

// writeFile assembles the chunk at <path>.tmp and renames it into place.
func writeFile(path string, header *Header, index []IndexEntry, frames [][]byte, dict, internerComp []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("chunk: create dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("chunk: create %s: %w", tmp, err)
	}

	fail := func(op string, err error) error {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("chunk: %s: %w", op, err)
	}

	bw := bufio.NewWriterSize(f, 256*1024)

	head := header.AppendBinary(make([]byte, 0, HeaderSize+len(index)*IndexEntrySize))
	for _, e := range index {
		head = appendIndexEntry(head, e)
	}
	if _, err := bw.Write(head); err != nil {
		return fail("write header", err)
	}
	for i, frame := range frames {
		if _, err := bw.Write(frame); err != nil {
			return fail(fmt.Sprintf("write frame %d", i), err)
		}
	}
	if len(dict) > 0 {
		if _, err := bw.Write(dict); err != nil {
			return fail("write dictionary", err)
		}
	}
	if _, err := bw.Write(internerComp); err != nil {
		return fail("write interner", err)
	}

	if err := bw.Flush(); err != nil {
		return fail("flush", err)
	}
	if err := f.Sync(); err != nil {
		return fail("fsync", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chunk: close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chunk: rename into place: %w", err)
	}
	if err := syncDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("chunk: sync dir: %w", err)
	}
	return nil
}

// syncDir fsyncs a directory so a rename inside it survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
