package chunk

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/rpgtop/rpgtop/internal/errors"
	"github.com/rpgtop/rpgtop/internal/storage/compress"
	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// Reader reads a sealed chunk. The header and index are validated once at
// open; snapshot frames are read and decompressed on demand. A Reader is
// safe for concurrent use, and independent Readers on the same file do
// not share any state.
type Reader struct {
	path   string
	file   *os.File
	size   int64
	header Header
	index  []IndexEntry

	mu        sync.Mutex
	dictCodec *compress.ZstdDict
	interner  *intern.Table
}

// Open opens a chunk file and validates its header and index.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chunk %s: %w", path, err)
	}

	r, err := newReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat chunk: %w", err)
	}
	size := info.Size()

	headBuf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headBuf, 0); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.Wrapf(errors.ErrTooShort, "chunk header needs %d bytes, file has %d", HeaderSize, size)
		}
		return nil, fmt.Errorf("read chunk header: %w", err)
	}
	header, err := ParseHeader(headBuf)
	if err != nil {
		return nil, err
	}

	indexBuf := make([]byte, int(header.SnapshotCount)*IndexEntrySize)
	if len(indexBuf) > 0 {
		if _, err := f.ReadAt(indexBuf, HeaderSize); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, errors.Wrapf(errors.ErrTruncated, "index needs %d bytes past header, file has %d", len(indexBuf), size)
			}
			return nil, fmt.Errorf("read chunk index: %w", err)
		}
	}
	index, err := parseIndex(indexBuf, int(header.SnapshotCount))
	if err != nil {
		return nil, err
	}
	if err := validateIndex(index, size); err != nil {
		return nil, err
	}
	if err := validateRegion("interner", header.InternerOffset, header.InternerLen, size); err != nil {
		return nil, err
	}
	if err := validateRegion("dictionary", header.DictOffset, header.DictLen, size); err != nil {
		return nil, err
	}

	return &Reader{
		path:   path,
		file:   f,
		size:   size,
		header: *header,
		index:  index,
	}, nil
}

// Path returns the chunk file path.
func (r *Reader) Path() string {
	return r.path
}

// FileSize returns the chunk file size in bytes.
func (r *Reader) FileSize() int64 {
	return r.size
}

// Header returns a copy of the parsed header.
func (r *Reader) Header() Header {
	return r.header
}

// SnapshotCount returns the number of snapshots in the chunk.
func (r *Reader) SnapshotCount() int {
	return len(r.index)
}

// Index returns a copy of the snapshot index.
func (r *Reader) Index() []IndexEntry {
	out := make([]IndexEntry, len(r.index))
	copy(out, r.index)
	return out
}

// TimeRange returns the first and last snapshot timestamps. A chunk with
// no snapshots returns (0, 0).
func (r *Reader) TimeRange() (first, last int64) {
	if len(r.index) == 0 {
		return 0, 0
	}
	return r.index[0].Timestamp, r.index[len(r.index)-1].Timestamp
}

// FindByTime returns the position of the snapshot with the greatest
// timestamp not after ts. The second return is false when ts precedes
// the first snapshot.
func (r *Reader) FindByTime(ts int64) (int, bool) {
	if len(r.index) == 0 || ts < r.index[0].Timestamp {
		return 0, false
	}
	i := sort.Search(len(r.index), func(i int) bool {
		return r.index[i].Timestamp > ts
	})
	return i - 1, true
}

// readRange reads one region of the file.
func (r *Reader) readRange(off uint64, length int64) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := r.file.ReadAt(buf, int64(off)); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.Wrapf(errors.ErrTruncated, "range [%d,%d) past end of file", off, off+uint64(length))
		}
		return nil, fmt.Errorf("read chunk range: %w", err)
	}
	return buf, nil
}

// dictionary returns the frame codec for dictionary-compressed chunks,
// building it on first use. Returns nil when the chunk has no dictionary.
func (r *Reader) dictionary() (*compress.ZstdDict, error) {
	if r.header.DictLen == 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dictCodec != nil {
		return r.dictCodec, nil
	}

	dict, err := r.readRange(r.header.DictOffset, int64(r.header.DictLen))
	if err != nil {
		return nil, errors.Wrap(err, "read dictionary")
	}
	dc, err := compress.NewZstdDict(dict, 3)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDecompress, "load dictionary: %v", err)
	}
	r.dictCodec = dc
	return dc, nil
}

// ReadSnapshotBytes returns the decompressed serialized form of snapshot i.
func (r *Reader) ReadSnapshotBytes(i int) ([]byte, error) {
	if i < 0 || i >= len(r.index) {
		return nil, errors.Wrapf(errors.ErrOutOfRange, "snapshot %d of %d", i, len(r.index))
	}
	e := r.index[i]

	comp, err := r.readRange(e.Offset, int64(e.CompressedLen))
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot %d", i)
	}

	dc, err := r.dictionary()
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot %d", i)
	}

	var data []byte
	if dc != nil {
		r.mu.Lock()
		data, err = dc.Decompress(comp)
		r.mu.Unlock()
	} else {
		data, err = compress.NewZstdCodec().Decompress(comp)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDecompress, "snapshot %d: %v", i, err)
	}
	if len(data) != int(e.UncompressedLen) {
		return nil, errors.Wrapf(errors.ErrDecompress, "snapshot %d decompressed to %d bytes, index declares %d", i, len(data), e.UncompressedLen)
	}
	return data, nil
}

// ReadSnapshot reads and decodes snapshot i. A failure here is scoped to
// this one snapshot; the rest of the chunk stays readable.
func (r *Reader) ReadSnapshot(i int) (*types.Snapshot, error) {
	data, err := r.ReadSnapshotBytes(i)
	if err != nil {
		return nil, err
	}
	snap, err := types.DecodeSnapshot(data)
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot %d", i)
	}
	return snap, nil
}

// Interner returns the chunk's string table, reading and caching it on
// first use.
func (r *Reader) Interner() (*intern.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.interner != nil {
		return r.interner, nil
	}
	if r.header.InternerLen == 0 {
		r.interner = intern.New()
		return r.interner, nil
	}

	comp, err := r.readRange(r.header.InternerOffset, int64(r.header.InternerLen))
	if err != nil {
		return nil, errors.Wrap(err, "read interner")
	}
	data, err := compress.NewZstdCodec().Decompress(comp)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDecompress, "interner: %v", err)
	}
	table, err := intern.Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "interner")
	}
	r.interner = table
	return table, nil
}

// Close closes the underlying file and releases the dictionary codec.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.dictCodec != nil {
		r.dictCodec.Close()
		r.dictCodec = nil
	}
	r.mu.Unlock()
	return r.file.Close()
}
