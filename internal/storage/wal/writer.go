// Package wal implements the write-ahead log that makes snapshots durable
// between chunk seals. The log is a single append-only file of CRC-framed
// entries; sealing rotates it aside so appends never wait on a seal.
package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rpgtop/rpgtop/internal/errors"
	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// Sync modes.
const (
	// SyncFsync flushes and fsyncs after every append.
	SyncFsync = "fsync"
	// SyncAsync leaves appends buffered; the owner calls Sync on its own
	// schedule and accepts losing the unsynced tail on a crash.
	SyncAsync = "async"
)

// Options configures the WAL.
type Options struct {
	// SyncMode controls durability per append: "fsync" (default) or
	// "async".
	SyncMode string

	// MaxEntryBytes bounds a single entry payload.
	// Default: 256 MiB
	MaxEntryBytes int

	// BufferSize is the size of the write buffer.
	// Default: 64KB
	BufferSize int
}

// DefaultOptions returns default WAL options.
func DefaultOptions() Options {
	return Options{
		SyncMode:      SyncFsync,
		MaxEntryBytes: DefaultMaxEntryBytes,
		BufferSize:    64 * 1024,
	}
}

func (o Options) withDefaults() Options {
	if o.SyncMode == "" {
		o.SyncMode = SyncFsync
	}
	if o.MaxEntryBytes <= 0 {
		o.MaxEntryBytes = DefaultMaxEntryBytes
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 64 * 1024
	}
	return o
}

// Stats holds WAL statistics.
type Stats struct {
	EntriesAppended  int64
	BytesWritten     int64
	SyncsPerformed   int64
	Rotations        int64
	OversizeRejected int64
}

// WAL is an append-only log of snapshot entries. All methods are safe for
// concurrent use.
type WAL struct {
	mu sync.Mutex

	path string
	file *os.File
	bw   *bufio.Writer
	size int64

	opts    Options
	scratch []byte

	draining bool
	closed   bool

	stats Stats
}

// SealingPath returns the path a draining WAL file is rotated to.
func SealingPath(path string) string {
	return path + ".sealing"
}

// Open opens or creates the WAL at path and positions the append cursor
// after the last valid frame. A torn tail left by a crash is truncated
// away so new frames are never written behind unreadable bytes.
func Open(path string, opts Options) (*WAL, error) {
	opts = opts.withDefaults()
	if opts.SyncMode != SyncFsync && opts.SyncMode != SyncAsync {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "wal sync mode %q", opts.SyncMode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat wal: %w", err)
	}

	valid, err := validPrefixLen(f, info.Size(), int64(opts.MaxEntryBytes))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("scan wal %s: %w", path, err)
	}
	if valid < info.Size() {
		if err := f.Truncate(valid); err != nil {
			f.Close()
			return nil, fmt.Errorf("truncate torn wal tail: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, fmt.Errorf("sync wal after truncate: %w", err)
		}
	}
	if _, err := f.Seek(valid, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek wal end: %w", err)
	}

	return &WAL{
		path: path,
		file: f,
		bw:   bufio.NewWriterSize(f, opts.BufferSize),
		size: valid,
		opts: opts,
	}, nil
}

// Append makes one snapshot durable. The strings table carries the
// interned strings the snapshot references; nil is treated as empty.
func (w *WAL) Append(snap *types.Snapshot, strings *intern.Table) error {
	if snap == nil {
		return errors.New("wal: nil snapshot")
	}
	if strings == nil {
		strings = intern.New()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.ErrClosed
	}

	scratch, err := encodeEntry(w.scratch[:0], snap, strings)
	if err != nil {
		return fmt.Errorf("encode wal entry: %w", err)
	}
	w.scratch = scratch
	if len(w.scratch) > w.opts.MaxEntryBytes {
		w.stats.OversizeRejected++
		return errors.Wrapf(errors.ErrEntryTooLarge, "entry %d bytes exceeds limit %d", len(w.scratch), w.opts.MaxEntryBytes)
	}

	frame := appendFrame(nil, w.scratch)
	if _, err := w.bw.Write(frame); err != nil {
		return fmt.Errorf("append wal entry: %w", err)
	}
	w.size += int64(len(frame))
	w.stats.EntriesAppended++
	w.stats.BytesWritten += int64(len(frame))

	if w.opts.SyncMode == SyncFsync {
		return w.syncLocked()
	}
	return nil
}

// Sync flushes buffered frames and fsyncs the file.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.ErrClosed
	}
	return w.syncLocked()
}

func (w *WAL) syncLocked() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush wal: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("fsync wal: %w", err)
	}
	w.stats.SyncsPerformed++
	return nil
}

// BeginDrain rotates the current file to its sealing path and reopens a
// fresh one, so appends continue while the drained entries are sealed
// into a chunk. The caller must Commit or Abandon the returned handle.
func (w *WAL) BeginDrain() (*Draining, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, errors.ErrClosed
	}
	if w.draining {
		return nil, errors.Wrap(errors.ErrDraining, "drain already in progress")
	}

	sealing := SealingPath(w.path)
	if _, err := os.Stat(sealing); err == nil {
		return nil, errors.Wrapf(errors.ErrDraining, "unresolved sealing file %s", sealing)
	}

	if err := w.syncLocked(); err != nil {
		return nil, err
	}
	if err := w.file.Close(); err != nil {
		return nil, fmt.Errorf("close wal for drain: %w", err)
	}
	if err := os.Rename(w.path, sealing); err != nil {
		// The WAL has to stay usable, so reattach to the original file.
		f, openErr := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR, 0o644)
		if openErr != nil {
			w.closed = true
			return nil, fmt.Errorf("rotate wal: %v; reopen failed: %w", err, openErr)
		}
		if _, seekErr := f.Seek(w.size, io.SeekStart); seekErr != nil {
			f.Close()
			w.closed = true
			return nil, fmt.Errorf("rotate wal: %v; reseek failed: %w", err, seekErr)
		}
		w.file = f
		w.bw.Reset(f)
		return nil, fmt.Errorf("rotate wal: %w", err)
	}

	fresh, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		w.closed = true
		return nil, fmt.Errorf("create fresh wal after rotate: %w", err)
	}
	if err := syncDir(filepath.Dir(w.path)); err != nil {
		fresh.Close()
		w.closed = true
		return nil, fmt.Errorf("sync wal dir after rotate: %w", err)
	}

	w.file = fresh
	w.bw.Reset(fresh)
	w.size = 0
	w.draining = true
	w.stats.Rotations++

	return &Draining{wal: w, path: sealing}, nil
}

// Draining is a rotated-aside WAL file whose entries are being sealed
// into a chunk.
type Draining struct {
	wal  *WAL
	path string
	done bool
}

// Path returns the sealing file path.
func (d *Draining) Path() string {
	return d.path
}

// Commit deletes the sealing file. Call it only after the chunk holding
// the drained entries is fsynced and registered.
func (d *Draining) Commit() error {
	d.wal.mu.Lock()
	defer d.wal.mu.Unlock()

	if d.done {
		return nil
	}
	d.done = true
	d.wal.draining = false

	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove sealing file: %w", err)
	}
	return nil
}

// Abandon leaves the sealing file in place for the next startup to
// resolve. Used when sealing fails.
func (d *Draining) Abandon() {
	d.wal.mu.Lock()
	defer d.wal.mu.Unlock()

	if d.done {
		return
	}
	d.done = true
	d.wal.draining = false
}

// Size returns the current file size in bytes.
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Path returns the WAL file path.
func (w *WAL) Path() string {
	return w.path
}

// Stats returns a copy of the WAL statistics.
func (w *WAL) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Close flushes, fsyncs and closes the WAL.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.bw.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush wal on close: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("fsync wal on close: %w", err)
	}
	return w.file.Close()
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
