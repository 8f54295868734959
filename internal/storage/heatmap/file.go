package heatmap

import (
	"fmt"
	"io"
	"os"

	"github.com/rpgtop/rpgtop/internal/errors"
)

// MagicHM identifies a heatmap file.
const MagicHM = "HM03"

// File is an open heatmap file positioned for appending.
type File struct {
	path string
	f    *os.File
}

// OpenFile opens a heatmap file for appending, creating it with its magic
// when absent. An existing file is validated wholesale: wrong magic or a
// body that is not a whole number of records rejects the file.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open heatmap %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat heatmap: %w", err)
	}

	if info.Size() == 0 {
		if _, err := f.Write([]byte(MagicHM)); err != nil {
			f.Close()
			return nil, fmt.Errorf("write heatmap magic: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, fmt.Errorf("sync heatmap magic: %w", err)
		}
		return &File{path: path, f: f}, nil
	}

	if err := validateSize(info.Size()); err != nil {
		f.Close()
		return nil, err
	}
	magic := make([]byte, len(MagicHM))
	if _, err := f.ReadAt(magic, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("read heatmap magic: %w", err)
	}
	if string(magic) != MagicHM {
		f.Close()
		return nil, errors.Wrapf(errors.ErrBadMagic, "got %q, want %q", magic, MagicHM)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek heatmap end: %w", err)
	}
	return &File{path: path, f: f}, nil
}

// Path returns the heatmap file path.
func (h *File) Path() string {
	return h.path
}

// Append writes records at the end of the file and fsyncs. Buckets are
// written once and never rewritten.
func (h *File) Append(records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(records)*RecordSize)
	for _, r := range records {
		buf = r.AppendBinary(buf)
	}
	if _, err := h.f.Write(buf); err != nil {
		return fmt.Errorf("append heatmap records: %w", err)
	}
	if err := h.f.Sync(); err != nil {
		return fmt.Errorf("sync heatmap: %w", err)
	}
	return nil
}

// Close closes the file.
func (h *File) Close() error {
	return h.f.Close()
}

// ReadFile reads every record of a heatmap file. The whole file is
// rejected when the magic is wrong or the body is misaligned; there is no
// partial salvage for derived data that can be rebuilt from chunks.
func ReadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read heatmap %s: %w", path, err)
	}
	if err := validateSize(int64(len(data))); err != nil {
		return nil, err
	}
	if string(data[:len(MagicHM)]) != MagicHM {
		return nil, errors.Wrapf(errors.ErrBadMagic, "got %q, want %q", data[:len(MagicHM)], MagicHM)
	}
	return parseRecords(data[len(MagicHM):]), nil
}
