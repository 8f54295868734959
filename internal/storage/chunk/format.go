// Package chunk reads and writes sealed history files. A chunk holds a
// batch of snapshots compressed one frame each, so a reader can pull a
// single snapshot out of an hour of history without touching the rest.
package chunk

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/rpgtop/rpgtop/internal/errors"
)

// Chunk file layout (all integers little-endian):
//
//	offset  size  field
//	0       4     magic "RPG3"
//	4       2     format version (3)
//	6       2     snapshot count
//	8       8     interner offset
//	16      8     interner compressed length
//	24      8     dictionary offset
//	32      8     dictionary length
//	40      8     reserved
//	48      28*N  index entries
//	...           compressed snapshot frames
//	...           zstd dictionary (when dictionary length > 0)
//	...           compressed interner table
//
// Index entry layout:
//
//	offset  size  field
//	0       8     frame offset from start of file
//	8       8     compressed frame length
//	16      8     snapshot timestamp (int64, epoch seconds)
//	24      4     uncompressed frame length
//
// Index entries are sorted by timestamp and frame offsets strictly
// increase, which is what makes binary search and range validation cheap.
const (
	// Magic identifies a chunk file.
	Magic = "RPG3"

	// Version is the only format version this package reads or writes.
	Version = 3

	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 48

	// IndexEntrySize is the per-snapshot index entry length in bytes.
	IndexEntrySize = 28

	// MaxSnapshots is the most snapshots one chunk can index.
	MaxSnapshots = math.MaxUint16
)

// FileName returns the canonical file name for a chunk covering the given
// timestamp range. Zero-padded decimals keep lexicographic and
// chronological order aligned.
func FileName(firstTimestamp, lastTimestamp int64) string {
	return fmt.Sprintf("chunk-%016d-%016d.rpg", firstTimestamp, lastTimestamp)
}

// Header is the fixed chunk file header.
type Header struct {
	SnapshotCount uint16

	// InternerOffset and InternerLen locate the compressed interner table.
	InternerOffset uint64
	InternerLen    uint64

	// DictOffset and DictLen locate the shared zstd dictionary. A zero
	// DictLen means the frames were compressed without one.
	DictOffset uint64
	DictLen    uint64

	// Reserved is written as zero and carried through verbatim on read,
	// so a later minor revision can claim it without a version bump.
	Reserved [8]byte
}

// AppendBinary appends the serialized header to buf.
func (h *Header) AppendBinary(buf []byte) []byte {
	buf = append(buf, Magic...)
	buf = binary.LittleEndian.AppendUint16(buf, Version)
	buf = binary.LittleEndian.AppendUint16(buf, h.SnapshotCount)
	buf = binary.LittleEndian.AppendUint64(buf, h.InternerOffset)
	buf = binary.LittleEndian.AppendUint64(buf, h.InternerLen)
	buf = binary.LittleEndian.AppendUint64(buf, h.DictOffset)
	buf = binary.LittleEndian.AppendUint64(buf, h.DictLen)
	return append(buf, h.Reserved[:]...)
}

// ParseHeader validates and parses a chunk header.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, errors.Wrapf(errors.ErrTooShort, "chunk header needs %d bytes, have %d", HeaderSize, len(data))
	}
	if string(data[0:4]) != Magic {
		return nil, errors.Wrapf(errors.ErrBadMagic, "got %q, want %q", data[0:4], Magic)
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != Version {
		return nil, errors.Wrapf(errors.ErrUnsupportedVersion, "chunk version %d, supported %d", v, Version)
	}

	h := &Header{
		SnapshotCount:  binary.LittleEndian.Uint16(data[6:8]),
		InternerOffset: binary.LittleEndian.Uint64(data[8:16]),
		InternerLen:    binary.LittleEndian.Uint64(data[16:24]),
		DictOffset:     binary.LittleEndian.Uint64(data[24:32]),
		DictLen:        binary.LittleEndian.Uint64(data[32:40]),
	}
	copy(h.Reserved[:], data[40:48])
	return h, nil
}

// IndexEntry locates one compressed snapshot frame inside a chunk.
type IndexEntry struct {
	Offset          uint64
	CompressedLen   uint64
	Timestamp       int64
	UncompressedLen uint32
}

func appendIndexEntry(buf []byte, e IndexEntry) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, e.Offset)
	buf = binary.LittleEndian.AppendUint64(buf, e.CompressedLen)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Timestamp))
	return binary.LittleEndian.AppendUint32(buf, e.UncompressedLen)
}

// parseIndex parses count index entries from data.
func parseIndex(data []byte, count int) ([]IndexEntry, error) {
	need := count * IndexEntrySize
	if len(data) < need {
		return nil, errors.Wrapf(errors.ErrTruncated, "index needs %d bytes, have %d", need, len(data))
	}

	entries := make([]IndexEntry, count)
	for i := range entries {
		off := i * IndexEntrySize
		entries[i] = IndexEntry{
			Offset:          binary.LittleEndian.Uint64(data[off : off+8]),
			CompressedLen:   binary.LittleEndian.Uint64(data[off+8 : off+16]),
			Timestamp:       int64(binary.LittleEndian.Uint64(data[off+16 : off+24])),
			UncompressedLen: binary.LittleEndian.Uint32(data[off+24 : off+28]),
		}
	}
	return entries, nil
}

// validateIndex checks the structural invariants the reader relies on:
// frames live after the index, offsets strictly increase without overlap,
// timestamps never decrease, and every range ends inside the file.
func validateIndex(entries []IndexEntry, fileSize int64) error {
	frameFloor := uint64(HeaderSize + len(entries)*IndexEntrySize)
	prevEnd := frameFloor

	for i, e := range entries {
		if e.Offset < frameFloor {
			return errors.Wrapf(errors.ErrInvariant, "frame %d offset %d inside header or index", i, e.Offset)
		}
		if i > 0 {
			if e.Offset <= entries[i-1].Offset {
				return errors.Wrapf(errors.ErrInvariant, "frame %d offset %d not above previous %d", i, e.Offset, entries[i-1].Offset)
			}
			if e.Timestamp < entries[i-1].Timestamp {
				return errors.Wrapf(errors.ErrInvariant, "frame %d timestamp %d below previous %d", i, e.Timestamp, entries[i-1].Timestamp)
			}
		}
		if e.Offset < prevEnd {
			return errors.Wrapf(errors.ErrInvariant, "frame %d overlaps previous frame", i)
		}
		if e.CompressedLen > math.MaxUint64-e.Offset {
			return errors.Wrapf(errors.ErrInvariant, "frame %d range overflows", i)
		}
		end := e.Offset + e.CompressedLen
		if end > uint64(fileSize) {
			return errors.Wrapf(errors.ErrTruncated, "frame %d ends at %d past end of file %d", i, end, fileSize)
		}
		prevEnd = end
	}
	return nil
}

// validateRegion checks that a named region described by the header ends
// inside the file.
func validateRegion(name string, off, length uint64, fileSize int64) error {
	if length == 0 {
		return nil
	}
	if length > math.MaxUint64-off {
		return errors.Wrapf(errors.ErrInvariant, "%s range overflows", name)
	}
	if off+length > uint64(fileSize) {
		return errors.Wrapf(errors.ErrTruncated, "%s ends at %d past end of file %d", name, off+length, fileSize)
	}
	return nil
}
