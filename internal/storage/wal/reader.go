package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/rpgtop/rpgtop/internal/errors"
	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// Entry is one recovered snapshot with the strings it references.
type Entry struct {
	Snapshot *types.Snapshot
	Strings  *intern.Table
}

// RecoverResult reports what a recovery scan found.
type RecoverResult struct {
	// Entries in file order, which is append order.
	Entries []Entry

	// Truncated is set when the scan stopped at a torn tail: a frame
	// header cut short, a declared length past the end of the file or
	// above the entry bound, or a CRC mismatch. A torn tail is the
	// expected residue of a crash, not an error.
	Truncated bool

	// TornOffset is the byte offset of the torn tail when Truncated.
	TornOffset int64

	// TornReason says what stopped the scan when Truncated.
	TornReason string

	// SkippedEntries counts frames that passed their CRC but whose
	// payload did not decode. They are skipped, not fatal.
	SkippedEntries int

	// BytesScanned is the length of the valid prefix.
	BytesScanned int64
}

// Recover reads every recoverable entry from a WAL file. A missing file
// yields an empty result; only I/O failures surface as errors.
func Recover(path string, opts Options) (*RecoverResult, error) {
	opts = opts.withDefaults()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RecoverResult{}, nil
		}
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat wal: %w", err)
	}
	size := info.Size()
	maxEntry := int64(opts.MaxEntryBytes)

	res := &RecoverResult{}
	br := bufio.NewReaderSize(f, 256*1024)
	var off int64
	var header [frameHeaderSize]byte

	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				res.Truncated = true
				res.TornOffset = off
				res.TornReason = "frame header cut short"
				break
			}
			return nil, fmt.Errorf("read frame header at %d: %w", off, err)
		}

		length := int64(binary.LittleEndian.Uint32(header[0:4]))
		crc := binary.LittleEndian.Uint32(header[4:8])

		// The declared length is untrusted until the CRC passes, so it
		// never drives an allocation beyond what the file could hold.
		if length > maxEntry || off+frameHeaderSize+length > size {
			res.Truncated = true
			res.TornOffset = off
			res.TornReason = fmt.Sprintf("declared length %d exceeds bounds", length)
			break
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(br, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				res.Truncated = true
				res.TornOffset = off
				res.TornReason = "frame payload cut short"
				break
			}
			return nil, fmt.Errorf("read frame payload at %d: %w", off, err)
		}

		if crc32.ChecksumIEEE(payload) != crc {
			res.Truncated = true
			res.TornOffset = off
			res.TornReason = "crc mismatch"
			break
		}

		off += frameHeaderSize + length

		snap, strings, derr := decodeEntry(payload)
		if derr != nil {
			res.SkippedEntries++
			continue
		}
		res.Entries = append(res.Entries, Entry{Snapshot: snap, Strings: strings})
	}

	res.BytesScanned = off
	return res, nil
}

// validPrefixLen walks frames from the start of the file and returns the
// length of the prefix whose frames all validate. The append cursor goes
// there so new frames never land behind a torn tail.
func validPrefixLen(f *os.File, size, maxEntry int64) (int64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	br := bufio.NewReaderSize(f, 256*1024)
	var off int64
	var header [frameHeaderSize]byte
	var payload []byte

	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return off, nil
			}
			return 0, err
		}

		length := int64(binary.LittleEndian.Uint32(header[0:4]))
		crc := binary.LittleEndian.Uint32(header[4:8])
		if length > maxEntry || off+frameHeaderSize+length > size {
			return off, nil
		}

		if int64(cap(payload)) < length {
			payload = make([]byte, length)
		}
		payload = payload[:length]
		if _, err := io.ReadFull(br, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return off, nil
			}
			return 0, err
		}

		if crc32.ChecksumIEEE(payload) != crc {
			return off, nil
		}
		off += frameHeaderSize + length
	}
}
