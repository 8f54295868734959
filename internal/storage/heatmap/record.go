// Package heatmap maintains the activity overview file: one small record
// per time bucket scoring how busy the host and PostgreSQL were, so a UI
// can render weeks of history without opening a single chunk. The file is
// derived data and can always be rebuilt from sealed chunks.
package heatmap

import (
	"encoding/binary"

	"github.com/rpgtop/rpgtop/internal/errors"
)

// Record layout (14 bytes, integers little-endian):
//
//	offset  size  field
//	0       8     bucket start (int64, epoch seconds)
//	8       1     flags (bit 0: covered)
//	9       1     cpu score
//	10      1     memory score
//	11      1     disk score
//	12      1     pg_active score
//	13      1     sample count
//
// Scores are p95 utilization percent saturated at 255; pg_active and the
// sample count saturate at 255 as well. An uncovered record marks a gap
// where the monitor was not running, keeping the file bucket-contiguous.
const (
	// RecordSize is the fixed record length in bytes.
	RecordSize = 14

	flagCovered = 0x01
)

// Record is one heatmap bucket.
type Record struct {
	BucketStart int64
	Covered     bool
	CPU         uint8
	Memory      uint8
	Disk        uint8
	PGActive    uint8
	Samples     uint8
}

// AppendBinary appends the serialized record to buf.
func (r Record) AppendBinary(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.BucketStart))
	var flags uint8
	if r.Covered {
		flags |= flagCovered
	}
	return append(buf, flags, r.CPU, r.Memory, r.Disk, r.PGActive, r.Samples)
}

// parseRecord decodes one record from exactly RecordSize bytes.
func parseRecord(data []byte) Record {
	return Record{
		BucketStart: int64(binary.LittleEndian.Uint64(data[0:8])),
		Covered:     data[8]&flagCovered != 0,
		CPU:         data[9],
		Memory:      data[10],
		Disk:        data[11],
		PGActive:    data[12],
		Samples:     data[13],
	}
}

// parseRecords decodes a whole record region. The caller has already
// checked alignment.
func parseRecords(data []byte) []Record {
	records := make([]Record, len(data)/RecordSize)
	for i := range records {
		records[i] = parseRecord(data[i*RecordSize : (i+1)*RecordSize])
	}
	return records
}

// clampScore converts a measured value to a saturating byte score.
func clampScore(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// clampCount saturates a sample or backend count.
func clampCount(n int) uint8 {
	if n <= 0 {
		return 0
	}
	if n >= 255 {
		return 255
	}
	return uint8(n)
}

// validateSize checks the whole-file structural invariant.
func validateSize(size int64) error {
	if size < int64(len(MagicHM)) {
		return errors.Wrapf(errors.ErrTooShort, "heatmap needs %d magic bytes, file has %d", len(MagicHM), size)
	}
	if (size-int64(len(MagicHM)))%RecordSize != 0 {
		return errors.Wrapf(errors.ErrMisaligned, "heatmap body %d bytes is not a whole number of %d-byte records", size-int64(len(MagicHM)), RecordSize)
	}
	return nil
}
