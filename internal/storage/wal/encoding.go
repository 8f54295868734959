package wal

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/rpgtop/rpgtop/internal/errors"
	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// Frame layout (all integers little-endian):
//
//	offset  size  field
//	0       4     payload length (uint32)
//	4       4     CRC-32 (IEEE) of the payload
//	8       n     payload
//
// Entry payload layout:
//
//	offset  size  field
//	0       4     snapshot length (uint32)
//	4       n     encoded snapshot
//	4+n     m     encoded interner table
//
// The interner table carries the strings the snapshot references. Frames
// are self-delimiting; a reader that finds a frame it cannot validate
// treats everything from that offset on as a torn tail.
const (
	frameHeaderSize = 8

	// DefaultMaxEntryBytes bounds a single entry payload. A declared
	// length above the bound is treated as corruption, never as an
	// allocation request.
	DefaultMaxEntryBytes = 256 << 20
)

// appendFrame appends a framed payload to buf.
func appendFrame(buf, payload []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(payload))
	return append(buf, payload...)
}

// encodeEntry appends the payload for one snapshot and its strings.
func encodeEntry(buf []byte, snap *types.Snapshot, strings *intern.Table) ([]byte, error) {
	lenAt := len(buf)
	buf = append(buf, 0, 0, 0, 0)
	buf, err := types.EncodeSnapshot(buf, snap)
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(buf[lenAt:lenAt+4], uint32(len(buf)-lenAt-4))
	return strings.AppendBinary(buf), nil
}

// decodeEntry parses an entry payload back into its snapshot and strings.
func decodeEntry(payload []byte) (*types.Snapshot, *intern.Table, error) {
	if len(payload) < 4 {
		return nil, nil, errors.Wrapf(errors.ErrDecode, "entry payload %d bytes", len(payload))
	}
	snapLen := int(binary.LittleEndian.Uint32(payload[0:4]))
	if 4+snapLen > len(payload) {
		return nil, nil, errors.Wrapf(errors.ErrDecode, "snapshot length %d exceeds payload %d", snapLen, len(payload))
	}
	snap, err := types.DecodeSnapshot(payload[4 : 4+snapLen])
	if err != nil {
		return nil, nil, err
	}
	strings, err := intern.Parse(payload[4+snapLen:])
	if err != nil {
		return nil, nil, err
	}
	return snap, strings, nil
}
