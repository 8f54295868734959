package types

import (
	"encoding/binary"
	"math"

	"github.com/rpgtop/rpgtop/internal/errors"
)

// Snapshot encoding format (binary, little-endian):
// - Timestamp (8 bytes, epoch seconds)
// - Block count (1 byte)
// Per block:
// - Kind (1 byte)
// - Payload length (4 bytes)
// - Payload (kind-specific layout)
//
// Array-carrying payloads start with a row count (4 bytes) followed by
// fixed-size rows. Text fields are 64-bit interner hashes; the text itself
// is stored once in the interner table, not here.

const (
	snapshotHeaderSize = 9 // 8 timestamp + 1 block count
	blockHeaderSize    = 5 // 1 kind + 4 payload length

	cpuBlockSize    = 90 // 8 counters + cores + 3 loads
	memoryBlockSize = 64
	diskStatSize    = 48
	netStatSize     = 56
	processSize     = 73
	pgBackendSize   = 77
	pgStatementSize = 64
	pgDatabaseSize  = 100
)

// EncodeSnapshot appends the binary form of s to buf and returns the
// extended buffer. Pass nil to allocate. The block count field is one
// byte; a snapshot carrying more blocks than it can express is rejected
// rather than silently truncated.
func EncodeSnapshot(buf []byte, s *Snapshot) ([]byte, error) {
	if len(s.Blocks) > math.MaxUint8 {
		return nil, errors.Wrapf(errors.ErrInvariant, "snapshot carries %d blocks, format limit %d", len(s.Blocks), math.MaxUint8)
	}

	buf = binary.LittleEndian.AppendUint64(buf, uint64(s.Timestamp))
	buf = append(buf, byte(len(s.Blocks)))

	for _, b := range s.Blocks {
		buf = append(buf, byte(b.Kind()))

		// Reserve the payload length and backfill once the arm is encoded.
		lenPos := len(buf)
		buf = append(buf, 0, 0, 0, 0)
		buf = appendBlock(buf, b)
		binary.LittleEndian.PutUint32(buf[lenPos:], uint32(len(buf)-lenPos-4))
	}

	return buf, nil
}

// DecodeSnapshot parses the binary form produced by EncodeSnapshot. All
// failures wrap ErrDecode.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	if len(data) < snapshotHeaderSize {
		return nil, errors.Wrap(errors.ErrDecode, "snapshot: data too short for header")
	}

	s := &Snapshot{
		Timestamp: int64(binary.LittleEndian.Uint64(data[0:8])),
	}
	count := int(data[8])
	offset := snapshotHeaderSize

	for i := 0; i < count; i++ {
		if offset+blockHeaderSize > len(data) {
			return nil, errors.Wrapf(errors.ErrDecode, "block %d: data too short for block header", i)
		}

		kind := BlockKind(data[offset])
		payloadLen := int(binary.LittleEndian.Uint32(data[offset+1 : offset+5]))
		offset += blockHeaderSize

		if offset+payloadLen > len(data) {
			return nil, errors.Wrapf(errors.ErrDecode, "block %d (%s): data too short for payload", i, kind)
		}

		block, err := decodeBlock(kind, data[offset:offset+payloadLen])
		if err != nil {
			return nil, errors.Wrapf(err, "block %d (%s)", i, kind)
		}
		s.Blocks = append(s.Blocks, block)
		offset += payloadLen
	}

	if offset != len(data) {
		return nil, errors.Wrapf(errors.ErrDecode, "snapshot: %d trailing bytes", len(data)-offset)
	}

	return s, nil
}

// ScanBlockSizes walks the block headers without decoding payloads and
// returns the encoded payload size per kind. Used by the inspection tool
// for per-block-type size breakdowns.
func ScanBlockSizes(data []byte) (map[BlockKind]int, error) {
	if len(data) < snapshotHeaderSize {
		return nil, errors.Wrap(errors.ErrDecode, "snapshot: data too short for header")
	}

	sizes := make(map[BlockKind]int)
	count := int(data[8])
	offset := snapshotHeaderSize

	for i := 0; i < count; i++ {
		if offset+blockHeaderSize > len(data) {
			return nil, errors.Wrapf(errors.ErrDecode, "block %d: data too short for block header", i)
		}
		kind := BlockKind(data[offset])
		payloadLen := int(binary.LittleEndian.Uint32(data[offset+1 : offset+5]))
		offset += blockHeaderSize
		if offset+payloadLen > len(data) {
			return nil, errors.Wrapf(errors.ErrDecode, "block %d (%s): data too short for payload", i, kind)
		}
		sizes[kind] += payloadLen
		offset += payloadLen
	}

	return sizes, nil
}

// appendBlock dispatches to the per-kind layout.
func appendBlock(buf []byte, b DataBlock) []byte {
	switch v := b.(type) {
	case *CPUBlock:
		buf = binary.LittleEndian.AppendUint64(buf, v.User)
		buf = binary.LittleEndian.AppendUint64(buf, v.Nice)
		buf = binary.LittleEndian.AppendUint64(buf, v.System)
		buf = binary.LittleEndian.AppendUint64(buf, v.Idle)
		buf = binary.LittleEndian.AppendUint64(buf, v.Iowait)
		buf = binary.LittleEndian.AppendUint64(buf, v.IRQ)
		buf = binary.LittleEndian.AppendUint64(buf, v.SoftIRQ)
		buf = binary.LittleEndian.AppendUint64(buf, v.Steal)
		buf = binary.LittleEndian.AppendUint16(buf, v.Cores)
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.Load1))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.Load5))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.Load15))

	case *MemoryBlock:
		buf = binary.LittleEndian.AppendUint64(buf, v.Total)
		buf = binary.LittleEndian.AppendUint64(buf, v.Free)
		buf = binary.LittleEndian.AppendUint64(buf, v.Available)
		buf = binary.LittleEndian.AppendUint64(buf, v.Buffers)
		buf = binary.LittleEndian.AppendUint64(buf, v.Cached)
		buf = binary.LittleEndian.AppendUint64(buf, v.SwapTotal)
		buf = binary.LittleEndian.AppendUint64(buf, v.SwapFree)
		buf = binary.LittleEndian.AppendUint64(buf, v.Dirty)

	case *DisksBlock:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Disks)))
		for i := range v.Disks {
			d := &v.Disks[i]
			buf = binary.LittleEndian.AppendUint64(buf, d.Name)
			buf = binary.LittleEndian.AppendUint64(buf, d.ReadOps)
			buf = binary.LittleEndian.AppendUint64(buf, d.WriteOps)
			buf = binary.LittleEndian.AppendUint64(buf, d.ReadSectors)
			buf = binary.LittleEndian.AppendUint64(buf, d.WriteSectors)
			buf = binary.LittleEndian.AppendUint64(buf, d.BusyMs)
		}

	case *NetworksBlock:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Interfaces)))
		for i := range v.Interfaces {
			n := &v.Interfaces[i]
			buf = binary.LittleEndian.AppendUint64(buf, n.Name)
			buf = binary.LittleEndian.AppendUint64(buf, n.RxBytes)
			buf = binary.LittleEndian.AppendUint64(buf, n.TxBytes)
			buf = binary.LittleEndian.AppendUint64(buf, n.RxPackets)
			buf = binary.LittleEndian.AppendUint64(buf, n.TxPackets)
			buf = binary.LittleEndian.AppendUint64(buf, n.RxErrors)
			buf = binary.LittleEndian.AppendUint64(buf, n.TxErrors)
		}

	case *ProcessesBlock:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Processes)))
		for i := range v.Processes {
			p := &v.Processes[i]
			buf = binary.LittleEndian.AppendUint32(buf, uint32(p.PID))
			buf = binary.LittleEndian.AppendUint64(buf, p.Command)
			buf = binary.LittleEndian.AppendUint64(buf, p.User)
			buf = append(buf, p.State)
			buf = binary.LittleEndian.AppendUint64(buf, p.UTime)
			buf = binary.LittleEndian.AppendUint64(buf, p.STime)
			buf = binary.LittleEndian.AppendUint64(buf, p.VSize)
			buf = binary.LittleEndian.AppendUint64(buf, p.RSS)
			buf = binary.LittleEndian.AppendUint64(buf, p.ReadBytes)
			buf = binary.LittleEndian.AppendUint64(buf, p.WriteBytes)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(p.Threads))
		}

	case *PGActivityBlock:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Backends)))
		for i := range v.Backends {
			be := &v.Backends[i]
			buf = binary.LittleEndian.AppendUint32(buf, uint32(be.PID))
			buf = binary.LittleEndian.AppendUint64(buf, be.Database)
			buf = binary.LittleEndian.AppendUint64(buf, be.User)
			buf = binary.LittleEndian.AppendUint64(buf, be.ApplicationName)
			buf = binary.LittleEndian.AppendUint64(buf, be.ClientAddr)
			buf = append(buf, byte(be.State))
			buf = binary.LittleEndian.AppendUint64(buf, be.WaitEvent)
			buf = binary.LittleEndian.AppendUint64(buf, be.Query)
			buf = binary.LittleEndian.AppendUint64(buf, uint64(be.BackendStart))
			buf = binary.LittleEndian.AppendUint64(buf, uint64(be.XactStart))
			buf = binary.LittleEndian.AppendUint64(buf, uint64(be.QueryStart))
		}

	case *PGStatementsBlock:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Statements)))
		for i := range v.Statements {
			st := &v.Statements[i]
			buf = binary.LittleEndian.AppendUint64(buf, uint64(st.QueryID))
			buf = binary.LittleEndian.AppendUint64(buf, st.Query)
			buf = binary.LittleEndian.AppendUint64(buf, st.Calls)
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(st.TotalTimeMs))
			buf = binary.LittleEndian.AppendUint64(buf, st.Rows)
			buf = binary.LittleEndian.AppendUint64(buf, st.SharedBlksHit)
			buf = binary.LittleEndian.AppendUint64(buf, st.SharedBlksRead)
			buf = binary.LittleEndian.AppendUint64(buf, st.TempBlksWritten)
		}

	case *PGDatabasesBlock:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Databases)))
		for i := range v.Databases {
			db := &v.Databases[i]
			buf = binary.LittleEndian.AppendUint64(buf, db.Name)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(db.NumBackends))
			buf = binary.LittleEndian.AppendUint64(buf, db.XactCommit)
			buf = binary.LittleEndian.AppendUint64(buf, db.XactRollback)
			buf = binary.LittleEndian.AppendUint64(buf, db.BlksHit)
			buf = binary.LittleEndian.AppendUint64(buf, db.BlksRead)
			buf = binary.LittleEndian.AppendUint64(buf, db.TupReturned)
			buf = binary.LittleEndian.AppendUint64(buf, db.TupFetched)
			buf = binary.LittleEndian.AppendUint64(buf, db.TupInserted)
			buf = binary.LittleEndian.AppendUint64(buf, db.TupUpdated)
			buf = binary.LittleEndian.AppendUint64(buf, db.TupDeleted)
			buf = binary.LittleEndian.AppendUint64(buf, db.Deadlocks)
			buf = binary.LittleEndian.AppendUint64(buf, db.TempBytes)
		}
	}

	return buf
}

// decodeBlock parses one block payload. The payload slice is exactly the
// declared length; trailing bytes are an error because the format is fixed
// per version.
func decodeBlock(kind BlockKind, data []byte) (DataBlock, error) {
	switch kind {
	case KindCPU:
		return decodeCPU(data)
	case KindMemory:
		return decodeMemory(data)
	case KindDisks:
		return decodeDisks(data)
	case KindNetworks:
		return decodeNetworks(data)
	case KindProcesses:
		return decodeProcesses(data)
	case KindPGActivity:
		return decodePGActivity(data)
	case KindPGStatements:
		return decodePGStatements(data)
	case KindPGDatabases:
		return decodePGDatabases(data)
	default:
		return nil, errors.Wrapf(errors.ErrDecode, "unknown block kind %d", kind)
	}
}

// rowCount validates an array payload and returns the row count.
func rowCount(data []byte, rowSize int) (int, error) {
	if len(data) < 4 {
		return 0, errors.Wrap(errors.ErrDecode, "data too short for row count")
	}
	count := int(binary.LittleEndian.Uint32(data[0:4]))
	if int64(len(data)) != 4+int64(count)*int64(rowSize) {
		return 0, errors.Wrapf(errors.ErrDecode, "payload size %d does not match %d rows of %d bytes", len(data), count, rowSize)
	}
	return count, nil
}

func decodeCPU(data []byte) (*CPUBlock, error) {
	if len(data) != cpuBlockSize {
		return nil, errors.Wrapf(errors.ErrDecode, "cpu payload size %d, want %d", len(data), cpuBlockSize)
	}
	b := &CPUBlock{}
	b.User = binary.LittleEndian.Uint64(data[0:])
	b.Nice = binary.LittleEndian.Uint64(data[8:])
	b.System = binary.LittleEndian.Uint64(data[16:])
	b.Idle = binary.LittleEndian.Uint64(data[24:])
	b.Iowait = binary.LittleEndian.Uint64(data[32:])
	b.IRQ = binary.LittleEndian.Uint64(data[40:])
	b.SoftIRQ = binary.LittleEndian.Uint64(data[48:])
	b.Steal = binary.LittleEndian.Uint64(data[56:])
	b.Cores = binary.LittleEndian.Uint16(data[64:])
	b.Load1 = math.Float64frombits(binary.LittleEndian.Uint64(data[66:]))
	b.Load5 = math.Float64frombits(binary.LittleEndian.Uint64(data[74:]))
	b.Load15 = math.Float64frombits(binary.LittleEndian.Uint64(data[82:]))
	return b, nil
}

func decodeMemory(data []byte) (*MemoryBlock, error) {
	if len(data) != memoryBlockSize {
		return nil, errors.Wrapf(errors.ErrDecode, "memory payload size %d, want %d", len(data), memoryBlockSize)
	}
	b := &MemoryBlock{}
	b.Total = binary.LittleEndian.Uint64(data[0:])
	b.Free = binary.LittleEndian.Uint64(data[8:])
	b.Available = binary.LittleEndian.Uint64(data[16:])
	b.Buffers = binary.LittleEndian.Uint64(data[24:])
	b.Cached = binary.LittleEndian.Uint64(data[32:])
	b.SwapTotal = binary.LittleEndian.Uint64(data[40:])
	b.SwapFree = binary.LittleEndian.Uint64(data[48:])
	b.Dirty = binary.LittleEndian.Uint64(data[56:])
	return b, nil
}

func decodeDisks(data []byte) (*DisksBlock, error) {
	count, err := rowCount(data, diskStatSize)
	if err != nil {
		return nil, err
	}
	b := &DisksBlock{Disks: make([]DiskStat, count)}
	offset := 4
	for i := 0; i < count; i++ {
		d := &b.Disks[i]
		d.Name = binary.LittleEndian.Uint64(data[offset:])
		d.ReadOps = binary.LittleEndian.Uint64(data[offset+8:])
		d.WriteOps = binary.LittleEndian.Uint64(data[offset+16:])
		d.ReadSectors = binary.LittleEndian.Uint64(data[offset+24:])
		d.WriteSectors = binary.LittleEndian.Uint64(data[offset+32:])
		d.BusyMs = binary.LittleEndian.Uint64(data[offset+40:])
		offset += diskStatSize
	}
	return b, nil
}

func decodeNetworks(data []byte) (*NetworksBlock, error) {
	count, err := rowCount(data, netStatSize)
	if err != nil {
		return nil, err
	}
	b := &NetworksBlock{Interfaces: make([]NetStat, count)}
	offset := 4
	for i := 0; i < count; i++ {
		n := &b.Interfaces[i]
		n.Name = binary.LittleEndian.Uint64(data[offset:])
		n.RxBytes = binary.LittleEndian.Uint64(data[offset+8:])
		n.TxBytes = binary.LittleEndian.Uint64(data[offset+16:])
		n.RxPackets = binary.LittleEndian.Uint64(data[offset+24:])
		n.TxPackets = binary.LittleEndian.Uint64(data[offset+32:])
		n.RxErrors = binary.LittleEndian.Uint64(data[offset+40:])
		n.TxErrors = binary.LittleEndian.Uint64(data[offset+48:])
		offset += netStatSize
	}
	return b, nil
}

func decodeProcesses(data []byte) (*ProcessesBlock, error) {
	count, err := rowCount(data, processSize)
	if err != nil {
		return nil, err
	}
	b := &ProcessesBlock{Processes: make([]Process, count)}
	offset := 4
	for i := 0; i < count; i++ {
		p := &b.Processes[i]
		p.PID = int32(binary.LittleEndian.Uint32(data[offset:]))
		p.Command = binary.LittleEndian.Uint64(data[offset+4:])
		p.User = binary.LittleEndian.Uint64(data[offset+12:])
		p.State = data[offset+20]
		p.UTime = binary.LittleEndian.Uint64(data[offset+21:])
		p.STime = binary.LittleEndian.Uint64(data[offset+29:])
		p.VSize = binary.LittleEndian.Uint64(data[offset+37:])
		p.RSS = binary.LittleEndian.Uint64(data[offset+45:])
		p.ReadBytes = binary.LittleEndian.Uint64(data[offset+53:])
		p.WriteBytes = binary.LittleEndian.Uint64(data[offset+61:])
		p.Threads = int32(binary.LittleEndian.Uint32(data[offset+69:]))
		offset += processSize
	}
	return b, nil
}

func decodePGActivity(data []byte) (*PGActivityBlock, error) {
	count, err := rowCount(data, pgBackendSize)
	if err != nil {
		return nil, err
	}
	b := &PGActivityBlock{Backends: make([]PGBackend, count)}
	offset := 4
	for i := 0; i < count; i++ {
		be := &b.Backends[i]
		be.PID = int32(binary.LittleEndian.Uint32(data[offset:]))
		be.Database = binary.LittleEndian.Uint64(data[offset+4:])
		be.User = binary.LittleEndian.Uint64(data[offset+12:])
		be.ApplicationName = binary.LittleEndian.Uint64(data[offset+20:])
		be.ClientAddr = binary.LittleEndian.Uint64(data[offset+28:])
		be.State = PGBackendState(data[offset+36])
		be.WaitEvent = binary.LittleEndian.Uint64(data[offset+37:])
		be.Query = binary.LittleEndian.Uint64(data[offset+45:])
		be.BackendStart = int64(binary.LittleEndian.Uint64(data[offset+53:]))
		be.XactStart = int64(binary.LittleEndian.Uint64(data[offset+61:]))
		be.QueryStart = int64(binary.LittleEndian.Uint64(data[offset+69:]))
		offset += pgBackendSize
	}
	return b, nil
}

func decodePGStatements(data []byte) (*PGStatementsBlock, error) {
	count, err := rowCount(data, pgStatementSize)
	if err != nil {
		return nil, err
	}
	b := &PGStatementsBlock{Statements: make([]PGStatement, count)}
	offset := 4
	for i := 0; i < count; i++ {
		st := &b.Statements[i]
		st.QueryID = int64(binary.LittleEndian.Uint64(data[offset:]))
		st.Query = binary.LittleEndian.Uint64(data[offset+8:])
		st.Calls = binary.LittleEndian.Uint64(data[offset+16:])
		st.TotalTimeMs = math.Float64frombits(binary.LittleEndian.Uint64(data[offset+24:]))
		st.Rows = binary.LittleEndian.Uint64(data[offset+32:])
		st.SharedBlksHit = binary.LittleEndian.Uint64(data[offset+40:])
		st.SharedBlksRead = binary.LittleEndian.Uint64(data[offset+48:])
		st.TempBlksWritten = binary.LittleEndian.Uint64(data[offset+56:])
		offset += pgStatementSize
	}
	return b, nil
}

func decodePGDatabases(data []byte) (*PGDatabasesBlock, error) {
	count, err := rowCount(data, pgDatabaseSize)
	if err != nil {
		return nil, err
	}
	b := &PGDatabasesBlock{Databases: make([]PGDatabase, count)}
	offset := 4
	for i := 0; i < count; i++ {
		db := &b.Databases[i]
		db.Name = binary.LittleEndian.Uint64(data[offset:])
		db.NumBackends = int32(binary.LittleEndian.Uint32(data[offset+8:]))
		db.XactCommit = binary.LittleEndian.Uint64(data[offset+12:])
		db.XactRollback = binary.LittleEndian.Uint64(data[offset+20:])
		db.BlksHit = binary.LittleEndian.Uint64(data[offset+28:])
		db.BlksRead = binary.LittleEndian.Uint64(data[offset+36:])
		db.TupReturned = binary.LittleEndian.Uint64(data[offset+44:])
		db.TupFetched = binary.LittleEndian.Uint64(data[offset+52:])
		db.TupInserted = binary.LittleEndian.Uint64(data[offset+60:])
		db.TupUpdated = binary.LittleEndian.Uint64(data[offset+68:])
		db.TupDeleted = binary.LittleEndian.Uint64(data[offset+76:])
		db.Deadlocks = binary.LittleEndian.Uint64(data[offset+84:])
		db.TempBytes = binary.LittleEndian.Uint64(data[offset+92:])
		offset += pgDatabaseSize
	}
	return b, nil
}
