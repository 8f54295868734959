package types

// BlockKind identifies which telemetry source produced a DataBlock.
type BlockKind uint8

const (
	// KindCPU is the aggregate CPU counters from /proc/stat plus load averages.
	KindCPU BlockKind = 1
	// KindMemory is the /proc/meminfo gauges.
	KindMemory BlockKind = 2
	// KindDisks is the per-device I/O counters from /proc/diskstats.
	KindDisks BlockKind = 3
	// KindNetworks is the per-interface counters from /proc/net/dev.
	KindNetworks BlockKind = 4
	// KindProcesses is the process table from /proc/[pid].
	KindProcesses BlockKind = 5
	// KindPGActivity is the pg_stat_activity backend list.
	KindPGActivity BlockKind = 6
	// KindPGStatements is the pg_stat_statements rows.
	KindPGStatements BlockKind = 7
	// KindPGDatabases is the pg_stat_database rows.
	KindPGDatabases BlockKind = 8
)

// String returns a human-readable name for the block kind.
func (k BlockKind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindMemory:
		return "memory"
	case KindDisks:
		return "disks"
	case KindNetworks:
		return "networks"
	case KindProcesses:
		return "processes"
	case KindPGActivity:
		return "pg_activity"
	case KindPGStatements:
		return "pg_statements"
	case KindPGDatabases:
		return "pg_databases"
	default:
		return "unknown"
	}
}

// AllBlockKinds returns every defined block kind in encoding order.
func AllBlockKinds() []BlockKind {
	return []BlockKind{
		KindCPU, KindMemory, KindDisks, KindNetworks,
		KindProcesses, KindPGActivity, KindPGStatements, KindPGDatabases,
	}
}

// DataBlock is one typed component of a snapshot. A snapshot carries at most
// one block per kind; a block may be absent for a given tick (for example
// the PostgreSQL blocks while the server is unreachable).
//
// All text fields inside blocks are 64-bit interner hashes; the text itself
// lives in the snapshot's interner table.
type DataBlock interface {
	Kind() BlockKind
}

// CPUBlock holds aggregate CPU time counters (jiffies, cumulative since
// boot) and load averages.
type CPUBlock struct {
	User    uint64
	Nice    uint64
	System  uint64
	Idle    uint64
	Iowait  uint64
	IRQ     uint64
	SoftIRQ uint64
	Steal   uint64

	Cores uint16

	Load1  float64
	Load5  float64
	Load15 float64
}

// Kind implements DataBlock.
func (*CPUBlock) Kind() BlockKind { return KindCPU }

// BusyTotal returns the busy and total jiffy sums for utilization deltas.
func (b *CPUBlock) BusyTotal() (busy, total uint64) {
	busy = b.User + b.Nice + b.System + b.IRQ + b.SoftIRQ + b.Steal
	total = busy + b.Idle + b.Iowait
	return busy, total
}

// MemoryBlock holds memory gauges in bytes.
type MemoryBlock struct {
	Total     uint64
	Free      uint64
	Available uint64
	Buffers   uint64
	Cached    uint64
	SwapTotal uint64
	SwapFree  uint64
	Dirty     uint64
}

// Kind implements DataBlock.
func (*MemoryBlock) Kind() BlockKind { return KindMemory }

// DiskStat holds cumulative I/O counters for one block device.
type DiskStat struct {
	Name         uint64 // interned device name
	ReadOps      uint64
	WriteOps     uint64
	ReadSectors  uint64
	WriteSectors uint64
	BusyMs       uint64 // time spent doing I/O
}

// DisksBlock holds per-device I/O counters.
type DisksBlock struct {
	Disks []DiskStat
}

// Kind implements DataBlock.
func (*DisksBlock) Kind() BlockKind { return KindDisks }

// NetStat holds cumulative counters for one network interface.
type NetStat struct {
	Name      uint64 // interned interface name
	RxBytes   uint64
	TxBytes   uint64
	RxPackets uint64
	TxPackets uint64
	RxErrors  uint64
	TxErrors  uint64
}

// NetworksBlock holds per-interface counters.
type NetworksBlock struct {
	Interfaces []NetStat
}

// Kind implements DataBlock.
func (*NetworksBlock) Kind() BlockKind { return KindNetworks }

// Process holds one row of the process table.
type Process struct {
	PID     int32
	Command uint64 // interned
	User    uint64 // interned
	State   uint8  // R, S, D, Z, T as the raw /proc state byte

	UTime uint64 // user-mode jiffies, cumulative
	STime uint64 // kernel-mode jiffies, cumulative

	VSize uint64 // bytes
	RSS   uint64 // bytes

	ReadBytes  uint64
	WriteBytes uint64

	Threads int32
}

// ProcessesBlock holds the sampled process table.
type ProcessesBlock struct {
	Processes []Process
}

// Kind implements DataBlock.
func (*ProcessesBlock) Kind() BlockKind { return KindProcesses }

// PGBackendState mirrors the pg_stat_activity state column.
type PGBackendState uint8

const (
	PGStateUnknown          PGBackendState = 0
	PGStateActive           PGBackendState = 1
	PGStateIdle             PGBackendState = 2
	PGStateIdleInTx         PGBackendState = 3
	PGStateIdleInTxAborted  PGBackendState = 4
	PGStateFastpathFunction PGBackendState = 5
	PGStateDisabled         PGBackendState = 6
)

// String returns the pg_stat_activity spelling of the state.
func (s PGBackendState) String() string {
	switch s {
	case PGStateActive:
		return "active"
	case PGStateIdle:
		return "idle"
	case PGStateIdleInTx:
		return "idle in transaction"
	case PGStateIdleInTxAborted:
		return "idle in transaction (aborted)"
	case PGStateFastpathFunction:
		return "fastpath function call"
	case PGStateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// PGBackend holds one pg_stat_activity row. Timestamps are epoch seconds,
// zero meaning NULL.
type PGBackend struct {
	PID             int32
	Database        uint64 // interned
	User            uint64 // interned
	ApplicationName uint64 // interned
	ClientAddr      uint64 // interned
	State           PGBackendState
	WaitEvent       uint64 // interned "type:event", 0 when not waiting
	Query           uint64 // interned query text
	BackendStart    int64
	XactStart       int64
	QueryStart      int64
}

// PGActivityBlock holds the backend list.
type PGActivityBlock struct {
	Backends []PGBackend
}

// Kind implements DataBlock.
func (*PGActivityBlock) Kind() BlockKind { return KindPGActivity }

// ActiveCount returns the number of backends in the active state.
func (b *PGActivityBlock) ActiveCount() int {
	n := 0
	for i := range b.Backends {
		if b.Backends[i].State == PGStateActive {
			n++
		}
	}
	return n
}

// PGStatement holds one pg_stat_statements row.
type PGStatement struct {
	QueryID         int64
	Query           uint64 // interned normalized text
	Calls           uint64
	TotalTimeMs     float64
	Rows            uint64
	SharedBlksHit   uint64
	SharedBlksRead  uint64
	TempBlksWritten uint64
}

// PGStatementsBlock holds the statement statistics.
type PGStatementsBlock struct {
	Statements []PGStatement
}

// Kind implements DataBlock.
func (*PGStatementsBlock) Kind() BlockKind { return KindPGStatements }

// PGDatabase holds one pg_stat_database row.
type PGDatabase struct {
	Name         uint64 // interned datname
	NumBackends  int32
	XactCommit   uint64
	XactRollback uint64
	BlksHit      uint64
	BlksRead     uint64
	TupReturned  uint64
	TupFetched   uint64
	TupInserted  uint64
	TupUpdated   uint64
	TupDeleted   uint64
	Deadlocks    uint64
	TempBytes    uint64
}

// PGDatabasesBlock holds per-database statistics.
type PGDatabasesBlock struct {
	Databases []PGDatabase
}

// Kind implements DataBlock.
func (*PGDatabasesBlock) Kind() BlockKind { return KindPGDatabases }
