// Package types defines the snapshot model for rpgtop: one timestamped
// sample of all collected telemetry, carried as an ordered list of typed,
// optional data blocks. Snapshots are write-once: created by the collector,
// persisted by the WAL, reconstructed by WAL recovery or a chunk reader,
// and never mutated afterwards.
package types

import "time"

// Snapshot is one timestamped sample of all collected telemetry.
type Snapshot struct {
	// Timestamp is seconds since the Unix epoch.
	Timestamp int64

	// Blocks is the ordered block list, at most one per kind.
	Blocks []DataBlock
}

// NewSnapshot creates an empty snapshot at the given timestamp.
func NewSnapshot(ts int64) *Snapshot {
	return &Snapshot{Timestamp: ts}
}

// Add appends a block, replacing any existing block of the same kind so the
// one-block-per-kind invariant holds by construction.
func (s *Snapshot) Add(b DataBlock) {
	if b == nil {
		return
	}
	for i, existing := range s.Blocks {
		if existing.Kind() == b.Kind() {
			s.Blocks[i] = b
			return
		}
	}
	s.Blocks = append(s.Blocks, b)
}

// Block returns the first block of the given kind, or nil if the snapshot
// does not carry one. The block list is short and fixed-cardinality, so a
// linear scan is fine.
func (s *Snapshot) Block(k BlockKind) DataBlock {
	for _, b := range s.Blocks {
		if b.Kind() == k {
			return b
		}
	}
	return nil
}

// Has returns true if the snapshot carries a block of the given kind.
func (s *Snapshot) Has(k BlockKind) bool {
	return s.Block(k) != nil
}

// Kinds returns the kinds present, in block order.
func (s *Snapshot) Kinds() []BlockKind {
	kinds := make([]BlockKind, 0, len(s.Blocks))
	for _, b := range s.Blocks {
		kinds = append(kinds, b.Kind())
	}
	return kinds
}

// Time returns the timestamp as a time.Time in UTC.
func (s *Snapshot) Time() time.Time {
	return time.Unix(s.Timestamp, 0).UTC()
}

// CPU returns the CPU block or nil.
func (s *Snapshot) CPU() *CPUBlock {
	if b, ok := s.Block(KindCPU).(*CPUBlock); ok {
		return b
	}
	return nil
}

// Memory returns the memory block or nil.
func (s *Snapshot) Memory() *MemoryBlock {
	if b, ok := s.Block(KindMemory).(*MemoryBlock); ok {
		return b
	}
	return nil
}

// Disks returns the disks block or nil.
func (s *Snapshot) Disks() *DisksBlock {
	if b, ok := s.Block(KindDisks).(*DisksBlock); ok {
		return b
	}
	return nil
}

// Networks returns the networks block or nil.
func (s *Snapshot) Networks() *NetworksBlock {
	if b, ok := s.Block(KindNetworks).(*NetworksBlock); ok {
		return b
	}
	return nil
}

// Processes returns the process table block or nil.
func (s *Snapshot) Processes() *ProcessesBlock {
	if b, ok := s.Block(KindProcesses).(*ProcessesBlock); ok {
		return b
	}
	return nil
}

// PGActivity returns the pg_stat_activity block or nil.
func (s *Snapshot) PGActivity() *PGActivityBlock {
	if b, ok := s.Block(KindPGActivity).(*PGActivityBlock); ok {
		return b
	}
	return nil
}

// PGStatements returns the pg_stat_statements block or nil.
func (s *Snapshot) PGStatements() *PGStatementsBlock {
	if b, ok := s.Block(KindPGStatements).(*PGStatementsBlock); ok {
		return b
	}
	return nil
}

// PGDatabases returns the pg_stat_database block or nil.
func (s *Snapshot) PGDatabases() *PGDatabasesBlock {
	if b, ok := s.Block(KindPGDatabases).(*PGDatabasesBlock); ok {
		return b
	}
	return nil
}
