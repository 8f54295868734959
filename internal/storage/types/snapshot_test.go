package types

import (
	"testing"
	"time"
)

func TestSnapshotAddReplacesSameKind(t *testing.T) {
	s := NewSnapshot(100)
	s.Add(&MemoryBlock{Total: 1})
	s.Add(&CPUBlock{Cores: 4})
	s.Add(&MemoryBlock{Total: 2})

	if len(s.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(s.Blocks))
	}

	mem := s.Memory()
	if mem == nil {
		t.Fatal("expected memory block")
	}
	if mem.Total != 2 {
		t.Errorf("expected replacement block, got Total=%d", mem.Total)
	}
}

func TestSnapshotBlockLookup(t *testing.T) {
	s := NewSnapshot(100)
	s.Add(&CPUBlock{Cores: 8})

	if s.Block(KindCPU) == nil {
		t.Error("expected cpu block present")
	}
	if s.Block(KindPGActivity) != nil {
		t.Error("expected pg_activity block absent")
	}
	if s.Has(KindMemory) {
		t.Error("expected no memory block")
	}
	if s.PGDatabases() != nil {
		t.Error("expected nil typed getter for absent block")
	}
}

func TestSnapshotTime(t *testing.T) {
	ts := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	s := NewSnapshot(ts.Unix())

	if !s.Time().Equal(ts) {
		t.Errorf("expected %v, got %v", ts, s.Time())
	}
}

func TestBlockKindString(t *testing.T) {
	tests := []struct {
		kind     BlockKind
		expected string
	}{
		{KindCPU, "cpu"},
		{KindMemory, "memory"},
		{KindDisks, "disks"},
		{KindNetworks, "networks"},
		{KindProcesses, "processes"},
		{KindPGActivity, "pg_activity"},
		{KindPGStatements, "pg_statements"},
		{KindPGDatabases, "pg_databases"},
		{BlockKind(200), "unknown"},
	}

	for _, tt := range tests {
		if tt.kind.String() != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, tt.kind.String())
		}
	}
}

func TestCPUBusyTotal(t *testing.T) {
	b := &CPUBlock{User: 10, Nice: 1, System: 5, Idle: 80, Iowait: 4, IRQ: 2, SoftIRQ: 3, Steal: 1}

	busy, total := b.BusyTotal()
	if busy != 22 {
		t.Errorf("expected busy=22, got %d", busy)
	}
	if total != 106 {
		t.Errorf("expected total=106, got %d", total)
	}
}

func TestPGActivityActiveCount(t *testing.T) {
	b := &PGActivityBlock{Backends: []PGBackend{
		{PID: 1, State: PGStateActive},
		{PID: 2, State: PGStateIdle},
		{PID: 3, State: PGStateActive},
		{PID: 4, State: PGStateIdleInTx},
	}}

	if got := b.ActiveCount(); got != 2 {
		t.Errorf("expected 2 active backends, got %d", got)
	}
}
