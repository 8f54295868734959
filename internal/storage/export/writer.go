package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// Options configures the Parquet output.
type Options struct {
	Compression CompressionType
}

// CompressionType selects the Parquet column compression.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns the default export options.
func DefaultOptions() Options {
	return Options{Compression: CompressionZstd}
}

// ParseCompressionType parses a compression name from a flag or config.
// Unknown names fall back to zstd.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

func codecFor(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// SummaryRow is one snapshot flattened to host and PostgreSQL gauges. CPU
// jiffies and the PostgreSQL counters stay cumulative; utilization over
// time is a window function away in SQL.
type SummaryRow struct {
	Timestamp int64 `parquet:"timestamp"`

	CPUBusy  int64   `parquet:"cpu_busy_jiffies"`
	CPUTotal int64   `parquet:"cpu_total_jiffies"`
	Load1    float64 `parquet:"load1"`
	Cores    int32   `parquet:"cores"`

	MemTotal     int64   `parquet:"mem_total_bytes"`
	MemAvailable int64   `parquet:"mem_available_bytes"`
	MemUsedPct   float64 `parquet:"mem_used_pct"`
	SwapUsed     int64   `parquet:"swap_used_bytes"`

	DiskReadOps  int64 `parquet:"disk_read_ops"`
	DiskWriteOps int64 `parquet:"disk_write_ops"`
	DiskBusyMs   int64 `parquet:"disk_busy_ms"`

	NetRxBytes int64 `parquet:"net_rx_bytes"`
	NetTxBytes int64 `parquet:"net_tx_bytes"`

	Processes  int32 `parquet:"processes"`
	ProcessRSS int64 `parquet:"process_rss_bytes"`

	PGBackends int32 `parquet:"pg_backends"`
	PGActive   int32 `parquet:"pg_active"`
	PGIdleInTx int32 `parquet:"pg_idle_in_tx"`

	PGXactCommit int64 `parquet:"pg_xact_commit"`
	PGBlksHit    int64 `parquet:"pg_blks_hit"`
	PGBlksRead   int64 `parquet:"pg_blks_read"`
}

// ProcessRow is one sampled process with its interned names resolved.
type ProcessRow struct {
	Timestamp int64  `parquet:"timestamp"`
	PID       int32  `parquet:"pid"`
	Command   string `parquet:"command,zstd"`
	User      string `parquet:"user,zstd"`
	State     string `parquet:"state,zstd"`

	UTime int64 `parquet:"utime_jiffies"`
	STime int64 `parquet:"stime_jiffies"`

	VSize int64 `parquet:"vsize_bytes"`
	RSS   int64 `parquet:"rss_bytes"`

	ReadBytes  int64 `parquet:"read_bytes"`
	WriteBytes int64 `parquet:"write_bytes"`

	Threads int32 `parquet:"threads"`
}

// SummaryFromSnapshot flattens one snapshot. Absent blocks leave their
// columns zero.
func SummaryFromSnapshot(snap *types.Snapshot) SummaryRow {
	row := SummaryRow{Timestamp: snap.Timestamp}

	if cpu := snap.CPU(); cpu != nil {
		busy, total := cpu.BusyTotal()
		row.CPUBusy = int64(busy)
		row.CPUTotal = int64(total)
		row.Load1 = cpu.Load1
		row.Cores = int32(cpu.Cores)
	}
	if mem := snap.Memory(); mem != nil {
		row.MemTotal = int64(mem.Total)
		row.MemAvailable = int64(mem.Available)
		if mem.Total > 0 {
			row.MemUsedPct = float64(mem.Total-mem.Available) / float64(mem.Total) * 100
		}
		row.SwapUsed = int64(mem.SwapTotal - mem.SwapFree)
	}
	if disks := snap.Disks(); disks != nil {
		for _, d := range disks.Disks {
			row.DiskReadOps += int64(d.ReadOps)
			row.DiskWriteOps += int64(d.WriteOps)
			row.DiskBusyMs += int64(d.BusyMs)
		}
	}
	if nets := snap.Networks(); nets != nil {
		for _, n := range nets.Interfaces {
			row.NetRxBytes += int64(n.RxBytes)
			row.NetTxBytes += int64(n.TxBytes)
		}
	}
	if procs := snap.Processes(); procs != nil {
		row.Processes = int32(len(procs.Processes))
		for _, p := range procs.Processes {
			row.ProcessRSS += int64(p.RSS)
		}
	}
	if pg := snap.PGActivity(); pg != nil {
		row.PGBackends = int32(len(pg.Backends))
		for _, b := range pg.Backends {
			switch b.State {
			case types.PGStateActive:
				row.PGActive++
			case types.PGStateIdleInTx, types.PGStateIdleInTxAborted:
				row.PGIdleInTx++
			}
		}
	}
	if dbs := snap.PGDatabases(); dbs != nil {
		for _, db := range dbs.Databases {
			row.PGXactCommit += int64(db.XactCommit)
			row.PGBlksHit += int64(db.BlksHit)
			row.PGBlksRead += int64(db.BlksRead)
		}
	}
	return row
}

// ProcessRowsFromSnapshot flattens the process table of one snapshot.
// Returns nil when the snapshot carries no process block.
func ProcessRowsFromSnapshot(snap *types.Snapshot, strings *intern.Table) []ProcessRow {
	procs := snap.Processes()
	if procs == nil || len(procs.Processes) == 0 {
		return nil
	}
	rows := make([]ProcessRow, 0, len(procs.Processes))
	for _, p := range procs.Processes {
		rows = append(rows, ProcessRow{
			Timestamp:  snap.Timestamp,
			PID:        p.PID,
			Command:    resolveText(strings, p.Command),
			User:       resolveText(strings, p.User),
			State:      stateString(p.State),
			UTime:      int64(p.UTime),
			STime:      int64(p.STime),
			VSize:      int64(p.VSize),
			RSS:        int64(p.RSS),
			ReadBytes:  int64(p.ReadBytes),
			WriteBytes: int64(p.WriteBytes),
			Threads:    p.Threads,
		})
	}
	return rows
}

// resolveText resolves an interner handle. An unresolvable hash renders as
// hex so the row keeps a stable, greppable key.
func resolveText(strings *intern.Table, h uint64) string {
	if h == 0 {
		return ""
	}
	if s, ok := strings.Resolve(h); ok {
		return s
	}
	return fmt.Sprintf("%016x", h)
}

func stateString(b uint8) string {
	if b == 0 {
		return ""
	}
	return string(rune(b))
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("export writer is closed")

// SummaryWriter writes summary rows to a Parquet file.
type SummaryWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[SummaryRow]
	rowCount int64
	closed   bool
}

// NewSummaryWriter creates the file and its parent directory.
func NewSummaryWriter(path string, opts Options) (*SummaryWriter, error) {
	f, err := createParquetFile(path)
	if err != nil {
		return nil, err
	}
	return &SummaryWriter{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[SummaryRow](f, parquet.Compression(codecFor(opts.Compression))),
	}, nil
}

// Write appends rows.
func (w *SummaryWriter) Write(rows []SummaryRow) error {
	if len(rows) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	w.rowCount += int64(n)
	return nil
}

// Close flushes the footer and closes the file.
func (w *SummaryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *SummaryWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the output path.
func (w *SummaryWriter) Path() string {
	return w.path
}

// ProcessWriter writes process rows to a Parquet file.
type ProcessWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[ProcessRow]
	rowCount int64
	closed   bool
}

// NewProcessWriter creates the file and its parent directory.
func NewProcessWriter(path string, opts Options) (*ProcessWriter, error) {
	f, err := createParquetFile(path)
	if err != nil {
		return nil, err
	}
	return &ProcessWriter{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[ProcessRow](f, parquet.Compression(codecFor(opts.Compression))),
	}, nil
}

// Write appends rows.
func (w *ProcessWriter) Write(rows []ProcessRow) error {
	if len(rows) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	w.rowCount += int64(n)
	return nil
}

// Close flushes the footer and closes the file.
func (w *ProcessWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *ProcessWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the output path.
func (w *ProcessWriter) Path() string {
	return w.path
}

func createParquetFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return f, nil
}
