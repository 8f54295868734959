// Package query answers SQL over sealed history with an embedded DuckDB.
//
// DuckDB cannot read RPG3 chunks directly, so the first query (or an
// explicit Refresh) exports the chunk directory to a scratch directory of
// Parquet files and registers them as the `summary` and `processes` views.
// After that, plain SQL works: `SELECT max(mem_used_pct) FROM summary`.
// The scratch copy lives until Close or the next Refresh.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/rpgtop/rpgtop/internal/logging"
	"github.com/rpgtop/rpgtop/internal/storage/config"
	"github.com/rpgtop/rpgtop/internal/storage/export"
)

// Service runs SQL over exported history.
type Service struct {
	mu sync.Mutex

	cfg      config.QueryConfig
	chunkDir string
	db       *sql.DB

	scratch    string
	prepared   bool
	lastExport *export.Result

	log   *slog.Logger
	stats Stats
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
	Refreshes       int64
}

// Result is one query's output with column order preserved for display.
type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Elapsed   time.Duration
}

// HostPoint is one snapshot's headline gauges from the summary view.
type HostPoint struct {
	Timestamp  int64
	Load1      float64
	MemUsedPct float64
	Processes  int32
	PGActive   int32
}

// ProcessUsage aggregates one command's presence over a time range.
type ProcessUsage struct {
	Command string
	Samples int64
	MaxRSS  int64
	AvgRSS  float64
}

// New opens an in-memory DuckDB over the given chunk directory. Nothing is
// exported until the first query or Refresh.
func New(cfg config.QueryConfig, chunkDir string) (*Service, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if cfg.MemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", cfg.MemoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}
	return &Service{
		cfg:      cfg,
		chunkDir: chunkDir,
		db:       db,
		log:      logging.Component("query"),
	}, nil
}

// Close closes the database and removes the scratch export.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	if s.scratch != "" {
		os.RemoveAll(s.scratch)
		s.scratch = ""
	}
	s.prepared = false
	return err
}

// Refresh re-exports the chunk directory so queries see chunks sealed since
// the last export.
func (s *Service) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked()
}

func (s *Service) refreshLocked() error {
	scratch, err := os.MkdirTemp("", "rpgtop-query-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	res, err := export.ExportDir(s.chunkDir, scratch, export.DefaultOptions())
	if err != nil {
		os.RemoveAll(scratch)
		return fmt.Errorf("export chunks: %w", err)
	}

	views := []struct{ name, path string }{
		{"summary", res.SummaryPath},
		{"processes", res.ProcessPath},
	}
	for _, v := range views {
		stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet('%s')", v.name, v.path)
		if _, err := s.db.Exec(stmt); err != nil {
			os.RemoveAll(scratch)
			return fmt.Errorf("register view %s: %w", v.name, err)
		}
	}

	if s.scratch != "" {
		os.RemoveAll(s.scratch)
	}
	s.scratch = scratch
	s.prepared = true
	s.lastExport = res
	s.stats.Refreshes++

	s.log.Info("history exported for queries",
		"chunks", res.Chunks,
		"skipped", res.SkippedChunks,
		"summary_rows", res.SummaryRows,
		"process_rows", res.ProcessRows)
	return nil
}

func (s *Service) prepareLocked() error {
	if s.prepared {
		return nil
	}
	return s.refreshLocked()
}

func (s *Service) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return ctx, func() {}
}

// Execute runs one SQL statement and scans the output generically, capped
// at MaxRows.
func (s *Service) Execute(ctx context.Context, query string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepareLocked(); err != nil {
		s.stats.Errors++
		return nil, err
	}
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.stats.Errors++
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		s.stats.Errors++
		return nil, err
	}

	res := &Result{Columns: columns}
	for rows.Next() {
		if s.cfg.MaxRows > 0 && len(res.Rows) >= s.cfg.MaxRows {
			res.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			s.stats.Errors++
			return nil, fmt.Errorf("scan row: %w", err)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		s.stats.Errors++
		return nil, err
	}
	res.Elapsed = time.Since(start)

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(res.Rows))
	return res, nil
}

// HostRange returns the headline gauges for every snapshot in [startTs,
// endTs], timestamp-ascending.
func (s *Service) HostRange(ctx context.Context, startTs, endTs int64) ([]HostPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepareLocked(); err != nil {
		s.stats.Errors++
		return nil, err
	}
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	query := `
		SELECT timestamp, load1, mem_used_pct, processes, pg_active
		FROM summary
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp
	`
	rows, err := s.db.QueryContext(ctx, query, startTs, endTs)
	if err != nil {
		s.stats.Errors++
		return nil, err
	}
	defer rows.Close()

	var out []HostPoint
	for rows.Next() {
		var p HostPoint
		if err := rows.Scan(&p.Timestamp, &p.Load1, &p.MemUsedPct, &p.Processes, &p.PGActive); err != nil {
			s.stats.Errors++
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		s.stats.Errors++
		return nil, err
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(out))
	return out, nil
}

// TopProcesses returns the commands with the largest resident sets over
// [startTs, endTs].
func (s *Service) TopProcesses(ctx context.Context, startTs, endTs int64, limit int) ([]ProcessUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepareLocked(); err != nil {
		s.stats.Errors++
		return nil, err
	}
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT command, count(*) AS samples, max(rss_bytes) AS max_rss, avg(rss_bytes) AS avg_rss
		FROM processes
		WHERE timestamp >= $1 AND timestamp <= $2 AND command <> ''
		GROUP BY command
		ORDER BY max_rss DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, startTs, endTs, limit)
	if err != nil {
		s.stats.Errors++
		return nil, err
	}
	defer rows.Close()

	var out []ProcessUsage
	for rows.Next() {
		var u ProcessUsage
		if err := rows.Scan(&u.Command, &u.Samples, &u.MaxRSS, &u.AvgRSS); err != nil {
			s.stats.Errors++
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		s.stats.Errors++
		return nil, err
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(out))
	return out, nil
}

// LastExport returns the result of the most recent export, nil before the
// first one.
func (s *Service) LastExport() *export.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastExport
}

// Stats returns query statistics.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
