package storage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rpgtop/rpgtop/internal/errors"
	"github.com/rpgtop/rpgtop/internal/logging"
	"github.com/rpgtop/rpgtop/internal/storage/backpressure"
	"github.com/rpgtop/rpgtop/internal/storage/buffer"
	"github.com/rpgtop/rpgtop/internal/storage/chunk"
	"github.com/rpgtop/rpgtop/internal/storage/compaction"
	"github.com/rpgtop/rpgtop/internal/storage/config"
	"github.com/rpgtop/rpgtop/internal/storage/heatmap"
	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/retention"
	"github.com/rpgtop/rpgtop/internal/storage/types"
	"github.com/rpgtop/rpgtop/internal/storage/wal"
)

// Manager owns the write path from appended snapshot to sealed chunk: the
// WAL for durability, the tail ring for pending entries, the registry of
// sealed chunks, the heatmap, and the retention, compaction and
// backpressure policies. One Manager is the single writer for its data
// directory.
//
// A snapshot is durable once Append returns. It stays in the WAL and the
// tail ring until the seal worker drains both into a chunk; the rotated
// WAL file is discarded only after that chunk is fsynced and registered,
// so a crash at any point loses nothing that Append acknowledged.
type Manager struct {
	mu sync.Mutex // orders appends against drains

	cfg      *config.Config
	sealOpts chunk.WriterOptions

	wal      *wal.WAL
	tail     *buffer.Ring
	registry *Registry
	heatmap  *heatmap.File
	builder  *heatmap.Builder

	bp         *backpressure.Controller
	retention  *retention.Manager
	compaction *compaction.Engine

	// sealMu serializes seal cycles across the worker, SealNow and Stop.
	sealMu sync.Mutex

	// A seal that failed after draining keeps its entries and the rotated
	// WAL file here; the next seal cycle retries them before rotating
	// again. Guarded by sealMu.
	pendingEntries []buffer.Entry
	pendingDrain   *wal.Draining

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sealCh  chan struct{}

	startTime time.Time
	log       *slog.Logger
	stats     managerCounters
}

type managerCounters struct {
	appended   atomic.Int64
	dropped    atomic.Int64
	seals      atomic.Int64
	sealErrors atomic.Int64
	forced     atomic.Int64
	recovered  atomic.Int64
}

// New builds a Manager over cfg's data directory and brings the on-disk
// state current: loads the registry, sweeps compaction leftovers, resolves
// an interrupted drain, re-seeds the tail ring from the live WAL, and opens
// the heatmap (rebuilding it from chunks if the file is rejected). The
// returned Manager is not yet accepting appends; call Start.
func New(cfg *config.Config) (*Manager, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	tail := buffer.New(cfg.Seal.TailCapacity)
	sealOpts := chunk.WriterOptions{
		CompressionLevel: cfg.Chunk.CompressionLevel,
		TrainDictionary:  cfg.Chunk.TrainDictionary,
		DictCapacity:     cfg.Chunk.DictCapacity,
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:        cfg,
		sealOpts:   sealOpts,
		tail:       tail,
		registry:   NewRegistry(cfg.ChunkDir()),
		bp:         backpressure.New(cfg.Backpressure, tail),
		retention:  retention.New(cfg.Retention),
		compaction: compaction.New(cfg.Compaction, cfg.ChunkDir(), sealOpts),
		ctx:        ctx,
		cancel:     cancel,
		sealCh:     make(chan struct{}, 1),
		log:        logging.Component("storage"),
	}

	if err := m.registry.Load(); err != nil {
		cancel()
		return nil, err
	}
	m.sweepShadowed()

	if err := m.openHeatmap(); err != nil {
		cancel()
		return nil, err
	}
	if err := m.recoverWAL(); err != nil {
		m.heatmap.Close()
		cancel()
		return nil, err
	}
	return m, nil
}

// sweepShadowed removes chunks left behind by a merge that crashed between
// sealing its output and deleting its sources.
func (m *Manager) sweepShadowed() {
	removed := m.compaction.SweepShadowed(compactionView(m.registry.Chunks()))
	for _, c := range removed {
		m.registry.Remove(c.Path)
	}
}

// openHeatmap opens the heatmap file and seeds the bucket builder after the
// last persisted bucket. A rejected file is derived data: it is rebuilt
// from the sealed chunks instead of failing startup.
func (m *Manager) openHeatmap() error {
	path := m.cfg.HeatmapPath()
	interval := m.cfg.Heatmap.BucketInterval

	var records []heatmap.Record
	hm, err := heatmap.OpenFile(path)
	switch {
	case err == nil:
		records, err = heatmap.ReadFile(path)
		if err != nil {
			hm.Close()
			return fmt.Errorf("read heatmap: %w", err)
		}
	case errors.IsFormat(err) || errors.IsTruncation(err):
		m.log.Warn("heatmap rejected, rebuilding from chunks", "path", path, "error", err)
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("remove rejected heatmap: %w", rmErr)
		}
		records, err = heatmap.BuildFromChunks(m.cfg.ChunkDir(), interval)
		if err != nil {
			return fmt.Errorf("rebuild heatmap: %w", err)
		}
		hm, err = heatmap.OpenFile(path)
		if err != nil {
			return fmt.Errorf("recreate heatmap: %w", err)
		}
		if len(records) > 0 {
			if err := hm.Append(records...); err != nil {
				hm.Close()
				return fmt.Errorf("write rebuilt heatmap: %w", err)
			}
		}
	default:
		return fmt.Errorf("open heatmap: %w", err)
	}

	m.heatmap = hm
	m.builder = heatmap.NewBuilder(interval)
	if len(records) > 0 {
		last := records[len(records)-1].BucketStart
		m.builder.Seed(last + m.builder.Interval())
	}
	return nil
}

// recoverWAL resolves an interrupted drain and re-seeds the tail ring from
// the live WAL. Entries already covered by a registered chunk are dropped;
// a leftover sealing file whose entries are not covered is sealed into its
// own chunk before the file goes, preserving the rotation ordering
// invariant across the crash.
func (m *Manager) recoverWAL() error {
	maxSealed := int64(math.MinInt64)
	if m.registry.Len() > 0 {
		_, maxSealed = m.registry.TimeRange()
	}

	walPath := m.cfg.WALPath()
	opts := m.walOptions()

	sealing := wal.SealingPath(walPath)
	if _, err := os.Stat(sealing); err == nil {
		res, err := wal.Recover(sealing, opts)
		if err != nil {
			return fmt.Errorf("recover sealing file: %w", err)
		}
		fresh := entriesAfter(res.Entries, maxSealed)
		if len(fresh) > 0 {
			if err := m.sealRecovered(fresh); err != nil {
				return fmt.Errorf("seal interrupted drain: %w", err)
			}
			maxSealed = fresh[len(fresh)-1].Snapshot.Timestamp
		}
		if err := os.Remove(sealing); err != nil {
			return fmt.Errorf("remove resolved sealing file: %w", err)
		}
		m.log.Info("resolved interrupted drain",
			"entries", len(res.Entries), "sealed", len(fresh))
	}

	res, err := wal.Recover(walPath, opts)
	if err != nil {
		return fmt.Errorf("recover wal: %w", err)
	}
	if res.Truncated {
		m.log.Warn("wal has a torn tail", "offset", res.TornOffset)
	}
	if res.SkippedEntries > 0 {
		m.log.Warn("wal entries skipped during recovery", "count", res.SkippedEntries)
	}

	live := entriesAfter(res.Entries, maxSealed)
	if len(live) > m.tail.Cap() {
		// More backlog than the tail holds, from a crash loop or a long
		// outage of the seal worker. Seal it directly and start clean.
		if err := m.sealRecovered(live); err != nil {
			return fmt.Errorf("seal recovered backlog: %w", err)
		}
		if err := os.Remove(walPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove drained wal: %w", err)
		}
		live = nil
	}

	w, err := wal.Open(walPath, opts)
	if err != nil {
		return err
	}
	m.wal = w

	for _, e := range live {
		if err := m.tail.Push(buffer.Entry{Snapshot: e.Snapshot, Strings: e.Strings}); err != nil {
			m.wal.Close()
			return fmt.Errorf("seed tail ring: %w", err)
		}
	}
	m.stats.recovered.Add(int64(len(res.Entries)))
	if len(live) > 0 {
		m.log.Info("recovered pending entries into tail", "entries", len(live))
	}
	return nil
}

func (m *Manager) walOptions() wal.Options {
	return wal.Options{
		SyncMode:      m.cfg.WAL.SyncMode,
		MaxEntryBytes: int(m.cfg.WAL.MaxEntryBytes),
	}
}

// entriesAfter keeps the entries strictly newer than ts, preserving order.
func entriesAfter(entries []wal.Entry, ts int64) []wal.Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Snapshot.Timestamp > ts {
			out = append(out, e)
		}
	}
	return out
}

// sealRecovered seals recovered entries directly into chunks, splitting
// batches that exceed the per-chunk snapshot limit.
func (m *Manager) sealRecovered(entries []wal.Entry) error {
	for len(entries) > 0 {
		n := len(entries)
		if n > chunk.MaxSnapshots {
			n = chunk.MaxSnapshots
		}
		snaps := make([]*types.Snapshot, 0, n)
		merged := intern.New()
		for _, e := range entries[:n] {
			snaps = append(snaps, e.Snapshot)
			merged.Merge(e.Strings)
		}
		if _, err := m.sealBatch(snaps, merged); err != nil {
			return err
		}
		entries = entries[n:]
	}
	return nil
}

// Start launches the seal worker and the backpressure watcher.
func (m *Manager) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.ErrAlreadyRunning
	}
	m.startTime = time.Now()

	m.wg.Add(1)
	go m.sealLoop()

	m.wg.Add(1)
	go m.backpressureLoop()

	m.log.Info("storage manager started",
		"data_dir", m.cfg.DataDir,
		"chunks", m.registry.Len(),
		"pending", m.tail.Len())
	return nil
}

// Stop halts the workers, performs a final seal, flushes the heatmap
// builder and closes the files. Safe to call more than once.
func (m *Manager) Stop() error {
	if !m.running.CompareAndSwap(true, false) {
		return nil
	}
	m.cancel()
	m.wg.Wait()

	var errs []error
	if err := m.sealPending(false); err != nil {
		errs = append(errs, fmt.Errorf("final seal: %w", err))
		m.sealMu.Lock()
		if m.pendingDrain != nil {
			// Leave the sealing file for the next startup to resolve.
			m.pendingDrain.Abandon()
			m.pendingDrain = nil
			m.pendingEntries = nil
		}
		m.sealMu.Unlock()
	}

	if records := m.builder.FlushAll(); len(records) > 0 {
		if err := m.heatmap.Append(records...); err != nil {
			errs = append(errs, fmt.Errorf("flush heatmap: %w", err))
		}
	}
	if err := m.heatmap.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close heatmap: %w", err))
	}
	if err := m.wal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close wal: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("stop: %v", errs)
	}
	m.log.Info("storage manager stopped")
	return nil
}

// IsRunning reports whether the manager is accepting appends.
func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

// Append makes one snapshot durable and queues it for sealing. Under
// emergency backpressure, or when the tail ring is full because sealing
// cannot keep up, the snapshot is dropped and ErrBufferFull returned:
// bounding memory and WAL growth is worth more than one sample of a
// monitoring stream.
func (m *Manager) Append(snap *types.Snapshot, strings *intern.Table) error {
	if !m.running.Load() {
		return errors.Wrap(errors.ErrClosed, "storage manager not running")
	}
	if snap == nil {
		return errors.New("storage: nil snapshot")
	}

	m.bp.Check()
	if m.bp.ShouldDrop() {
		m.bp.RecordDrop()
		m.stats.dropped.Add(1)
		m.requestSeal()
		return errors.Wrap(errors.ErrBufferFull, "dropped under emergency backpressure")
	}

	m.mu.Lock()
	if m.tail.Len() == m.tail.Cap() {
		m.mu.Unlock()
		m.bp.RecordDrop()
		m.stats.dropped.Add(1)
		m.requestSeal()
		return errors.Wrap(errors.ErrBufferFull, "tail ring full, sealer behind")
	}
	if err := m.wal.Append(snap, strings); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("wal append: %w", err)
	}
	// Cannot fail: the slot was free above and the lock is still held.
	if err := m.tail.Push(buffer.Entry{Snapshot: snap, Strings: strings}); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("tail push: %w", err)
	}
	pending := m.tail.Len()
	m.mu.Unlock()

	m.stats.appended.Add(1)
	if pending >= m.cfg.Seal.MaxPending || m.bp.ShouldForceSeal() {
		m.requestSeal()
	}
	return nil
}

// requestSeal nudges the seal worker without blocking.
func (m *Manager) requestSeal() {
	select {
	case m.sealCh <- struct{}{}:
	default:
	}
}

func (m *Manager) sealLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Seal.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if err := m.sealPending(false); err != nil {
				m.log.Error("seal failed", "error", err)
			}
		case <-m.sealCh:
			if err := m.sealPending(true); err != nil {
				m.log.Error("forced seal failed", "error", err)
			}
		}
	}
}

func (m *Manager) backpressureLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.bp.Check()
		}
	}
}

// SealNow seals whatever is pending without waiting for the interval or
// the threshold. Mainly for shutdown-adjacent flows and tooling.
func (m *Manager) SealNow() error {
	if !m.running.Load() {
		return errors.Wrap(errors.ErrClosed, "storage manager not running")
	}
	return m.sealPending(true)
}

// sealPending drains the tail ring and the WAL into a new chunk.
func (m *Manager) sealPending(forced bool) error {
	m.sealMu.Lock()
	defer m.sealMu.Unlock()

	// A failed earlier seal holds the rotated WAL file; retry it before
	// rotating again, or the entries it guards would be stranded.
	if m.pendingDrain != nil {
		if err := m.sealDrained(m.pendingEntries, m.pendingDrain); err != nil {
			m.stats.sealErrors.Add(1)
			return err
		}
		m.pendingEntries = nil
		m.pendingDrain = nil
	}

	m.mu.Lock()
	if m.tail.Len() == 0 {
		m.mu.Unlock()
		return nil
	}
	d, err := m.wal.BeginDrain()
	if err != nil {
		m.mu.Unlock()
		m.stats.sealErrors.Add(1)
		return fmt.Errorf("begin drain: %w", err)
	}
	entries := m.tail.DrainAll()
	m.mu.Unlock()

	if forced {
		m.stats.forced.Add(1)
	}

	if err := m.sealDrained(entries, d); err != nil {
		m.stats.sealErrors.Add(1)
		m.pendingEntries = entries
		m.pendingDrain = d
		return err
	}
	return nil
}

// sealDrained turns drained entries into a registered chunk and then lets
// go of the rotated WAL file. The ordering is the durability invariant:
// registry.Add before Draining.Commit.
func (m *Manager) sealDrained(entries []buffer.Entry, d *wal.Draining) error {
	if len(entries) == 0 {
		return d.Commit()
	}

	snaps := make([]*types.Snapshot, 0, len(entries))
	merged := intern.New()
	for _, e := range entries {
		snaps = append(snaps, e.Snapshot)
		merged.Merge(e.Strings)
	}

	if _, err := m.sealBatch(snaps, merged); err != nil {
		return err
	}
	if err := d.Commit(); err != nil {
		// The chunk is durable and registered; the leftover file resolves
		// as covered on the next startup.
		m.log.Warn("sealing file not removed", "error", err)
	}

	m.maintain()
	return nil
}

// sealBatch seals snaps into a chunk, registers it and feeds the heatmap.
func (m *Manager) sealBatch(snaps []*types.Snapshot, merged *intern.Table) (ChunkMeta, error) {
	first := snaps[0].Timestamp
	last := snaps[len(snaps)-1].Timestamp
	path := m.chunkPath(first, last)

	res, err := chunk.Seal(path, snaps, merged, m.sealOpts)
	if err != nil {
		return ChunkMeta{}, fmt.Errorf("seal chunk: %w", err)
	}
	meta := ChunkMeta{
		Path:           path,
		FirstTimestamp: res.FirstTimestamp,
		LastTimestamp:  res.LastTimestamp,
		Snapshots:      res.Snapshots,
		Size:           res.FileBytes,
	}
	m.registry.Add(meta)
	m.stats.seals.Add(1)

	for _, s := range snaps {
		m.builder.Observe(s)
	}
	if records := m.builder.FlushCompletedBefore(res.LastTimestamp); len(records) > 0 {
		if err := m.heatmap.Append(records...); err != nil {
			m.log.Warn("heatmap append failed", "records", len(records), "error", err)
		}
	}

	m.log.Info("chunk sealed",
		"path", path,
		"snapshots", res.Snapshots,
		"raw_bytes", res.RawBytes,
		"file_bytes", res.FileBytes,
		"dict_bytes", res.DictBytes)
	return meta, nil
}

// chunkPath picks a free path for a chunk covering [first, last]. Two seals
// inside the same second collide on the range name; a numeric suffix keeps
// both (the registry reads metadata from headers, not names).
func (m *Manager) chunkPath(first, last int64) string {
	base := chunk.FileName(first, last)
	candidate := filepath.Join(m.cfg.ChunkDir(), base)
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		stem := strings.TrimSuffix(base, ".rpg")
		candidate = filepath.Join(m.cfg.ChunkDir(), fmt.Sprintf("%s.%d.rpg", stem, n))
	}
}

// maintain runs the retention and compaction policies after a seal.
func (m *Manager) maintain() {
	// Retention first, so compaction never merges chunks about to expire.
	res := m.retention.Apply(retentionView(m.registry.Chunks()), time.Now())
	for _, c := range res.Deleted {
		m.registry.Remove(c.Path)
	}
	for _, err := range res.Errors {
		m.log.Warn("retention error", "error", err)
	}

	if !m.cfg.Compaction.Enabled || m.bp.ShouldPauseCompaction() {
		return
	}
	for _, plan := range m.compaction.PlanAll(compactionView(m.registry.Chunks())) {
		if m.ctx.Err() != nil || m.bp.ShouldPauseCompaction() {
			return
		}
		mergedChunk, err := m.compaction.Run(plan)
		if err != nil {
			m.log.Warn("compaction failed", "sources", len(plan.Sources), "error", err)
			continue
		}
		for _, src := range plan.Sources {
			m.registry.Remove(src.Path)
		}
		m.registry.Add(ChunkMeta{
			Path:           mergedChunk.Path,
			FirstTimestamp: mergedChunk.FirstTimestamp,
			LastTimestamp:  mergedChunk.LastTimestamp,
			Snapshots:      mergedChunk.Snapshots,
			Size:           mergedChunk.Size,
		})
	}
}

func compactionView(chunks []ChunkMeta) []compaction.Chunk {
	out := make([]compaction.Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = compaction.Chunk{
			Path:           c.Path,
			FirstTimestamp: c.FirstTimestamp,
			LastTimestamp:  c.LastTimestamp,
			Snapshots:      c.Snapshots,
			Size:           c.Size,
		}
	}
	return out
}

func retentionView(chunks []ChunkMeta) []retention.Chunk {
	out := make([]retention.Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = retention.Chunk{
			Path:           c.Path,
			FirstTimestamp: c.FirstTimestamp,
			LastTimestamp:  c.LastTimestamp,
			Size:           c.Size,
		}
	}
	return out
}

// FindByTime returns the stored snapshot with the greatest timestamp at or
// before ts, with the string table that resolves it. The tail ring answers
// for the most recent span; sealed chunks answer for everything older. A
// miss wraps ErrOutOfRange.
func (m *Manager) FindByTime(ts int64) (*types.Snapshot, *intern.Table, error) {
	if m.tail.Len() > 0 {
		if oldest, _ := m.tail.TimeRange(); ts >= oldest {
			if e, ok := m.tail.FindByTime(ts); ok {
				return e.Snapshot, e.Strings, nil
			}
		}
	}

	meta, ok := m.registry.FindByTime(ts)
	if !ok {
		return nil, nil, errors.Wrapf(errors.ErrOutOfRange, "no snapshot at or before %d", ts)
	}
	r, err := chunk.Open(meta.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open chunk %s: %w", meta.Path, err)
	}
	defer r.Close()

	i, ok := r.FindByTime(ts)
	if !ok {
		return nil, nil, errors.Wrapf(errors.ErrOutOfRange, "no snapshot at or before %d", ts)
	}
	snap, err := r.ReadSnapshot(i)
	if err != nil {
		return nil, nil, fmt.Errorf("read snapshot: %w", err)
	}
	strings, err := r.Interner()
	if err != nil {
		return nil, nil, fmt.Errorf("read interner: %w", err)
	}
	return snap, strings, nil
}

// Tail returns the newest n pending entries in chronological order; n <= 0
// returns all of them.
func (m *Manager) Tail(n int) []buffer.Entry {
	return m.tail.Last(n)
}

// TimeRange returns the full stored span, sealed chunks and tail together.
// Zero values when nothing is stored.
func (m *Manager) TimeRange() (first, last int64) {
	first, last = m.registry.TimeRange()
	if m.tail.Len() == 0 {
		return first, last
	}
	oldest, newest := m.tail.TimeRange()
	if first == 0 && last == 0 {
		return oldest, newest
	}
	if oldest < first {
		first = oldest
	}
	if newest > last {
		last = newest
	}
	return first, last
}

// Registry exposes the chunk registry for read-side tooling.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Config returns the active configuration.
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// ManagerStats aggregates statistics across all owned components.
type ManagerStats struct {
	Running    bool
	Uptime     time.Duration
	Appended   int64
	Dropped    int64
	Seals      int64
	SealErrors int64
	Forced     int64
	Recovered  int64

	Chunks     int
	ChunkBytes int64

	WAL          wal.Stats
	Tail         buffer.Stats
	Backpressure backpressure.Stats
	Retention    retention.Stats
	Compaction   compaction.Stats
}

// Stats returns a snapshot of the manager's statistics.
func (m *Manager) Stats() ManagerStats {
	var uptime time.Duration
	if !m.startTime.IsZero() {
		uptime = time.Since(m.startTime)
	}
	return ManagerStats{
		Running:      m.running.Load(),
		Uptime:       uptime,
		Appended:     m.stats.appended.Load(),
		Dropped:      m.stats.dropped.Load(),
		Seals:        m.stats.seals.Load(),
		SealErrors:   m.stats.sealErrors.Load(),
		Forced:       m.stats.forced.Load(),
		Recovered:    m.stats.recovered.Load(),
		Chunks:       m.registry.Len(),
		ChunkBytes:   m.registry.TotalBytes(),
		WAL:          m.wal.Stats(),
		Tail:         m.tail.Stats(),
		Backpressure: m.bp.Stats(),
		Retention:    m.retention.Stats(),
		Compaction:   m.compaction.Stats(),
	}
}
