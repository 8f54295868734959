// Package compaction merges runs of undersized adjacent chunks into one.
// Frequent seals under memory pressure produce many small chunks; merging
// them restores compression efficiency (one shared dictionary and interner
// instead of many) and keeps the registry short.
//
// A merge writes the combined chunk first and deletes its sources after,
// so a crash can leave sources shadowed by the merged chunk but never lose
// data. SweepShadowed removes such leftovers on the next startup.
package compaction

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/rpgtop/rpgtop/internal/logging"
	"github.com/rpgtop/rpgtop/internal/storage/chunk"
	"github.com/rpgtop/rpgtop/internal/storage/config"
	"github.com/rpgtop/rpgtop/internal/storage/intern"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// Chunk describes one sealed chunk as compaction sees it.
type Chunk struct {
	Path           string
	FirstTimestamp int64
	LastTimestamp  int64
	Snapshots      int
	Size           int64
}

// Plan is one proposed merge: a run of adjacent undersized chunks.
type Plan struct {
	Sources        []Chunk
	FirstTimestamp int64
	LastTimestamp  int64
	TotalSize      int64
	TotalSnapshots int
}

// Engine plans and executes chunk merges. It is driven by the storage
// manager after seals; it owns no goroutines of its own.
type Engine struct {
	cfg      config.CompactionConfig
	dir      string
	sealOpts chunk.WriterOptions
	log      *slog.Logger

	stats statsCounters
}

type statsCounters struct {
	mergesPlanned   atomic.Int64
	mergesCompleted atomic.Int64
	mergesFailed    atomic.Int64
	chunksMerged    atomic.Int64
	snapshotsMerged atomic.Int64
	bytesIn         atomic.Int64
	bytesOut        atomic.Int64
	shadowedRemoved atomic.Int64
}

// New creates a compaction engine writing merged chunks into dir.
func New(cfg config.CompactionConfig, dir string, sealOpts chunk.WriterOptions) *Engine {
	return &Engine{
		cfg:      cfg,
		dir:      dir,
		sealOpts: sealOpts,
		log:      logging.Component("compaction"),
	}
}

// PlanAll returns the merges the policy proposes: maximal runs of at least
// two chunks that are adjacent in time order and each below MinChunkBytes,
// split so no run exceeds MaxRun chunks or the per-chunk snapshot limit.
func (e *Engine) PlanAll(chunks []Chunk) []Plan {
	if !e.cfg.Enabled || len(chunks) < 2 {
		return nil
	}

	maxRun := e.cfg.MaxRun
	if maxRun < 2 {
		maxRun = 8
	}

	sorted := make([]Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].FirstTimestamp != sorted[j].FirstTimestamp {
			return sorted[i].FirstTimestamp < sorted[j].FirstTimestamp
		}
		return sorted[i].Path < sorted[j].Path
	})

	var plans []Plan
	var run []Chunk
	snapshots := 0

	flush := func() {
		if len(run) >= 2 {
			plans = append(plans, newPlan(run))
		}
		run = nil
		snapshots = 0
	}

	for _, c := range sorted {
		if c.Size >= e.cfg.MinChunkBytes {
			flush()
			continue
		}
		if len(run) == maxRun || snapshots+c.Snapshots > chunk.MaxSnapshots {
			flush()
		}
		run = append(run, c)
		snapshots += c.Snapshots
	}
	flush()

	e.stats.mergesPlanned.Add(int64(len(plans)))
	return plans
}

func newPlan(run []Chunk) Plan {
	p := Plan{
		Sources:        append([]Chunk(nil), run...),
		FirstTimestamp: run[0].FirstTimestamp,
		LastTimestamp:  run[len(run)-1].LastTimestamp,
	}
	for _, c := range run {
		p.TotalSize += c.Size
		p.TotalSnapshots += c.Snapshots
	}
	return p
}

// Run executes one merge: every snapshot of every source is read, the
// interners are merged, and the combined batch is sealed as a new chunk.
// Sources are deleted only after the merged chunk is durable; a deletion
// failure is logged and left for SweepShadowed.
func (e *Engine) Run(plan Plan) (Chunk, error) {
	if len(plan.Sources) < 2 {
		return Chunk{}, fmt.Errorf("compaction: plan needs at least 2 sources, got %d", len(plan.Sources))
	}

	snaps := make([]*types.Snapshot, 0, plan.TotalSnapshots)
	merged := intern.New()

	for _, src := range plan.Sources {
		if err := e.readChunk(src.Path, &snaps, merged); err != nil {
			e.stats.mergesFailed.Add(1)
			return Chunk{}, err
		}
	}

	outPath := e.outputPath(plan.FirstTimestamp, plan.LastTimestamp)
	res, err := chunk.Seal(outPath, snaps, merged, e.sealOpts)
	if err != nil {
		e.stats.mergesFailed.Add(1)
		return Chunk{}, fmt.Errorf("seal merged chunk: %w", err)
	}

	for _, src := range plan.Sources {
		if err := os.Remove(src.Path); err != nil && !os.IsNotExist(err) {
			e.log.Warn("merged chunk source not removed, sweep will retry",
				"path", src.Path, "error", err)
		}
	}

	e.stats.mergesCompleted.Add(1)
	e.stats.chunksMerged.Add(int64(len(plan.Sources)))
	e.stats.snapshotsMerged.Add(int64(res.Snapshots))
	e.stats.bytesIn.Add(plan.TotalSize)
	e.stats.bytesOut.Add(res.FileBytes)

	e.log.Info("chunks merged",
		"sources", len(plan.Sources),
		"snapshots", res.Snapshots,
		"bytes_in", plan.TotalSize,
		"bytes_out", res.FileBytes,
		"path", outPath)

	return Chunk{
		Path:           outPath,
		FirstTimestamp: res.FirstTimestamp,
		LastTimestamp:  res.LastTimestamp,
		Snapshots:      res.Snapshots,
		Size:           res.FileBytes,
	}, nil
}

// outputPath picks a free path for a merged chunk covering [first, last].
// A source sealed in the same second can itself occupy the range name, so
// probe with a numeric suffix rather than seal over a file the removal
// loop is about to delete.
func (e *Engine) outputPath(first, last int64) string {
	base := chunk.FileName(first, last)
	candidate := filepath.Join(e.dir, base)
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		stem := strings.TrimSuffix(base, ".rpg")
		candidate = filepath.Join(e.dir, fmt.Sprintf("%s.%d.rpg", stem, n))
	}
}

func (e *Engine) readChunk(path string, snaps *[]*types.Snapshot, merged *intern.Table) error {
	r, err := chunk.Open(path)
	if err != nil {
		return fmt.Errorf("open source %s: %w", path, err)
	}
	defer r.Close()

	strings, err := r.Interner()
	if err != nil {
		return fmt.Errorf("read interner of %s: %w", path, err)
	}
	merged.Merge(strings)

	for i := 0; i < r.SnapshotCount(); i++ {
		s, err := r.ReadSnapshot(i)
		if err != nil {
			// A merge must not launder corruption into a clean
			// chunk while quietly dropping data.
			return fmt.Errorf("read %s snapshot %d: %w", path, i, err)
		}
		*snaps = append(*snaps, s)
	}
	return nil
}

// SweepShadowed deletes chunks whose time range another chunk fully covers
// with at least as many snapshots. These are crash leftovers from a merge
// that sealed its output but did not finish removing sources. Returns the
// chunks removed.
func (e *Engine) SweepShadowed(chunks []Chunk) []Chunk {
	var removed []Chunk

	for _, c := range chunks {
		if !isShadowed(c, chunks) {
			continue
		}
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			e.log.Warn("shadowed chunk not removed", "path", c.Path, "error", err)
			continue
		}
		e.log.Info("removed shadowed chunk",
			"path", c.Path,
			"first", c.FirstTimestamp,
			"last", c.LastTimestamp)
		e.stats.shadowedRemoved.Add(1)
		removed = append(removed, c)
	}

	return removed
}

// isShadowed reports whether another chunk fully covers c. Identical
// coverage breaks the tie on path so two copies never delete each other.
func isShadowed(c Chunk, chunks []Chunk) bool {
	for _, other := range chunks {
		if other.Path == c.Path {
			continue
		}
		if other.FirstTimestamp > c.FirstTimestamp || other.LastTimestamp < c.LastTimestamp {
			continue
		}
		if other.Snapshots > c.Snapshots {
			return true
		}
		if other.Snapshots == c.Snapshots && other.Path > c.Path {
			return true
		}
	}
	return false
}

// Stats holds engine statistics.
type Stats struct {
	MergesPlanned   int64
	MergesCompleted int64
	MergesFailed    int64
	ChunksMerged    int64
	SnapshotsMerged int64
	BytesIn         int64
	BytesOut        int64
	ShadowedRemoved int64
}

// Stats returns current statistics.
func (e *Engine) Stats() Stats {
	return Stats{
		MergesPlanned:   e.stats.mergesPlanned.Load(),
		MergesCompleted: e.stats.mergesCompleted.Load(),
		MergesFailed:    e.stats.mergesFailed.Load(),
		ChunksMerged:    e.stats.chunksMerged.Load(),
		SnapshotsMerged: e.stats.snapshotsMerged.Load(),
		BytesIn:         e.stats.bytesIn.Load(),
		BytesOut:        e.stats.bytesOut.Load(),
		ShadowedRemoved: e.stats.shadowedRemoved.Load(),
	}
}
