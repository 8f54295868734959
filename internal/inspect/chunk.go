// Package inspect builds operator-facing reports over the storage files:
// chunk and WAL breakdowns, heatmap summaries, directory verification and
// codec comparisons. Nothing here prints; the CLI renders the reports.
package inspect

import (
	"fmt"

	"github.com/rpgtop/rpgtop/internal/storage/chunk"
	"github.com/rpgtop/rpgtop/internal/storage/types"
)

// SectionSizes breaks a chunk file down by region, in bytes.
type SectionSizes struct {
	Header   int64
	Index    int64
	Frames   int64
	Dict     int64
	Interner int64
}

// BlockUsage is one block kind's footprint across a chunk's snapshots.
// Bytes counts encoded payload bytes, before compression.
type BlockUsage struct {
	Kind   types.BlockKind
	Blocks int
	Bytes  int64
}

// ChunkReport describes one chunk file.
type ChunkReport struct {
	Path           string
	FileSize       int64
	Snapshots      int
	FirstTimestamp int64
	LastTimestamp  int64

	Sections SectionSizes

	// RawBytes and CompressedBytes cover the snapshot frames; Ratio is
	// raw over compressed.
	RawBytes        int64
	CompressedBytes int64
	Ratio           float64

	HasDict   bool
	DictBytes int64

	Strings     int
	StringBytes int

	// Blocks is the per-kind breakdown from a structural scan of every
	// frame, in kind order.
	Blocks []BlockUsage
}

// InspectChunk opens one chunk and fully reads it into a report. Any
// decode failure surfaces as an error rather than a partial report.
func InspectChunk(path string) (*ChunkReport, error) {
	r, err := chunk.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	h := r.Header()
	idx := r.Index()
	first, last := r.TimeRange()

	rep := &ChunkReport{
		Path:           r.Path(),
		FileSize:       r.FileSize(),
		Snapshots:      r.SnapshotCount(),
		FirstTimestamp: first,
		LastTimestamp:  last,
		HasDict:        h.DictLen > 0,
		DictBytes:      int64(h.DictLen),
	}
	rep.Sections = SectionSizes{
		Header:   chunk.HeaderSize,
		Index:    int64(len(idx)) * chunk.IndexEntrySize,
		Dict:     int64(h.DictLen),
		Interner: int64(h.InternerLen),
	}
	for _, e := range idx {
		rep.Sections.Frames += int64(e.CompressedLen)
		rep.RawBytes += int64(e.UncompressedLen)
	}
	rep.CompressedBytes = rep.Sections.Frames
	if rep.CompressedBytes > 0 {
		rep.Ratio = float64(rep.RawBytes) / float64(rep.CompressedBytes)
	}

	strings, err := r.Interner()
	if err != nil {
		return nil, fmt.Errorf("interner: %w", err)
	}
	rep.Strings = strings.Len()
	rep.StringBytes = strings.TextBytes()

	usage := make(map[types.BlockKind]*BlockUsage)
	for i := 0; i < r.SnapshotCount(); i++ {
		data, err := r.ReadSnapshotBytes(i)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", i, err)
		}
		sizes, err := types.ScanBlockSizes(data)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", i, err)
		}
		for kind, n := range sizes {
			u := usage[kind]
			if u == nil {
				u = &BlockUsage{Kind: kind}
				usage[kind] = u
			}
			u.Blocks++
			u.Bytes += int64(n)
		}
	}
	for _, kind := range types.AllBlockKinds() {
		if u := usage[kind]; u != nil {
			rep.Blocks = append(rep.Blocks, *u)
		}
	}
	return rep, nil
}
