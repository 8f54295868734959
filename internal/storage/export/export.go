package export

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rpgtop/rpgtop/internal/logging"
	"github.com/rpgtop/rpgtop/internal/storage/chunk"
)

// Default file names inside an export directory.
const (
	SummaryFile = "summary.parquet"
	ProcessFile = "processes.parquet"
)

// Result summarizes one export run.
type Result struct {
	Chunks        int
	SkippedChunks int
	Snapshots     int64
	SummaryRows   int64
	ProcessRows   int64
	SummaryPath   string
	ProcessPath   string
}

// ExportDir flattens every chunk in chunkDir into a summary and a process
// Parquet file under outDir. Chunks that fail to open or read are skipped
// with a warning, matching how the registry treats historical corruption.
func ExportDir(chunkDir, outDir string, opts Options) (*Result, error) {
	log := logging.Component("export")

	paths, err := filepath.Glob(filepath.Join(chunkDir, "*.rpg"))
	if err != nil {
		return nil, fmt.Errorf("scan chunk dir: %w", err)
	}
	sort.Strings(paths)

	sw, err := NewSummaryWriter(filepath.Join(outDir, SummaryFile), opts)
	if err != nil {
		return nil, err
	}
	pw, err := NewProcessWriter(filepath.Join(outDir, ProcessFile), opts)
	if err != nil {
		sw.Close()
		return nil, err
	}

	res := &Result{SummaryPath: sw.Path(), ProcessPath: pw.Path()}
	for _, p := range paths {
		n, err := ExportChunk(p, sw, pw)
		if err != nil {
			log.Warn("skipping chunk during export", "path", p, "error", err)
			res.SkippedChunks++
			continue
		}
		res.Chunks++
		res.Snapshots += int64(n)
	}

	if err := sw.Close(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("close summary output: %w", err)
	}
	if err := pw.Close(); err != nil {
		return nil, fmt.Errorf("close process output: %w", err)
	}
	res.SummaryRows = sw.RowCount()
	res.ProcessRows = pw.RowCount()

	log.Info("export finished",
		"chunks", res.Chunks,
		"skipped", res.SkippedChunks,
		"snapshots", res.Snapshots,
		"summary_rows", res.SummaryRows,
		"process_rows", res.ProcessRows)
	return res, nil
}

// ExportChunk flattens one chunk into the two writers and returns the
// number of snapshots exported. The chunk is read fully before anything is
// written, so a corrupt snapshot skips the whole chunk instead of leaving
// half its rows behind.
func ExportChunk(path string, sw *SummaryWriter, pw *ProcessWriter) (int, error) {
	r, err := chunk.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open chunk: %w", err)
	}
	defer r.Close()

	strings, err := r.Interner()
	if err != nil {
		return 0, fmt.Errorf("read interner: %w", err)
	}

	summaries := make([]SummaryRow, 0, r.SnapshotCount())
	var procs []ProcessRow
	for i := 0; i < r.SnapshotCount(); i++ {
		snap, err := r.ReadSnapshot(i)
		if err != nil {
			return 0, fmt.Errorf("read snapshot %d: %w", i, err)
		}
		summaries = append(summaries, SummaryFromSnapshot(snap))
		procs = append(procs, ProcessRowsFromSnapshot(snap, strings)...)
	}

	if err := sw.Write(summaries); err != nil {
		return 0, fmt.Errorf("write summaries: %w", err)
	}
	if err := pw.Write(procs); err != nil {
		return 0, fmt.Errorf("write processes: %w", err)
	}
	return len(summaries), nil
}
