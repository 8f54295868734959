package inspect

import (
	"fmt"
	"os"

	"github.com/rpgtop/rpgtop/internal/storage/wal"
)

// WALReport describes one WAL file.
type WALReport struct {
	Path     string
	FileSize int64

	// Frames counts entries that decoded; SkippedFrames counts frames
	// that passed their CRC but whose payload did not decode.
	Frames        int
	SkippedFrames int
	BytesScanned  int64

	FirstTimestamp int64
	LastTimestamp  int64

	Truncated  bool
	TornOffset int64
	TornReason string
}

// InspectWAL scans one WAL file into a report. A torn tail is reported,
// not treated as an error; a missing file is an error, since the caller
// named it explicitly.
func InspectWAL(path string, opts wal.Options) (*WALReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat wal: %w", err)
	}

	res, err := wal.Recover(path, opts)
	if err != nil {
		return nil, err
	}

	rep := &WALReport{
		Path:          path,
		FileSize:      info.Size(),
		Frames:        len(res.Entries),
		SkippedFrames: res.SkippedEntries,
		BytesScanned:  res.BytesScanned,
		Truncated:     res.Truncated,
		TornOffset:    res.TornOffset,
		TornReason:    res.TornReason,
	}
	if len(res.Entries) > 0 {
		rep.FirstTimestamp = res.Entries[0].Snapshot.Timestamp
		rep.LastTimestamp = res.Entries[len(res.Entries)-1].Snapshot.Timestamp
	}
	return rep, nil
}
