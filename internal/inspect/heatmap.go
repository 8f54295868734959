package inspect

import (
	"fmt"
	"os"

	"github.com/rpgtop/rpgtop/internal/storage/heatmap"
)

// HeatmapReport summarizes one heatmap file.
type HeatmapReport struct {
	Path     string
	FileSize int64

	Records     int
	Covered     int
	Gaps        int
	FirstBucket int64
	LastBucket  int64

	// Peak scores across covered buckets.
	PeakCPU      uint8
	PeakMemory   uint8
	PeakDisk     uint8
	PeakPGActive uint8
}

// InspectHeatmap reads one heatmap file into a report.
func InspectHeatmap(path string) (*HeatmapReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat heatmap: %w", err)
	}

	records, err := heatmap.ReadFile(path)
	if err != nil {
		return nil, err
	}

	rep := &HeatmapReport{
		Path:     path,
		FileSize: info.Size(),
		Records:  len(records),
	}
	if len(records) > 0 {
		rep.FirstBucket = records[0].BucketStart
		rep.LastBucket = records[len(records)-1].BucketStart
	}
	for _, r := range records {
		if !r.Covered {
			rep.Gaps++
			continue
		}
		rep.Covered++
		if r.CPU > rep.PeakCPU {
			rep.PeakCPU = r.CPU
		}
		if r.Memory > rep.PeakMemory {
			rep.PeakMemory = r.Memory
		}
		if r.Disk > rep.PeakDisk {
			rep.PeakDisk = r.Disk
		}
		if r.PGActive > rep.PeakPGActive {
			rep.PeakPGActive = r.PGActive
		}
	}
	return rep, nil
}
