package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/rpgtop/rpgtop/internal/inspect"
	"github.com/rpgtop/rpgtop/internal/storage/heatmap"
)

// scoreRamp maps a 0..max score to a glyph; gaps render as spaces so
// covered-but-idle buckets stay distinguishable from missing ones.
const scoreRamp = ".:-=+*#%@"

// HeatmapCommand returns the heatmap rendering command.
func HeatmapCommand() *cli.Command {
	return &cli.Command{
		Name:      "heatmap",
		Usage:     "Render a heatmap file as per-metric terminal strips",
		ArgsUsage: "<activity.hm>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "width",
				Usage: "output width in columns (0 = detect terminal)",
			},
		},
		Action: heatmapRender,
	}
}

func heatmapRender(c *cli.Context) error {
	path, err := requireArg(c, 0, "activity.hm")
	if err != nil {
		return err
	}

	rep, err := inspect.InspectHeatmap(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	records, err := heatmap.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("%s: %d buckets (%d covered, %d gaps)\n",
		rep.Path, rep.Records, rep.Covered, rep.Gaps)
	if len(records) == 0 {
		return nil
	}

	interval := int64(0)
	if len(records) > 1 {
		interval = records[1].BucketStart - records[0].BucketStart
	}
	fmt.Printf("%s .. %s, %s per bucket\n\n",
		formatTimestamp(rep.FirstBucket), formatTimestamp(rep.LastBucket),
		time.Duration(interval)*time.Second)

	cells := renderWidth(c.Int("width")) - 18
	if cells < 10 {
		cells = 10
	}
	if len(records) < cells {
		cells = len(records)
	}

	fmt.Printf("cpu   [%s] peak %3d%%\n", strip(records, cells, pickCPU, 100), rep.PeakCPU)
	fmt.Printf("mem   [%s] peak %3d%%\n", strip(records, cells, pickMemory, 100), rep.PeakMemory)
	fmt.Printf("disk  [%s] peak %3d%%\n", strip(records, cells, pickDisk, 100), rep.PeakDisk)
	fmt.Printf("pg    [%s] peak %3d\n", strip(records, cells, pickPGActive, int(rep.PeakPGActive)), rep.PeakPGActive)

	perCell := time.Duration(interval*int64((len(records)+cells-1)/cells)) * time.Second
	fmt.Printf("\neach cell spans %s; ramp %q, blank = no data\n", perCell, scoreRamp)
	return nil
}

// renderWidth resolves the output width: an explicit flag wins, then the
// terminal size when stdout is a TTY, then a fixed default for pipes.
func renderWidth(flag int) int {
	if flag > 0 {
		return flag
	}
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil && w > 20 {
			return w
		}
	}
	return 100
}

func pickCPU(r heatmap.Record) uint8      { return r.CPU }
func pickMemory(r heatmap.Record) uint8   { return r.Memory }
func pickDisk(r heatmap.Record) uint8     { return r.Disk }
func pickPGActive(r heatmap.Record) uint8 { return r.PGActive }

// strip renders one metric across cells columns, downsampling by max when
// there are more buckets than columns.
func strip(records []heatmap.Record, cells int, pick func(heatmap.Record) uint8, max int) string {
	if max < 1 {
		max = 1
	}
	group := (len(records) + cells - 1) / cells

	var b strings.Builder
	for start := 0; start < len(records); start += group {
		end := start + group
		if end > len(records) {
			end = len(records)
		}
		covered := false
		score := 0
		for _, r := range records[start:end] {
			if !r.Covered {
				continue
			}
			covered = true
			if s := int(pick(r)); s > score {
				score = s
			}
		}
		if !covered {
			b.WriteByte(' ')
			continue
		}
		if score > max {
			score = max
		}
		b.WriteByte(scoreRamp[score*(len(scoreRamp)-1)/max])
	}
	return b.String()
}
