package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/rpgtop/rpgtop/internal/inspect"
	"github.com/rpgtop/rpgtop/internal/storage/wal"
)

// WALCommand returns the WAL report command.
func WALCommand() *cli.Command {
	return &cli.Command{
		Name:      "wal",
		Usage:     "Scan a write-ahead log and report its frames and tail state",
		ArgsUsage: "<rpgtop.wal>",
		Action:    walReport,
	}
}

func walReport(c *cli.Context) error {
	path, err := requireArg(c, 0, "rpgtop.wal")
	if err != nil {
		return err
	}

	rep, err := inspect.InspectWAL(path, wal.DefaultOptions())
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("%s\n", rep.Path)
	fmt.Printf("  File size:    %s\n", formatBytes(rep.FileSize))
	fmt.Printf("  Frames:       %d (%d skipped)\n", rep.Frames, rep.SkippedFrames)
	if rep.Frames > 0 {
		fmt.Printf("  Time range:   %s .. %s\n",
			formatTimestamp(rep.FirstTimestamp), formatTimestamp(rep.LastTimestamp))
	}
	fmt.Printf("  Scanned:      %s\n", formatBytes(rep.BytesScanned))
	if rep.Truncated {
		fmt.Printf("  Tail:         torn at offset %d: %s\n", rep.TornOffset, rep.TornReason)
	} else {
		fmt.Printf("  Tail:         clean\n")
	}
	return nil
}
