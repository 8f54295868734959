package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rpgtop/rpgtop/internal/inspect"
)

// InfoCommand returns the chunk info command.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show structural statistics for chunk files",
		ArgsUsage: "<chunk.rpg> [chunk.rpg...]",
		Action:    chunkInfo,
	}
}

func chunkInfo(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("missing <chunk.rpg> argument (see '%s info --help')", c.App.Name)
	}

	failed := 0
	for i, path := range c.Args().Slice() {
		if i > 0 {
			fmt.Println()
		}
		rep, err := inspect.InspectChunk(path)
		if err != nil {
			PrintError("%s: %v", path, err)
			failed++
			continue
		}
		printChunkReport(rep)
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files failed", failed, c.Args().Len()), 1)
	}
	return nil
}

func printChunkReport(rep *inspect.ChunkReport) {
	span := time.Duration(rep.LastTimestamp-rep.FirstTimestamp) * time.Second

	fmt.Printf("%s\n", rep.Path)
	fmt.Printf("  Snapshots:    %d\n", rep.Snapshots)
	fmt.Printf("  Time range:   %s .. %s (%s)\n",
		formatTimestamp(rep.FirstTimestamp), formatTimestamp(rep.LastTimestamp), span)
	fmt.Printf("  File size:    %s\n", formatBytes(rep.FileSize))
	fmt.Printf("  Sections:     header %s, index %s, frames %s, dict %s, interner %s\n",
		formatBytes(rep.Sections.Header), formatBytes(rep.Sections.Index),
		formatBytes(rep.Sections.Frames), formatBytes(rep.Sections.Dict),
		formatBytes(rep.Sections.Interner))
	fmt.Printf("  Raw bytes:    %s\n", formatBytes(rep.RawBytes))
	fmt.Printf("  Compressed:   %s (%.2f:1)\n", formatBytes(rep.CompressedBytes), rep.Ratio)
	if rep.HasDict {
		fmt.Printf("  Dictionary:   %s\n", formatBytes(rep.DictBytes))
	} else {
		fmt.Printf("  Dictionary:   none\n")
	}
	fmt.Printf("  Strings:      %d (%s)\n", rep.Strings, formatBytes(int64(rep.StringBytes)))
}

// BlocksCommand returns the per-block-kind breakdown command.
func BlocksCommand() *cli.Command {
	return &cli.Command{
		Name:      "blocks",
		Usage:     "Show per-block-kind size breakdown for a chunk",
		ArgsUsage: "<chunk.rpg>",
		Action:    chunkBlocks,
	}
}

func chunkBlocks(c *cli.Context) error {
	path, err := requireArg(c, 0, "chunk.rpg")
	if err != nil {
		return err
	}

	rep, err := inspect.InspectChunk(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	rows := make([][]string, 0, len(rep.Blocks))
	var total int64
	for _, u := range rep.Blocks {
		total += u.Bytes
	}
	for _, u := range rep.Blocks {
		pct := 0.0
		if total > 0 {
			pct = float64(u.Bytes) / float64(total) * 100
		}
		avg := int64(0)
		if u.Blocks > 0 {
			avg = u.Bytes / int64(u.Blocks)
		}
		rows = append(rows, []string{
			u.Kind.String(),
			fmt.Sprintf("%d", u.Blocks),
			formatBytes(u.Bytes),
			formatBytes(avg),
			fmt.Sprintf("%.1f%%", pct),
		})
	}

	fmt.Printf("%s: %d snapshots, %s raw block payload\n\n",
		rep.Path, rep.Snapshots, formatBytes(total))
	printTable(os.Stdout, []string{"KIND", "BLOCKS", "BYTES", "AVG", "SHARE"}, rows)
	return nil
}
