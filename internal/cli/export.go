package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/rpgtop/rpgtop/internal/storage/export"
)

// ExportCommand returns the Parquet export command.
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Flatten sealed chunks into summary and process Parquet files",
		ArgsUsage: "<data-dir>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "output directory",
				Value:   ".",
			},
			&cli.StringFlag{
				Name:  "compression",
				Usage: "column compression: zstd, snappy, lz4, gzip, none",
				Value: "zstd",
			},
		},
		Action: exportDir,
	}
}

func exportDir(c *cli.Context) error {
	dir, err := requireArg(c, 0, "data-dir")
	if err != nil {
		return err
	}

	opts := export.Options{Compression: export.ParseCompressionType(c.String("compression"))}
	res, err := export.ExportDir(chunkDirOf(dir), c.String("out"), opts)
	if err != nil {
		return err
	}

	fmt.Printf("exported %d chunks (%d skipped), %d snapshots\n",
		res.Chunks, res.SkippedChunks, res.Snapshots)
	fmt.Printf("  %s: %d rows\n", res.SummaryPath, res.SummaryRows)
	fmt.Printf("  %s: %d rows\n", res.ProcessPath, res.ProcessRows)
	if res.SkippedChunks > 0 {
		return cli.Exit(fmt.Sprintf("%d chunks were skipped as unreadable", res.SkippedChunks), 1)
	}
	return nil
}
