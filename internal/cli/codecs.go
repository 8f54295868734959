package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/rpgtop/rpgtop/internal/inspect"
)

// CodecsCommand returns the codec comparison command.
func CodecsCommand() *cli.Command {
	return &cli.Command{
		Name:      "codecs",
		Usage:     "Recompress a chunk's frames with every codec and compare",
		ArgsUsage: "<chunk.rpg>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "samples",
				Usage: "limit to the first N frames (0 = all)",
			},
		},
		Action: compareCodecs,
	}
}

func compareCodecs(c *cli.Context) error {
	path, err := requireArg(c, 0, "chunk.rpg")
	if err != nil {
		return err
	}

	comparisons, err := inspect.CompareCodecs(path, c.Int("samples"))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	rows := make([][]string, 0, len(comparisons))
	for _, cmp := range comparisons {
		rows = append(rows, []string{
			cmp.Codec.String(),
			fmt.Sprintf("%d", cmp.Frames),
			formatBytes(cmp.RawBytes),
			formatBytes(cmp.CompressedBytes),
			fmt.Sprintf("%.2f:1", cmp.Ratio),
			cmp.Elapsed.String(),
		})
	}
	printTable(os.Stdout, []string{"CODEC", "FRAMES", "RAW", "COMPRESSED", "RATIO", "TIME"}, rows)
	return nil
}
