package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/rpgtop/rpgtop/internal/inspect"
)

// VerifyCommand returns the directory verification command.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Fully read every chunk in a directory and report corruption",
		ArgsUsage: "<data-dir>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "workers",
				Usage: "parallel readers (0 = GOMAXPROCS)",
			},
		},
		Action: verifyDir,
	}
}

func verifyDir(c *cli.Context) error {
	dir, err := requireArg(c, 0, "data-dir")
	if err != nil {
		return err
	}

	res, err := inspect.VerifyDir(c.Context, chunkDirOf(dir), c.Int("workers"))
	if err != nil {
		return err
	}

	fmt.Printf("checked %d chunks, %d snapshots\n", res.Checked, res.Snapshots)
	if res.OK() {
		fmt.Println("ok")
		return nil
	}
	for _, issue := range res.Issues {
		PrintError("%s: %v", issue.Path, issue.Err)
	}
	return cli.Exit(fmt.Sprintf("%d of %d chunks failed verification", len(res.Issues), res.Checked), 1)
}
