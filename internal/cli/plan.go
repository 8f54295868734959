package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/rpgtop/rpgtop/internal/storage/config"
)

// PlanCommand returns the resource planning command.
func PlanCommand() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Estimate disk and memory needs for a storage configuration",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file (defaults apply when absent)",
			},
		},
		Action: planRequirements,
	}
}

func planRequirements(c *cli.Context) error {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			fmt.Fprintf(os.Stderr, "config %s not found, using defaults\n", path)
		} else {
			cfg = loaded
		}
	}

	req := cfg.CalculateRequirements()
	fmt.Print(req.FormatRequirements())
	return nil
}
