// Package cli implements the rpgtop-inspect commands: structural reports
// over sealed chunks, WAL and heatmap files, directory verification, codec
// comparison, Parquet export, SQL over exported history, an interactive
// REPL, and a registry watch mode.
//
// Every command is read-only with respect to history files.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/rpgtop/rpgtop/internal/logging"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "rpgtop-inspect",
		Usage:   "inspect rpgtop history files",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			InfoCommand(),
			BlocksCommand(),
			WALCommand(),
			HeatmapCommand(),
			VerifyCommand(),
			CodecsCommand(),
			ExportCommand(),
			SQLCommand(),
			TopCommand(),
			ReplCommand(),
			WatchCommand(),
			PlanCommand(),
		},
		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			logging.Init(level, c.Bool("log-json"))
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log level: debug, info, warn, error",
			EnvVars: []string{"RPGTOP_LOG_LEVEL"},
			Value:   "warn",
		},
		&cli.BoolFlag{
			Name:  "log-json",
			Usage: "emit logs as JSON",
		},
	}
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

// requireArg returns positional argument i or a usage error naming it.
func requireArg(c *cli.Context, i int, name string) (string, error) {
	if c.Args().Len() <= i {
		return "", fmt.Errorf("missing <%s> argument (see '%s %s --help')",
			name, c.App.Name, c.Command.Name)
	}
	return c.Args().Get(i), nil
}

// chunkDirOf accepts either a data directory or a chunk directory: if dir
// has a chunks/ subdirectory that one is used, otherwise dir itself.
func chunkDirOf(dir string) string {
	sub := filepath.Join(dir, "chunks")
	if fi, err := os.Stat(sub); err == nil && fi.IsDir() {
		return sub
	}
	return dir
}
