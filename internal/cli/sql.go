package cli

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rpgtop/rpgtop/internal/storage/config"
	"github.com/rpgtop/rpgtop/internal/storage/query"
)

// queryFlags are shared by the sql, top, and repl commands.
func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "memory-limit",
			Usage: "DuckDB memory limit (e.g. 512MB)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "per-query timeout",
		},
		&cli.IntFlag{
			Name:  "max-rows",
			Usage: "result row cap",
		},
	}
}

// queryConfigFromFlags overlays flag values on the query defaults.
func queryConfigFromFlags(c *cli.Context) config.QueryConfig {
	qcfg := config.DefaultConfig().Query
	if v := c.String("memory-limit"); v != "" {
		qcfg.MemoryLimit = v
	}
	if v := c.Duration("timeout"); v > 0 {
		qcfg.Timeout = v
	}
	if v := c.Int("max-rows"); v > 0 {
		qcfg.MaxRows = v
	}
	return qcfg
}

// SQLCommand returns the one-shot SQL command.
func SQLCommand() *cli.Command {
	return &cli.Command{
		Name:      "sql",
		Usage:     "Run one SQL query over exported history (views: summary, processes)",
		ArgsUsage: "<data-dir> <query>",
		Flags:     queryFlags(),
		Action:    runSQL,
	}
}

func runSQL(c *cli.Context) error {
	dir, err := requireArg(c, 0, "data-dir")
	if err != nil {
		return err
	}
	sqlText, err := requireArg(c, 1, "query")
	if err != nil {
		return err
	}

	svc, err := query.New(queryConfigFromFlags(c), chunkDirOf(dir))
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Execute(c.Context, sqlText)
	if err != nil {
		return err
	}

	printResult(res)
	return nil
}

func printResult(res *query.Result) {
	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = formatValue(v)
		}
		rows[i] = cells
	}
	printTable(os.Stdout, res.Columns, rows)

	suffix := ""
	if res.Truncated {
		suffix = " (truncated at row cap)"
	}
	fmt.Printf("\n%d rows in %s%s\n", len(res.Rows), res.Elapsed.Round(time.Millisecond), suffix)
}

// TopCommand returns the process ranking command.
func TopCommand() *cli.Command {
	return &cli.Command{
		Name:      "top",
		Usage:     "Rank processes by peak memory over exported history",
		ArgsUsage: "<data-dir>",
		Flags: append(queryFlags(),
			&cli.DurationFlag{
				Name:  "since",
				Usage: "look-back window ending now (0 = all history)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "number of processes",
				Value: 20,
			},
		),
		Action: runTop,
	}
}

func runTop(c *cli.Context) error {
	dir, err := requireArg(c, 0, "data-dir")
	if err != nil {
		return err
	}

	svc, err := query.New(queryConfigFromFlags(c), chunkDirOf(dir))
	if err != nil {
		return err
	}
	defer svc.Close()

	start, end := int64(0), int64(math.MaxInt64)
	if since := c.Duration("since"); since > 0 {
		end = time.Now().Unix()
		start = end - int64(since/time.Second)
	}

	usages, err := svc.TopProcesses(c.Context, start, end, c.Int("limit"))
	if err != nil {
		return err
	}

	rows := make([][]string, len(usages))
	for i, u := range usages {
		rows[i] = []string{
			u.Command,
			fmt.Sprintf("%d", u.Samples),
			formatBytes(u.MaxRSS),
			formatBytes(int64(u.AvgRSS)),
		}
	}
	printTable(os.Stdout, []string{"COMMAND", "SAMPLES", "MAX RSS", "AVG RSS"}, rows)
	return nil
}
