package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/urfave/cli/v2"

	"github.com/rpgtop/rpgtop/internal/storage/query"
)

// ReplCommand returns the interactive SQL shell command.
func ReplCommand() *cli.Command {
	return &cli.Command{
		Name:      "repl",
		Usage:     "Interactive SQL shell over exported history",
		ArgsUsage: "<data-dir>",
		Flags:     queryFlags(),
		Action:    runRepl,
	}
}

func runRepl(c *cli.Context) error {
	dir, err := requireArg(c, 0, "data-dir")
	if err != nil {
		return err
	}

	svc, err := query.New(queryConfigFromFlags(c), chunkDirOf(dir))
	if err != nil {
		return err
	}
	defer svc.Close()

	// Export up front so the first query does not hide a long pause.
	if err := svc.Refresh(); err != nil {
		return err
	}
	if exp := svc.LastExport(); exp != nil {
		fmt.Printf("exported %d chunks, %d snapshots; views: summary, processes\n",
			exp.Chunks, exp.Snapshots)
	}
	fmt.Println("type SQL, \".help\" for commands, \"exit\" to leave")

	sess := &replSession{svc: svc}
	p := prompt.New(sess.execute, sess.complete,
		prompt.OptionTitle("rpgtop-inspect"),
		prompt.OptionPrefix("rpgtop> "),
		prompt.OptionSetExitCheckerOnInput(replExitCheck),
	)
	p.Run()
	return nil
}

func replExitCheck(in string, breakline bool) bool {
	in = strings.TrimSpace(in)
	return breakline && (in == "exit" || in == "quit")
}

type replSession struct {
	svc *query.Service
}

func (s *replSession) execute(line string) {
	line = strings.TrimSpace(line)
	switch line {
	case "", "exit", "quit":
		return
	case ".help", "help":
		fmt.Print(replHelp)
		return
	case ".refresh":
		if err := s.svc.Refresh(); err != nil {
			PrintError("refresh: %v", err)
			return
		}
		if exp := s.svc.LastExport(); exp != nil {
			fmt.Printf("exported %d chunks, %d snapshots\n", exp.Chunks, exp.Snapshots)
		}
		return
	case ".stats":
		st := s.svc.Stats()
		fmt.Printf("queries: %d, rows: %d, errors: %d, refreshes: %d\n",
			st.QueriesExecuted, st.RowsReturned, st.Errors, st.Refreshes)
		return
	case ".tables":
		s.describeViews()
		return
	}

	res, err := s.svc.Execute(context.Background(), line)
	if err != nil {
		PrintError("%v", err)
		return
	}
	printResult(res)
}

func (s *replSession) describeViews() {
	for _, view := range []string{"summary", "processes"} {
		res, err := s.svc.Execute(context.Background(), "SELECT * FROM "+view+" LIMIT 0")
		if err != nil {
			PrintError("%s: %v", view, err)
			continue
		}
		fmt.Printf("%s: %s\n", view, strings.Join(res.Columns, ", "))
	}
}

const replHelp = `commands:
  .tables    list views and their columns
  .refresh   re-export chunks sealed since the shell started
  .stats     session query counters
  .help      this text
  exit       leave the shell

queries run over the summary and processes views, one row per snapshot
and per process sample respectively.
`

var replSuggestions = []prompt.Suggest{
	{Text: ".tables", Description: "list views and columns"},
	{Text: ".refresh", Description: "re-export chunks"},
	{Text: ".stats", Description: "session counters"},
	{Text: ".help", Description: "help"},
	{Text: "exit", Description: "leave the shell"},

	{Text: "SELECT", Description: "SQL"},
	{Text: "FROM", Description: "SQL"},
	{Text: "WHERE", Description: "SQL"},
	{Text: "GROUP BY", Description: "SQL"},
	{Text: "ORDER BY", Description: "SQL"},
	{Text: "LIMIT", Description: "SQL"},
	{Text: "BETWEEN", Description: "SQL"},
	{Text: "count(*)", Description: "SQL"},
	{Text: "avg", Description: "SQL"},
	{Text: "max", Description: "SQL"},
	{Text: "min", Description: "SQL"},

	{Text: "summary", Description: "view: one row per snapshot"},
	{Text: "processes", Description: "view: one row per process sample"},

	{Text: "timestamp", Description: "summary/processes column"},
	{Text: "load1", Description: "summary column"},
	{Text: "mem_used_pct", Description: "summary column"},
	{Text: "swap_used_bytes", Description: "summary column"},
	{Text: "disk_busy_ms", Description: "summary column"},
	{Text: "net_rx_bytes", Description: "summary column"},
	{Text: "net_tx_bytes", Description: "summary column"},
	{Text: "pg_backends", Description: "summary column"},
	{Text: "pg_active", Description: "summary column"},
	{Text: "pg_idle_in_tx", Description: "summary column"},
	{Text: "pg_xact_commit", Description: "summary column"},
	{Text: "pg_blks_hit", Description: "summary column"},
	{Text: "pg_blks_read", Description: "summary column"},
	{Text: "command", Description: "processes column"},
	{Text: "user", Description: "processes column"},
	{Text: "state", Description: "processes column"},
	{Text: "rss_bytes", Description: "processes column"},
	{Text: "utime_jiffies", Description: "processes column"},
	{Text: "threads", Description: "processes column"},
}

func (s *replSession) complete(d prompt.Document) []prompt.Suggest {
	return completeWord(d.GetWordBeforeCursor())
}

// completeWord suggests completions for the word under the cursor. An
// empty word suggests nothing so the popup stays out of the way.
func completeWord(word string) []prompt.Suggest {
	if word == "" {
		return nil
	}
	return prompt.FilterHasPrefix(replSuggestions, word, true)
}
