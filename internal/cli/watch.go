package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rpgtop/rpgtop/internal/storage"
)

// WatchCommand returns the registry watch command.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Follow a chunk directory and print seals and removals as they happen",
		ArgsUsage: "<data-dir>",
		Action:    watchDir,
	}
}

func watchDir(c *cli.Context) error {
	dir, err := requireArg(c, 0, "data-dir")
	if err != nil {
		return err
	}

	reg := storage.NewRegistry(chunkDirOf(dir))
	if err := reg.Load(); err != nil {
		return err
	}

	known := make(map[string]storage.ChunkMeta)
	for _, m := range reg.Chunks() {
		known[m.Path] = m
	}
	first, last := reg.TimeRange()
	fmt.Printf("watching %s: %d chunks", reg.Dir(), reg.Len())
	if reg.Len() > 0 {
		fmt.Printf(", %s .. %s", formatTimestamp(first), formatTimestamp(last))
	}
	fmt.Println()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watchErr := make(chan error, 1)
	go func() { watchErr <- reg.Watch(ctx) }()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-watchErr:
			if errors.Is(err, context.Canceled) {
				fmt.Println("stopped")
				return nil
			}
			return err
		case <-tick.C:
			known = printChanges(known, reg.Chunks())
		}
	}
}

// printChanges diffs the current chunk set against the last one printed and
// returns the new baseline.
func printChanges(known map[string]storage.ChunkMeta, current []storage.ChunkMeta) map[string]storage.ChunkMeta {
	next := make(map[string]storage.ChunkMeta, len(current))
	for _, m := range current {
		next[m.Path] = m
		if _, ok := known[m.Path]; !ok {
			fmt.Printf("+ %s  %d snapshots  %s .. %s  %s\n",
				filepath.Base(m.Path), m.Snapshots,
				formatTimestamp(m.FirstTimestamp), formatTimestamp(m.LastTimestamp),
				formatBytes(m.Size))
		}
	}
	for path := range known {
		if _, ok := next[path]; !ok {
			fmt.Printf("- %s\n", filepath.Base(path))
		}
	}
	return next
}
