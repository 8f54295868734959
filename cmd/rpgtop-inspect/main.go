// Package main provides the entry point for rpgtop-inspect.
//
// rpgtop-inspect is the read-only inspection tool for rpgtop history
// files: chunk and WAL reports, verification, heatmap rendering, Parquet
// export, and SQL over exported history.
package main

import (
	"fmt"
	"os"

	"github.com/rpgtop/rpgtop/internal/cli"
)

func main() {
	app := cli.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
