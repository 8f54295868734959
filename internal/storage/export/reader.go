package export

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// ReadSummaries loads every summary row from an exported file.
func ReadSummaries(path string) ([]SummaryRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	r := parquet.NewGenericReader[SummaryRow](f)
	defer r.Close()

	rows := make([]SummaryRow, r.NumRows())
	if len(rows) == 0 {
		return nil, nil
	}
	n, err := r.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows[:n], nil
}

// ReadProcesses loads every process row from an exported file.
func ReadProcesses(path string) ([]ProcessRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	r := parquet.NewGenericReader[ProcessRow](f)
	defer r.Close()

	rows := make([]ProcessRow, r.NumRows())
	if len(rows) == 0 {
		return nil, nil
	}
	n, err := r.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows[:n], nil
}
