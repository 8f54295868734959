// Package export flattens sealed chunks into Parquet for external analysis.
//
// Two row shapes come out of a chunk: SummaryRow, one per snapshot with the
// host and PostgreSQL gauges, and ProcessRow, one per sampled process with
// names resolved through the chunk's interner. ExportDir walks a chunk
// directory into a pair of Parquet files that DuckDB or any Parquet-aware
// tool can query.
package export
