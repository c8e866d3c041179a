// Package snapshot reads source snapshots from files and exports target
// tables.
//
// Supported inputs, selected by extension:
//   - .yaml, .yml, .json: a list of objects, or an object with a rows list
//   - .csv: header row plus data, read through DuckDB's read_csv_auto
//   - .parquet: read through DuckDB's read_parquet
//
// When the dimension declares its columns, values are coerced to the
// declared types and undeclared columns are rejected. CSV cells arrive as
// text and are parsed per column type. An empty cell in a nullable column
// is null.
package snapshot
