package domain

import "context"

// QueryResult holds the structured output of a SQL query executed against
// a sandbox store.
type QueryResult struct {
	Columns []string
	Rows    [][]interface{}
}

// RowError records a single row that could not be inserted during
// best-effort population.
type RowError struct {
	Table string
	Row   int
	Err   error
}

// SandboxStore is a disposable tabular store owned by exactly one
// verification call. It is created fresh per witness variant and torn down
// after comparison; it is never reused across calls.
type SandboxStore interface {
	// CreateTables drops and recreates every table in the schema.
	CreateTables(ctx context.Context, schema *Schema) error

	// InsertRows bulk-inserts rows into a table, best effort: rows that
	// fail to insert are reported, not fatal.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]interface{}) ([]RowError, error)

	// Exec runs a statement that returns no rows (session directives,
	// DDL).
	Exec(ctx context.Context, sql string) error

	// Query runs a SQL query and returns all rows.
	Query(ctx context.Context, sql string) (*QueryResult, error)

	// Close tears the sandbox down.
	Close() error
}

// RowGenerator is the baseline synthetic-data collaborator: it populates
// tables in generation order with rows biased toward satisfying the
// recorded filter literals. Variant-specific mutations are layered on top
// by the witness generator, not here.
type RowGenerator interface {
	Generate(schema *Schema, literals FilterLiterals, order GenerationOrder) (Dataset, error)
}
