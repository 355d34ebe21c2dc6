// Package sandbox provides the disposable tabular store a verification
// call owns for one witness variant: schema creation, best-effort bulk
// insert, and arbitrary SQL execution returning rows.
//
// DuckDB (in-process, in-memory) is the default engine; SQLite is
// available where the DuckDB bindings are not.
package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // duckdb driver
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"sqlverify/internal/domain"
)

// Supported sandbox drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite3"
)

// Store is one disposable sandbox database. It is exclusively owned by a
// single validation call and torn down afterward; it is never reused
// across calls or variants.
type Store struct {
	db     *sql.DB
	driver string
	id     string
}

// Open creates a fresh in-memory sandbox for the given driver.
func Open(driver string) (*Store, error) {
	id := uuid.NewString()
	var db *sql.DB
	var err error
	switch driver {
	case DriverDuckDB:
		db, err = sql.Open("duckdb", "")
	case DriverSQLite:
		db, err = sql.Open("sqlite3", fmt.Sprintf("file:sandbox_%s?mode=memory&cache=shared", id))
	default:
		return nil, fmt.Errorf("unknown sandbox driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open sandbox (%s): %w", driver, err)
	}
	// One connection: session directives must apply to the same session
	// the queries run on, and in-memory databases vanish per connection.
	db.SetMaxOpenConns(1)
	return &Store{db: db, driver: driver, id: id}, nil
}

// ID returns the sandbox instance identifier, used in logs.
func (s *Store) ID() string { return s.id }

// CreateTables drops and recreates every table in the schema.
func (s *Store) CreateTables(ctx context.Context, schema *domain.Schema) error {
	for _, t := range schema.Tables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdentifier(t.Name)); err != nil {
			return fmt.Errorf("drop %s: %w", t.Name, err)
		}
	}
	for _, t := range schema.Tables {
		if _, err := s.db.ExecContext(ctx, s.createTableSQL(t)); err != nil {
			return fmt.Errorf("create %s: %w", t.Name, err)
		}
	}
	return nil
}

func (s *Store) createTableSQL(t *domain.TableSchema) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = QuoteIdentifier(c.Name) + " " + s.columnSQLType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdentifier(t.Name), strings.Join(cols, ", "))
}

func (s *Store) columnSQLType(t domain.ColumnType) string {
	if s.driver == DriverSQLite {
		switch t {
		case domain.ColumnInteger, domain.ColumnBoolean:
			return "INTEGER"
		case domain.ColumnDecimal:
			return "REAL"
		default:
			return "TEXT"
		}
	}
	switch t {
	case domain.ColumnInteger:
		return "BIGINT"
	case domain.ColumnDecimal:
		return "DOUBLE"
	case domain.ColumnDate:
		return "DATE"
	case domain.ColumnBoolean:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

// InsertRows bulk-inserts rows, best effort: a row that fails to insert is
// recorded and skipped, since the goal is statistical exposure of drift,
// not exhaustive coverage.
func (s *Store) InsertRows(ctx context.Context, table string, columns []string, rows [][]interface{}) ([]domain.RowError, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdentifier(c)
		marks[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	stmt, err := s.db.PrepareContext(ctx, insertSQL)
	if err != nil {
		return nil, fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer stmt.Close() //nolint:errcheck

	var rowErrs []domain.RowError
	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			if ctx.Err() != nil {
				return rowErrs, ctx.Err()
			}
			rowErrs = append(rowErrs, domain.RowError{Table: table, Row: i, Err: err})
		}
	}
	return rowErrs, nil
}

// Exec runs a statement that returns no rows.
func (s *Store) Exec(ctx context.Context, sqlStr string) error {
	_, err := s.db.ExecContext(ctx, sqlStr)
	return err
}

// Query runs a SQL query and returns all rows, with byte slices converted
// to strings for stable comparison.
func (s *Store) Query(ctx context.Context, sqlStr string) (*domain.QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) (*domain.QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var resultRows [][]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]interface{}, len(vals))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &domain.QueryResult{Columns: cols, Rows: resultRows}, nil
}

// Close tears the sandbox down.
func (s *Store) Close() error {
	return s.db.Close()
}

// QuoteIdentifier unconditionally quotes a SQL identifier using double
// quotes. Internal double quotes are escaped by doubling them.
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
