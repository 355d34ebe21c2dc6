// Package domain defines core types, interfaces, and errors for the
// rewrite verification oracle.
package domain

import "fmt"

// ColumnType is the semantic category of a column as seen by the witness
// generator. It deliberately ignores physical type details (widths,
// precision) that do not affect equivalence checking.
type ColumnType string

// Semantic column categories.
const (
	ColumnInteger ColumnType = "integer"
	ColumnDecimal ColumnType = "decimal"
	ColumnDate    ColumnType = "date"
	ColumnText    ColumnType = "text"
	ColumnBoolean ColumnType = "boolean"
)

// Valid reports whether t is a known column type.
func (t ColumnType) Valid() bool {
	switch t {
	case ColumnInteger, ColumnDecimal, ColumnDate, ColumnText, ColumnBoolean:
		return true
	}
	return false
}

// Column is a single named column with its semantic type.
type Column struct {
	Name string
	Type ColumnType
}

// ForeignKey declares that a local column references a column in another
// table. The witness generator uses these edges to derive a population
// order and to draw child values from already-generated parent rows.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// TableSchema describes one table: ordered columns, key relationships and
// the target row count for synthetic population. Immutable once built for
// a given verification call.
type TableSchema struct {
	Name        string
	Columns     []Column
	PrimaryKey  string
	ForeignKeys []ForeignKey
	RowCount    int
}

// Column returns the column with the given name, if present.
func (t *TableSchema) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the ordered column names.
func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Schema is the in-memory model of all tables visible to one verification
// call. Each call owns its own snapshot; there is no shared schema cache.
type Schema struct {
	Tables []*TableSchema
}

// Table returns the table with the given name, if present.
func (s *Schema) Table(name string) (*TableSchema, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// GenerationOrder is a topologically sorted sequence of table names: every
// table appears after all tables it has a foreign key into.
type GenerationOrder []string

// LiteralKind distinguishes exact-value constraints from range constraints.
type LiteralKind string

// Literal constraint kinds.
const (
	LiteralExact   LiteralKind = "exact"
	LiteralBetween LiteralKind = "between"
)

// Literal is a single constraint recorded from a query predicate: either an
// exact value or an inclusive [Low, High] range.
type Literal struct {
	Kind  LiteralKind
	Value interface{} // set when Kind == LiteralExact
	Low   interface{} // set when Kind == LiteralBetween
	High  interface{} // set when Kind == LiteralBetween
}

// ColumnKey addresses a column within a table.
type ColumnKey struct {
	Table  string
	Column string
}

func (k ColumnKey) String() string { return fmt.Sprintf("%s.%s", k.Table, k.Column) }

// FilterLiterals maps columns to the ordered literal constraints extracted
// from the query under test. Without these, random data would rarely
// produce non-empty, comparable result sets.
type FilterLiterals map[ColumnKey][]Literal

// Add appends a literal constraint for the given column.
func (f FilterLiterals) Add(table, column string, lit Literal) {
	key := ColumnKey{Table: table, Column: column}
	f[key] = append(f[key], lit)
}

// Ranges returns the between-kind constraints grouped by column, preserving
// per-column order. The boundary-fail witness mutates one row per entry.
func (f FilterLiterals) Ranges() map[ColumnKey][]Literal {
	out := make(map[ColumnKey][]Literal)
	for key, lits := range f {
		for _, lit := range lits {
			if lit.Kind == LiteralBetween {
				out[key] = append(out[key], lit)
			}
		}
	}
	return out
}

// Dataset holds generated rows per table. Row values are ordered to match
// the table's Columns slice.
type Dataset map[string][][]interface{}
