// Package rowgen is the baseline synthetic-data generator: it populates
// tables in generation order with deterministic, seeded rows biased toward
// satisfying the filter literals recorded from the query under test.
// Variant-specific mutations are layered on top by the witness generator.
package rowgen

import (
	"fmt"
	"math/rand"
	"time"

	"sqlverify/internal/domain"
)

// DefaultRowCount is used for tables that don't declare a target count.
const DefaultRowCount = 50

// literalBias is the fraction of rows for a constrained column that are
// drawn from the recorded literals rather than at random. High enough that
// predicates match plenty of rows, low enough to keep negatives around.
const literalBias = 0.7

var baseDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

var words = []string{
	"alpha", "bravo", "charlie", "delta", "echo", "foxtrot",
	"golf", "hotel", "india", "juliet", "kilo", "lima",
}

// Generator produces deterministic synthetic datasets from a seed.
type Generator struct {
	seed        int64
	defaultRows int
}

// New creates a generator. A defaultRows of zero falls back to
// DefaultRowCount.
func New(seed int64, defaultRows int) *Generator {
	if defaultRows <= 0 {
		defaultRows = DefaultRowCount
	}
	return &Generator{seed: seed, defaultRows: defaultRows}
}

// Generate builds one row set per table, visiting tables in generation
// order so foreign-key values can be drawn from already-generated parent
// rows.
func (g *Generator) Generate(sch *domain.Schema, literals domain.FilterLiterals, order domain.GenerationOrder) (domain.Dataset, error) {
	rng := rand.New(rand.NewSource(g.seed))
	dataset := make(domain.Dataset, len(order))

	for _, tableName := range order {
		table, ok := sch.Table(tableName)
		if !ok {
			return nil, fmt.Errorf("generation order names unknown table %q", tableName)
		}
		rows, err := g.generateTable(rng, sch, table, literals, dataset)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", tableName, err)
		}
		dataset[tableName] = rows
	}
	return dataset, nil
}

func (g *Generator) generateTable(rng *rand.Rand, sch *domain.Schema, table *domain.TableSchema, literals domain.FilterLiterals, dataset domain.Dataset) ([][]interface{}, error) {
	count := table.RowCount
	if count <= 0 {
		count = g.defaultRows
	}

	fkByColumn := make(map[string]domain.ForeignKey, len(table.ForeignKeys))
	for _, fk := range table.ForeignKeys {
		fkByColumn[fk.Column] = fk
	}

	rows := make([][]interface{}, 0, count)
	for i := 0; i < count; i++ {
		row := make([]interface{}, len(table.Columns))
		for j, col := range table.Columns {
			switch {
			case col.Name == table.PrimaryKey && col.Type == domain.ColumnInteger:
				row[j] = int64(i + 1)
			case hasFK(fkByColumn, col.Name):
				v, err := g.parentValue(rng, sch, fkByColumn[col.Name], dataset)
				if err != nil {
					return nil, err
				}
				row[j] = v
			default:
				row[j] = g.columnValue(rng, table.Name, col, literals)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func hasFK(fks map[string]domain.ForeignKey, column string) bool {
	_, ok := fks[column]
	return ok
}

// parentValue draws a referenced value from an already-generated parent
// row, keeping referential integrity in the witness data. Generation order
// guarantees the parent rows exist by now.
func (g *Generator) parentValue(rng *rand.Rand, sch *domain.Schema, fk domain.ForeignKey, dataset domain.Dataset) (interface{}, error) {
	parentRows := dataset[fk.RefTable]
	if len(parentRows) == 0 {
		return nil, fmt.Errorf("foreign key into %s: parent table has no rows", fk.RefTable)
	}
	parent, ok := sch.Table(fk.RefTable)
	if !ok {
		return nil, fmt.Errorf("foreign key into unknown table %s", fk.RefTable)
	}
	refIdx := -1
	for i, c := range parent.Columns {
		if c.Name == fk.RefColumn {
			refIdx = i
			break
		}
	}
	if refIdx < 0 {
		return nil, fmt.Errorf("foreign key into unknown column %s.%s", fk.RefTable, fk.RefColumn)
	}
	return parentRows[rng.Intn(len(parentRows))][refIdx], nil
}

// columnValue produces one value for a non-key column, biased toward the
// recorded literals when present.
func (g *Generator) columnValue(rng *rand.Rand, table string, col domain.Column, literals domain.FilterLiterals) interface{} {
	lits := literals[domain.ColumnKey{Table: table, Column: col.Name}]
	if len(lits) > 0 && rng.Float64() < literalBias {
		if v, ok := literalValue(rng, col.Type, lits[rng.Intn(len(lits))]); ok {
			return v
		}
	}
	return randomValue(rng, col.Type)
}

// literalValue materialises one value satisfying a recorded constraint.
func literalValue(rng *rand.Rand, t domain.ColumnType, lit domain.Literal) (interface{}, bool) {
	switch lit.Kind {
	case domain.LiteralExact:
		return CoerceValue(t, lit.Value)
	case domain.LiteralBetween:
		return betweenValue(rng, t, lit)
	}
	return nil, false
}

func betweenValue(rng *rand.Rand, t domain.ColumnType, lit domain.Literal) (interface{}, bool) {
	switch t {
	case domain.ColumnInteger:
		low, lok := toInt64(lit.Low)
		high, hok := toInt64(lit.High)
		if !lok || !hok || high < low {
			return nil, false
		}
		return low + rng.Int63n(high-low+1), true
	case domain.ColumnDecimal:
		low, lok := toFloat64(lit.Low)
		high, hok := toFloat64(lit.High)
		if !lok || !hok || high < low {
			return nil, false
		}
		return low + rng.Float64()*(high-low), true
	case domain.ColumnDate:
		low, lok := ToDate(lit.Low)
		high, hok := ToDate(lit.High)
		if !lok || !hok || high.Before(low) {
			return nil, false
		}
		days := int(high.Sub(low).Hours()/24) + 1
		return low.AddDate(0, 0, rng.Intn(days)), true
	default:
		return CoerceValue(t, lit.Low)
	}
}

func randomValue(rng *rand.Rand, t domain.ColumnType) interface{} {
	switch t {
	case domain.ColumnInteger:
		return rng.Int63n(1000)
	case domain.ColumnDecimal:
		return float64(rng.Intn(100000)) / 100.0
	case domain.ColumnDate:
		return baseDate.AddDate(0, 0, rng.Intn(365))
	case domain.ColumnBoolean:
		return rng.Intn(2) == 0
	default:
		return fmt.Sprintf("%s_%d", words[rng.Intn(len(words))], rng.Intn(10000))
	}
}

// CoerceValue converts an extracted literal to the Go representation used
// for a column of the given type. Returns false when the literal cannot
// represent the type.
func CoerceValue(t domain.ColumnType, v interface{}) (interface{}, bool) {
	switch t {
	case domain.ColumnInteger:
		return toInt64(v)
	case domain.ColumnDecimal:
		return toFloat64(v)
	case domain.ColumnDate:
		return ToDate(v)
	case domain.ColumnBoolean:
		b, ok := v.(bool)
		return b, ok
	default:
		s, ok := v.(string)
		return s, ok
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// ToDate parses date literals: time values pass through, strings must be
// in ISO form (2006-01-02).
func ToDate(v interface{}) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, true
	case string:
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
