// Package witness synthesizes the data-set variants used for dynamic
// equivalence checking. Each variant is a named population strategy that
// mutates a freshly generated baseline dataset to stress one specific
// equivalence failure mode, then loads it into a disposable sandbox.
package witness

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"sqlverify/internal/domain"
)

// Variant names.
const (
	VariantClone        = "clone"
	VariantBoundaryFail = "boundary_fail"
)

// CloneKeyOffset is the fixed positive shift applied to surrogate-key
// values in the clone variant. Structure is preserved (both sides of every
// FK shift together); concrete key magnitudes are not.
const CloneKeyOffset int64 = 100000

// cloneSeedOffset keeps the clone dataset deterministic but distinct from
// the baseline.
const cloneSeedOffset int64 = 1

// GeneratorFactory builds a baseline generator whose seed is offset from
// the request's base seed.
type GeneratorFactory func(seedOffset int64) domain.RowGenerator

// Variant is a named data-population strategy. Populate creates tables,
// generates and mutates the dataset, loads it, and returns the mutation
// manifest. Created per validation request, applied once, discarded.
type Variant struct {
	Name     string
	Populate func(ctx context.Context, store domain.SandboxStore) ([]domain.MutationOutcome, error)
}

// Variants returns the ordered list of data-set variants for one
// verification call: clone first (cheap structural coincidence check),
// then boundary_fail (range drift check).
func Variants(sch *domain.Schema, literals domain.FilterLiterals, order domain.GenerationOrder, newGen GeneratorFactory) []Variant {
	return []Variant{
		{
			Name: VariantClone,
			Populate: func(ctx context.Context, store domain.SandboxStore) ([]domain.MutationOutcome, error) {
				return populate(ctx, store, sch, literals, order, newGen(cloneSeedOffset), func(ds domain.Dataset) []domain.MutationOutcome {
					return applyCloneShift(sch, ds)
				})
			},
		},
		{
			Name: VariantBoundaryFail,
			Populate: func(ctx context.Context, store domain.SandboxStore) ([]domain.MutationOutcome, error) {
				return populate(ctx, store, sch, literals, order, newGen(0), func(ds domain.Dataset) []domain.MutationOutcome {
					return applyBoundaryFail(sch, literals, ds)
				})
			},
		},
	}
}

// populate generates the baseline, applies the variant mutation in memory,
// and loads the result. Individual row failures are tolerated and recorded
// rather than aborting the variant.
func populate(ctx context.Context, store domain.SandboxStore, sch *domain.Schema, literals domain.FilterLiterals, order domain.GenerationOrder, gen domain.RowGenerator, mutate func(domain.Dataset) []domain.MutationOutcome) ([]domain.MutationOutcome, error) {
	// The baseline is biased by the same recorded literals in every
	// variant; only the layered mutation differs.
	dataset, err := gen.Generate(sch, literals, order)
	if err != nil {
		return nil, fmt.Errorf("generate baseline: %w", err)
	}

	manifest := mutate(dataset)

	if err := store.CreateTables(ctx, sch); err != nil {
		return manifest, fmt.Errorf("create tables: %w", err)
	}
	for _, tableName := range order {
		table, ok := sch.Table(tableName)
		if !ok {
			return manifest, fmt.Errorf("order names unknown table %q", tableName)
		}
		rowErrs, err := store.InsertRows(ctx, tableName, table.ColumnNames(), dataset[tableName])
		if err != nil {
			return manifest, fmt.Errorf("insert into %s: %w", tableName, err)
		}
		for _, re := range rowErrs {
			manifest = append(manifest, domain.MutationOutcome{
				Table:  re.Table,
				Row:    re.Row,
				Reason: "insert failed: " + re.Err.Error(),
			})
		}
	}
	return manifest, nil
}

// applyCloneShift adds CloneKeyOffset to every value of every integer
// surrogate-key column, and to every foreign-key column referencing one so
// both sides of each edge move together. Join and filter behavior is
// unchanged; rewrites that coincidentally depend on specific key
// magnitudes are not.
func applyCloneShift(sch *domain.Schema, dataset domain.Dataset) []domain.MutationOutcome {
	var manifest []domain.MutationOutcome
	for _, table := range sch.Tables {
		rows := dataset[table.Name]
		for colIdx, col := range table.Columns {
			if !isSurrogateKey(col) && !referencesSurrogateKey(sch, table, col) {
				continue
			}
			skipped := 0
			for _, row := range rows {
				if v, ok := asInt64(row[colIdx]); ok {
					row[colIdx] = v + CloneKeyOffset
				} else {
					skipped++
				}
			}
			outcome := domain.MutationOutcome{
				Table:   table.Name,
				Column:  col.Name,
				Row:     -1, // applies to every row of the column
				Applied: skipped < len(rows),
			}
			if skipped > 0 {
				outcome.Reason = fmt.Sprintf("%d rows held non-integer values", skipped)
			}
			manifest = append(manifest, outcome)
		}
	}
	return manifest
}

// applyBoundaryFail pushes exactly one row per recorded range constraint
// to a value strictly beyond the upper bound, so a rewrite that loosened
// or tightened the boundary disagrees with the original on that row.
func applyBoundaryFail(sch *domain.Schema, literals domain.FilterLiterals, dataset domain.Dataset) []domain.MutationOutcome {
	ranges := literals.Ranges()

	keys := make([]domain.ColumnKey, 0, len(ranges))
	for key := range ranges {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Table != keys[j].Table {
			return keys[i].Table < keys[j].Table
		}
		return keys[i].Column < keys[j].Column
	})

	var manifest []domain.MutationOutcome
	for _, key := range keys {
		table, ok := sch.Table(key.Table)
		if !ok {
			manifest = append(manifest, skipOutcome(key, 0, "table not in schema"))
			continue
		}
		col, ok := table.Column(key.Column)
		if !ok {
			manifest = append(manifest, skipOutcome(key, 0, "column not in schema"))
			continue
		}
		colIdx := columnIndex(table, key.Column)
		rows := dataset[key.Table]

		for i, lit := range ranges[key] {
			if len(rows) == 0 {
				manifest = append(manifest, skipOutcome(key, 0, "no rows to mutate"))
				continue
			}
			rowIdx := i % len(rows)
			v, ok := justAbove(col.Type, lit.High)
			if !ok {
				manifest = append(manifest, skipOutcome(key, rowIdx, fmt.Sprintf("cannot bump %s bound %v", col.Type, lit.High)))
				continue
			}
			rows[rowIdx][colIdx] = v
			manifest = append(manifest, domain.MutationOutcome{
				Table:   key.Table,
				Column:  key.Column,
				Row:     rowIdx,
				Applied: true,
			})
		}
	}
	return manifest
}

func skipOutcome(key domain.ColumnKey, row int, reason string) domain.MutationOutcome {
	return domain.MutationOutcome{Table: key.Table, Column: key.Column, Row: row, Reason: reason}
}

// justAbove returns the smallest representable value strictly greater than
// the bound: +1 for integers, the next float for decimals, +1 day for
// dates.
func justAbove(t domain.ColumnType, bound interface{}) (interface{}, bool) {
	switch t {
	case domain.ColumnInteger:
		if v, ok := asInt64(bound); ok {
			return v + 1, true
		}
	case domain.ColumnDecimal:
		if v, ok := asFloat64(bound); ok {
			return math.Nextafter(v, math.Inf(1)), true
		}
	case domain.ColumnDate:
		if v, ok := asDate(bound); ok {
			return v.AddDate(0, 0, 1), true
		}
	}
	return nil, false
}

// referencesSurrogateKey reports whether col is a foreign key into a
// column that the clone shift moves.
func referencesSurrogateKey(sch *domain.Schema, table *domain.TableSchema, col domain.Column) bool {
	if col.Type != domain.ColumnInteger {
		return false
	}
	for _, fk := range table.ForeignKeys {
		if fk.Column != col.Name {
			continue
		}
		parent, ok := sch.Table(fk.RefTable)
		if !ok {
			continue
		}
		if ref, ok := parent.Column(fk.RefColumn); ok && isSurrogateKey(ref) {
			return true
		}
	}
	return false
}

func isSurrogateKey(col domain.Column) bool {
	if col.Type != domain.ColumnInteger {
		return false
	}
	name := strings.ToLower(col.Name)
	return name == "id" || strings.HasSuffix(name, "_id") || strings.HasSuffix(name, "_key")
}

func columnIndex(table *domain.TableSchema, name string) int {
	for i, c := range table.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func asFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asDate(v interface{}) (time.Time, bool) {
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
