// Package validate executes an original query and its rewrite against the
// same witness-populated sandbox and compares the result sets.
package validate

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"sqlverify/internal/domain"
)

// epsilon absorbs floating-point noise from aggregate re-association when
// comparing numeric values.
const epsilon = 1e-6

// DefaultMaxMismatches bounds how many concrete differing cells are
// reported; never the full diverging set.
const DefaultMaxMismatches = 10

// Validator runs both queries over one variant-populated sandbox. Each
// execution is bounded by its own timeout; a timeout or SQL error is
// reported as indeterminate, never as a correctness finding.
type Validator struct {
	store         domain.SandboxStore
	timeout       time.Duration
	maxMismatches int
	logger        *slog.Logger
}

// New creates a validator around a populated sandbox.
func New(store domain.SandboxStore, timeout time.Duration, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		store:         store,
		timeout:       timeout,
		maxMismatches: DefaultMaxMismatches,
		logger:        logger,
	}
}

// Validate executes both queries and compares results. The runtimeConfig
// directives are executed verbatim on the sandbox session first.
func (v *Validator) Validate(ctx context.Context, originalSQL, rewrittenSQL string, runtimeConfig []string) domain.ComparisonResult {
	for _, directive := range runtimeConfig {
		if err := v.execDirective(ctx, directive); err != nil {
			return indeterminate("session directive %q failed: %v", directive, err)
		}
	}

	original, execErr := v.runQuery(ctx, originalSQL)
	if execErr != nil {
		return indeterminate("original query: %s", execErr.Message)
	}
	rewritten, execErr := v.runQuery(ctx, rewrittenSQL)
	if execErr != nil {
		return indeterminate("rewritten query: %s", execErr.Message)
	}

	result := v.compare(original, rewritten)
	if !result.Equal() {
		v.logger.Debug("witness comparison found drift", "reason", result.Reason)
	}
	return result
}

func (v *Validator) execDirective(ctx context.Context, directive string) error {
	execCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.store.Exec(execCtx, directive)
}

// runQuery executes one query under its own timeout.
func (v *Validator) runQuery(ctx context.Context, sqlStr string) (*domain.QueryResult, *domain.ExecutionError) {
	queryCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	result, err := v.store.Query(queryCtx, sqlStr)
	if err != nil {
		if errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrTimeout("timed out after %s", v.timeout)
		}
		return nil, domain.ErrExecution("execution failed: %v", err)
	}
	return result, nil
}

func (v *Validator) compare(original, rewritten *domain.QueryResult) domain.ComparisonResult {
	result := domain.ComparisonResult{
		RowCountsEqual: len(original.Rows) == len(rewritten.Rows),
	}
	if !result.RowCountsEqual {
		result.Reason = fmt.Sprintf("row counts differ: original returned %d rows, rewrite returned %d",
			len(original.Rows), len(rewritten.Rows))
		return result
	}

	origRows := canonicalRows(original.Rows)
	rewRows := canonicalRows(rewritten.Rows)

	result.ValuesEqual = multisetHash(origRows) == multisetHash(rewRows)
	if !result.ValuesEqual {
		result.Mismatches = v.sampleMismatches(original.Columns, origRows, rewRows)
		result.Reason = "result sets differ"
	}
	return result
}

// sampleMismatches pairs the order-independently sorted rows and reports a
// bounded number of differing cells to aid diagnosis.
func (v *Validator) sampleMismatches(columns []string, origRows, rewRows [][]string) []domain.Mismatch {
	var mismatches []domain.Mismatch
	for i := 0; i < len(origRows) && i < len(rewRows); i++ {
		for j := range origRows[i] {
			if j >= len(rewRows[i]) || origRows[i][j] != rewRows[i][j] {
				name := ""
				if j < len(columns) {
					name = columns[j]
				}
				rewVal := ""
				if j < len(rewRows[i]) {
					rewVal = rewRows[i][j]
				}
				mismatches = append(mismatches, domain.Mismatch{
					Row:       i,
					Column:    name,
					Original:  origRows[i][j],
					Rewritten: rewVal,
				})
				if len(mismatches) >= v.maxMismatches {
					return mismatches
				}
			}
		}
	}
	return mismatches
}

// canonicalRows stringifies every row and sorts the result so comparison
// is order-independent (a multiset, not a sequence).
func canonicalRows(rows [][]interface{}) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = canonicalValue(v)
		}
		out[i] = cells
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Join(out[i], "\x1f") < strings.Join(out[j], "\x1f")
	})
	return out
}

// multisetHash content-hashes the sorted canonical rows.
func multisetHash(rows [][]string) [32]byte {
	h := sha256.New()
	for _, row := range rows {
		h.Write([]byte(strings.Join(row, "\x1f")))
		h.Write([]byte{'\n'})
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// canonicalValue renders one cell. Floats are rounded to the epsilon grid
// so re-associated aggregates hash identically.
func canonicalValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(math.Round(val/epsilon)*epsilon, 'f', -1, 64)
	case float32:
		return canonicalValue(float64(val))
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func indeterminate(format string, args ...interface{}) domain.ComparisonResult {
	return domain.ComparisonResult{
		Indeterminate: true,
		Reason:        fmt.Sprintf(format, args...),
	}
}
