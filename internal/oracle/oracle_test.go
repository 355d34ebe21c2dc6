package oracle

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlverify/internal/domain"
)

const origSQL = "SELECT o_id, o_total FROM orders WHERE o_total BETWEEN 10 AND 500"

// memStore is an in-memory fake sandbox whose Query replays the rows
// loaded for the table named in the query. It is deliberately dumber than
// a real engine: both queries see the same rows unless rigged otherwise.
type memStore struct {
	rows     map[string][][]interface{}
	rigged   map[string][][]interface{} // per-SQL overrides
	queryErr error
	closed   bool
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string][][]interface{}), rigged: make(map[string][][]interface{})}
}

func (m *memStore) CreateTables(context.Context, *domain.Schema) error { return nil }

func (m *memStore) InsertRows(_ context.Context, table string, _ []string, rows [][]interface{}) ([]domain.RowError, error) {
	m.rows[table] = rows
	return nil, nil
}

func (m *memStore) Exec(context.Context, string) error { return nil }

func (m *memStore) Query(_ context.Context, sqlStr string) (*domain.QueryResult, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if rows, ok := m.rigged[sqlStr]; ok {
		return &domain.QueryResult{Columns: []string{"c"}, Rows: rows}, nil
	}
	return &domain.QueryResult{Columns: []string{"c"}, Rows: m.rows["orders"]}, nil
}

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

func orderSchema() *domain.Schema {
	return &domain.Schema{
		Tables: []*domain.TableSchema{{
			Name:       "orders",
			PrimaryKey: "o_id",
			RowCount:   6,
			Columns: []domain.Column{
				{Name: "o_id", Type: domain.ColumnInteger},
				{Name: "o_total", Type: domain.ColumnDecimal},
			},
		}},
	}
}

func testOracle(stores ...*memStore) *Oracle {
	i := 0
	return New(Options{
		Logger: slog.New(slog.DiscardHandler),
		NewStore: func() (domain.SandboxStore, error) {
			s := stores[i%len(stores)]
			i++
			return s, nil
		},
	})
}

func TestApply_StructuredPayload(t *testing.T) {
	response := "Proposal:\n```json\n" + `{
		"spec_version": "1.0",
		"rewrite_rules": [{"id": "r1", "type": "predicate_pushdown"}],
		"statements": [{
			"components": {
				"filtered": {"kind": "cte", "sql": "SELECT o_id, o_total FROM orders WHERE o_total BETWEEN 10 AND 500"},
				"main_query": {"kind": "main_query", "sql": "SELECT o_id, o_total FROM filtered", "interfaces": {"consumes": ["filtered"]}}
			}
		}]
	}` + "\n```"

	result := testOracle(newMemStore()).Apply(origSQL, response)
	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, "predicate_pushdown", result.Transform)
	assert.Contains(t, result.OptimizedSQL, "WITH filtered AS (")
}

func TestApply_BareSQLBlock(t *testing.T) {
	response := "```sql\nSELECT o_id, o_total FROM orders WHERE o_total >= 10 AND o_total <= 500\n```"

	result := testOracle(newMemStore()).Apply(origSQL, response)
	require.True(t, result.Success)
	assert.Equal(t, domain.TransformRawSQL, result.Transform)
	assert.Equal(t, "SELECT o_id, o_total FROM orders WHERE o_total >= 10 AND o_total <= 500", result.OptimizedSQL)
}

func TestApply_NothingUsable(t *testing.T) {
	result := testOracle(newMemStore()).Apply(origSQL, "no rewrite here")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no rewrite payload and no SQL block")
}

func TestApply_AssemblyErrorSurfaces(t *testing.T) {
	response := "```json\n" + `{
		"spec_version": "1.0",
		"rewrite_rules": [{"id": "r1", "type": "cte_extraction"}],
		"statements": [{"components": {"lonely": {"kind": "cte", "sql": "SELECT 1"}}}]
	}` + "\n```"

	result := testOracle(newMemStore()).Apply(origSQL, response)
	assert.False(t, result.Success)
	assert.Equal(t, "cte_extraction", result.Transform)
	assert.Contains(t, result.Error, "main_query")
}

func TestVerify_StructuralFailureShortCircuits(t *testing.T) {
	store := newMemStore()
	o := testOracle(store)

	report := o.Verify(context.Background(), origSQL,
		"```sql\nSELECT o_id FROM orders\n```", orderSchema(), domain.RigorFull)

	assert.False(t, report.Equivalent)
	assert.False(t, report.Structural.Valid)
	assert.Empty(t, report.Witnesses)
	// The sandbox is never opened on the cheap path.
	assert.Empty(t, store.rows)
}

func TestVerify_StructuralRigorSkipsWitnesses(t *testing.T) {
	o := testOracle(newMemStore())

	report := o.Verify(context.Background(), origSQL,
		"```sql\nSELECT o_id, o_total FROM orders WHERE o_total BETWEEN 10 AND 500\n```",
		orderSchema(), domain.RigorStructural)

	assert.True(t, report.Equivalent)
	assert.True(t, report.Structural.Valid)
	assert.Empty(t, report.Witnesses)
}

func TestVerify_FullRigorRunsBothVariants(t *testing.T) {
	stores := []*memStore{newMemStore(), newMemStore()}
	o := testOracle(stores...)

	report := o.Verify(context.Background(), origSQL,
		"```sql\nSELECT o_id, o_total FROM orders WHERE o_total >= 10 AND o_total <= 500\n```",
		orderSchema(), domain.RigorFull)

	require.Len(t, report.Witnesses, 2)
	assert.Equal(t, "clone", report.Witnesses[0].Variant)
	assert.Equal(t, "boundary_fail", report.Witnesses[1].Variant)
	assert.True(t, report.Equivalent)
	assert.False(t, report.Indeterminate)
	for _, s := range stores {
		assert.True(t, s.closed)
	}
}

func TestVerify_StandardRigorRunsCloneOnly(t *testing.T) {
	o := testOracle(newMemStore())

	report := o.Verify(context.Background(), origSQL,
		"```sql\nSELECT o_id, o_total FROM orders WHERE o_total BETWEEN 10 AND 500\n```",
		orderSchema(), domain.RigorStandard)

	require.Len(t, report.Witnesses, 1)
	assert.Equal(t, "clone", report.Witnesses[0].Variant)
}

func TestVerify_WitnessDisagreementFailsEquivalence(t *testing.T) {
	store := newMemStore()
	rewritten := "SELECT o_id, o_total FROM orders WHERE o_total >= 10"
	store.rigged[rewritten] = [][]interface{}{{int64(1)}, {int64(2)}, {int64(3)}}
	o := testOracle(store)

	report := o.Verify(context.Background(), origSQL,
		"```sql\n"+rewritten+"\n```", orderSchema(), domain.RigorStandard)

	require.Len(t, report.Witnesses, 1)
	assert.False(t, report.Witnesses[0].Comparison.Equal())
	assert.False(t, report.Equivalent)
	assert.False(t, report.Indeterminate)
}

func TestVerify_ExecutionErrorIsIndeterminate(t *testing.T) {
	store := newMemStore()
	store.queryErr = errors.New("catalog error")
	o := testOracle(store)

	report := o.Verify(context.Background(), origSQL,
		"```sql\nSELECT o_id, o_total FROM orders WHERE o_total BETWEEN 10 AND 500\n```",
		orderSchema(), domain.RigorStandard)

	assert.True(t, report.Indeterminate)
	assert.False(t, report.Equivalent)
}

func TestVerify_SandboxOpenFailureIsIndeterminate(t *testing.T) {
	o := New(Options{
		Logger:   slog.New(slog.DiscardHandler),
		NewStore: func() (domain.SandboxStore, error) { return nil, errors.New("driver unavailable") },
	})

	report := o.Verify(context.Background(), origSQL,
		"```sql\nSELECT o_id, o_total FROM orders WHERE o_total BETWEEN 10 AND 500\n```",
		orderSchema(), domain.RigorStandard)

	assert.True(t, report.Indeterminate)
	require.Len(t, report.Witnesses, 1)
	assert.Contains(t, report.Witnesses[0].Comparison.Reason, "open sandbox")
}

func TestVerify_NoSchemaStopsAfterStructural(t *testing.T) {
	o := testOracle(newMemStore())

	report := o.Verify(context.Background(), origSQL,
		"```sql\nSELECT o_id, o_total FROM orders WHERE o_total BETWEEN 10 AND 500\n```",
		nil, domain.RigorFull)

	assert.True(t, report.Equivalent)
	assert.Empty(t, report.Witnesses)
}

func TestVerify_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := testOracle(newMemStore())

	report := o.Verify(ctx, origSQL,
		"```sql\nSELECT o_id, o_total FROM orders WHERE o_total BETWEEN 10 AND 500\n```",
		orderSchema(), domain.RigorStandard)

	assert.True(t, report.Indeterminate)
}
