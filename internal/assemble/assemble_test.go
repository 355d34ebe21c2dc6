package assemble

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlverify/internal/domain"
)

const originalSQL = "SELECT o_id FROM orders WHERE o_date > '2024-01-01'"

func TestAssemble_EmptyPayloadReturnsOriginal(t *testing.T) {
	got, err := Assemble(originalSQL, &domain.RewritePayload{SpecVersion: "1.0"})
	require.NoError(t, err)
	assert.Equal(t, originalSQL, got)

	got, err = Assemble(originalSQL, nil)
	require.NoError(t, err)
	assert.Equal(t, originalSQL, got)
}

func TestAssemble_Topological(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			Change: domain.ChangeModified,
			Components: map[string]*domain.Component{
				"date_filtered": {
					Kind:   domain.ComponentCTE,
					Change: domain.ChangeAdded,
					SQL:    "SELECT o_id, o_cust FROM orders WHERE o_date > '2024-01-01'",
				},
				"main_query": {
					Kind:   domain.ComponentMainQuery,
					Change: domain.ChangeModified,
					SQL:    "SELECT c.c_name FROM customers c INNER JOIN date_filtered d ON d.o_cust = c.c_id",
					Interfaces: domain.ComponentInterfaces{
						Consumes: []string{"date_filtered"},
					},
				},
			},
		}},
	}

	got, err := Assemble(originalSQL, p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "WITH date_filtered AS ("))
	assert.Contains(t, got, "INNER JOIN date_filtered")
	// The main query body terminates the statement; its component name
	// never appears in the output.
	assert.NotContains(t, got, "main_query")
}

func TestAssemble_TopologicalMultiCTE(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			Components: map[string]*domain.Component{
				"b_second": {
					Kind: domain.ComponentCTE,
					SQL:  "SELECT x FROM a_first",
					Interfaces: domain.ComponentInterfaces{
						Consumes: []string{"a_first"},
					},
				},
				"a_first": {
					Kind: domain.ComponentCTE,
					SQL:  "SELECT 1 AS x",
				},
				"main_query": {
					Kind: domain.ComponentMainQuery,
					SQL:  "SELECT x FROM b_second",
					Interfaces: domain.ComponentInterfaces{
						Consumes: []string{"b_second"},
					},
				},
			},
		}},
	}

	got, err := Assemble(originalSQL, p)
	require.NoError(t, err)
	assert.Less(t, strings.Index(got, "a_first AS ("), strings.Index(got, "b_second AS ("))
	assert.True(t, strings.HasSuffix(got, "SELECT x FROM b_second"))
}

func TestAssemble_DeclaredOrderRespected(t *testing.T) {
	// Both z_cte and a_cte are independent; the declared order keeps z
	// first even though lexicographic order would flip them.
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			Components: map[string]*domain.Component{
				"z_cte":      {Kind: domain.ComponentCTE, SQL: "SELECT 1"},
				"a_cte":      {Kind: domain.ComponentCTE, SQL: "SELECT 2"},
				"main_query": {Kind: domain.ComponentMainQuery, SQL: "SELECT * FROM z_cte, a_cte"},
			},
			ReconstructionOrder: []string{"z_cte", "a_cte", "main_query"},
		}},
	}

	got, err := Assemble(originalSQL, p)
	require.NoError(t, err)
	assert.Less(t, strings.Index(got, "z_cte AS ("), strings.Index(got, "a_cte AS ("))
}

func TestAssemble_InvalidDeclaredOrderRecomputed(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			Components: map[string]*domain.Component{
				"base": {Kind: domain.ComponentCTE, SQL: "SELECT 1 AS x"},
				"main_query": {
					Kind:       domain.ComponentMainQuery,
					SQL:        "SELECT x FROM base",
					Interfaces: domain.ComponentInterfaces{Consumes: []string{"base"}},
				},
			},
			// main_query before its dependency, so the order is discarded.
			ReconstructionOrder: []string{"main_query", "base"},
		}},
	}

	got, err := Assemble(originalSQL, p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "WITH base AS ("))
}

func TestAssemble_Template(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			AssemblyTemplate: "WITH f AS ({filter}) {main}",
			Components: map[string]*domain.Component{
				"filter": {Kind: domain.ComponentCTE, SQL: "SELECT o_id FROM orders"},
				"main":   {Kind: domain.ComponentMainQuery, SQL: "SELECT COUNT(*) FROM f"},
			},
		}},
	}

	got, err := Assemble(originalSQL, p)
	require.NoError(t, err)
	assert.Equal(t, "WITH f AS (SELECT o_id FROM orders) SELECT COUNT(*) FROM f", got)
}

func TestAssemble_TemplateNoPlaceholderLeakage(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			AssemblyTemplate: "WITH date_filtered AS ({date_filtered}) {main_query}",
			Components: map[string]*domain.Component{
				"date_filtered": {
					Kind: domain.ComponentCTE,
					SQL:  "SELECT o_id, o_cust FROM orders WHERE o_date > '2024-01-01'",
				},
				"main_query": {
					Kind: domain.ComponentMainQuery,
					SQL:  "SELECT c.c_name FROM customers c INNER JOIN date_filtered d ON d.o_cust = c.c_id",
				},
			},
		}},
	}

	got, err := Assemble(originalSQL, p)
	require.NoError(t, err)
	assert.Contains(t, got, "WITH date_filtered AS")
	assert.Contains(t, got, "INNER JOIN date_filtered")
	assert.NotContains(t, got, "main_query")
}

func TestAssemble_TemplateUnresolvedPlaceholder(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			AssemblyTemplate: "WITH f AS ({filter}) {missing}",
			Components: map[string]*domain.Component{
				"filter": {Kind: domain.ComponentCTE, SQL: "SELECT 1"},
			},
		}},
	}

	_, err := Assemble(originalSQL, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{missing}")
}

func TestAssemble_CycleDetected(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			Components: map[string]*domain.Component{
				"a": {
					Kind:       domain.ComponentCTE,
					SQL:        "SELECT * FROM b",
					Interfaces: domain.ComponentInterfaces{Consumes: []string{"b"}},
				},
				"b": {
					Kind:       domain.ComponentCTE,
					SQL:        "SELECT * FROM a",
					Interfaces: domain.ComponentInterfaces{Consumes: []string{"a"}},
				},
				"main_query": {
					Kind:       domain.ComponentMainQuery,
					SQL:        "SELECT * FROM a",
					Interfaces: domain.ComponentInterfaces{Consumes: []string{"a"}},
				},
			},
		}},
	}

	_, err := Assemble(originalSQL, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestAssemble_UnknownConsume(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			Components: map[string]*domain.Component{
				"main_query": {
					Kind:       domain.ComponentMainQuery,
					SQL:        "SELECT * FROM ghost",
					Interfaces: domain.ComponentInterfaces{Consumes: []string{"ghost"}},
				},
			},
		}},
	}

	_, err := Assemble(originalSQL, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown component")
}

func TestAssemble_MissingMainQuery(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			Components: map[string]*domain.Component{
				"only_cte": {Kind: domain.ComponentCTE, SQL: "SELECT 1"},
			},
		}},
	}

	_, err := Assemble(originalSQL, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "main_query")
}

func TestAssemble_MacroExpansion(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			Components: map[string]*domain.Component{
				"main_query": {
					Kind: domain.ComponentMainQuery,
					SQL:  "SELECT o_id FROM orders WHERE -- [MACRO: date_range]",
				},
			},
		}},
		Macros: map[string]domain.Macro{
			"date_range": {SQL: "o_date BETWEEN '2024-01-01' AND '2024-12-31'"},
		},
	}

	got, err := Assemble(originalSQL, p)
	require.NoError(t, err)
	assert.Contains(t, got, "o_date BETWEEN '2024-01-01' AND '2024-12-31'")
	assert.NotContains(t, got, "MACRO")
}

func TestAssemble_BlockMacroExpansion(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			Components: map[string]*domain.Component{
				"main_query": {
					Kind: domain.ComponentMainQuery,
					SQL:  "SELECT o_id FROM orders WHERE /* [MACRO: active] */ AND o_total > 10",
				},
			},
		}},
		Macros: map[string]domain.Macro{
			"active": {SQL: "o_status = 'active'"},
		},
	}

	got, err := Assemble(originalSQL, p)
	require.NoError(t, err)
	assert.Contains(t, got, "o_status = 'active' AND o_total > 10")
}

func TestAssemble_UnknownMacroLeftIntact(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			Components: map[string]*domain.Component{
				"main_query": {
					Kind: domain.ComponentMainQuery,
					SQL:  "SELECT 1 -- [MACRO: nope]",
				},
			},
		}},
		Macros: map[string]domain.Macro{
			"other": {SQL: "x"},
		},
	}

	got, err := Assemble(originalSQL, p)
	require.NoError(t, err)
	assert.Contains(t, got, "-- [MACRO: nope]")
}

func TestAssemble_FrozenBlockEnforced(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			Components: map[string]*domain.Component{
				"main_query": {
					Kind: domain.ComponentMainQuery,
					SQL:  "SELECT o_id FROM orders",
				},
			},
		}},
		FrozenBlocks: []string{"WHERE o_date > '2024-01-01'"},
	}

	_, err := Assemble(originalSQL, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen block")
}

func TestAssemble_FrozenBlockPresent(t *testing.T) {
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements: []*domain.Statement{{
			Components: map[string]*domain.Component{
				"main_query": {
					Kind: domain.ComponentMainQuery,
					SQL:  "SELECT o_id FROM orders WHERE o_date > '2024-01-01'",
				},
			},
		}},
		FrozenBlocks: []string{"WHERE o_date > '2024-01-01'"},
	}

	got, err := Assemble(originalSQL, p)
	require.NoError(t, err)
	assert.Contains(t, got, "WHERE o_date > '2024-01-01'")
}

func TestAssemble_MultipleStatementsJoined(t *testing.T) {
	stmt := func(sql string) *domain.Statement {
		return &domain.Statement{
			Components: map[string]*domain.Component{
				"main_query": {Kind: domain.ComponentMainQuery, SQL: sql},
			},
		}
	}
	p := &domain.RewritePayload{
		SpecVersion: "1.0",
		Statements:  []*domain.Statement{stmt("SELECT 1"), stmt("SELECT 2")},
	}

	got, err := Assemble(originalSQL, p)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;\n\nSELECT 2", got)
}
