// collect.go holds the AST walkers that gather base-table references and
// CTE names from parse trees.
package structural

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// tableCollector accumulates referenced table names and the CTE names
// defined anywhere in the statement, so callers can separate base tables
// from query-local names.
type tableCollector struct {
	seen     map[string]bool
	tables   []string
	cteNames map[string]bool
}

func newTableCollector() *tableCollector {
	return &tableCollector{
		seen:     make(map[string]bool),
		cteNames: make(map[string]bool),
	}
}

// baseTables returns the referenced tables that are not CTE names defined
// in the same statement.
func (c *tableCollector) baseTables() []string {
	var out []string
	for _, t := range c.tables {
		if !c.cteNames[t] {
			out = append(out, t)
		}
	}
	return out
}

func (c *tableCollector) collectStmt(node *pg_query.Node) {
	if node == nil {
		return
	}
	if n, ok := node.Node.(*pg_query.Node_SelectStmt); ok {
		c.collectSelect(n.SelectStmt)
	}
}

// collectSelect handles SELECT statements, including set operations and
// WITH clauses.
func (c *tableCollector) collectSelect(sel *pg_query.SelectStmt) {
	if sel == nil {
		return
	}

	// UNION/INTERSECT/EXCEPT
	c.collectSelect(sel.Larg)
	c.collectSelect(sel.Rarg)

	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			if n, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
				c.cteNames[n.CommonTableExpr.Ctename] = true
				c.collectStmt(n.CommonTableExpr.Ctequery)
			}
		}
	}

	for _, from := range sel.FromClause {
		c.collectFrom(from)
	}
	c.collectExpr(sel.WhereClause)
	c.collectExpr(sel.HavingClause)
	for _, target := range sel.TargetList {
		c.collectExpr(target)
	}
}

func (c *tableCollector) collectFrom(node *pg_query.Node) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		c.addTable(n.RangeVar.Relname)
	case *pg_query.Node_JoinExpr:
		c.collectFrom(n.JoinExpr.Larg)
		c.collectFrom(n.JoinExpr.Rarg)
	case *pg_query.Node_RangeSubselect:
		c.collectStmt(n.RangeSubselect.Subquery)
	case *pg_query.Node_RangeFunction:
		// Table-valued function, not a base table.
	}
}

// collectExpr walks expression nodes looking for subqueries.
func (c *tableCollector) collectExpr(node *pg_query.Node) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_SubLink:
		c.collectStmt(n.SubLink.Subselect)
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			c.collectExpr(arg)
		}
	case *pg_query.Node_AExpr:
		c.collectExpr(n.AExpr.Lexpr)
		c.collectExpr(n.AExpr.Rexpr)
	case *pg_query.Node_ResTarget:
		c.collectExpr(n.ResTarget.Val)
	}
}

func (c *tableCollector) addTable(name string) {
	if name == "" || c.seen[name] {
		return
	}
	c.seen[name] = true
	c.tables = append(c.tables, name)
}
