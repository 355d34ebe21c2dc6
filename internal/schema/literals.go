// literals.go extracts literal predicate constraints from the query
// under test, so witness data can be biased toward rows the predicates
// actually select.
package schema

import (
	"fmt"
	"strconv"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"sqlverify/internal/domain"
)

// ExtractFilterLiterals parses the SQL and records, per (table, column),
// the exact-value and BETWEEN constraints found in WHERE and HAVING
// clauses. Columns that cannot be resolved against the schema are skipped:
// the literals are a biasing aid, not a correctness surface.
func ExtractFilterLiterals(sqlStr string, sch *domain.Schema) (domain.FilterLiterals, error) {
	result, err := pg_query.Parse(sqlStr)
	if err != nil {
		return nil, fmt.Errorf("parse SQL: %w", err)
	}

	w := &literalWalker{
		schema:   sch,
		aliases:  make(map[string]string),
		literals: make(domain.FilterLiterals),
	}
	for _, stmt := range result.Stmts {
		if n, ok := stmt.Stmt.Node.(*pg_query.Node_SelectStmt); ok {
			w.collectAliases(n.SelectStmt)
		}
	}
	for _, stmt := range result.Stmts {
		if n, ok := stmt.Stmt.Node.(*pg_query.Node_SelectStmt); ok {
			w.walkSelect(n.SelectStmt)
		}
	}
	return w.literals, nil
}

type literalWalker struct {
	schema   *domain.Schema
	aliases  map[string]string // alias or table name → table name
	literals domain.FilterLiterals
}

// collectAliases records every table reference and its alias across the
// whole statement, including CTE bodies and set-operation arms.
func (w *literalWalker) collectAliases(sel *pg_query.SelectStmt) {
	if sel == nil {
		return
	}
	w.collectAliases(sel.Larg)
	w.collectAliases(sel.Rarg)
	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			if n, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
				if s, ok := n.CommonTableExpr.Ctequery.Node.(*pg_query.Node_SelectStmt); ok {
					w.collectAliases(s.SelectStmt)
				}
			}
		}
	}
	for _, from := range sel.FromClause {
		w.collectFromAliases(from)
	}
}

func (w *literalWalker) collectFromAliases(node *pg_query.Node) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		name := n.RangeVar.Relname
		w.aliases[name] = name
		if n.RangeVar.Alias != nil && n.RangeVar.Alias.Aliasname != "" {
			w.aliases[n.RangeVar.Alias.Aliasname] = name
		}
	case *pg_query.Node_JoinExpr:
		w.collectFromAliases(n.JoinExpr.Larg)
		w.collectFromAliases(n.JoinExpr.Rarg)
	case *pg_query.Node_RangeSubselect:
		if s, ok := n.RangeSubselect.Subquery.Node.(*pg_query.Node_SelectStmt); ok {
			w.collectAliases(s.SelectStmt)
		}
	}
}

func (w *literalWalker) walkSelect(sel *pg_query.SelectStmt) {
	if sel == nil {
		return
	}
	w.walkSelect(sel.Larg)
	w.walkSelect(sel.Rarg)
	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			if n, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
				if s, ok := n.CommonTableExpr.Ctequery.Node.(*pg_query.Node_SelectStmt); ok {
					w.walkSelect(s.SelectStmt)
				}
			}
		}
	}
	for _, from := range sel.FromClause {
		w.walkFromQuals(from)
	}
	w.walkExpr(sel.WhereClause)
	w.walkExpr(sel.HavingClause)
}

// walkFromQuals descends into join conditions and derived tables.
func (w *literalWalker) walkFromQuals(node *pg_query.Node) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_JoinExpr:
		w.walkFromQuals(n.JoinExpr.Larg)
		w.walkFromQuals(n.JoinExpr.Rarg)
		w.walkExpr(n.JoinExpr.Quals)
	case *pg_query.Node_RangeSubselect:
		if s, ok := n.RangeSubselect.Subquery.Node.(*pg_query.Node_SelectStmt); ok {
			w.walkSelect(s.SelectStmt)
		}
	}
}

func (w *literalWalker) walkExpr(node *pg_query.Node) {
	if node == nil {
		return
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			w.walkExpr(arg)
		}
	case *pg_query.Node_SubLink:
		if s, ok := n.SubLink.Subselect.Node.(*pg_query.Node_SelectStmt); ok {
			w.walkSelect(s.SelectStmt)
		}
	case *pg_query.Node_AExpr:
		w.recordAExpr(n.AExpr)
	}
}

// recordAExpr records equality, IN and BETWEEN constraints whose left side
// is a resolvable column reference and whose right side is constant.
func (w *literalWalker) recordAExpr(expr *pg_query.A_Expr) {
	table, column, ok := w.resolveColumn(expr.Lexpr)
	if !ok {
		// Literal on the left (1 = x); try the mirrored form for equality.
		if expr.Kind == pg_query.A_Expr_Kind_AEXPR_OP && operatorName(expr) == "=" {
			if t, c, ok2 := w.resolveColumn(expr.Rexpr); ok2 {
				if v, vok := constValue(expr.Lexpr); vok {
					w.literals.Add(t, c, domain.Literal{Kind: domain.LiteralExact, Value: v})
				}
			}
		}
		return
	}

	switch expr.Kind {
	case pg_query.A_Expr_Kind_AEXPR_OP:
		if operatorName(expr) != "=" {
			return
		}
		if v, vok := constValue(expr.Rexpr); vok {
			w.literals.Add(table, column, domain.Literal{Kind: domain.LiteralExact, Value: v})
		}
	case pg_query.A_Expr_Kind_AEXPR_IN:
		if list, ok := expr.Rexpr.Node.(*pg_query.Node_List); ok {
			for _, item := range list.List.Items {
				if v, vok := constValue(item); vok {
					w.literals.Add(table, column, domain.Literal{Kind: domain.LiteralExact, Value: v})
				}
			}
		}
	case pg_query.A_Expr_Kind_AEXPR_BETWEEN:
		list, ok := expr.Rexpr.Node.(*pg_query.Node_List)
		if !ok || len(list.List.Items) != 2 {
			return
		}
		low, lok := constValue(list.List.Items[0])
		high, hok := constValue(list.List.Items[1])
		if lok && hok {
			w.literals.Add(table, column, domain.Literal{Kind: domain.LiteralBetween, Low: low, High: high})
		}
	}
}

// resolveColumn maps a column reference to its owning schema table, via
// alias when qualified, or by searching referenced tables when bare.
func (w *literalWalker) resolveColumn(node *pg_query.Node) (table, column string, ok bool) {
	if node == nil {
		return "", "", false
	}
	ref, isRef := node.Node.(*pg_query.Node_ColumnRef)
	if !isRef {
		return "", "", false
	}
	var parts []string
	for _, f := range ref.ColumnRef.Fields {
		s, isStr := f.Node.(*pg_query.Node_String_)
		if !isStr {
			return "", "", false
		}
		parts = append(parts, s.String_.Sval)
	}

	switch len(parts) {
	case 1:
		// Bare column: first referenced schema table that has it wins.
		column = parts[0]
		referenced := make(map[string]bool, len(w.aliases))
		for _, tableName := range w.aliases {
			referenced[tableName] = true
		}
		for _, t := range w.schema.Tables {
			if !referenced[t.Name] {
				continue
			}
			if _, has := t.Column(column); has {
				return t.Name, column, true
			}
		}
		return "", "", false
	case 2:
		tableName, found := w.aliases[parts[0]]
		if !found {
			tableName = parts[0]
		}
		if t, exists := w.schema.Table(tableName); exists {
			if _, has := t.Column(parts[1]); has {
				return tableName, parts[1], true
			}
		}
		return "", "", false
	default:
		return "", "", false
	}
}

// operatorName returns the operator string of an A_Expr ("=", "<", ...).
func operatorName(expr *pg_query.A_Expr) string {
	if len(expr.Name) == 0 {
		return ""
	}
	if s, ok := expr.Name[0].Node.(*pg_query.Node_String_); ok {
		return s.String_.Sval
	}
	return ""
}

// constValue extracts a Go value from an A_Const node.
func constValue(node *pg_query.Node) (interface{}, bool) {
	if node == nil {
		return nil, false
	}
	c, ok := node.Node.(*pg_query.Node_AConst)
	if !ok {
		return nil, false
	}
	ac := c.AConst
	if ac.Isnull {
		return nil, false
	}
	switch v := ac.Val.(type) {
	case *pg_query.A_Const_Ival:
		return int64(v.Ival.Ival), true
	case *pg_query.A_Const_Fval:
		f, err := strconv.ParseFloat(v.Fval.Fval, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case *pg_query.A_Const_Sval:
		return v.Sval.Sval, true
	case *pg_query.A_Const_Boolval:
		return v.Boolval.Boolval, true
	default:
		return nil, false
	}
}
