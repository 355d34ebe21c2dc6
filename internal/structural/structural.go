// Package structural performs static equivalence checks between an
// original SQL statement and its proposed rewrite.
//
// It parses both strings into ASTs and checks a fixed set of invariants:
// output shape, explicit output names, and base-table coverage. The
// checks are dialect-syntax-only and deliberately cheap; semantic drift
// hidden behind identical shapes is left to the dynamic validator.
package structural

import (
	"sort"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"sqlverify/internal/domain"
)

// Check compares original and rewritten SQL and returns an aggregate
// verdict: every violated rule is reported, not just the first. The
// dialect string is carried for reporting; all supported dialects
// currently parse through the PostgreSQL grammar, which is also what the
// sandbox engines accept.
func Check(originalSQL, rewrittenSQL, dialect string) domain.EquivalenceVerdict {
	verdict := domain.OKVerdict()

	rewritten, err := pg_query.Parse(rewrittenSQL)
	if err != nil {
		verdict.AddErrorf("rewritten SQL does not parse (%s): %v", dialect, err)
		return verdict
	}
	// The original is assumed pre-validated; a failure here still has to
	// surface rather than panic downstream.
	original, err := pg_query.Parse(originalSQL)
	if err != nil {
		verdict.AddErrorf("original SQL does not parse (%s): %v", dialect, err)
		return verdict
	}

	origSel := topSelect(original)
	rewSel := topSelect(rewritten)
	if origSel == nil || rewSel == nil {
		verdict.AddErrorf("only SELECT statements can be compared")
		return verdict
	}

	checkOutputShape(&verdict, origSel, rewSel)
	checkOutputNames(&verdict, origSel, rewSel)
	checkBaseTables(&verdict, original, rewritten)
	return verdict
}

// checkOutputShape verifies the number of top-level projected output
// expressions matches.
func checkOutputShape(verdict *domain.EquivalenceVerdict, orig, rew *pg_query.SelectStmt) {
	origCount := len(projectionList(orig))
	rewCount := len(projectionList(rew))
	if origCount != rewCount {
		verdict.AddErrorf("Column count mismatch: original projects %d columns, rewrite projects %d", origCount, rewCount)
	}
}

// checkOutputNames verifies that the sets of explicit output column names
// agree, order-independently. Star projections expose no explicit names,
// so a side containing one is not comparable and the check is skipped.
func checkOutputNames(verdict *domain.EquivalenceVerdict, orig, rew *pg_query.SelectStmt) {
	origNames, origStar := outputNames(orig)
	rewNames, rewStar := outputNames(rew)
	if origStar || rewStar {
		return
	}

	rewSet := make(map[string]bool, len(rewNames))
	for _, n := range rewNames {
		rewSet[n] = true
	}
	origSet := make(map[string]bool, len(origNames))
	for _, n := range origNames {
		origSet[n] = true
	}

	for _, n := range origNames {
		if !rewSet[n] {
			verdict.AddErrorf("output column %q missing or renamed in rewrite", n)
		}
	}
	extra := make([]string, 0)
	for _, n := range rewNames {
		if !origSet[n] {
			extra = append(extra, n)
		}
	}
	sort.Strings(extra)
	for _, n := range extra {
		verdict.AddErrorf("rewrite introduces output column %q not present in original", n)
	}
}

// checkBaseTables verifies every base table referenced by the original is
// still referenced somewhere in the rewritten statement. CTE names defined
// inside either query are excluded.
func checkBaseTables(verdict *domain.EquivalenceVerdict, orig, rew *pg_query.ParseResult) {
	rewTables := make(map[string]bool)
	for _, t := range collectBaseTables(rew) {
		rewTables[t] = true
	}
	for _, t := range collectBaseTables(orig) {
		if !rewTables[t] {
			verdict.AddErrorf("base table %q referenced by original is missing from rewrite", t)
		}
	}
}

func collectBaseTables(result *pg_query.ParseResult) []string {
	c := newTableCollector()
	for _, stmt := range result.Stmts {
		c.collectStmt(stmt.Stmt)
	}
	return c.baseTables()
}

// topSelect returns the first statement's SELECT node, or nil when the
// statement is not a SELECT.
func topSelect(result *pg_query.ParseResult) *pg_query.SelectStmt {
	if len(result.Stmts) == 0 {
		return nil
	}
	n, ok := result.Stmts[0].Stmt.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return nil
	}
	return n.SelectStmt
}

// projectionList returns the target list of the leftmost arm of a set
// operation (which defines the output shape of the whole statement).
func projectionList(sel *pg_query.SelectStmt) []*pg_query.Node {
	for sel.Larg != nil {
		sel = sel.Larg
	}
	return sel.TargetList
}

// outputNames collects explicit, unambiguous output column names: an AS
// alias, or a plain column reference's final identifier. Unnamed
// expressions are skipped; a star projection is flagged separately.
func outputNames(sel *pg_query.SelectStmt) (names []string, hasStar bool) {
	for _, target := range projectionList(sel) {
		rt, ok := target.Node.(*pg_query.Node_ResTarget)
		if !ok {
			continue
		}
		if rt.ResTarget.Name != "" {
			names = append(names, rt.ResTarget.Name)
			continue
		}
		name, star := columnRefName(rt.ResTarget.Val)
		if star {
			hasStar = true
			continue
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names, hasStar
}

// columnRefName extracts the final identifier of a plain column reference,
// reporting star projections.
func columnRefName(node *pg_query.Node) (string, bool) {
	if node == nil {
		return "", false
	}
	ref, ok := node.Node.(*pg_query.Node_ColumnRef)
	if !ok {
		return "", false
	}
	fields := ref.ColumnRef.Fields
	if len(fields) == 0 {
		return "", false
	}
	last := fields[len(fields)-1]
	if _, star := last.Node.(*pg_query.Node_AStar); star {
		return "", true
	}
	if s, ok := last.Node.(*pg_query.Node_String_); ok {
		return s.String_.Sval, false
	}
	return "", false
}
