// Package assemble turns a parsed rewrite payload into a single SQL
// statement string, by template substitution or by topological
// reconstruction from component dependency edges, and expands embedded
// macros.
package assemble

import (
	"fmt"
	"regexp"
	"strings"

	"sqlverify/internal/domain"
)

var (
	placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	lineMacroRe   = regexp.MustCompile(`--[ \t]*\[MACRO:[ \t]*([A-Za-z0-9_]+)[ \t]*\]`)
	blockMacroRe  = regexp.MustCompile(`/\*[ \t]*\[MACRO:[ \t]*([A-Za-z0-9_]+)[ \t]*\][ \t]*\*/`)
)

// Assemble builds the rewritten SQL from a payload. A payload with zero
// statements proposes nothing: the original SQL is returned unchanged.
func Assemble(originalSQL string, p *domain.RewritePayload) (string, error) {
	if p == nil || len(p.Statements) == 0 {
		return originalSQL, nil
	}

	parts := make([]string, 0, len(p.Statements))
	for i, stmt := range p.Statements {
		sql, err := assembleStatement(stmt)
		if err != nil {
			return "", fmt.Errorf("statement %d: %w", i, err)
		}
		parts = append(parts, sql)
	}
	assembled := strings.Join(parts, ";\n\n")

	assembled = expandMacros(assembled, p.Macros)

	for _, frozen := range p.FrozenBlocks {
		if !strings.Contains(assembled, frozen) {
			return "", domain.ErrAssembly("frozen block missing from assembled output: %q", frozen)
		}
	}
	return assembled, nil
}

func assembleStatement(stmt *domain.Statement) (string, error) {
	if len(stmt.Components) == 0 {
		return "", domain.ErrAssembly("statement has no components")
	}
	if stmt.AssemblyTemplate != "" {
		return assembleFromTemplate(stmt)
	}
	return assembleTopological(stmt)
}

// assembleFromTemplate substitutes every {component_name} placeholder with
// that component's SQL body, verbatim. The template owns all surrounding
// syntax such as WITH ... AS (...).
func assembleFromTemplate(stmt *domain.Statement) (string, error) {
	out := stmt.AssemblyTemplate
	for name, comp := range stmt.Components {
		out = strings.ReplaceAll(out, "{"+name+"}", comp.SQL)
	}
	if m := placeholderRe.FindStringSubmatch(out); m != nil {
		return "", domain.ErrAssembly("unresolved placeholder %q in assembly template", m[0])
	}
	return out, nil
}

// assembleTopological reconstructs the statement from dependency edges:
// non-main components become named common-table-expression clauses in
// dependency order, terminated by the main-query component.
func assembleTopological(stmt *domain.Statement) (string, error) {
	g, err := buildGraph(stmt.Components)
	if err != nil {
		return "", err
	}

	order := stmt.ReconstructionOrder
	if !g.isValidOrder(order) {
		// Declared order is absent or not topological: compute one.
		order, err = g.topoOrder()
		if err != nil {
			return "", err
		}
	}

	var mainSQL string
	var ctes []string
	for _, name := range order {
		comp := stmt.Components[name]
		switch comp.Kind {
		case domain.ComponentMainQuery:
			mainSQL = comp.SQL
		case domain.ComponentCTE, domain.ComponentSubquery:
			ctes = append(ctes, fmt.Sprintf("%s AS (\n%s\n)", name, comp.SQL))
		default:
			return "", domain.ErrAssembly("component %q has unknown kind %q", name, comp.Kind)
		}
	}
	if mainSQL == "" {
		return "", domain.ErrAssembly("statement has no main_query component")
	}
	if len(ctes) == 0 {
		return mainSQL, nil
	}
	return "WITH " + strings.Join(ctes, ",\n") + "\n" + mainSQL, nil
}

// expandMacros replaces inline macro markers with the corresponding
// fragment from the payload's macro table. Markers naming an unknown macro
// are left untouched; the caller's equivalence checks catch any resulting
// breakage.
func expandMacros(sql string, macros map[string]domain.Macro) string {
	if len(macros) == 0 {
		return sql
	}
	expand := func(match string, re *regexp.Regexp) string {
		name := re.FindStringSubmatch(match)[1]
		macro, ok := macros[name]
		if !ok {
			return match
		}
		return macro.SQL
	}
	sql = lineMacroRe.ReplaceAllStringFunc(sql, func(m string) string { return expand(m, lineMacroRe) })
	sql = blockMacroRe.ReplaceAllStringFunc(sql, func(m string) string { return expand(m, blockMacroRe) })
	return sql
}
