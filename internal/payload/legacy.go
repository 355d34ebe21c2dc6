package payload

import (
	"encoding/json"
	"regexp"
	"sort"

	"sqlverify/internal/domain"
)

// legacyEnvelope is the legacy wire format: a single top-level
// rewrite_sets array.
type legacyEnvelope struct {
	RewriteSets []domain.LegacyRewriteSet `json:"rewrite_sets"`
}

// mainComponentName is the node name the legacy format uses for the final
// SELECT.
const mainComponentName = "main_query"

// ParseLegacy parses raw text as a legacy rewrite payload and maps it into
// the structured representation so the rest of the pipeline is format
// agnostic. Returns nil when raw is not a legacy payload.
func ParseLegacy(raw string) *domain.RewritePayload {
	if DetectFormat(raw) != domain.FormatLegacy {
		return nil
	}
	var env legacyEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil
	}

	p := &domain.RewritePayload{SpecVersion: "legacy"}
	for _, set := range env.RewriteSets {
		p.RewriteRules = append(p.RewriteRules, domain.RewriteRule{
			ID:   set.ID,
			Type: set.Transform,
		})
		p.Statements = append(p.Statements, legacyStatement(set))
	}
	return p
}

// legacyStatement converts one rewrite set into a Statement. The legacy
// format carries no dependency edges, so consumes lists are inferred by
// scanning each node's SQL for references to other node names.
func legacyStatement(set domain.LegacyRewriteSet) *domain.Statement {
	names := make([]string, 0, len(set.Nodes))
	for name := range set.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	stmt := &domain.Statement{
		Change:     domain.ChangeModified,
		Components: make(map[string]*domain.Component, len(set.Nodes)),
	}
	for _, name := range names {
		sql := set.Nodes[name]
		kind := domain.ComponentCTE
		if name == mainComponentName {
			kind = domain.ComponentMainQuery
		}
		stmt.Components[name] = &domain.Component{
			Kind:   kind,
			Change: domain.ChangeModified,
			SQL:    sql,
			Interfaces: domain.ComponentInterfaces{
				Outputs:  set.NodeContracts[name],
				Consumes: referencedNodes(sql, name, names),
			},
		}
	}
	return stmt
}

// referencedNodes returns the node names (other than self) that appear as
// whole identifiers in the SQL body.
func referencedNodes(sql, self string, names []string) []string {
	var consumes []string
	for _, other := range names {
		if other == self {
			continue
		}
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(other) + `\b`)
		if re.MatchString(sql) {
			consumes = append(consumes, other)
		}
	}
	return consumes
}
