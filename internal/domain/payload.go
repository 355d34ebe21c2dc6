package domain

import "encoding/json"

// PayloadFormat classifies the raw text emitted by the rewrite-proposal
// agent.
type PayloadFormat string

// Recognised payload formats.
const (
	FormatStructured   PayloadFormat = "structured_payload"
	FormatLegacy       PayloadFormat = "legacy"
	FormatUnrecognized PayloadFormat = "unrecognized"
)

// ComponentKind is the closed set of rewrite component kinds.
type ComponentKind string

// Component kinds.
const (
	ComponentCTE       ComponentKind = "cte"
	ComponentMainQuery ComponentKind = "main_query"
	ComponentSubquery  ComponentKind = "subquery"
)

// Valid reports whether k is a known component kind.
func (k ComponentKind) Valid() bool {
	switch k {
	case ComponentCTE, ComponentMainQuery, ComponentSubquery:
		return true
	}
	return false
}

// ChangeKind is the closed set of change classifications a proposer can
// attach to a statement or component.
type ChangeKind string

// Change kinds.
const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Valid reports whether c is a known change kind.
func (c ChangeKind) Valid() bool {
	switch c {
	case ChangeAdded, ChangeModified, ChangeRemoved:
		return true
	}
	return false
}

// RewriteRule is the proposer's claimed transform taxonomy entry. The first
// rule's Type becomes the human-readable transform label on ApplyResult.
type RewriteRule struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	AppliedTo   []string `json:"applied_to"`
}

// ComponentInterfaces declares a component's outputs and the components it
// consumes. Consumes edges across a statement must form a DAG.
type ComponentInterfaces struct {
	Outputs  []string `json:"outputs"`
	Consumes []string `json:"consumes"`
}

// Component is one named fragment of a rewrite.
type Component struct {
	Kind       ComponentKind       `json:"kind"`
	Change     ChangeKind          `json:"change"`
	SQL        string              `json:"sql"`
	Interfaces ComponentInterfaces `json:"interfaces"`
}

// Statement describes one SQL statement touched by the rewrite.
type Statement struct {
	TargetTable         string                `json:"target_table,omitempty"`
	Change              ChangeKind            `json:"change"`
	Components          map[string]*Component `json:"components"`
	ReconstructionOrder []string              `json:"reconstruction_order"`
	AssemblyTemplate    string                `json:"assembly_template,omitempty"`
}

// Macro is a reusable SQL fragment referenced by inline markers in
// component bodies.
type Macro struct {
	SQL    string   `json:"sql"`
	UsedIn []string `json:"used_in"`
}

// RewritePayload is the structured, machine-parseable representation of a
// proposed rewrite.
type RewritePayload struct {
	SpecVersion      string            `json:"spec_version"`
	Dialect          string            `json:"dialect"`
	RewriteRules     []RewriteRule     `json:"rewrite_rules"`
	Statements       []*Statement      `json:"statements"`
	Macros           map[string]Macro  `json:"macros"`
	FrozenBlocks     []string          `json:"frozen_blocks"`
	RuntimeConfig    []string          `json:"runtime_config"`
	ValidationChecks []json.RawMessage `json:"validation_checks"`
}

// Transform returns the first rewrite rule's declared type, or the fixed
// fallback label when the payload carries no rules.
func (p *RewritePayload) Transform() string {
	if p != nil && len(p.RewriteRules) > 0 && p.RewriteRules[0].Type != "" {
		return p.RewriteRules[0].Type
	}
	return TransformRawSQL
}

// TransformRawSQL labels rewrites that arrived as a bare SQL block rather
// than a structured payload.
const TransformRawSQL = "raw_sql_rewrite"

// LegacyRewriteSet is one entry of the legacy wire format's rewrite_sets
// array, kept for backward compatibility with older proposal agents.
type LegacyRewriteSet struct {
	ID            string              `json:"id"`
	Transform     string              `json:"transform"`
	Nodes         map[string]string   `json:"nodes"`
	NodeContracts map[string][]string `json:"node_contracts"`
}
