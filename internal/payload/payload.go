// Package payload detects and parses the structured rewrite formats
// emitted by the rewrite-proposal agent, including the legacy variant and
// free-form responses that embed a payload (or bare SQL) in fenced blocks.
package payload

import (
	"encoding/json"

	"sqlverify/internal/domain"
)

// DetectFormat classifies raw agent text.
//
// Valid JSON carrying both a spec_version field and a statements key (even
// an empty list) is a structured payload. Valid JSON carrying a
// rewrite_sets key is the legacy format. Everything else, including
// malformed JSON, is unrecognized.
func DetectFormat(raw string) domain.PayloadFormat {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return domain.FormatUnrecognized
	}
	_, hasVersion := probe["spec_version"]
	_, hasStatements := probe["statements"]
	if hasVersion && hasStatements {
		return domain.FormatStructured
	}
	if _, ok := probe["rewrite_sets"]; ok {
		return domain.FormatLegacy
	}
	return domain.FormatUnrecognized
}

// ParsePayload parses raw text as a structured rewrite payload. It returns
// nil on malformed JSON or on JSON that does not classify as structured;
// absence of a parse result is the signal, never a panic or error.
func ParsePayload(raw string) *domain.RewritePayload {
	if DetectFormat(raw) != domain.FormatStructured {
		return nil
	}
	var p domain.RewritePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil
	}
	return &p
}
