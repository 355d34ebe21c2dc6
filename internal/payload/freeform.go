package payload

import (
	"regexp"
	"strings"

	"sqlverify/internal/domain"
)

// Extraction is the result of mining a free-form agent response.
// Exactly one of Payload or RawSQL is set when Format is not unrecognized.
type Extraction struct {
	Format  domain.PayloadFormat
	Payload *domain.RewritePayload
	RawSQL  string
}

var fencedBlockRe = regexp.MustCompile("(?s)```([a-zA-Z0-9_-]*)[ \t]*\n(.*?)```")

// ExtractFromResponse mines arbitrary agent text for a rewrite proposal.
//
// Extraction order: a structured payload block, then a legacy block, then
// the longest fenced SQL block taken verbatim as the complete rewritten
// statement. Bare payloads without fences are also accepted.
func ExtractFromResponse(raw string) Extraction {
	blocks := fencedBlocks(raw)

	// Whole-response JSON is tried alongside fenced candidates so agents
	// that skip the fence still parse.
	candidates := append([]block{{body: raw}}, blocks...)

	for _, b := range candidates {
		if p := ParsePayload(b.body); p != nil {
			return Extraction{Format: domain.FormatStructured, Payload: p}
		}
	}
	for _, b := range candidates {
		if p := ParseLegacy(b.body); p != nil {
			return Extraction{Format: domain.FormatLegacy, Payload: p}
		}
	}

	if sql := longestSQLBlock(blocks); sql != "" {
		return Extraction{Format: domain.FormatUnrecognized, RawSQL: sql}
	}
	return Extraction{Format: domain.FormatUnrecognized}
}

type block struct {
	lang string
	body string
}

func fencedBlocks(raw string) []block {
	var out []block
	for _, m := range fencedBlockRe.FindAllStringSubmatch(raw, -1) {
		out = append(out, block{
			lang: strings.ToLower(m[1]),
			body: strings.TrimSpace(m[2]),
		})
	}
	return out
}

// longestSQLBlock picks the longest fenced block that plausibly holds a
// complete SQL statement.
func longestSQLBlock(blocks []block) string {
	var best string
	for _, b := range blocks {
		if !looksLikeSQL(b) {
			continue
		}
		if len(b.body) > len(best) {
			best = b.body
		}
	}
	return best
}

func looksLikeSQL(b block) bool {
	if b.lang == "sql" {
		return true
	}
	if b.lang != "" {
		return false
	}
	upper := strings.ToUpper(strings.TrimSpace(b.body))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}
