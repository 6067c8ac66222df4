package search

import (
	"sort"
	"strings"

	"github.com/hyperjump/bunmyaku/internal/models"
)

// Expander produces query variants that are searched alongside the original.
type Expander interface {
	Expand(query string) []string
}

// SimpleExpander emits the query itself plus cheap lexical variants: the
// query with trailing question marks stripped, and that form with its leading
// question word and auxiliaries removed. Both help bag-of-words style
// embedders match declarative message text.
type SimpleExpander struct{}

var questionWords = map[string]bool{
	"what": true, "how": true, "why": true, "when": true,
	"where": true, "who": true, "which": true,
}

var auxiliaryWords = map[string]bool{
	"is": true, "are": true, "was": true, "were": true, "do": true,
	"does": true, "did": true, "can": true, "could": true, "should": true,
	"would": true, "to": true, "i": true,
}

// Expand returns the variant list for query, the original always first.
func (SimpleExpander) Expand(query string) []string {
	variants := []string{query}

	base := strings.TrimSpace(query)
	trimmed := strings.TrimRight(base, "?")
	if trimmed != "" && trimmed != base {
		variants = append(variants, trimmed)
	}
	if stripped := stripQuestionLead(trimmed); stripped != "" {
		variants = appendVariant(variants, stripped)
	}
	return variants
}

// stripQuestionLead removes a leading question word and the auxiliaries that
// follow it ("how do I call it" -> "call it"). Returns "" when the query does
// not lead with a question word.
func stripQuestionLead(query string) string {
	fields := strings.Fields(query)
	if len(fields) < 2 || !questionWords[strings.ToLower(fields[0])] {
		return ""
	}
	fields = fields[1:]
	for len(fields) > 1 && auxiliaryWords[strings.ToLower(fields[0])] {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

func appendVariant(variants []string, v string) []string {
	for _, existing := range variants {
		if v == existing {
			return variants
		}
	}
	return append(variants, v)
}

func sortHits(best map[string]models.ScoredMessage) []models.ScoredMessage {
	merged := make([]models.ScoredMessage, 0, len(best))
	for _, hit := range best {
		merged = append(merged, hit)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	return merged
}
