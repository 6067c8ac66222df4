package assembler

import (
	"math"
	"strings"
)

// Relevance grades how well an assembled context serves its query. Scores
// land in [0, 1]; anything under 0.3 is worth a log line.
type Relevance struct {
	Score  float64
	Issues []string
}

// ValidateRelevance scores a compressed context against its query. It
// inspects the structured sections, never markers in the rendered text.
// Similarity hits weigh strongest, then recency sections, then query-word
// overlap; contexts too long or too short to be useful lose points.
func ValidateRelevance(query string, sections []Section, rendered string) Relevance {
	var rel Relevance
	if rendered == "" {
		rel.Issues = append(rel.Issues, "no context generated")
		return rel
	}

	present := make(map[string]bool, len(sections))
	var topicItems []string
	for _, s := range sections {
		if len(s.Items) == 0 {
			continue
		}
		present[s.Name] = true
		if s.Name == SectionTopics {
			topicItems = s.Items
		}
	}

	switch {
	case present[SectionRelevant]:
		rel.Score += 0.7
	case present[SectionRecent]:
		rel.Score += 0.5
	case present[SectionQuestions]:
		rel.Score += 0.3
	default:
		rel.Issues = append(rel.Issues, "no relevant context section")
	}

	if len(rendered) > 1000 {
		rel.Issues = append(rel.Issues, "context too long")
		rel.Score -= 0.1
	}
	if len(rendered) < 50 {
		rel.Issues = append(rel.Issues, "context too short")
		rel.Score -= 0.2
	}

	queryWords := wordSet(query)
	overlap := countOverlap(queryWords, wordSet(rendered))
	switch {
	case overlap > 0:
		rel.Score += math.Min(0.3, float64(overlap)*0.1)
	case len(topicItems) > 0:
		if mentionsAny(topicItems, queryWords) {
			rel.Score += 0.2
		}
	default:
		rel.Issues = append(rel.Issues, "no word overlap between query and context")
	}

	if len(present) >= 2 {
		rel.Score += 0.1
	}

	rel.Score = math.Max(0, math.Min(1, rel.Score))
	return rel
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

func countOverlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

func mentionsAny(items []string, words map[string]struct{}) bool {
	text := strings.ToLower(strings.Join(items, " "))
	for w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
