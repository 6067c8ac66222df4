package assembler

import (
	"strings"

	"github.com/hyperjump/bunmyaku/internal/token"
)

// Section names as they appear in rendered context.
const (
	SectionRecent    = "Recent Context"
	SectionRelevant  = "Relevant Context"
	SectionQuestions = "Recent Questions"
	SectionSummary   = "Conversation Summary"
	SectionTopics    = "Topics Discussed"
)

// Drop order during budget compression, lowest first.
const (
	PriorityTopics = iota
	PrioritySummary
	PriorityRelevant
	PriorityRecent
)

// Section is one named, prioritized block of an assembled context. The
// compressor manipulates sections by these fields only; it never parses
// rendered text.
type Section struct {
	Name     string
	Priority int
	// Items are the section's rendered lines (bullets or numbered entries).
	Items []string
	// Minimal, when set, is the reduced single-line form the compressor
	// falls back to before dropping the section entirely.
	Minimal string
	// Truncatable sections shed one item at a time under budget pressure;
	// others drop whole.
	Truncatable bool
	// KeepTail truncates from the front, preserving the newest items.
	// Without it truncation trims the tail, preserving the best-ranked items.
	KeepTail bool
}

// Render joins sections into the final context string: a bold header line,
// the section's items, and a blank line between sections.
func Render(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if len(s.Items) == 0 {
			continue
		}
		parts = append(parts, "**"+s.Name+":**\n"+strings.Join(s.Items, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// Compress shrinks sections until the rendered context measures within
// maxTokens, working on the lowest-priority section first: minimize it if a
// minimal form remains, shed one item if it is truncatable, otherwise drop
// it. The counter re-measures the full render after every step; nothing is
// estimated. The result may be empty, which renders to a valid empty string.
func Compress(sections []Section, counter token.Counter, maxTokens int) []Section {
	if maxTokens < 0 {
		maxTokens = 0
	}
	current := append([]Section(nil), sections...)
	for counter.Count(Render(current)) > maxTokens {
		if len(current) == 0 {
			break
		}
		idx := lowestPriority(current)
		s := &current[idx]
		switch {
		case s.Minimal != "" && !(len(s.Items) == 1 && s.Items[0] == s.Minimal):
			s.Items = []string{s.Minimal}
		case s.Truncatable && len(s.Items) > 1:
			if s.KeepTail {
				s.Items = s.Items[1:]
			} else {
				s.Items = s.Items[:len(s.Items)-1]
			}
		default:
			current = append(current[:idx], current[idx+1:]...)
		}
	}
	return current
}

func lowestPriority(sections []Section) int {
	idx := 0
	for i, s := range sections {
		if s.Priority < sections[idx].Priority {
			idx = i
		}
	}
	return idx
}
