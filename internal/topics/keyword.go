package topics

import (
	"strings"
	"unicode"
)

// category groups a topic name with the vocabulary that signals it.
// Categories are ordered; extraction output follows this order so results
// are deterministic.
type category struct {
	name  string
	terms []string
}

var categories = []category{
	{"programming", []string{"python", "javascript", "java", "c++", "c#", "php", "ruby", "go", "rust", "swift", "kotlin"}},
	{"web development", []string{"html", "css", "react", "vue", "angular", "node.js", "express", "django", "flask", "spring"}},
	{"data science", []string{"machine learning", "artificial intelligence", "deep learning", "neural networks", "data science"}},
	{"databases", []string{"database", "sql", "mongodb", "postgresql", "mysql", "redis", "elasticsearch"}},
	{"mathematics", []string{"mathematics", "algebra", "geometry", "calculus", "statistics", "probability"}},
	{"computer science", []string{"algorithms", "data structures", "software engineering", "system design"}},
	{"devops", []string{"docker", "kubernetes", "git", "github", "ci/cd", "deployment"}},
	{"frameworks", []string{"scikit-learn", "tensorflow", "pytorch", "pandas", "numpy", "matplotlib"}},
}

// concepts are specific programming notions reported alongside category
// topics, at most three per extraction.
var concepts = []string{
	"variables", "functions", "classes", "objects", "methods", "inheritance",
	"polymorphism", "encapsulation", "abstraction", "interfaces", "modules",
	"packages", "libraries", "frameworks", "debugging", "testing", "deployment",
}

const maxConcepts = 3

// KeywordExtractor matches a fixed vocabulary against the text. Single-word
// terms match whole words only, so "go" does not fire on "good"; terms with
// punctuation or spaces ("c++", "node.js", "machine learning") match as
// substrings.
type KeywordExtractor struct{}

// NewKeywordExtractor returns the table-driven extractor.
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{}
}

// Extract returns up to five topics found in text, category names first,
// specific concepts after, in table order.
func (e *KeywordExtractor) Extract(text string) []string {
	content := strings.ToLower(text)
	words := wordSet(content)

	topics := make([]string, 0, maxTopics)
	for _, cat := range categories {
		for _, term := range cat.terms {
			if matchTerm(content, words, term) {
				topics = append(topics, cat.name)
				break
			}
		}
	}

	found := 0
	for _, concept := range concepts {
		if found == maxConcepts {
			break
		}
		if matchTerm(content, words, concept) {
			topics = append(topics, concept)
			found++
		}
	}

	if len(topics) > maxTopics {
		topics = topics[:maxTopics]
	}
	return topics
}

func matchTerm(content string, words map[string]struct{}, term string) bool {
	if strings.IndexFunc(term, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) >= 0 {
		return strings.Contains(content, term)
	}
	_, ok := words[term]
	return ok
}

func wordSet(content string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(content) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if w != "" {
			words[w] = struct{}{}
		}
	}
	return words
}
