// Package topics extracts discussion topics from conversation text.
package topics

import "fmt"

// maxTopics caps how many topics a single extraction returns.
const maxTopics = 5

// Extractor names the topics present in a piece of text. Implementations are
// interchangeable: a keyword table, a search-index scorer, or an external
// model can all serve.
type Extractor interface {
	Extract(text string) []string
}

// New returns the extractor selected by name.
func New(name string) (Extractor, error) {
	switch name {
	case "", "keyword":
		return NewKeywordExtractor(), nil
	case "bleve":
		return NewBleveExtractor()
	default:
		return nil, fmt.Errorf("unknown topic extractor: %q", name)
	}
}
