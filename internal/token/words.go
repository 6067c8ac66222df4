package token

import "github.com/hyperjump/bunmyaku/internal/embedding"

// WordCounter counts whitespace-delimited words using the same splitter the
// embedding tokenizer uses to consume text. Preferred over Heuristic when a
// model tokenizer is loaded, since word boundaries track its token boundaries
// more closely than raw character length does.
type WordCounter struct{}

// Count returns the number of words in text.
func (WordCounter) Count(text string) int {
	return len(embedding.SplitWords(text))
}
