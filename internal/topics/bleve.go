package topics

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// BleveExtractor scores the conversation text against per-topic vocabulary
// documents in an in-memory Bleve index and returns the best-matching topic
// names. Unlike the keyword table it ranks by relevance, so a text dense in
// database terms reports "databases" ahead of a category it merely grazes.
type BleveExtractor struct {
	index bleve.Index
}

// NewBleveExtractor builds the in-memory index, one document per category,
// with the category's vocabulary as its searchable text.
func NewBleveExtractor() (*BleveExtractor, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so query words
	// match vocabulary words exactly.
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("vocabulary", textField)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create topic index: %w", err)
	}
	for _, cat := range categories {
		doc := map[string]string{"vocabulary": strings.Join(cat.terms, " ")}
		if err := index.Index(cat.name, doc); err != nil {
			index.Close()
			return nil, fmt.Errorf("index topic %q: %w", cat.name, err)
		}
	}
	return &BleveExtractor{index: index}, nil
}

// Extract returns up to five topic names ranked by match relevance.
// Errors degrade to no topics; topic extraction is never load-bearing.
func (e *BleveExtractor) Extract(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	query := bleve.NewMatchQuery(text)
	query.SetField("vocabulary")
	req := bleve.NewSearchRequest(query)
	req.Size = maxTopics
	results, err := e.index.Search(req)
	if err != nil {
		return nil
	}
	topics := make([]string, 0, len(results.Hits))
	for _, h := range results.Hits {
		topics = append(topics, h.ID)
	}
	return topics
}

// Close releases the in-memory index.
func (e *BleveExtractor) Close() error {
	return e.index.Close()
}
