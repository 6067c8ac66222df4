// Package search turns text queries into ranked, score-filtered message hits.
package search

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/config"
	"github.com/hyperjump/bunmyaku/internal/embedding"
	"github.com/hyperjump/bunmyaku/internal/models"
)

// Store is the slice of the vector store the searcher depends on.
type Store interface {
	Search(ctx context.Context, query []float32, k int, minScore float64, conversationID string) ([]models.ScoredMessage, error)
}

// Searcher embeds text queries and runs thresholded, conversation-scoped
// vector search. Failures degrade to an empty result; callers never see an
// error from Search.
type Searcher struct {
	embedder  embedding.Embedder
	store     Store
	analytics *Analytics
	expander  Expander
	config    *config.SearchConfig
	logger    *zap.Logger
}

// NewSearcher creates a searcher with the given dependencies. A nil expander
// makes SearchExpanded behave like Search.
func NewSearcher(embedder embedding.Embedder, store Store, analytics *Analytics, expander Expander, cfg *config.SearchConfig, logger *zap.Logger) *Searcher {
	return &Searcher{
		embedder:  embedder,
		store:     store,
		analytics: analytics,
		expander:  expander,
		config:    cfg,
		logger:    logger,
	}
}

// Preprocess lowercases a query and collapses runs of whitespace.
func Preprocess(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Search returns up to k hits for query scoring at least minScore, scoped to
// conversationID when non-empty. k <= 0 selects the configured default and k
// is capped at the configured maximum; minScore < 0 selects the canonical
// configured threshold (0 is a valid explicit cutoff). Every call is recorded
// in analytics, hits or not.
func (s *Searcher) Search(ctx context.Context, query, conversationID string, k int, minScore float64) []models.ScoredMessage {
	results := s.search(ctx, query, conversationID, s.clampK(k), s.clampScore(minScore))
	s.analytics.Record(len(results))
	return results
}

// SearchExpanded searches every variant the expander produces and merges the
// hits, keeping one entry per message at its best score across variants,
// re-sorted descending and truncated to k. Counts as a single search in
// analytics regardless of how many variants ran.
func (s *Searcher) SearchExpanded(ctx context.Context, query, conversationID string, k int, minScore float64) []models.ScoredMessage {
	if s.expander == nil {
		return s.Search(ctx, query, conversationID, k, minScore)
	}
	k = s.clampK(k)
	minScore = s.clampScore(minScore)

	best := make(map[string]models.ScoredMessage)
	for _, variant := range s.expander.Expand(query) {
		for _, hit := range s.search(ctx, variant, conversationID, k, minScore) {
			if cur, ok := best[hit.MessageID]; !ok || hit.Score > cur.Score {
				best[hit.MessageID] = hit
			}
		}
	}
	merged := sortHits(best)
	if len(merged) > k {
		merged = merged[:k]
	}
	s.analytics.Record(len(merged))
	return merged
}

func (s *Searcher) search(ctx context.Context, query, conversationID string, k int, minScore float64) []models.ScoredMessage {
	processed := Preprocess(query)
	if processed == "" {
		return nil
	}

	// Embed outside any store lock; the provider may be slow.
	queryVec, err := s.embedder.Embed(ctx, processed)
	if err != nil {
		s.logger.Warn("query embedding failed",
			zap.String("query", processed),
			zap.Error(err))
		return nil
	}

	results, err := s.store.Search(ctx, queryVec, k, minScore, conversationID)
	if err != nil {
		s.logger.Warn("vector search failed", zap.Error(err))
		return nil
	}
	s.logger.Debug("search complete",
		zap.String("query", processed),
		zap.String("conversation_id", conversationID),
		zap.Int("results", len(results)))
	return results
}

func (s *Searcher) clampK(k int) int {
	if k <= 0 {
		k = s.config.DefaultK
	}
	if k > s.config.MaxK {
		k = s.config.MaxK
	}
	return k
}

func (s *Searcher) clampScore(minScore float64) float64 {
	if minScore < 0 {
		return s.config.MinScore
	}
	return minScore
}
