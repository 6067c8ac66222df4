// Package engine exposes the context engine's operations behind one facade:
// embed-and-index, search, removal, validation, recovery, context assembly,
// and stats. No operation panics or propagates an error to the caller; every
// failure degrades to a false/empty result and a log line, so a caller can
// always answer without context rather than crash the conversation.
package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/assembler"
	"github.com/hyperjump/bunmyaku/internal/config"
	"github.com/hyperjump/bunmyaku/internal/embedding"
	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/search"
	"github.com/hyperjump/bunmyaku/internal/storage"
	"github.com/hyperjump/bunmyaku/internal/vector"
	"github.com/hyperjump/bunmyaku/pkg/utils"
)

// Engine wires the embedder, vector store, message store, searcher, and
// assembler into the operation surface the server and CLI consume.
type Engine struct {
	embedder  embedding.Embedder
	store     *vector.FlatStore
	messages  storage.MessageStore
	searcher  *search.Searcher
	assembler *assembler.Assembler
	analytics *search.Analytics
	config    *config.Config
	logger    *zap.Logger
}

// NewEngine creates the engine facade. analytics must be the same collector
// the searcher records into.
func NewEngine(
	embedder embedding.Embedder,
	store *vector.FlatStore,
	messages storage.MessageStore,
	searcher *search.Searcher,
	asm *assembler.Assembler,
	analytics *search.Analytics,
	cfg *config.Config,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		embedder:  embedder,
		store:     store,
		messages:  messages,
		searcher:  searcher,
		assembler: asm,
		analytics: analytics,
		config:    cfg,
		logger:    logger,
	}
}

// AddMessages appends msgs to the message store, then embeds and indexes
// them. Returns the stored messages (with assigned IDs) and whether both
// steps succeeded.
func (e *Engine) AddMessages(ctx context.Context, conversationID string, msgs []models.Message) ([]models.Message, bool) {
	stored, err := e.messages.AppendMessages(ctx, conversationID, msgs)
	if err != nil {
		e.logger.Error("message append failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return nil, false
	}
	ok := e.AddEmbeddings(ctx, conversationID, stored)
	return stored, ok
}

// AddEmbeddings embeds msgs and appends them to the vector index, then
// persists the index. Messages with blank content are skipped; skipping
// everything is a vacuous success. Embedding or index failures log and
// return false without partial appends. A persistence failure only logs:
// the in-memory index stays authoritative for the process.
func (e *Engine) AddEmbeddings(ctx context.Context, conversationID string, msgs []models.Message) bool {
	texts := make([]string, 0, len(msgs))
	kept := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		texts = append(texts, m.Content)
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		return true
	}

	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		e.logger.Warn("embedding failed; index not updated",
			zap.String("conversation_id", conversationID),
			zap.Int("messages", len(kept)),
			zap.Error(err))
		return false
	}

	records := make([]models.EmbeddingRecord, len(kept))
	for i, m := range kept {
		records[i] = models.EmbeddingRecord{
			ConversationID: conversationID,
			MessageID:      m.ID,
			Role:           m.Role,
			ContentPreview: utils.Truncate(m.Content, e.config.Context.PreviewChars),
			CreatedAt:      m.CreatedAt,
		}
	}

	if err := e.store.Add(ctx, records, vectors); err != nil {
		e.logger.Error("index append failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return false
	}

	e.persist()

	e.logger.Debug("indexed messages",
		zap.String("conversation_id", conversationID),
		zap.Int("added", len(kept)),
		zap.Int("total_vectors", e.store.Size()))
	return true
}

// Search returns messages similar to query, best first. conversationID
// restricts results to one conversation; empty searches everything. k <= 0
// and minScore < 0 select the configured defaults.
func (e *Engine) Search(ctx context.Context, query, conversationID string, k int, minScore float64) []models.ScoredMessage {
	return e.searcher.Search(ctx, query, conversationID, k, minScore)
}

// SearchExpanded searches query plus derived variants and merges results by
// best score per message.
func (e *Engine) SearchExpanded(ctx context.Context, query, conversationID string, k int, minScore float64) []models.ScoredMessage {
	return e.searcher.SearchExpanded(ctx, query, conversationID, k, minScore)
}

// Remove deletes a conversation's vectors and stored messages. Returns true
// when either store held the conversation. The index is persisted after a
// successful vector removal; persistence failures only log.
func (e *Engine) Remove(ctx context.Context, conversationID string) bool {
	removedVectors, err := e.store.RemoveConversation(conversationID)
	if err != nil {
		e.logger.Error("vector removal failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return false
	}

	removedRows, err := e.messages.DeleteConversation(ctx, conversationID)
	if err != nil {
		e.logger.Error("message delete failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}

	if removedVectors {
		e.persist()
	}
	return removedVectors || removedRows
}

// Validate reports whether the index is consistent. An empty index reports
// false.
func (e *Engine) Validate() bool {
	return e.store.Validate()
}

// Recover resets the index to a clean empty state and persists it, trading
// indexed vectors for availability. Stored messages are untouched, so
// conversations can be re-embedded afterwards.
func (e *Engine) Recover() bool {
	e.store.Recover()
	e.persist()
	e.logger.Info("index recovered to empty state")
	return true
}

// GenerateContext assembles conversation context for query within maxTokens.
// A negative maxTokens selects the configured default budget; zero is honored
// and yields an empty context.
func (e *Engine) GenerateContext(ctx context.Context, query, conversationID string, maxTokens int) string {
	if maxTokens < 0 {
		maxTokens = e.config.Context.DefaultMaxTokens
	}
	return e.assembler.GenerateContext(ctx, query, conversationID, maxTokens)
}

// Stats returns the index snapshot with search analytics.
func (e *Engine) Stats() models.StoreStats {
	return models.StoreStats{
		TotalVectors:      e.store.Size(),
		Dimensions:        e.store.Dimensions(),
		ConversationCount: e.store.ConversationCount(),
		Analytics:         e.analytics.Snapshot(),
	}
}

// IndexState reports the index lifecycle state for the status endpoint.
func (e *Engine) IndexState() string {
	return e.store.State().String()
}

// LoadIndex restores the index from the configured paths. A missing artifact
// pair starts empty; a corrupted pair logs, leaves the store in its corrupted
// state, and returns the error so the caller can decide to recover.
func (e *Engine) LoadIndex() error {
	err := e.store.Load(e.config.Storage.IndexPath, e.config.Storage.MetadataPath)
	if err != nil {
		e.logger.Warn("index load failed",
			zap.String("index_path", e.config.Storage.IndexPath),
			zap.Error(err))
		return err
	}
	e.logger.Info("index loaded",
		zap.Int("vectors", e.store.Size()),
		zap.Int("conversations", e.store.ConversationCount()))
	return nil
}

// SaveIndex persists the index to the configured paths.
func (e *Engine) SaveIndex() error {
	return e.store.Save(e.config.Storage.IndexPath, e.config.Storage.MetadataPath)
}

// Close releases the embedder. The vector store itself holds no external
// resources beyond its persisted artifacts.
func (e *Engine) Close() error {
	return e.embedder.Close()
}

func (e *Engine) persist() {
	if err := e.SaveIndex(); err != nil {
		e.logger.Error("index persist failed; in-memory state remains authoritative",
			zap.Error(err))
	}
}
