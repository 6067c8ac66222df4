// Package storage persists conversations and messages, and tracks which
// transcript files have been ingested.
package storage

import (
	"context"

	"github.com/hyperjump/bunmyaku/internal/models"
)

// MessageStore defines conversation and message persistence operations.
// The message table is the durable record; vector index contents are derived
// from it and can be rebuilt.
type MessageStore interface {
	// AppendMessages stores msgs under conversationID, assigning UUIDs to
	// messages without one and stamping missing creation times. The
	// conversation row is created on first append. Returns the messages as
	// stored.
	AppendMessages(ctx context.Context, conversationID string, msgs []models.Message) ([]models.Message, error)

	// ListMessages returns a conversation's messages in creation order.
	// An unknown conversation yields an empty slice.
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	// CountMessages returns the number of messages in a conversation.
	CountMessages(ctx context.Context, conversationID string) (int64, error)

	// ListConversations returns all conversations, most recently updated
	// first, with message counts.
	ListConversations(ctx context.Context) ([]models.Conversation, error)

	// DeleteConversation removes a conversation, its messages, and its
	// ingest ledger entries. Returns false when the conversation does not
	// exist.
	DeleteConversation(ctx context.Context, conversationID string) (bool, error)

	// IngestState returns the recorded content hash and conversation for a
	// transcript path, or empty strings when the path has not been ingested.
	IngestState(ctx context.Context, path string) (hash, conversationID string, err error)

	// RecordIngest stores or replaces the ingest ledger entry for path.
	RecordIngest(ctx context.Context, path, hash, conversationID string) error

	Close() error
}
