// Package ingest loads JSONL conversation transcripts into the engine and
// keeps a transcripts directory in sync with the index.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/models"
)

// Engine is the slice of the engine the ingestor drives.
type Engine interface {
	AddMessages(ctx context.Context, conversationID string, msgs []models.Message) ([]models.Message, bool)
	Remove(ctx context.Context, conversationID string) bool
}

// Ledger tracks which transcript files have been ingested, keyed by absolute path.
type Ledger interface {
	IngestState(ctx context.Context, path string) (hash, conversationID string, err error)
	RecordIngest(ctx context.Context, path, hash, conversationID string) error
}

// Ingestor parses transcript files and feeds them to the engine. Files are
// deduplicated by content hash: re-ingesting an unchanged file is a no-op,
// and a changed file replaces its conversation wholesale.
type Ingestor struct {
	engine Engine
	ledger Ledger
	logger *zap.Logger
}

// NewIngestor creates an ingestor over the given engine and ledger.
func NewIngestor(engine Engine, ledger Ledger, logger *zap.Logger) *Ingestor {
	return &Ingestor{engine: engine, ledger: ledger, logger: logger}
}

// IngestFile ingests one transcript file. Returns the conversation ID and the
// number of messages appended; an unchanged file returns its recorded
// conversation ID with zero appended.
func (ing *Ingestor) IngestFile(ctx context.Context, path string) (string, int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", 0, fmt.Errorf("absolute path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return "", 0, fmt.Errorf("read transcript: %w", err)
	}
	hash := contentHash(data)

	prevHash, prevConv, err := ing.ledger.IngestState(ctx, absPath)
	if err != nil {
		ing.logger.Warn("ingest ledger lookup failed",
			zap.String("path", absPath),
			zap.Error(err))
	}
	if prevHash == hash {
		ing.logger.Debug("transcript unchanged, skipping", zap.String("path", absPath))
		return prevConv, 0, nil
	}

	transcript, err := ParseTranscript(data, ConversationIDForFile(absPath))
	if err != nil {
		return "", 0, fmt.Errorf("parse transcript %s: %w", absPath, err)
	}

	// The file is the source of truth for its conversation: replace rather
	// than append, and drop the previously recorded conversation if the file
	// now names a different one.
	if prevConv != "" && prevConv != transcript.ConversationID {
		ing.engine.Remove(ctx, prevConv)
	}
	ing.engine.Remove(ctx, transcript.ConversationID)

	stored, ok := ing.engine.AddMessages(ctx, transcript.ConversationID, transcript.Messages)
	if !ok {
		return "", 0, fmt.Errorf("ingest %s: append or embed failed", absPath)
	}

	if err := ing.ledger.RecordIngest(ctx, absPath, hash, transcript.ConversationID); err != nil {
		ing.logger.Warn("ingest ledger record failed",
			zap.String("path", absPath),
			zap.Error(err))
	}
	ing.logger.Info("transcript ingested",
		zap.String("path", absPath),
		zap.String("conversation_id", transcript.ConversationID),
		zap.Int("messages", len(stored)))
	return transcript.ConversationID, len(stored), nil
}

// IngestDirectory walks dir and ingests every regular file whose extension is
// in extensions (empty allows all). Returns the number of files processed and
// messages appended; stops at the first error.
func (ing *Ingestor) IngestDirectory(ctx context.Context, dir string, extensions []string) (files, messages int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !matchExtension(path, extensions) {
			return nil
		}
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		_, n, ingestErr := ing.IngestFile(ctx, path)
		if ingestErr != nil {
			return ingestErr
		}
		files++
		messages += n
		return nil
	})
	return files, messages, err
}

// RemoveFile drops the conversation that was ingested from path, if any.
// Returns the conversation ID and whether anything was removed. The ledger
// row is deleted alongside the conversation's messages.
func (ing *Ingestor) RemoveFile(ctx context.Context, path string) (string, bool) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	_, conversationID, err := ing.ledger.IngestState(ctx, absPath)
	if err != nil || conversationID == "" {
		return "", false
	}
	removed := ing.engine.Remove(ctx, conversationID)
	if removed {
		ing.logger.Info("transcript conversation removed",
			zap.String("path", absPath),
			zap.String("conversation_id", conversationID))
	}
	return conversationID, removed
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
