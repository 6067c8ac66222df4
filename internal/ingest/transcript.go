package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/bunmyaku/internal/models"
)

// transcriptLine is one JSONL line of a transcript file.
type transcriptLine struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// Transcript is one parsed conversation.
type Transcript struct {
	ConversationID string
	Messages       []models.Message
}

// maxLineBytes bounds a single transcript line; anything longer is malformed
// input rather than a conversation turn.
const maxLineBytes = 1 << 20

// ParseTranscript parses JSONL transcript data: one message per line with
// role, content, and an optional RFC3339 timestamp. The conversation is named
// by the first line carrying a conversation_id, falling back to fallbackID.
// Blank lines and lines with blank content are skipped; a line that is not
// valid JSON is an error.
func ParseTranscript(data []byte, fallbackID string) (*Transcript, error) {
	t := &Transcript{ConversationID: fallbackID}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	named := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var tl transcriptLine
		if err := json.Unmarshal([]byte(line), &tl); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if tl.ConversationID != "" && !named {
			t.ConversationID = tl.ConversationID
			named = true
		}
		if strings.TrimSpace(tl.Content) == "" {
			continue
		}
		msg := models.Message{
			Role:    parseRole(tl.Role),
			Content: tl.Content,
		}
		if tl.Timestamp != "" {
			ts, err := time.Parse(time.RFC3339, tl.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse timestamp: %w", lineNo, err)
			}
			msg.CreatedAt = ts
		}
		t.Messages = append(t.Messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return t, nil
}

// parseRole maps a transcript role to a message role. Anything that is not
// the user speaks for the assistant side of the conversation.
func parseRole(role string) models.Role {
	if strings.EqualFold(strings.TrimSpace(role), string(models.RoleUser)) {
		return models.RoleUser
	}
	return models.RoleAssistant
}

// ConversationIDForFile derives the fallback conversation ID for a transcript
// file: the basename without its extension.
func ConversationIDForFile(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
