package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/bunmyaku/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "conversations.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func userMsg(content string) models.Message {
	return models.Message{Role: models.RoleUser, Content: content}
}

func TestAppendMessages_AssignsIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stored, err := store.AppendMessages(ctx, "c1", []models.Message{
		userMsg("first"),
		{Role: models.RoleAssistant, Content: "second"},
	})
	if err != nil {
		t.Fatalf("AppendMessages() error: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored %d messages, want 2", len(stored))
	}
	if stored[0].ID == "" || stored[1].ID == "" {
		t.Error("messages should get generated IDs")
	}
	if stored[0].ID == stored[1].ID {
		t.Error("generated IDs should be distinct")
	}
	if stored[0].ConversationID != "c1" {
		t.Errorf("conversation id = %q, want c1", stored[0].ConversationID)
	}
	if stored[0].CreatedAt.IsZero() {
		t.Error("messages should get creation timestamps")
	}

	msgs, err := store.ListMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("ListMessages() error: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "first" || msgs[1].Content != "second" {
		t.Errorf("listed messages = %+v", msgs)
	}
}

func TestAppendMessages_KeepsProvidedIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msg := models.Message{ID: "m-fixed", Role: models.RoleUser, Content: "hello"}
	stored, err := store.AppendMessages(ctx, "c1", []models.Message{msg})
	if err != nil {
		t.Fatalf("AppendMessages() error: %v", err)
	}
	if stored[0].ID != "m-fixed" {
		t.Errorf("stored ID = %q, want m-fixed", stored[0].ID)
	}
}

func TestAppendMessages_RequiresConversationID(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.AppendMessages(context.Background(), "", []models.Message{userMsg("x")}); err == nil {
		t.Error("expected error for empty conversation id")
	}
}

func TestAppendMessages_EmptyInputIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stored, err := store.AppendMessages(ctx, "c1", nil)
	if err != nil {
		t.Fatalf("AppendMessages() error: %v", err)
	}
	if stored != nil {
		t.Errorf("expected nil result, got %v", stored)
	}

	convs, err := store.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations() error: %v", err)
	}
	if len(convs) != 0 {
		t.Errorf("empty append should not create a conversation, got %v", convs)
	}
}

func TestListMessages_OrderedByCreation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := store.AppendMessages(ctx, "c1", []models.Message{
		{Role: models.RoleUser, Content: "newest", CreatedAt: base.Add(2 * time.Minute)},
		{Role: models.RoleUser, Content: "oldest", CreatedAt: base},
		{Role: models.RoleUser, Content: "middle", CreatedAt: base.Add(time.Minute)},
	})
	if err != nil {
		t.Fatalf("AppendMessages() error: %v", err)
	}

	msgs, err := store.ListMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("ListMessages() error: %v", err)
	}
	want := []string{"oldest", "middle", "newest"}
	for i, w := range want {
		if msgs[i].Content != w {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].Content, w)
		}
	}
}

func TestListMessages_SameTimestampKeepsInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := make([]models.Message, 5)
	for i := range batch {
		batch[i] = models.Message{Role: models.RoleUser, Content: string(rune('a' + i)), CreatedAt: at}
	}
	if _, err := store.AppendMessages(ctx, "c1", batch); err != nil {
		t.Fatalf("AppendMessages() error: %v", err)
	}

	msgs, err := store.ListMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("ListMessages() error: %v", err)
	}
	for i := range batch {
		if msgs[i].Content != batch[i].Content {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].Content, batch[i].Content)
		}
	}
}

func TestListMessages_UnknownConversation(t *testing.T) {
	store := newTestStore(t)

	msgs, err := store.ListMessages(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ListMessages() error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %v", msgs)
	}
}

func TestCountMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendMessages(ctx, "c1", []models.Message{userMsg("a"), userMsg("b")}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AppendMessages(ctx, "c2", []models.Message{userMsg("c")}); err != nil {
		t.Fatal(err)
	}

	n, err := store.CountMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("CountMessages() error: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	if n, _ := store.CountMessages(ctx, "missing"); n != 0 {
		t.Errorf("missing conversation count = %d, want 0", n)
	}
}

func TestListConversations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendMessages(ctx, "c1", []models.Message{userMsg("a"), userMsg("b")}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AppendMessages(ctx, "c2", []models.Message{userMsg("c")}); err != nil {
		t.Fatal(err)
	}
	// Touch c1 again so it becomes the most recently updated.
	time.Sleep(5 * time.Millisecond)
	if _, err := store.AppendMessages(ctx, "c1", []models.Message{userMsg("d")}); err != nil {
		t.Fatal(err)
	}

	convs, err := store.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations() error: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].ID != "c1" || convs[0].MessageCount != 3 {
		t.Errorf("most recent = %+v, want c1 with 3 messages", convs[0])
	}
	if convs[1].ID != "c2" || convs[1].MessageCount != 1 {
		t.Errorf("second = %+v, want c2 with 1 message", convs[1])
	}
}

func TestDeleteConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendMessages(ctx, "c1", []models.Message{userMsg("a")}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AppendMessages(ctx, "c2", []models.Message{userMsg("b")}); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordIngest(ctx, "/tmp/c1.jsonl", "hash1", "c1"); err != nil {
		t.Fatal(err)
	}

	removed, err := store.DeleteConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("DeleteConversation() error: %v", err)
	}
	if !removed {
		t.Error("expected removed=true for existing conversation")
	}

	if msgs, _ := store.ListMessages(ctx, "c1"); len(msgs) != 0 {
		t.Errorf("c1 messages should be gone, got %v", msgs)
	}
	if hash, _, _ := store.IngestState(ctx, "/tmp/c1.jsonl"); hash != "" {
		t.Errorf("c1 ingest entry should be gone, got hash %q", hash)
	}
	if msgs, _ := store.ListMessages(ctx, "c2"); len(msgs) != 1 {
		t.Errorf("c2 should be untouched, got %v", msgs)
	}

	removed, err = store.DeleteConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("second DeleteConversation() error: %v", err)
	}
	if removed {
		t.Error("expected removed=false for missing conversation")
	}
}

func TestIngestLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hash, conv, err := store.IngestState(ctx, "/tmp/unknown.jsonl")
	if err != nil {
		t.Fatalf("IngestState() error: %v", err)
	}
	if hash != "" || conv != "" {
		t.Errorf("unknown path should report empty state, got %q %q", hash, conv)
	}

	if err := store.RecordIngest(ctx, "/tmp/t.jsonl", "hash1", "c1"); err != nil {
		t.Fatalf("RecordIngest() error: %v", err)
	}
	hash, conv, err = store.IngestState(ctx, "/tmp/t.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	if hash != "hash1" || conv != "c1" {
		t.Errorf("state = %q %q, want hash1 c1", hash, conv)
	}

	// Re-recording the same path replaces the entry.
	if err := store.RecordIngest(ctx, "/tmp/t.jsonl", "hash2", "c1"); err != nil {
		t.Fatalf("RecordIngest() upsert error: %v", err)
	}
	hash, _, _ = store.IngestState(ctx, "/tmp/t.jsonl")
	if hash != "hash2" {
		t.Errorf("hash after upsert = %q, want hash2", hash)
	}
}

func TestReopenPreservesData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conversations.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	if _, err := store.AppendMessages(ctx, "c1", []models.Message{userMsg("survives restart")}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	msgs, err := reopened.ListMessages(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "survives restart" {
		t.Errorf("reopened store lost data: %v", msgs)
	}
}
