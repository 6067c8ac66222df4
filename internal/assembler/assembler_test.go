package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/config"
	"github.com/hyperjump/bunmyaku/internal/embedding"
	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/search"
	"github.com/hyperjump/bunmyaku/internal/token"
	"github.com/hyperjump/bunmyaku/internal/topics"
	"github.com/hyperjump/bunmyaku/internal/vector"
)

type fakeSearcher struct {
	hits    []models.ScoredMessage
	calls   int
	lastK   int
	lastMin float64
}

func (f *fakeSearcher) Search(_ context.Context, _, _ string, k int, minScore float64) []models.ScoredMessage {
	f.calls++
	f.lastK = k
	f.lastMin = minScore
	return f.hits
}

type fakeMessages struct {
	msgs []models.Message
	err  error
}

func (f *fakeMessages) ListMessages(context.Context, string) ([]models.Message, error) {
	return f.msgs, f.err
}

// conversation builds n alternating user/assistant messages, user first.
func conversation(n int) []models.Message {
	msgs := make([]models.Message, n)
	for i := range msgs {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs[i] = models.Message{
			ID:             fmt.Sprintf("m%d", i+1),
			ConversationID: "c1",
			Role:           role,
			Content:        fmt.Sprintf("message number %d about python", i+1),
			CreatedAt:      time.Date(2025, 1, 1, 0, i, 0, 0, time.UTC),
		}
	}
	return msgs
}

func newTestAssembler(t *testing.T, searcher Searcher, source MessageSource, counter token.Counter) *Assembler {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return NewAssembler(searcher, source, counter, topics.NewKeywordExtractor(), &cfg.Context, zap.NewNop())
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		count int
		want  Tier
	}{
		{0, TierShort},
		{1, TierShort},
		{3, TierShort},
		{4, TierMedium},
		{10, TierMedium},
		{11, TierLong},
		{100, TierLong},
	}
	for _, tt := range tests {
		if got := TierFor(tt.count); got != tt.want {
			t.Errorf("TierFor(%d) = %s, want %s", tt.count, got, tt.want)
		}
	}
}

func TestGenerateContext_ShortTier(t *testing.T) {
	fs := &fakeSearcher{}
	a := newTestAssembler(t, fs, &fakeMessages{msgs: conversation(3)}, token.Heuristic{})

	out := a.GenerateContext(context.Background(), "anything", "c1", 4000)

	if !strings.Contains(out, "**Recent Context:**") {
		t.Errorf("short tier missing recent context:\n%s", out)
	}
	if !strings.Contains(out, "• User: message number 1 about python") {
		t.Errorf("short tier missing first message:\n%s", out)
	}
	if !strings.Contains(out, "• Assistant: message number 2 about python") {
		t.Errorf("short tier missing assistant message:\n%s", out)
	}
	if fs.calls != 0 {
		t.Errorf("short tier should not search, got %d calls", fs.calls)
	}
}

func TestGenerateContext_ShortTierTruncatesLongMessages(t *testing.T) {
	msgs := conversation(2)
	msgs[1].Content = strings.Repeat("x", 400)
	a := newTestAssembler(t, &fakeSearcher{}, &fakeMessages{msgs: msgs}, token.Heuristic{})

	out := a.GenerateContext(context.Background(), "anything", "c1", 4000)

	if !strings.Contains(out, strings.Repeat("x", 150)+"...") {
		t.Errorf("long message should be truncated with ellipsis:\n%s", out)
	}
	if strings.Contains(out, strings.Repeat("x", 151)) {
		t.Errorf("message preview exceeds snippet length:\n%s", out)
	}
}

func TestGenerateContext_MediumTierUsesHits(t *testing.T) {
	fs := &fakeSearcher{hits: []models.ScoredMessage{
		{Score: 0.9, EmbeddingRecord: models.EmbeddingRecord{
			ConversationID: "c1", MessageID: "m2", Role: models.RoleAssistant,
			ContentPreview: "decorators wrap functions",
		}},
		{Score: 0.5, EmbeddingRecord: models.EmbeddingRecord{
			ConversationID: "c1", MessageID: "m4", Role: models.RoleUser,
			ContentPreview: "how do decorators work",
		}},
	}}
	a := newTestAssembler(t, fs, &fakeMessages{msgs: conversation(5)}, token.Heuristic{})

	out := a.GenerateContext(context.Background(), "explain decorators", "c1", 4000)

	if !strings.Contains(out, "**Relevant Context:**") {
		t.Fatalf("medium tier with hits missing relevant context:\n%s", out)
	}
	if !strings.Contains(out, "• Assistant: decorators wrap functions") {
		t.Errorf("medium tier missing hit preview:\n%s", out)
	}
	if strings.Contains(out, "**Recent Questions:**") {
		t.Errorf("medium tier with hits should not fall back to questions:\n%s", out)
	}
	if fs.calls != 1 || fs.lastK != 2 {
		t.Errorf("expected one search with k=2, got calls=%d k=%d", fs.calls, fs.lastK)
	}
	if fs.lastMin >= 0 {
		t.Errorf("tier search should request the default threshold, got %v", fs.lastMin)
	}
}

func TestGenerateContext_MediumTierFallsBackToQuestions(t *testing.T) {
	fs := &fakeSearcher{}
	a := newTestAssembler(t, fs, &fakeMessages{msgs: conversation(5)}, token.Heuristic{})

	out := a.GenerateContext(context.Background(), "something unrelated", "c1", 4000)

	if !strings.Contains(out, "**Recent Questions:**") {
		t.Fatalf("medium tier without hits missing questions fallback:\n%s", out)
	}
	if !strings.Contains(out, "1. message number 3 about python") {
		t.Errorf("fallback missing second-to-last user question:\n%s", out)
	}
	if !strings.Contains(out, "2. message number 5 about python") {
		t.Errorf("fallback missing last user question:\n%s", out)
	}
	if strings.Contains(out, "message number 1") {
		t.Errorf("fallback should keep only the last two user questions:\n%s", out)
	}
	if strings.Contains(out, "**Relevant Context:**") {
		t.Errorf("fallback should not include relevant context:\n%s", out)
	}
}

func TestGenerateContext_LongTier(t *testing.T) {
	fs := &fakeSearcher{hits: []models.ScoredMessage{
		{Score: 0.8, EmbeddingRecord: models.EmbeddingRecord{
			ConversationID: "c1", MessageID: "m5", Role: models.RoleUser,
			ContentPreview: "message number 5 about python",
		}},
	}}
	a := newTestAssembler(t, fs, &fakeMessages{msgs: conversation(12)}, token.Heuristic{})

	out := a.GenerateContext(context.Background(), "python question", "c1", 4000)

	for _, want := range []string{
		"**Conversation Summary:**",
		"Total messages: 12",
		"**Relevant Context:**",
		"**Topics Discussed:**",
		"• programming",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("long tier missing %q:\n%s", want, out)
		}
	}

	summaryAt := strings.Index(out, "**Conversation Summary:**")
	relevantAt := strings.Index(out, "**Relevant Context:**")
	topicsAt := strings.Index(out, "**Topics Discussed:**")
	if !(summaryAt < relevantAt && relevantAt < topicsAt) {
		t.Errorf("long tier sections out of order:\n%s", out)
	}
	if fs.lastK != 3 {
		t.Errorf("long tier should search with k=3, got %d", fs.lastK)
	}
}

func TestGenerateContext_LongTierNoHitsOmitsTopics(t *testing.T) {
	fs := &fakeSearcher{}
	a := newTestAssembler(t, fs, &fakeMessages{msgs: conversation(12)}, token.Heuristic{})

	out := a.GenerateContext(context.Background(), "unrelated", "c1", 4000)

	if !strings.Contains(out, "**Conversation Summary:**") {
		t.Errorf("long tier without hits should still summarize:\n%s", out)
	}
	if strings.Contains(out, "**Relevant Context:**") {
		t.Errorf("long tier without hits should omit relevant context:\n%s", out)
	}
	if strings.Contains(out, "**Topics Discussed:**") {
		t.Errorf("topics without supporting hits should be omitted:\n%s", out)
	}
}

func TestGenerateContext_EmptyConversation(t *testing.T) {
	a := newTestAssembler(t, &fakeSearcher{}, &fakeMessages{}, token.Heuristic{})

	if out := a.GenerateContext(context.Background(), "anything", "missing", 4000); out != "" {
		t.Errorf("empty conversation should yield empty context, got %q", out)
	}
}

func TestGenerateContext_MessageSourceFailureDegrades(t *testing.T) {
	source := &fakeMessages{err: errors.New("database closed")}
	a := newTestAssembler(t, &fakeSearcher{}, source, token.Heuristic{})

	if out := a.GenerateContext(context.Background(), "anything", "c1", 4000); out != "" {
		t.Errorf("message source failure should yield empty context, got %q", out)
	}
}

func TestGenerateContext_BudgetCompliance(t *testing.T) {
	fs := &fakeSearcher{hits: []models.ScoredMessage{
		{Score: 0.8, EmbeddingRecord: models.EmbeddingRecord{
			ConversationID: "c1", MessageID: "m5", Role: models.RoleUser,
			ContentPreview: "message number 5 about python",
		}},
	}}
	counter := token.WordCounter{}
	a := newTestAssembler(t, fs, &fakeMessages{msgs: conversation(12)}, counter)

	for _, budget := range []int{0, 1, 3, 5, 10, 20, 50, 100, 1000} {
		out := a.GenerateContext(context.Background(), "python question", "c1", budget)
		if got := counter.Count(out); got > budget {
			t.Errorf("budget %d: context measures %d tokens:\n%s", budget, got, out)
		}
	}
}

func TestGenerateContext_ZeroBudgetIsEmpty(t *testing.T) {
	a := newTestAssembler(t, &fakeSearcher{}, &fakeMessages{msgs: conversation(3)}, token.WordCounter{})

	if out := a.GenerateContext(context.Background(), "anything", "c1", 0); out != "" {
		t.Errorf("zero budget should yield empty context, got %q", out)
	}
	if out := a.GenerateContext(context.Background(), "anything", "c1", -10); out != "" {
		t.Errorf("negative budget should yield empty context, got %q", out)
	}
}

// TestGenerateContext_MediumTierRealSearchStack runs the medium tier against
// the real embedder, vector store, and searcher: an off-topic query falls
// back to recent questions while an on-topic one surfaces relevant context.
func TestGenerateContext_MediumTierRealSearchStack(t *testing.T) {
	ctx := context.Background()
	turns := []struct {
		role    models.Role
		content string
	}{
		{models.RoleUser, "How do you define a function in python?"},
		{models.RoleAssistant, "You define a function with the def keyword followed by its name and parameters."},
		{models.RoleUser, "How do I call it once defined?"},
		{models.RoleAssistant, "You call a function by writing its name followed by parentheses."},
		{models.RoleUser, "Can you show me an example too?"},
	}

	msgs := make([]models.Message, len(turns))
	records := make([]models.EmbeddingRecord, len(turns))
	texts := make([]string, len(turns))
	for i, turn := range turns {
		id := fmt.Sprintf("m%d", i+1)
		msgs[i] = models.Message{ID: id, ConversationID: "c1", Role: turn.role, Content: turn.content}
		records[i] = models.EmbeddingRecord{ConversationID: "c1", MessageID: id, Role: turn.role, ContentPreview: turn.content}
		texts[i] = turn.content
	}

	embedder := embedding.NewMockEmbedder(384)
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}
	store, err := vector.NewFlatStore(384, 3)
	if err != nil {
		t.Fatalf("NewFlatStore() error: %v", err)
	}
	if err := store.Add(ctx, records, vectors); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	searcher := search.NewSearcher(embedder, store, &search.Analytics{}, nil, &cfg.Search, zap.NewNop())
	a := NewAssembler(searcher, &fakeMessages{msgs: msgs}, token.Heuristic{}, topics.NewKeywordExtractor(), &cfg.Context, zap.NewNop())

	offTopic := a.GenerateContext(ctx, "what is overfitting?", "c1", 4000)
	if strings.Contains(offTopic, "**Relevant Context:**") {
		t.Errorf("off-topic query surfaced relevant context:\n%s", offTopic)
	}
	if !strings.Contains(offTopic, "**Recent Questions:**") {
		t.Errorf("off-topic query should fall back to recent questions:\n%s", offTopic)
	}
	if !strings.Contains(offTopic, "2. Can you show me an example too?") {
		t.Errorf("questions fallback missing last user question:\n%s", offTopic)
	}

	onTopic := a.GenerateContext(ctx, "how do I write a function?", "c1", 4000)
	if !strings.Contains(onTopic, "**Relevant Context:**") {
		t.Fatalf("on-topic query missing relevant context:\n%s", onTopic)
	}
	if !strings.Contains(onTopic, "How do you define a function in python?") {
		t.Errorf("on-topic query should surface the best-matching message:\n%s", onTopic)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		count  int
		topics []string
		want   string
	}{
		{"too few messages", 2, []string{"programming"}, ""},
		{"no topics", 12, nil, "Conversation with 12 messages"},
		{"with topics", 12, []string{"programming", "databases"}, "Discussed: programming, databases. Total messages: 12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summarize(tt.count, tt.topics); got != tt.want {
				t.Errorf("summarize(%d, %v) = %q, want %q", tt.count, tt.topics, got, tt.want)
			}
		})
	}
}

func TestLastUserQuestions(t *testing.T) {
	msgs := conversation(7)

	got := lastUserQuestions(msgs, 2)

	want := []string{"message number 5 about python", "message number 7 about python"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("lastUserQuestions() = %v, want %v", got, want)
	}

	if got := lastUserQuestions(nil, 2); len(got) != 0 {
		t.Errorf("expected no questions from empty conversation, got %v", got)
	}
}
