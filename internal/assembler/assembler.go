// Package assembler builds conversation context for downstream generation.
// It picks a strategy tier from conversation length, assembles structured
// sections, and compresses them until the rendered string fits a token
// budget. Every failure degrades to an empty context; callers never see an
// error from context generation.
package assembler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/config"
	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/token"
	"github.com/hyperjump/bunmyaku/internal/topics"
	"github.com/hyperjump/bunmyaku/pkg/utils"
)

// Tier is the context strategy selected from conversation length.
type Tier int

const (
	// TierShort shows the last few messages verbatim.
	TierShort Tier = iota
	// TierMedium shows similarity hits, or recent user questions when
	// nothing scores above threshold.
	TierMedium
	// TierLong adds a conversation summary and discussed topics around the
	// similarity hits.
	TierLong
)

func (t Tier) String() string {
	switch t {
	case TierShort:
		return "short"
	case TierMedium:
		return "medium"
	case TierLong:
		return "long"
	default:
		return "unknown"
	}
}

// TierFor maps a conversation's message count to its context tier.
func TierFor(messageCount int) Tier {
	switch {
	case messageCount <= 3:
		return TierShort
	case messageCount <= 10:
		return TierMedium
	default:
		return TierLong
	}
}

// Searcher finds messages similar to a query within one conversation.
// A negative minScore selects the configured default threshold.
type Searcher interface {
	Search(ctx context.Context, query, conversationID string, k int, minScore float64) []models.ScoredMessage
}

// MessageSource lists a conversation's messages in creation order.
type MessageSource interface {
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Assembler generates budget-bounded context strings for a conversation.
type Assembler struct {
	searcher Searcher
	messages MessageSource
	counter  token.Counter
	topics   topics.Extractor
	config   *config.ContextConfig
	logger   *zap.Logger
}

// NewAssembler creates a context assembler.
func NewAssembler(searcher Searcher, messages MessageSource, counter token.Counter, extractor topics.Extractor, cfg *config.ContextConfig, logger *zap.Logger) *Assembler {
	return &Assembler{
		searcher: searcher,
		messages: messages,
		counter:  counter,
		topics:   extractor,
		config:   cfg,
		logger:   logger,
	}
}

// GenerateContext assembles context for query from the conversation's
// history, compressed so the counter measures at most maxTokens. The budget
// holds for every maxTokens >= 0; negative budgets are treated as zero. An
// unknown or empty conversation yields an empty string, as does a message
// store failure, which is logged and swallowed.
func (a *Assembler) GenerateContext(ctx context.Context, query, conversationID string, maxTokens int) string {
	if maxTokens < 0 {
		maxTokens = 0
	}

	msgs, err := a.messages.ListMessages(ctx, conversationID)
	if err != nil {
		a.logger.Warn("context generation could not load messages",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return ""
	}
	if len(msgs) == 0 {
		return ""
	}

	tier := TierFor(len(msgs))
	var sections []Section
	switch tier {
	case TierShort:
		sections = a.recentSections(msgs)
	case TierMedium:
		sections = a.mediumSections(ctx, query, conversationID, msgs)
	default:
		sections = a.longSections(ctx, query, conversationID, msgs)
	}

	compressed := Compress(sections, a.counter, maxTokens)
	rendered := Render(compressed)

	rel := ValidateRelevance(query, compressed, rendered)
	if rel.Score < 0.3 {
		a.logger.Warn("low context relevance",
			zap.Float64("score", rel.Score),
			zap.Strings("issues", rel.Issues),
			zap.String("query", query))
	}

	a.logger.Debug("generated context",
		zap.String("conversation_id", conversationID),
		zap.String("tier", tier.String()),
		zap.Int("sections", len(compressed)),
		zap.Int("tokens", a.counter.Count(rendered)),
		zap.Float64("relevance", rel.Score))

	return rendered
}

// recentSections builds the short-tier context: the last few messages as
// role-labeled snippets, oldest first. Truncation under budget pressure
// sheds the oldest entries.
func (a *Assembler) recentSections(msgs []models.Message) []Section {
	start := len(msgs) - a.config.RecentLimit
	if start < 0 {
		start = 0
	}
	items := make([]string, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		items = append(items, "• "+roleLabel(m.Role)+": "+utils.Truncate(m.Content, a.config.SnippetChars))
	}
	return []Section{{
		Name:        SectionRecent,
		Priority:    PriorityRecent,
		Items:       items,
		Truncatable: true,
		KeepTail:    true,
	}}
}

// mediumSections builds the medium-tier context: similarity hits when any
// message clears the threshold, otherwise the user's last questions.
func (a *Assembler) mediumSections(ctx context.Context, query, conversationID string, msgs []models.Message) []Section {
	hits := a.searcher.Search(ctx, query, conversationID, a.config.MediumK, -1)
	if len(hits) > 0 {
		return []Section{a.relevantSection(hits)}
	}

	questions := lastUserQuestions(msgs, 2)
	if len(questions) == 0 {
		return nil
	}
	items := make([]string, len(questions))
	for i, q := range questions {
		items[i] = fmt.Sprintf("%d. %s", i+1, utils.Truncate(q, a.config.QuestionChars))
	}
	return []Section{{
		Name:        SectionQuestions,
		Priority:    PriorityRecent,
		Items:       items,
		Truncatable: true,
		KeepTail:    true,
	}}
}

// longSections builds the long-tier context: a one-line summary, similarity
// hits, and the discussed topics. Topics appear only when hits exist; a
// topic list without supporting context reads as noise.
func (a *Assembler) longSections(ctx context.Context, query, conversationID string, msgs []models.Message) []Section {
	var sections []Section

	topicList := a.topics.Extract(recentText(msgs, 5))
	if len(topicList) > 3 {
		topicList = topicList[:3]
	}

	if summary := summarize(len(msgs), topicList); summary != "" {
		sections = append(sections, Section{
			Name:     SectionSummary,
			Priority: PrioritySummary,
			Items:    []string{"• " + summary},
			Minimal:  fmt.Sprintf("• Total messages: %d", len(msgs)),
		})
	}

	hits := a.searcher.Search(ctx, query, conversationID, a.config.LongK, -1)
	if len(hits) > 0 {
		sections = append(sections, a.relevantSection(hits))

		if len(topicList) > 0 {
			items := make([]string, len(topicList))
			for i, t := range topicList {
				items[i] = "• " + t
			}
			sections = append(sections, Section{
				Name:        SectionTopics,
				Priority:    PriorityTopics,
				Items:       items,
				Truncatable: true,
			})
		}
	}

	return sections
}

// relevantSection renders similarity hits best-first. Truncation sheds the
// lowest-scoring entries.
func (a *Assembler) relevantSection(hits []models.ScoredMessage) Section {
	items := make([]string, len(hits))
	for i, h := range hits {
		items[i] = "• " + roleLabel(h.Role) + ": " + utils.Truncate(h.ContentPreview, a.config.SnippetChars)
	}
	return Section{
		Name:        SectionRelevant,
		Priority:    PriorityRelevant,
		Items:       items,
		Truncatable: true,
	}
}

// summarize produces the one-line conversation summary. Conversations under
// three messages have nothing worth summarizing.
func summarize(messageCount int, topicList []string) string {
	if messageCount < 3 {
		return ""
	}
	if len(topicList) == 0 {
		return fmt.Sprintf("Conversation with %d messages", messageCount)
	}
	return fmt.Sprintf("Discussed: %s. Total messages: %d", strings.Join(topicList, ", "), messageCount)
}

// lastUserQuestions returns the content of the last n user messages, oldest
// first.
func lastUserQuestions(msgs []models.Message, n int) []string {
	var questions []string
	for _, m := range msgs {
		if m.Role == models.RoleUser {
			questions = append(questions, m.Content)
		}
	}
	if len(questions) > n {
		questions = questions[len(questions)-n:]
	}
	return questions
}

// recentText joins the content of the last n messages for topic extraction.
func recentText(msgs []models.Message, n int) string {
	start := len(msgs) - n
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for i, m := range msgs[start:] {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

func roleLabel(role models.Role) string {
	if role == models.RoleUser {
		return "User"
	}
	return "Assistant"
}
