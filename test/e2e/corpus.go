// Package e2e provides end-to-end tests with a multi-conversation corpus and
// query test cases.
package e2e

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/bunmyaku/internal/models"
)

// E2EConversation is one conversation in the E2E corpus: an ID, the topic it
// covers, and the message turns in order.
type E2EConversation struct {
	ID       string
	Topic    string
	Messages []models.Message
}

// QueryTestCase defines a query and the conversation ID(s) that must appear in
// search results. At least one of ExpectedConversationIDs must be present.
type QueryTestCase struct {
	Query                   string
	ExpectedConversationIDs []string
	Description             string
}

// Corpus holds conversations and query test cases for E2E tests.
type Corpus struct {
	Conversations      []E2EConversation
	TestCases          []QueryTestCase
	TotalConversations int
	TotalMessages      int
	TotalQueries       int
}

// BuildCorpus returns a corpus of conversations with varied topics and a set
// of query test cases. Each conversation repeats a unique signature phrase
// across its turns so queries can assert the right conversation surfaces.
func BuildCorpus() *Corpus {
	convs := buildConversations()
	cases := buildQueryTestCases(convs)
	total := 0
	for _, c := range convs {
		total += len(c.Messages)
	}
	return &Corpus{
		Conversations:      convs,
		TestCases:          cases,
		TotalConversations: len(convs),
		TotalMessages:      total,
		TotalQueries:       len(cases),
	}
}

func buildConversations() []E2EConversation {
	topics := []struct {
		topic  string
		phrase string
		turns  []string
	}{
		{"Go concurrency", "goroutine channels concurrency", []string{
			"How do goroutine channels concurrency primitives fit together in Go?",
			"Goroutines are lightweight threads managed by the runtime. Goroutine channels concurrency lets them exchange values without explicit locks.",
			"When would I pick a buffered channel?",
			"A buffered channel absorbs bursts so the sender does not block until the buffer fills.",
		}},
		{"Kubernetes scheduling", "Kubernetes pod scheduling", []string{
			"Why is Kubernetes pod scheduling placing everything on one node?",
			"Kubernetes pod scheduling weighs resource requests, taints, and affinity rules when it ranks nodes.",
			"Can I force pods to spread across zones?",
			"Topology spread constraints tell the scheduler to balance replicas across zones.",
		}},
		{"PostgreSQL planning", "PostgreSQL query planner", []string{
			"The PostgreSQL query planner keeps choosing a sequential scan, why?",
			"The PostgreSQL query planner compares estimated costs; stale statistics or a small table make a scan cheaper than the index.",
			"How do I refresh those statistics?",
			"Run ANALYZE on the table so the row estimates reflect current data.",
		}},
		{"React state", "React state management", []string{
			"What are my options for React state management in a large app?",
			"React state management ranges from useState and context to external stores like Redux or Zustand.",
			"Is context enough on its own?",
			"Context works for low-frequency updates but re-renders every consumer on change.",
		}},
		{"Docker layers", "Docker image layers", []string{
			"Why did my build stop sharing Docker image layers between stages?",
			"Docker image layers are cached by instruction and checksum; reordering COPY before dependency install invalidates the cache.",
			"So dependencies should be copied first?",
			"Copy the manifest, install, then copy the rest so the expensive layer survives edits.",
		}},
		{"Python environments", "Python virtual environments", []string{
			"How do Python virtual environments keep projects isolated?",
			"Python virtual environments give each project its own interpreter symlink and site-packages directory.",
			"Does that cover different interpreter versions too?",
			"No, the venv pins one interpreter; use pyenv or uv to switch versions.",
		}},
		{"Rust ownership", "Rust borrow checker", []string{
			"The Rust borrow checker rejects my code even though it looks safe.",
			"The Rust borrow checker reasons about lifetimes conservatively; a reference held across a mutation is refused even when you never dereference it.",
			"What is the usual fix?",
			"Shorten the borrow by cloning, scoping the reference, or restructuring with split_at_mut.",
		}},
		{"Redis eviction", "Redis cache eviction", []string{
			"Which Redis cache eviction policy suits a session store?",
			"Redis cache eviction offers LRU, LFU, and TTL-based policies; volatile-lru evicts only keys that carry expirations.",
			"And if nothing has a TTL?",
			"Then volatile policies evict nothing and writes fail at maxmemory; allkeys-lru is the safer default.",
		}},
		{"Kafka consumption", "Kafka consumer groups", []string{
			"How do Kafka consumer groups divide work?",
			"Kafka consumer groups assign each partition to exactly one member, so parallelism is capped by partition count.",
			"What happens when a member dies?",
			"The group rebalances and its partitions are handed to the survivors.",
		}},
		{"TLS rotation", "TLS certificate rotation", []string{
			"How should TLS certificate rotation work without dropping connections?",
			"TLS certificate rotation swaps the cert atomically; existing sessions keep their negotiated keys while new handshakes see the new chain.",
			"Do I need to restart the server?",
			"No, load the keypair through GetCertificate so each handshake reads the current file.",
		}},
		{"OAuth refresh", "OAuth token refresh", []string{
			"When should the client trigger an OAuth token refresh?",
			"OAuth token refresh should happen shortly before expiry; refreshing on 401 responses races concurrent requests.",
			"Is the refresh token single use?",
			"Many providers rotate it on every exchange, so persist the new one immediately.",
		}},
		{"SQLite journaling", "SQLite write-ahead logging", []string{
			"What does SQLite write-ahead logging change about concurrency?",
			"SQLite write-ahead logging lets readers proceed during a write because pages are appended to the WAL instead of overwritten.",
			"Does the WAL file grow forever?",
			"Checkpoints fold it back into the main database once readers move past the frames.",
		}},
		{"gRPC streams", "gRPC streaming calls", []string{
			"How do gRPC streaming calls differ from unary ones?",
			"gRPC streaming calls keep one HTTP/2 stream open so either side can send a sequence of messages.",
			"How do I end the stream cleanly?",
			"The client calls CloseSend and the server returns from the handler.",
		}},
		{"Terraform locking", "Terraform state locking", []string{
			"Why does Terraform state locking matter for a team?",
			"Terraform state locking prevents two applies from mutating the same state; the backend holds a lock for the duration.",
			"What if a lock is left behind after a crash?",
			"force-unlock releases it once you confirm no apply is still running.",
		}},
		{"Prometheus scraping", "Prometheus scrape interval", []string{
			"How do I choose a Prometheus scrape interval?",
			"The Prometheus scrape interval bounds how fresh samples are; rate windows should span at least four intervals.",
			"So a 15s interval needs a one minute rate window?",
			"Yes, shorter windows risk gaps when a scrape is missed.",
		}},
		{"Elasticsearch internals", "Elasticsearch inverted index", []string{
			"What makes the Elasticsearch inverted index fast for text?",
			"The Elasticsearch inverted index maps each term to the documents containing it, so a query touches only matching postings.",
			"Where do analyzers fit in?",
			"Analyzers normalize text into the terms that get posted at index and query time.",
		}},
		{"WebSocket upgrades", "WebSocket connection upgrade", []string{
			"What happens during a WebSocket connection upgrade?",
			"A WebSocket connection upgrade starts as an HTTP GET with Upgrade headers and switches the socket to framed messages on 101.",
			"Can a proxy break that?",
			"Proxies that strip hop-by-hop headers or buffer bodies will kill the upgrade.",
		}},
		{"JWT verification", "JWT signature verification", []string{
			"Where should JWT signature verification happen?",
			"JWT signature verification belongs at the edge before any claim is trusted; check the algorithm against an allowlist.",
			"Why pin the algorithm?",
			"Tokens that declare alg none or swap RS256 for HS256 bypass naive verifiers.",
		}},
		{"Nginx proxying", "Nginx reverse proxy", []string{
			"How do I make Nginx reverse proxy traffic to two upstreams?",
			"An Nginx reverse proxy names the upstreams in an upstream block and proxy_pass balances across them.",
			"How does it handle a dead upstream?",
			"Failed peers are marked down for fail_timeout and requests retry on the next one.",
		}},
		{"Git history", "git rebase conflicts", []string{
			"I keep hitting git rebase conflicts on the same files.",
			"git rebase conflicts repeat because each commit replays independently; rerere records resolutions and reapplies them.",
			"How do I turn that on?",
			"Set rerere.enabled true and the next rebase reuses your recorded resolutions.",
		}},
		{"systemd ordering", "systemd unit dependencies", []string{
			"How do systemd unit dependencies control start order?",
			"systemd unit dependencies split into requirements like Requires and ordering like After; one without the other surprises people.",
			"So Requires alone does not order them?",
			"Correct, add After to the same unit or both may start in parallel.",
		}},
		{"DNS propagation", "DNS record propagation", []string{
			"Why is DNS record propagation taking hours for my change?",
			"DNS record propagation is bounded by the old record TTL; resolvers serve the cached answer until it expires.",
			"Can I speed up the next migration?",
			"Lower the TTL well before the change, then raise it after traffic settles.",
		}},
		{"Regex performance", "regular expression backtracking", []string{
			"What causes catastrophic regular expression backtracking?",
			"Regular expression backtracking explodes when nested quantifiers offer many ways to split the same input, like (a+)+ against a long run of a's.",
			"How does RE2 avoid that?",
			"RE2 compiles to an automaton with linear scanning and no backtracking at all.",
		}},
		{"Tree structures", "binary search tree balance", []string{
			"Why does binary search tree balance matter?",
			"Binary search tree balance keeps lookups logarithmic; inserting sorted input into a plain BST degrades it to a linked list.",
			"Which variants rebalance themselves?",
			"AVL and red-black trees rotate on insert to bound the height.",
		}},
	}

	out := make([]E2EConversation, 0, len(topics))
	for i, tp := range topics {
		id := fmt.Sprintf("e2e-conv-%03d", i+1)
		msgs := make([]models.Message, 0, len(tp.turns))
		for j, turn := range tp.turns {
			role := models.RoleUser
			if j%2 == 1 {
				role = models.RoleAssistant
			}
			msgs = append(msgs, models.Message{Role: role, Content: turn})
		}
		out = append(out, E2EConversation{ID: id, Topic: tp.topic, Messages: msgs})
	}
	return out
}

func buildQueryTestCases(convs []E2EConversation) []QueryTestCase {
	if len(convs) == 0 {
		return nil
	}
	// Each query repeats the signature words of exactly one conversation.
	// Shortened variants keep at least two distinctive words so the mock
	// embedder still scores the right conversation well clear of the rest.
	phrases := []string{
		"goroutine channels concurrency",
		"Kubernetes pod scheduling",
		"PostgreSQL query planner",
		"React state management",
		"Docker image layers",
		"Python virtual environments",
		"Rust borrow checker",
		"Redis cache eviction",
		"Kafka consumer groups",
		"TLS certificate rotation",
		"SQLite write-ahead logging",
		"gRPC streaming calls",
		"Terraform state locking",
		"Elasticsearch inverted index",
		"JWT signature verification",
		"Nginx reverse proxy",
		"git rebase conflicts",
		"regular expression backtracking",
		"binary search tree",
		"systemd unit dependencies",
	}
	var cases []QueryTestCase
	used := make(map[string]bool)
	for _, p := range phrases {
		for _, c := range convs {
			if containsPhrase(c, p) && !used[c.ID] {
				cases = append(cases, QueryTestCase{
					Query:                   p,
					ExpectedConversationIDs: []string{c.ID},
					Description:             fmt.Sprintf("query %q should surface conversation %s", p, c.ID),
				})
				used[c.ID] = true
				break
			}
		}
	}
	return cases
}

func containsPhrase(c E2EConversation, phrase string) bool {
	for _, m := range c.Messages {
		if strings.Contains(m.Content, phrase) {
			return true
		}
	}
	return false
}

// transcriptLine mirrors the JSONL shape the ingest package parses.
type transcriptLine struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// TranscriptJSONL serializes the conversation as a JSONL transcript, one
// message per line with the conversation ID on every line and timestamps one
// minute apart.
func (c *E2EConversation) TranscriptJSONL() ([]byte, error) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var buf strings.Builder
	for i, m := range c.Messages {
		line, err := json.Marshal(transcriptLine{
			ConversationID: c.ID,
			Role:           string(m.Role),
			Content:        m.Content,
			Timestamp:      base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return []byte(buf.String()), nil
}
