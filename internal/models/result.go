package models

// ScoredMessage is a single similarity hit. Scores are inner products over
// normalized vectors (0-1) and are comparable within one index only.
type ScoredMessage struct {
	Score float64 `json:"score"`
	EmbeddingRecord
}

// SearchRequest is a similarity search call over the HTTP API.
// A nil MinScore means "use the configured default"; 0 is a valid explicit value.
type SearchRequest struct {
	Query          string   `json:"query"`
	ConversationID string   `json:"conversation_id,omitempty"`
	K              int      `json:"k,omitempty"`
	MinScore       *float64 `json:"min_score,omitempty"`
	Expand         bool     `json:"expand,omitempty"`
}

// SearchResponse is the response for a search request. AutoExpanded is set by
// the CLI when an empty result was retried with query expansion.
type SearchResponse struct {
	Results      []ScoredMessage `json:"results"`
	Count        int             `json:"count"`
	QueryTime    int64           `json:"query_time_ms"`
	Query        string          `json:"query"`
	AutoExpanded bool            `json:"auto_expanded,omitempty"`
}

// ContextRequest is a context assembly call over the HTTP API.
type ContextRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
	MaxTokens      int    `json:"max_tokens,omitempty"`
}

// ContextResponse carries the assembled context and its measured token count.
type ContextResponse struct {
	Context   string `json:"context"`
	Tokens    int    `json:"tokens"`
	QueryTime int64  `json:"query_time_ms"`
}
