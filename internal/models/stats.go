package models

// SearchAnalytics is a read-only snapshot of the process-lifetime search counters.
type SearchAnalytics struct {
	TotalSearches      int64   `json:"total_searches"`
	SuccessfulSearches int64   `json:"successful_searches"`
	TotalResults       int64   `json:"total_results"`
	SuccessRate        float64 `json:"success_rate"`
	AvgResults         float64 `json:"avg_results"`
}

// StoreStats is the engine-level stats snapshot.
type StoreStats struct {
	TotalVectors      int             `json:"total_vectors"`
	Dimensions        int             `json:"dimensions"`
	ConversationCount int             `json:"conversation_count"`
	Analytics         SearchAnalytics `json:"search_analytics"`
}
