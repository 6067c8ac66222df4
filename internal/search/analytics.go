package search

import (
	"sync/atomic"

	"github.com/hyperjump/bunmyaku/internal/models"
)

// Analytics tracks process-lifetime search counters. Counters only grow;
// there is no reset. Safe for concurrent use.
type Analytics struct {
	totalSearches      atomic.Int64
	successfulSearches atomic.Int64
	totalResults       atomic.Int64
}

// Record counts one search and its result size. A search with at least one
// result counts as successful.
func (a *Analytics) Record(resultCount int) {
	a.totalSearches.Add(1)
	if resultCount > 0 {
		a.successfulSearches.Add(1)
	}
	a.totalResults.Add(int64(resultCount))
}

// Snapshot returns the counters with derived rates. Divisors are clamped to
// one so a fresh collector reports zero rates instead of NaN.
func (a *Analytics) Snapshot() models.SearchAnalytics {
	total := a.totalSearches.Load()
	successful := a.successfulSearches.Load()
	results := a.totalResults.Load()

	divisor := total
	if divisor < 1 {
		divisor = 1
	}
	return models.SearchAnalytics{
		TotalSearches:      total,
		SuccessfulSearches: successful,
		TotalResults:       results,
		SuccessRate:        float64(successful) / float64(divisor),
		AvgResults:         float64(results) / float64(divisor),
	}
}
