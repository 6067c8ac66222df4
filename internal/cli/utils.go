// Package cli provides output formatting for the bunmyaku command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact is one line per hit, for piping into other tools.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		writeSearchResultsCompact(w, response)
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms for %q\n\n",
		response.Count, response.QueryTime, response.Query)
	for i, result := range response.Results {
		writeOneResult(w, i+1, result)
	}
}

func writeOneResult(w io.Writer, rank int, result models.ScoredMessage) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f | Role: %s\n", rank, result.Score, result.Role)
	fmt.Fprintf(w, "Conversation: %s | Message: %s\n", result.ConversationID, result.MessageID)
	if !result.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created: %s\n", result.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "\n%s\n", utils.Truncate(result.ContentPreview, 200))
	fmt.Fprintln(w)
}

func writeSearchResultsCompact(w io.Writer, response *models.SearchResponse) {
	for _, result := range response.Results {
		fmt.Fprintf(w, "%.4f\t%s\t%s\t%s\n",
			result.Score, result.ConversationID, result.MessageID,
			utils.Truncate(result.ContentPreview, 80))
	}
}

// PrintSearchResults prints search results to stdout in text format (backward compatible).
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// WriteContextResult writes an assembled context to w. Text format prints the
// context block followed by a token summary line; JSON encodes the full response.
func WriteContextResult(w io.Writer, response *models.ContextResponse, format SearchOutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	}
	if response.Context == "" {
		fmt.Fprintf(w, "No context available (%dms)\n", response.QueryTime)
		return nil
	}
	fmt.Fprintln(w, response.Context)
	fmt.Fprintf(w, "\n# %d tokens in %dms\n", response.Tokens, response.QueryTime)
	return nil
}
