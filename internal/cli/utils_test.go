package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/bunmyaku/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "how to write a function",
		QueryTime: 42,
		Count:     2,
		Results: []models.ScoredMessage{
			{
				Score: 0.9123,
				EmbeddingRecord: models.EmbeddingRecord{
					ConversationID: "c1",
					MessageID:      "m-1",
					Role:           models.RoleUser,
					ContentPreview: "What is a function?",
					CreatedAt:      time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
				},
			},
			{
				Score: 0.5,
				EmbeddingRecord: models.EmbeddingRecord{
					ConversationID: "c1",
					MessageID:      "m-2",
					Role:           models.RoleAssistant,
					ContentPreview: "A function is defined using def.",
				},
			},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != "how to write a function" || decoded.QueryTime != 42 {
		t.Errorf("decoded query=%q query_time=%d", decoded.Query, decoded.QueryTime)
	}
	if len(decoded.Results) != 2 || decoded.Results[0].MessageID != "m-1" {
		t.Errorf("decoded results: want two with first id m-1, got %+v", decoded.Results)
	}
}

func TestWriteSearchResults_JSON_empty(t *testing.T) {
	response := &models.SearchResponse{Query: "q", Results: []models.ScoredMessage{}}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("empty response JSON decode: %v", err)
	}
	if decoded.Count != 0 || len(decoded.Results) != 0 {
		t.Errorf("expected empty results, got count=%d results=%+v", decoded.Count, decoded.Results)
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{
		"Found 2 results", "42ms", "Rank: 1", "Score: 0.9123",
		"Conversation: c1", "Message: m-1", "Role: user",
		"2025-06-01T10:00:00Z", "What is a function?",
	} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteSearchResults_text_omitsZeroTimestamp(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "0001-01-01") {
		t.Errorf("zero timestamps should be omitted:\n%s", buf.String())
	}
}

func TestWriteSearchResults_text_truncatesPreview(t *testing.T) {
	response := &models.SearchResponse{
		Query: "q", Count: 1,
		Results: []models.ScoredMessage{
			{
				Score: 0.3,
				EmbeddingRecord: models.EmbeddingRecord{
					ConversationID: "c1",
					MessageID:      "m-1",
					Role:           models.RoleUser,
					ContentPreview: strings.Repeat("a", 500),
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), strings.Repeat("a", 200)+"...") {
		t.Error("long previews should be truncated with ellipsis")
	}
	if strings.Contains(buf.String(), strings.Repeat("a", 201)) {
		t.Error("preview exceeds 200 characters")
	}
}

func TestWriteSearchResults_compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatalf("WriteSearchResults(compact): %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("compact output: want 2 lines, got %d:\n%s", len(lines), buf.String())
	}
	fields := strings.Split(lines[0], "\t")
	if len(fields) != 4 {
		t.Fatalf("compact line: want 4 tab-separated fields, got %d: %q", len(fields), lines[0])
	}
	if fields[0] != "0.9123" || fields[1] != "c1" || fields[2] != "m-1" {
		t.Errorf("compact fields = %v", fields)
	}
}

func TestWriteSearchResults_unknownFormatTreatedAsText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), SearchOutputFormat("unknown")); err != nil {
		t.Fatalf("WriteSearchResults(unknown): %v", err)
	}
	if !strings.Contains(buf.String(), "Found") {
		t.Errorf("unknown format should fall back to text; got %q", buf.String())
	}
}

func TestWriteContextResult_text(t *testing.T) {
	response := &models.ContextResponse{
		Context:   "**Recent Context:**\nuser: hello",
		Tokens:    8,
		QueryTime: 3,
	}
	var buf bytes.Buffer
	if err := WriteContextResult(&buf, response, OutputText); err != nil {
		t.Fatalf("WriteContextResult(text): %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "**Recent Context:**") {
		t.Errorf("context body missing:\n%s", out)
	}
	if !strings.Contains(out, "# 8 tokens in 3ms") {
		t.Errorf("token summary missing:\n%s", out)
	}
}

func TestWriteContextResult_textEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteContextResult(&buf, &models.ContextResponse{QueryTime: 1}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No context available") {
		t.Errorf("empty context output: %q", buf.String())
	}
}

func TestWriteContextResult_JSON(t *testing.T) {
	response := &models.ContextResponse{Context: "body", Tokens: 2, QueryTime: 1}
	var buf bytes.Buffer
	if err := WriteContextResult(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteContextResult(json): %v", err)
	}
	var decoded models.ContextResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Context != "body" || decoded.Tokens != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPrintSearchResults(t *testing.T) {
	response := &models.SearchResponse{Query: "print test", QueryTime: 1}
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() {
		os.Stdout = oldStdout
		_ = w.Close()
	}()
	PrintSearchResults(response)
	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	if !strings.Contains(buf.String(), "Found 0 results") {
		t.Errorf("PrintSearchResults should write to stdout; got %q", buf.String())
	}
}
