package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/storage"
)

type appendRequest struct {
	Messages []models.Message `json:"messages"`
}

func (s *Server) handleAppendMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		s.respondError(w, http.StatusBadRequest, "messages are required")
		return
	}
	s.logger.Debug("append request",
		zap.String("conversation_id", id),
		zap.Int("messages", len(req.Messages)))
	stored, ok := s.engine.AddMessages(r.Context(), id, req.Messages)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "failed to store or index messages")
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"conversation_id": id,
		"stored":          len(stored),
		"messages":        stored,
	})
}

func (s *Server) handleRemoveConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("remove request", zap.String("conversation_id", id))
	if !s.engine.Remove(r.Context(), id) {
		s.respondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"conversation_id": id,
		"status":          "removed",
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.messages.ListConversations(r.Context())
	if err != nil {
		s.logger.Error("list conversations failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": conversations,
		"count":         len(conversations),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	// Absent min_score selects the configured default; an explicit 0 is a
	// real cutoff and passes through.
	minScore := -1.0
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	s.logger.Debug("search request",
		zap.String("query", req.Query),
		zap.String("conversation_id", req.ConversationID),
		zap.Int("k", req.K),
		zap.Bool("expand", req.Expand))

	start := time.Now()
	var results []models.ScoredMessage
	if req.Expand {
		results = s.engine.SearchExpanded(r.Context(), req.Query, req.ConversationID, req.K, minScore)
	} else {
		results = s.engine.Search(r.Context(), req.Query, req.ConversationID, req.K, minScore)
	}
	if results == nil {
		results = []models.ScoredMessage{}
	}
	s.respondJSON(w, http.StatusOK, models.SearchResponse{
		Results:   results,
		Count:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     req.Query,
	})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req models.ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		s.respondError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}
	// Absent or zero max_tokens selects the configured default budget.
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = -1
	}
	s.logger.Debug("context request",
		zap.String("query", req.Query),
		zap.String("conversation_id", req.ConversationID),
		zap.Int("max_tokens", req.MaxTokens))

	start := time.Now()
	context := s.engine.GenerateContext(r.Context(), req.Query, req.ConversationID, maxTokens)
	s.respondJSON(w, http.StatusOK, models.ContextResponse{
		Context:   context,
		Tokens:    s.counter.Count(context),
		QueryTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.messages.ListConversations(r.Context())
	if err != nil {
		s.logger.Error("status: list conversations failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	messageCount := 0
	for _, c := range conversations {
		messageCount += c.MessageCount
	}
	stats := s.engine.Stats()
	resp := map[string]interface{}{
		"conversations": len(conversations),
		"messages":      messageCount,
		"total_vectors": stats.TotalVectors,
		"index_state":   s.engine.IndexState(),
	}
	resp["config"] = map[string]interface{}{
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"default_k":            s.config.Search.DefaultK,
		"min_score":            s.config.Search.MinScore,
		"default_max_tokens":   s.config.Context.DefaultMaxTokens,
		"database_path":        s.config.Storage.DatabasePath,
		"index_path":           s.config.Storage.IndexPath,
		"metadata_path":        s.config.Storage.MetadataPath,
	}
	if diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.IndexPath,
		s.config.Storage.MetadataPath,
	); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	valid := s.engine.Validate()
	s.respondJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("recover requested over API")
	recovered := s.engine.Recover()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"recovered":     recovered,
		"total_vectors": s.engine.Stats().TotalVectors,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
