package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings PostgreSQL and, when configured, Redis
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  StatusResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true
	for name, p := range map[string]Pinger{"postgres": s.db, "redis": s.redisClient} {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			checks[name] = "unavailable"
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, StatusResponse{Status: "unavailable", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ready", Checks: checks})
}

// handleVersion godoc
// @Summary      Get API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// Pipeline endpoints

// handleIndexRun godoc
// @Summary      Run one listing page
// @Description  Lists the next Drive page for the caller and records file refs
// @Tags         Pipeline
// @Produce      json
// @Success      200  {object}  domain.IndexResult
// @Failure      409  {object}  ErrorResponse  "Drive not connected"
// @Failure      502  {object}  ErrorResponse  "Drive API error"
// @Router       /api/v1/index/run [post]
func (s *Server) handleIndexRun(w http.ResponseWriter, r *http.Request) {
	if s.services.Indexer == nil {
		writeFeatureDisabled(w, r, FeatureDriveIndexing)
		return
	}
	result, err := s.services.Indexer.Run(r.Context(), ownerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleIngestRun godoc
// @Summary      Ingest pending files
// @Tags         Pipeline
// @Produce      json
// @Success      200  {object}  domain.IngestResult
// @Router       /api/v1/ingest/run [post]
func (s *Server) handleIngestRun(w http.ResponseWriter, r *http.Request) {
	if s.services.Ingestion == nil {
		writeFeatureDisabled(w, r, FeatureDriveIndexing)
		return
	}
	result, err := s.services.Ingestion.Run(r.Context(), ownerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleEmbedRun godoc
// @Summary      Embed missing chunks
// @Tags         Pipeline
// @Accept       json
// @Produce      json
// @Param        request  body      domain.EmbedOptions  false  "Optional file and chunk cap"
// @Success      200      {object}  domain.EmbedResult
// @Failure      429      {object}  ErrorResponse  "Embedding quota exhausted"
// @Router       /api/v1/embed/run [post]
func (s *Server) handleEmbedRun(w http.ResponseWriter, r *http.Request) {
	if s.services.Embedding == nil {
		writeFeatureDisabled(w, r, FeatureEmbeddings)
		return
	}

	var opts domain.EmbedOptions
	if err := decodeOptionalJSON(r, &opts); err != nil {
		s.writeError(w, r, err)
		return
	}
	if opts.MaxChunks < 0 {
		s.writeError(w, r, fmt.Errorf("%w: maxChunks must not be negative", domain.ErrInvalidInput))
		return
	}

	result, err := s.services.Embedding.Run(r.Context(), ownerID(r), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEmbedPrune(w http.ResponseWriter, r *http.Request) {
	if s.services.Embedding == nil {
		writeFeatureDisabled(w, r, FeatureEmbeddings)
		return
	}
	result, err := s.services.Embedding.PruneSuperseded(r.Context(), ownerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePipelineEnqueue godoc
// @Summary      Schedule a background run
// @Tags         Pipeline
// @Produce      json
// @Success      202  {object}  domain.Task
// @Failure      409  {object}  ErrorResponse  "A run is already pending"
// @Router       /api/v1/pipeline/enqueue [post]
func (s *Server) handlePipelineEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.services.Pipeline == nil {
		writeFeatureDisabled(w, r, FeatureDriveIndexing)
		return
	}
	task, err := s.services.Pipeline.Enqueue(r.Context(), ownerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// Search endpoints

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Query   string              `json:"query"`
	Results []*domain.SearchHit `json:"results"`
}

// handleSearch godoc
// @Summary      Semantic search
// @Description  Ranks the caller's indexed chunks against a free-text query
// @Tags         Search
// @Accept       json
// @Produce      json
// @Param        request  body      searchRequest  true  "Search query"
// @Success      200      {object}  searchResponse
// @Failure      400      {object}  ErrorResponse  "Missing query"
// @Failure      429      {object}  ErrorResponse  "Search quota exhausted"
// @Router       /api/v1/search [post]
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.services.Search == nil {
		writeFeatureDisabled(w, r, FeatureEmbeddings)
		return
	}

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	hits, err := s.services.Search.Search(r.Context(), ownerID(r), req.Query, req.Limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if hits == nil {
		hits = []*domain.SearchHit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: strings.TrimSpace(req.Query), Results: hits})
}

// File endpoints

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.services.Files.List(r.Context(), ownerID(r), domain.FileListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRequeueFile(w http.ResponseWriter, r *http.Request) {
	if s.services.Ingestion == nil {
		writeFeatureDisabled(w, r, FeatureDriveIndexing)
		return
	}
	ref, err := s.services.Ingestion.Requeue(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (s *Server) handleDriveStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.services.Files.DriveStatus(r.Context(), ownerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleUsage godoc
// @Summary      Quota snapshot
// @Description  Today's usage, limits and remaining headroom (UTC day)
// @Tags         Usage
// @Produce      json
// @Success      200  {object}  domain.QuotaSnapshot
// @Router       /api/v1/usage [get]
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.services.Usage.Snapshot(r.Context(), ownerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// Chat endpoints

type postMessageRequest struct {
	Content string `json:"content"`
	Limit   int    `json:"limit,omitempty"`
}

type threadsResponse struct {
	Threads []*domain.ChatThread `json:"threads"`
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	thread, err := s.services.Chat.CreateThread(r.Context(), ownerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.services.Chat.ListThreads(r.Context(), ownerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if threads == nil {
		threads = []*domain.ChatThread{}
	}
	writeJSON(w, http.StatusOK, threadsResponse{Threads: threads})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := domain.MessageListOptions{Limit: limit}
	if raw := r.URL.Query().Get("before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: before must be an RFC 3339 timestamp", domain.ErrInvalidInput))
			return
		}
		opts.Before = &before
	}

	thread, err := s.services.Chat.GetThread(r.Context(), ownerID(r), r.PathValue("id"), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// handlePostMessage godoc
// @Summary      Ask a question in a thread
// @Description  Stores the message, retrieves context and stores the grounded reply
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Param        id       path      string              true  "Thread ID"
// @Param        request  body      postMessageRequest  true  "Message"
// @Success      200      {object}  domain.Answer
// @Failure      404      {object}  ErrorResponse  "Thread not found"
// @Failure      429      {object}  ErrorResponse  "Chat quota exhausted"
// @Router       /api/v1/chat/threads/{id}/messages [post]
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	answer, err := s.services.Chat.PostMessage(r.Context(), ownerID(r), r.PathValue("id"), req.Content, req.Limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// Helpers

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	return nil
}

// decodeOptionalJSON accepts an empty body
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	return nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, name)
	}
	return n, nil
}
