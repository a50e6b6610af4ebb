package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dreamland/sherlock/internal/knowledge"
)

// Request validation bounds.
const (
	MaxQuestionLength = 2000
	MaxSearchLimit    = 20
	MaxImportDrafts   = 1000
	MaxSyncEntries    = 5000
	DefaultListLimit  = 100
	MaxListLimit      = 1000
	MaxListOffset     = 100000
)

// KnowledgeService is the surface of the knowledge pipeline consumed by
// the HTTP handlers.
type KnowledgeService interface {
	Search(ctx context.Context, question string, opts knowledge.SearchOptions) ([]knowledge.SearchResult, error)
	CreateEntry(ctx context.Context, e *knowledge.Entry) error
	UpdateEntry(ctx context.Context, e *knowledge.Entry) error
	ToggleEntry(ctx context.Context, id string, active bool) error
	DeleteEntry(ctx context.Context, id string) error
	GetEntry(ctx context.Context, id string) (knowledge.Entry, error)
	ListEntries(ctx context.Context, opts knowledge.ListOptions) ([]knowledge.Entry, error)
	Categories(ctx context.Context) ([]knowledge.Category, error)
	Import(ctx context.Context, drafts []knowledge.Draft) (knowledge.ImportReport, error)
	Sync(ctx context.Context, source string, feed []knowledge.SyncEntry, opts knowledge.SyncOptions) (knowledge.SyncReport, error)
	Reembed(ctx context.Context, source string) (int, error)
}

// KnowledgeHandler serves the /api/kb endpoints.
type KnowledgeHandler struct {
	svc    KnowledgeService
	logger *slog.Logger
}

// NewKnowledgeHandler creates a knowledge handler.
func NewKnowledgeHandler(svc KnowledgeService, logger *slog.Logger) *KnowledgeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &KnowledgeHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers knowledge routes on the given mux.
func (h *KnowledgeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/kb/search", h.search)
	mux.HandleFunc("GET /api/kb/entries", h.list)
	mux.HandleFunc("POST /api/kb/entries", h.create)
	mux.HandleFunc("GET /api/kb/entries/{id}", h.get)
	mux.HandleFunc("PUT /api/kb/entries/{id}", h.update)
	mux.HandleFunc("PATCH /api/kb/entries/{id}/toggle", h.toggle)
	mux.HandleFunc("DELETE /api/kb/entries/{id}", h.delete)
	mux.HandleFunc("GET /api/kb/categories", h.categories)
	mux.HandleFunc("POST /api/kb/import", h.importDrafts)
	mux.HandleFunc("POST /api/kb/sync/{source}", h.sync)
	mux.HandleFunc("POST /api/kb/reembed", h.reembed)
}

// entryResponse is the JSON projection of a knowledge entry.
type entryResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Section     string    `json:"section,omitempty"`
	CategoryID  string    `json:"categoryId,omitempty"`
	Source      string    `json:"source"`
	ExternalKey string    `json:"externalKey,omitempty"`
	Language    string    `json:"language"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toEntryResponse(e knowledge.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		Title:       e.Title,
		Content:     e.Content,
		Section:     e.Section,
		CategoryID:  e.CategoryID,
		Source:      e.Source,
		ExternalKey: e.ExternalKey,
		Language:    e.Language,
		Active:      e.Active,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// SearchRequest is the request body for POST /api/kb/search.
type SearchRequest struct {
	Question   string `json:"question"`
	Limit      int    `json:"limit,omitempty"`
	CategoryID string `json:"categoryId,omitempty"`
	Source     string `json:"source,omitempty"`
	NoExpand   bool   `json:"noExpand,omitempty"`
}

type searchHit struct {
	Entry entryResponse `json:"entry"`
	Score float32       `json:"score"`
}

func (h *KnowledgeHandler) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "question is required")
		return
	}
	if len(req.Question) > MaxQuestionLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "question too long")
		return
	}
	if req.Limit < 0 || req.Limit > MaxSearchLimit {
		writeError(w, http.StatusBadRequest, "invalid_request", "limit out of range")
		return
	}

	results, err := h.svc.Search(r.Context(), req.Question, knowledge.SearchOptions{
		Limit:      req.Limit,
		CategoryID: req.CategoryID,
		Source:     req.Source,
		NoExpand:   req.NoExpand,
	})
	if err != nil {
		h.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search_failed", "")
		return
	}

	hits := make([]searchHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, searchHit{Entry: toEntryResponse(res.Entry), Score: res.Score})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": hits,
		"total":   len(hits),
	})
}

func (h *KnowledgeHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := knowledge.ListOptions{
		Source:     q.Get("source"),
		CategoryID: q.Get("categoryId"),
		ActiveOnly: q.Get("active") == "true",
		Limit:      parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit),
		Offset:     parseIntParam(r, "offset", 0, 0, MaxListOffset),
	}

	entries, err := h.svc.ListEntries(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list entries", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "")
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"total":   len(out),
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// EntryRequest is the request body for creating or updating an entry.
type EntryRequest struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Section    string `json:"section,omitempty"`
	CategoryID string `json:"categoryId,omitempty"`
	Source     string `json:"source,omitempty"`
	Language   string `json:"language,omitempty"`
	Active     *bool  `json:"active,omitempty"`
}

func (h *KnowledgeHandler) create(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	e := knowledge.Entry{
		Title:      req.Title,
		Content:    req.Content,
		Section:    req.Section,
		CategoryID: req.CategoryID,
		Source:     req.Source,
		Language:   req.Language,
		Active:     true,
	}
	if req.Active != nil {
		e.Active = *req.Active
	}

	if err := h.svc.CreateEntry(r.Context(), &e); err != nil {
		h.writeServiceError(w, err, "create entry")
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(e))
}

func (h *KnowledgeHandler) get(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.GetEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, "get entry")
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(e))
}

func (h *KnowledgeHandler) update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	current, err := h.svc.GetEntry(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "get entry")
		return
	}

	current.Title = req.Title
	current.Content = req.Content
	current.Section = req.Section
	current.CategoryID = req.CategoryID
	if req.Language != "" {
		current.Language = req.Language
	}

	if err := h.svc.UpdateEntry(r.Context(), &current); err != nil {
		h.writeServiceError(w, err, "update entry")
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(current))
}

// ToggleRequest is the request body for PATCH .../toggle.
type ToggleRequest struct {
	Active bool `json:"active"`
}

func (h *KnowledgeHandler) toggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := h.svc.ToggleEntry(r.Context(), r.PathValue("id"), req.Active); err != nil {
		h.writeServiceError(w, err, "toggle entry")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": req.Active})
}

func (h *KnowledgeHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteEntry(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err, "delete entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *KnowledgeHandler) categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Categories(r.Context())
	if err != nil {
		h.logger.Error("failed to list categories", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

// ImportRequest is the request body for POST /api/kb/import.
type ImportRequest struct {
	Entries []knowledge.Draft `json:"entries"`
}

func (h *KnowledgeHandler) importDrafts(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if len(req.Entries) > MaxImportDrafts {
		writeError(w, http.StatusBadRequest, "invalid_request", "too many entries")
		return
	}

	report, err := h.svc.Import(r.Context(), req.Entries)
	if err != nil {
		h.logger.Error("import failed", "error", err)
		writeError(w, http.StatusInternalServerError, "import_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// SyncRequest is the request body for POST /api/kb/sync/{source}.
type SyncRequest struct {
	Entries    []knowledge.SyncEntry `json:"entries"`
	AllowEmpty bool                  `json:"allowEmpty,omitempty"`
}

func (h *KnowledgeHandler) sync(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if len(req.Entries) > MaxSyncEntries {
		writeError(w, http.StatusBadRequest, "invalid_request", "too many entries")
		return
	}

	report, err := h.svc.Sync(r.Context(), source, req.Entries, knowledge.SyncOptions{
		AllowEmpty: req.AllowEmpty,
	})
	if err != nil {
		if errors.Is(err, knowledge.ErrEmptyFeed) {
			writeError(w, http.StatusConflict, "empty_feed",
				"feed is empty but the source has entries; set allowEmpty to wipe them")
			return
		}
		h.logger.Error("sync failed", "source", source, "error", err)
		writeError(w, http.StatusInternalServerError, "sync_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ReembedRequest is the request body for POST /api/kb/reembed.
type ReembedRequest struct {
	Source string `json:"source,omitempty"`
}

func (h *KnowledgeHandler) reembed(w http.ResponseWriter, r *http.Request) {
	var req ReembedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	count, err := h.svc.Reembed(r.Context(), req.Source)
	if err != nil {
		h.logger.Error("reembed failed", "source", req.Source, "error", err)
		writeError(w, http.StatusInternalServerError, "reembed_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reembedded": count})
}

// writeServiceError maps knowledge sentinel errors to HTTP status codes.
func (h *KnowledgeHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, knowledge.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "entry not found")
	case errors.Is(err, knowledge.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, "invalid_entry", err.Error())
	case errors.Is(err, knowledge.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate_entry", "an entry with this key already exists")
	default:
		h.logger.Error("knowledge operation failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

// parseIntParam parses an integer query parameter with bounds clamping.
func parseIntParam(r *http.Request, name string, defaultVal, minVal, maxVal int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
