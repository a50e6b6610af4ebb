package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dreamland/sherlock/internal/normalize"
)

const (
	// MaxNormalizeChars caps the raw text accepted for LLM chunking.
	MaxNormalizeChars = 50000

	// MaxUploadBytes caps uploaded spreadsheet size.
	MaxUploadBytes = 10 << 20 // 10 MiB
)

// Normalizer turns raw text into knowledge-base chunks. Satisfied by
// *normalize.Normalizer.
type Normalizer interface {
	Normalize(ctx context.Context, text string) ([]normalize.Chunk, error)
}

// NormalizeHandler serves the document ingestion endpoints.
type NormalizeHandler struct {
	normalizer Normalizer
	logger     *slog.Logger
}

// NewNormalizeHandler creates a normalize handler.
func NewNormalizeHandler(normalizer Normalizer, logger *slog.Logger) *NormalizeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NormalizeHandler{normalizer: normalizer, logger: logger}
}

// RegisterRoutes registers ingestion routes on the given mux.
func (h *NormalizeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/kb/normalize", h.normalize)
	mux.HandleFunc("POST /api/kb/parse-file", h.parseFile)
}

// NormalizeRequest is the request body for POST /api/kb/normalize.
type NormalizeRequest struct {
	Text      string `json:"text"`
	Anonymize bool   `json:"anonymize,omitempty"`
}

func (h *NormalizeHandler) normalize(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if len(req.Text) > MaxNormalizeChars {
		writeError(w, http.StatusBadRequest, "invalid_request", "text too long")
		return
	}

	text := req.Text
	if req.Anonymize {
		text = normalize.Anonymize(text)
	}

	chunks, err := h.normalizer.Normalize(r.Context(), text)
	if err != nil {
		h.logger.Error("normalize failed", "error", err)
		writeError(w, http.StatusInternalServerError, "normalize_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chunks": chunks,
		"total":  len(chunks),
	})
}

// parseFile handles multipart uploads of .xlsx or .csv files and returns
// their tabular sections. Form fields:
//   - file: the upload (required)
//   - anonymize: "true" redacts personal data in CSV files
//   - anonymizeSheets: comma-separated sheet indices to redact in workbooks
func (h *NormalizeHandler) parseFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	anonymize := r.FormValue("anonymize") == "true"

	var sections []normalize.Section
	switch ext := strings.ToLower(filepath.Ext(header.Filename)); ext {
	case ".xlsx":
		sections, err = normalize.ParseWorkbook(file, parseSheetIndices(r.FormValue("anonymizeSheets")))
	case ".csv":
		name := strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
		sections, err = normalize.ParseCSV(file, name, anonymize)
	default:
		writeError(w, http.StatusBadRequest, "unsupported_format", "only .xlsx and .csv files are supported")
		return
	}
	if err != nil {
		h.logger.Error("failed to parse file", "file", header.Filename, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "parse_failed", "could not parse file")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"fileName": header.Filename,
		"sections": sections,
		"total":    len(sections),
	})
}

// parseSheetIndices parses a comma-separated index list, ignoring junk.
func parseSheetIndices(s string) map[int]bool {
	out := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 {
			continue
		}
		out[idx] = true
	}
	return out
}
