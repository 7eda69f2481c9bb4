package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/agentx/agentx/internal/extract"
	"github.com/agentx/agentx/internal/ingest"
	"github.com/agentx/agentx/internal/knowledge"
	"github.com/agentx/agentx/internal/log"
)

const (
	// maxUploadBytes bounds one document upload.
	maxUploadBytes = 32 << 20

	defaultDocumentListLimit = 100
)

// Ingestor runs the ingestion pipeline for one uploaded file.
type Ingestor interface {
	Ingest(ctx context.Context, raw []byte, filename string) (*ingest.Result, error)
}

// DocumentLister lists indexed documents.
type DocumentLister interface {
	ListDocuments(ctx context.Context, limit int32) ([]knowledge.Document, error)
}

// DocumentsHandler handles document upload and listing.
type DocumentsHandler struct {
	pipeline Ingestor
	index    DocumentLister
	logger   log.Logger
}

// NewDocumentsHandler creates a documents handler.
func NewDocumentsHandler(pipeline Ingestor, index DocumentLister, logger log.Logger) *DocumentsHandler {
	return &DocumentsHandler{pipeline: pipeline, index: index, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.upload)
	mux.HandleFunc("GET /api/v1/documents", h.list)
}

func (h *DocumentsHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected multipart form with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "file field is required")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read uploaded file")
		return
	}

	result, err := h.pipeline.Ingest(r.Context(), raw, header.Filename)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupported) {
			writeError(w, http.StatusUnsupportedMediaType, "unsupported_format", err.Error())
			return
		}
		var extractErr *extract.Error
		if errors.As(err, &extractErr) {
			writeError(w, http.StatusUnprocessableEntity, "extraction_failed", extractErr.Error())
			return
		}
		h.logger.Error("document ingestion failed",
			"filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to ingest document")
		return
	}

	status := http.StatusCreated
	if result.Status == ingest.StatusDuplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// DocumentResponse is one indexed document in list responses.
type DocumentResponse struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *DocumentsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := int32(defaultDocumentListLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = int32(n)
	}

	docs, err := h.index.ListDocuments(r.Context(), limit)
	if err != nil {
		h.logger.Error("document listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list documents")
		return
	}

	resp := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, DocumentResponse{
			ID:         d.ID,
			Filename:   d.Filename,
			ChunkCount: d.ChunkCount,
			CreatedAt:  d.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": resp})
}
