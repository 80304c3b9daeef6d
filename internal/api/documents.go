package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"docchat/internal/models"
	"docchat/internal/rag"

	"github.com/google/uuid"
)

const (
	maxUploadBytes    = 64 << 20
	defaultChunkLimit = 50
	maxChunkLimit     = 500
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no file provided"))
		return
	}
	defer file.Close()

	res, err := s.ingestor.Submit(r.Context(), header.Filename, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusAccepted
	if res.Deduped {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"doc_id":      res.Document.DocID,
		"doc_name":    res.Document.DocName,
		"status":      res.Document.Status,
		"deduped":     res.Deduped,
		"workflow_id": res.WorkflowID,
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	docs, err := s.docs.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	parts := scopedParts(r.URL.Path, "/documents/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	docID := parts[0]
	if _, err := uuid.Parse(docID); err != nil {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		doc, err := s.docs.Get(r.Context(), docID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.deleteDocument(w, r, docID)
	case len(parts) == 1:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	case len(parts) == 2 && parts[1] == "chunks":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		s.listChunks(w, r, docID)
	case len(parts) == 2 && parts[1] == "progress":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		s.documentProgress(w, r, docID)
	default:
		writeErr(w, http.StatusNotFound, errNotFound)
	}
}

func (s *Server) listChunks(w http.ResponseWriter, r *http.Request, docID string) {
	limit := defaultChunkLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxChunkLimit {
			s.fail(w, r, fmt.Errorf("%w: limit must be between 1 and %d", rag.ErrInvalidInput, maxChunkLimit))
			return
		}
		limit = n
	}
	var page *int
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.fail(w, r, fmt.Errorf("%w: page must be a positive integer", rag.ErrInvalidInput))
			return
		}
		page = &n
	}
	if _, err := s.docs.Get(r.Context(), docID); err != nil {
		s.fail(w, r, err)
		return
	}
	chunks, err := s.chunks.ListByDocument(r.Context(), docID, page, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if chunks == nil {
		chunks = []models.Chunk{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"doc_id": docID, "chunks": chunks})
}

// deleteDocument removes index entries before the rows so a failed index call
// leaves the document intact and retryable.
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request, docID string) {
	doc, err := s.docs.Get(r.Context(), docID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.index.DeleteByDocument(r.Context(), docID); err != nil {
		s.fail(w, r, fmt.Errorf("%w: delete index entries: %s", rag.ErrUpstreamUnavailable, err.Error()))
		return
	}
	if err := s.docs.Delete(r.Context(), docID); err != nil {
		s.fail(w, r, err)
		return
	}
	if doc.Path != "" {
		if err := os.Remove(doc.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("remove document file", "doc_id", docID, "error", err)
		}
	}
	s.log.Info("document deleted", "doc_id", docID, "doc_name", doc.DocName)
	writeJSON(w, http.StatusOK, map[string]any{"doc_id": docID, "deleted": true})
}

// documentProgress asks the running workflow first and falls back to the
// stored document status once the workflow is gone.
func (s *Server) documentProgress(w http.ResponseWriter, r *http.Request, docID string) {
	if prog, err := s.ingestor.Progress(r.Context(), docID); err == nil {
		writeJSON(w, http.StatusOK, prog)
		return
	}
	doc, err := s.docs.Get(r.Context(), docID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	prog := models.IngestProgress{
		DocID:       doc.DocID,
		Stage:       doc.Status,
		Pages:       doc.PageCount,
		ChunksTotal: doc.ChunkCount,
		Status:      doc.Status,
		Error:       doc.FailReason,
	}
	if doc.Status == models.DocumentIndexed {
		prog.ChunksEmbedded = doc.ChunkCount
	}
	writeJSON(w, http.StatusOK, prog)
}
