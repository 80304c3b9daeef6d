package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"docchat/internal/models"
	"docchat/internal/rag"

	"github.com/google/uuid"
)

const defaultFlashcards = 8

type chatRequest struct {
	Question  string   `json:"question"`
	Mode      string   `json:"mode"`
	TopK      *int     `json:"top_k"`
	MinScore  *float64 `json:"min_score"`
	DocID     string   `json:"doc_id"`
	SessionID string   `json:"session_id"`
}

type retrieveHit struct {
	ChunkID    string  `json:"chunk_id"`
	Score      float64 `json:"score"`
	DocID      string  `json:"doc_id"`
	DocName    string  `json:"doc_name"`
	PageNumber int     `json:"page_number"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %s", rag.ErrInvalidInput, err.Error())
	}
	return nil
}

// checkDocID accepts "", "all" or a document uuid.
func checkDocID(docID string) error {
	docID = strings.TrimSpace(docID)
	if docID == "" || strings.EqualFold(docID, "all") {
		return nil
	}
	if _, err := uuid.Parse(docID); err != nil {
		return fmt.Errorf("%w: doc_id must be a document id or \"all\"", rag.ErrInvalidInput)
	}
	return nil
}

func checkSessionID(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return fmt.Errorf("%w: session_id must be a uuid", rag.ErrInvalidInput)
	}
	return nil
}

func (s *Server) retrievalDefaults(topK *int, minScore *float64) (int, float64) {
	k, m := s.cfg.DefaultTopK, s.cfg.DefaultMinScore
	if topK != nil {
		k = *topK
	}
	if minScore != nil {
		m = *minScore
	}
	return k, m
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := checkDocID(req.DocID); err != nil {
		s.fail(w, r, err)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if err := checkSessionID(req.SessionID); err != nil {
		s.fail(w, r, err)
		return
	}
	topK, minScore := s.retrievalDefaults(req.TopK, req.MinScore)
	resp, err := s.assistant.Chat(r.Context(), rag.ChatRequest{
		Question:  req.Question,
		Mode:      req.Mode,
		TopK:      topK,
		MinScore:  minScore,
		DocID:     strings.TrimSpace(req.DocID),
		SessionID: req.SessionID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := checkDocID(req.DocID); err != nil {
		s.fail(w, r, err)
		return
	}
	topK, minScore := s.retrievalDefaults(req.TopK, req.MinScore)
	res, err := s.assistant.Retrieve(r.Context(), rag.RetrieveRequest{
		Question: req.Question,
		DocID:    strings.TrimSpace(req.DocID),
		TopK:     topK,
		MinScore: minScore,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question":  req.Question,
		"top_k":     topK,
		"min_score": minScore,
		"results":   toHits(res.Chunks),
	})
}

func toHits(chunks []models.RetrievedChunk) []retrieveHit {
	out := make([]retrieveHit, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, retrieveHit{
			ChunkID:    c.ChunkID,
			Score:      c.Score,
			DocID:      c.DocID,
			DocName:    c.DocName,
			PageNumber: c.PageNumber,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
		})
	}
	return out
}

func (s *Server) handleBrief(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		DocID    string `json:"doc_id"`
		Question string `json:"question"`
		Mode     string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := checkDocID(req.DocID); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		req.Question = rag.DefaultBriefQuestion
	}
	res, err := s.assistant.Brief(r.Context(), rag.BriefRequest{DocID: strings.TrimSpace(req.DocID), Question: req.Question, Mode: req.Mode})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res.Citations == nil {
		res.Citations = []models.Citation{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFlashcards(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		DocID string `json:"doc_id"`
		Count *int   `json:"count"`
		Mode  string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := checkDocID(req.DocID); err != nil {
		s.fail(w, r, err)
		return
	}
	count := defaultFlashcards
	if req.Count != nil {
		count = *req.Count
	}
	res, err := s.assistant.Flashcards(r.Context(), rag.FlashcardsRequest{DocID: strings.TrimSpace(req.DocID), Count: count, Mode: req.Mode})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res.Cards == nil {
		res.Cards = []models.Flashcard{}
	}
	writeJSON(w, http.StatusOK, res)
}
