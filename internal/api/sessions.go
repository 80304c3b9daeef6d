package api

import (
	"net/http"
	"strings"

	"docchat/internal/models"
	"docchat/internal/rag"
)

const sessionHistoryLimit = 200

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New chat"
	}
	sess, err := s.sessions.CreateSession(r.Context(), title)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": sess.SessionID, "title": sess.Title})
}

func (s *Server) handleSessionScoped(w http.ResponseWriter, r *http.Request) {
	parts := scopedParts(r.URL.Path, "/sessions/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	sessionID := parts[0]
	if err := checkSessionID(sessionID); err != nil {
		writeErr(w, http.StatusNotFound, rag.ErrSessionNotFound)
		return
	}

	switch {
	case len(parts) == 1:
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		s.getSession(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "summarize":
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		summary, err := s.assistant.Summarize(r.Context(), sessionID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "summary": summary})
	default:
		writeErr(w, http.StatusNotFound, errNotFound)
	}
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	summary, err := s.sessions.GetSummary(r.Context(), sessionID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	msgs, err := s.sessions.ListMessages(r.Context(), sessionID, sessionHistoryLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  sess,
		"summary":  summary,
		"messages": msgs,
	})
}
