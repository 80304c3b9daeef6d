package storage

import (
	"context"
	"errors"
	"fmt"

	"docchat/internal/models"

	"github.com/jackc/pgx/v5"
)

type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) CreateSession(ctx context.Context, title string) (models.Session, error) {
	var s models.Session
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO sessions (title) VALUES ($1)
RETURNING session_id::text, title, created_at`, title).Scan(&s.SessionID, &s.Title, &s.CreatedAt)
	if err != nil {
		return models.Session{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	var s models.Session
	err := r.db.Pool.QueryRow(ctx, `SELECT session_id::text, title, created_at FROM sessions WHERE session_id=$1::uuid`, sessionID).
		Scan(&s.SessionID, &s.Title, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListMessages returns the newest limit messages, oldest first. limit <= 0 means all.
func (r *SessionRepo) ListMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT message_id, session_id, role, content, created_at FROM (
  SELECT message_id::text, session_id::text, role, content, created_at
  FROM session_messages
  WHERE session_id=$1::uuid
  ORDER BY created_at DESC
  LIMIT $2
) recent
ORDER BY created_at ASC`, sessionID, lim)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	defer rows.Close()

	out := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.MessageID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session messages: %w", err)
	}
	return out, nil
}

// AppendTurn stores the question and the final answer together.
func (r *SessionRepo) AppendTurn(ctx context.Context, sessionID, question, answer string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx append turn: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, m := range []struct{ role, content string }{
		{models.RoleUser, question},
		{models.RoleAssistant, answer},
	} {
		if _, err := tx.Exec(ctx, `INSERT INTO session_messages (session_id, role, content) VALUES ($1::uuid, $2, $3)`, sessionID, m.role, m.content); err != nil {
			return fmt.Errorf("insert %s message: %w", m.role, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append turn: %w", err)
	}
	return nil
}

func (r *SessionRepo) UpsertSummary(ctx context.Context, sessionID, summary string) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO session_summaries (session_id, summary) VALUES ($1::uuid, $2)
ON CONFLICT (session_id) DO UPDATE SET summary=EXCLUDED.summary, updated_at=NOW()`, sessionID, summary)
	if err != nil {
		return fmt.Errorf("upsert session summary: %w", err)
	}
	return nil
}

// GetSummary returns "" when the session has not been summarized.
func (r *SessionRepo) GetSummary(ctx context.Context, sessionID string) (string, error) {
	var summary string
	err := r.db.Pool.QueryRow(ctx, `SELECT summary FROM session_summaries WHERE session_id=$1::uuid`, sessionID).Scan(&summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get session summary: %w", err)
	}
	return summary, nil
}

// LoadContext gathers the summary and the last turns messages of a session.
func (r *SessionRepo) LoadContext(ctx context.Context, sessionID string, turns int) (models.SessionContext, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return models.SessionContext{}, err
	}
	summary, err := r.GetSummary(ctx, sessionID)
	if err != nil {
		return models.SessionContext{}, err
	}
	out := models.SessionContext{Summary: summary}
	if turns > 0 {
		msgs, err := r.ListMessages(ctx, sessionID, turns*2)
		if err != nil {
			return models.SessionContext{}, err
		}
		out.Turns = msgs
	}
	return out, nil
}
