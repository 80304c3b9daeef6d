package storage

import (
	"context"
	"fmt"
)

type LLMCallRecord struct {
	Operation    string
	DocID        string
	SessionID    string
	Mode         string
	ProviderName string
	Model        string
	Status       string
	ErrorType    string
	Abstained    bool
	LatencyMs    int64
}

type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec LLMCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(operation, doc_id, session_id, mode, provider_name, model, status, error_type, abstained, latency_ms)
VALUES ($1, NULLIF($2,'')::uuid, NULLIF($3,'')::uuid, NULLIF($4,''), $5, $6, $7, NULLIF($8,''), $9, $10)`,
		rec.Operation, rec.DocID, rec.SessionID, rec.Mode, rec.ProviderName, rec.Model, rec.Status, rec.ErrorType, rec.Abstained, rec.LatencyMs)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}
