package vector

import (
	"context"
	"fmt"
	"strings"

	"docchat/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGIndex keeps embeddings next to their chunk rows in Postgres.
type PGIndex struct {
	q Queryer
}

func NewPGIndex(q Queryer) *PGIndex {
	return &PGIndex{q: q}
}

func (s *PGIndex) Search(ctx context.Context, vec []float32, topK int, f Filter) ([]models.RetrievedChunk, error) {
	if topK <= 0 {
		topK = 6
	}
	query, args := buildSearchQuery(vec, topK, f)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.RetrievedChunk, 0, topK)
	for rows.Next() {
		var r models.RetrievedChunk
		if err := rows.Scan(&r.ChunkID, &r.DocID, &r.DocName, &r.PageNumber, &r.ChunkIndex, &r.Text, &r.StartChar, &r.EndChar, &r.Score); err != nil {
			return nil, fmt.Errorf("scan chunk result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

func buildSearchQuery(vec []float32, topK int, f Filter) (string, []any) {
	args := []any{pgvector.NewVector(vec), topK}
	filterSQL := ""
	if docID := strings.TrimSpace(f.DocID); docID != "" {
		filterSQL = " AND c.doc_id = $3::uuid"
		args = append(args, docID)
	}

	query := `
SELECT c.chunk_id::text,
       c.doc_id::text,
       d.doc_name,
       c.page_number,
       c.chunk_index,
       c.text,
       c.start_char,
       c.end_char,
       1 - (c.embedding <=> $1::vector) AS score
FROM chunks c
JOIN documents d ON d.doc_id = c.doc_id
WHERE c.embedding IS NOT NULL` + filterSQL + `
ORDER BY c.embedding <=> $1::vector
LIMIT $2`
	return query, args
}

func (s *PGIndex) Upsert(ctx context.Context, points []Point) error {
	for _, p := range points {
		tag, err := s.q.Exec(ctx, `UPDATE chunks SET embedding=$2::vector WHERE chunk_id=$1::uuid`, p.Chunk.ChunkID, pgvector.NewVector(p.Vector))
		if err != nil {
			return fmt.Errorf("store embedding %s: %w", p.Chunk.ChunkID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("store embedding %s: chunk row missing", p.Chunk.ChunkID)
		}
	}
	return nil
}

// DeleteByDocument clears the embeddings; the chunk rows go with the document.
func (s *PGIndex) DeleteByDocument(ctx context.Context, docID string) error {
	if _, err := s.q.Exec(ctx, `UPDATE chunks SET embedding=NULL WHERE doc_id=$1::uuid`, docID); err != nil {
		return fmt.Errorf("clear embeddings for %s: %w", docID, err)
	}
	return nil
}

func (s *PGIndex) Ping(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}
