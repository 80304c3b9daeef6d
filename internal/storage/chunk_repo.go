package storage

import (
	"context"
	"fmt"

	"docchat/internal/models"
)

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceChunks swaps a document's chunk rows in one transaction so a retried
// ingest never leaves duplicates behind.
func (r *ChunkRepo) ReplaceChunks(ctx context.Context, docID string, chunks []models.Chunk) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx replace chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE doc_id=$1::uuid`, docID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	for _, c := range chunks {
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, doc_id, page_number, chunk_index, text, start_char, end_char)
VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7)`,
			c.ChunkID, docID, c.PageNumber, c.ChunkIndex, c.Text, c.StartChar, c.EndChar,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

// ListByDocument returns chunks in reading order. A nil page lists every page.
func (r *ChunkRepo) ListByDocument(ctx context.Context, docID string, page *int, limit int) ([]models.Chunk, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT c.chunk_id::text, c.doc_id::text, d.doc_name, c.page_number, c.chunk_index, c.text, c.start_char, c.end_char
FROM chunks c
JOIN documents d ON d.doc_id = c.doc_id
WHERE c.doc_id=$1::uuid AND ($2::int IS NULL OR c.page_number=$2)
ORDER BY c.page_number ASC, c.chunk_index ASC
LIMIT $3`, docID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("list chunks by document: %w", err)
	}
	defer rows.Close()
	out := make([]models.Chunk, 0, limit)
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.DocName, &c.PageNumber, &c.ChunkIndex, &c.Text, &c.StartChar, &c.EndChar); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
