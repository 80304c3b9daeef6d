package storage

import (
	"context"
	"errors"
	"fmt"

	"docchat/internal/models"

	"github.com/jackc/pgx/v5"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentColumns = `doc_id::text, doc_name, sha256, path, status, COALESCE(fail_reason,''), page_count, chunk_count, created_at, updated_at`

func scanDocument(row pgx.Row) (models.Document, error) {
	var d models.Document
	err := row.Scan(&d.DocID, &d.DocName, &d.SHA256, &d.Path, &d.Status, &d.FailReason, &d.PageCount, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (r *DocumentRepo) Create(ctx context.Context, doc models.Document) (models.Document, error) {
	status := doc.Status
	if status == "" {
		status = models.DocumentPending
	}
	row := r.db.Pool.QueryRow(ctx, `
INSERT INTO documents (doc_id, doc_name, sha256, path, status)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, $3, $4, $5)
RETURNING `+documentColumns,
		doc.DocID, doc.DocName, doc.SHA256, doc.Path, status)
	out, err := scanDocument(row)
	if err != nil {
		return models.Document{}, fmt.Errorf("create document: %w", err)
	}
	return out, nil
}

func (r *DocumentRepo) Get(ctx context.Context, docID string) (models.Document, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_id=$1::uuid`, docID)
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// FindBySHA256 returns ErrNotFound when no document has this content hash.
func (r *DocumentRepo) FindBySHA256(ctx context.Context, sum string) (models.Document, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE sha256=$1`, sum)
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, ErrNotFound
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("find document by hash: %w", err)
	}
	return d, nil
}

func (r *DocumentRepo) List(ctx context.Context) ([]models.Document, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, docID, status, failReason string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE documents SET status=$2, fail_reason=NULLIF($3,''), updated_at=NOW() WHERE doc_id=$1::uuid`, docID, status, failReason)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}

func (r *DocumentRepo) UpdateCounts(ctx context.Context, docID string, pages, chunks int) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE documents SET page_count=$2, chunk_count=$3, updated_at=NOW() WHERE doc_id=$1::uuid`, docID, pages, chunks)
	if err != nil {
		return fmt.Errorf("update document counts: %w", err)
	}
	return nil
}

// Delete removes the document and, through the foreign key, its chunks.
func (r *DocumentRepo) Delete(ctx context.Context, docID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM documents WHERE doc_id=$1::uuid`, docID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	return nil
}
