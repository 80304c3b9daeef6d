package ingest

import (
	"fmt"

	"docchat/internal/models"
	"docchat/internal/util"

	"github.com/google/uuid"
)

// ChunkID is stable for a (document, page, index) triple so re-ingesting a
// document overwrites the same index points.
func ChunkID(docID string, page, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d:%d", docID, page, index))).String()
}

// ChunkPages windows each page separately. chunk_index restarts at 0 on every
// page and offsets refer to the whitespace-normalized page text.
func ChunkPages(docID, docName string, pages []models.Page, size, overlap int) []models.Chunk {
	out := make([]models.Chunk, 0, len(pages)*2)
	for _, p := range pages {
		for idx, span := range util.ChunkText(p.Text, size, overlap) {
			out = append(out, models.Chunk{
				ChunkID:    ChunkID(docID, p.PageNumber, idx),
				DocID:      docID,
				DocName:    docName,
				PageNumber: p.PageNumber,
				ChunkIndex: idx,
				Text:       span.Text,
				StartChar:  span.Start,
				EndChar:    span.End,
			})
		}
	}
	return out
}
