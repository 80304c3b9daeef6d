package vector

import (
	"context"

	"docchat/internal/models"
)

// Filter narrows a search. An empty DocID searches every document.
type Filter struct {
	DocID string
}

type Point struct {
	Chunk  models.Chunk
	Vector []float32
}

// Index is the nearest-neighbour store behind retrieval. Scores are cosine
// similarity, higher is closer. Results come back ordered best first.
type Index interface {
	Search(ctx context.Context, vec []float32, topK int, f Filter) ([]models.RetrievedChunk, error)
	Upsert(ctx context.Context, points []Point) error
	DeleteByDocument(ctx context.Context, docID string) error
}

// Pinger is implemented by indexes that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
