package vector

import (
	"context"
	"fmt"
	"strings"

	"docchat/internal/config"
)

// Open returns the index selected by cfg.VectorBackend. The pgvector index
// runs over q; Qdrant gets its collection created on first use.
func Open(ctx context.Context, cfg config.Config, q Queryer) (Index, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.VectorBackend)) {
	case "", "pgvector":
		return NewPGIndex(q), nil
	case "qdrant":
		idx := NewQdrantIndex(QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Timeout:    cfg.SearchTimeout(),
		})
		if err := idx.EnsureCollection(ctx, cfg.EmbedDim); err != nil {
			return nil, fmt.Errorf("qdrant collection %s: %w", cfg.QdrantCollection, err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}
