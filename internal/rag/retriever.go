package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/vector"

	"github.com/charmbracelet/log"
)

type Embedder interface {
	Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error)
}

type RetrieveRequest struct {
	Question string
	// DocID scopes the search to one document. "" and "all" search everything.
	DocID    string
	TopK     int
	MinScore float64
}

type RetrieverOptions struct {
	EmbedDim       int
	MaxTopK        int
	MaxQuestionLen int
	SearchTimeout  time.Duration
	// Reranker, when set, reorders up to RerankCandidates pruned hits before
	// they are cut to top_k.
	Reranker         Reranker
	RerankCandidates int
	Logger           *log.Logger
}

type Retriever struct {
	embedder Embedder
	index    vector.Index
	opts     RetrieverOptions
	log      *log.Logger
	now      func() time.Time
}

func NewRetriever(embedder Embedder, index vector.Index, opts RetrieverOptions) *Retriever {
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = 20
	}
	if opts.MaxQuestionLen <= 0 {
		opts.MaxQuestionLen = 4000
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		opts:     opts,
		log:      logger.With("component", "retriever"),
		now:      time.Now,
	}
}

func (r *Retriever) MaxTopK() int {
	return r.opts.MaxTopK
}

func (r *Retriever) Validate(req RetrieveRequest) error {
	q := strings.TrimSpace(req.Question)
	if q == "" {
		return fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(q) > r.opts.MaxQuestionLen {
		return fmt.Errorf("%w: question exceeds %d characters", ErrInvalidInput, r.opts.MaxQuestionLen)
	}
	if req.TopK < 1 || req.TopK > r.opts.MaxTopK {
		return fmt.Errorf("%w: top_k must be between 1 and %d", ErrInvalidInput, r.opts.MaxTopK)
	}
	if math.IsNaN(req.MinScore) || req.MinScore < 0 || req.MinScore > 1 {
		return fmt.Errorf("%w: min_score must be between 0 and 1", ErrInvalidInput)
	}
	return nil
}

// Retrieve embeds the question, searches the index and prunes everything below
// MinScore. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, req RetrieveRequest) (models.RetrievalResult, error) {
	if err := r.Validate(req); err != nil {
		return models.RetrievalResult{}, err
	}
	var res models.RetrievalResult

	start := r.now()
	vec, err := retryOnce(ctx, func() ([]float32, error) {
		return r.embedQuestion(ctx, strings.TrimSpace(req.Question))
	})
	res.EmbedMs = r.now().Sub(start).Milliseconds()
	if err != nil {
		return res, upstream("embed question", err)
	}

	fetch := req.TopK
	if r.opts.Reranker != nil && r.opts.RerankCandidates > fetch {
		fetch = r.opts.RerankCandidates
	}
	filter := vector.Filter{DocID: scopeDocID(req.DocID)}
	start = r.now()
	hits, err := retryOnce(ctx, func() ([]models.RetrievedChunk, error) {
		return r.search(ctx, vec, fetch, filter)
	})
	res.SearchMs = r.now().Sub(start).Milliseconds()
	if err != nil {
		return res, upstream("vector search", err)
	}

	if r.opts.Reranker == nil {
		res.Chunks = rankResults(hits, req.MinScore, req.TopK)
	} else {
		res.Chunks, err = r.rerank(ctx, strings.TrimSpace(req.Question), rankResults(hits, req.MinScore, 0), req.TopK)
		if err != nil {
			return res, err
		}
	}
	r.log.Debug("retrieved", "hits", len(hits), "kept", len(res.Chunks), "doc_id", filter.DocID, "embed_ms", res.EmbedMs, "search_ms", res.SearchMs)
	return res, nil
}

// rerank reorders the pruned pool and cuts it to topK. A reranker failure
// keeps similarity order; only cancellation is returned.
func (r *Retriever) rerank(ctx context.Context, question string, pool []models.RetrievedChunk, topK int) ([]models.RetrievedChunk, error) {
	if len(pool) > 1 {
		start := r.now()
		reranked, err := r.opts.Reranker.Rerank(ctx, question, pool)
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("rerank: %w", ctx.Err())
		case err != nil:
			r.log.Warn("rerank failed, keeping similarity order", "err", err)
		case len(reranked) == len(pool):
			pool = reranked
		default:
			r.log.Warn("rerank changed the candidate count, keeping similarity order", "in", len(pool), "out", len(reranked))
		}
		r.log.Debug("reranked", "candidates", len(pool), "rerank_ms", r.now().Sub(start).Milliseconds())
	}
	if len(pool) > topK {
		pool = pool[:topK]
	}
	for i := range pool {
		pool[i].Rank = i + 1
	}
	return pool, nil
}

func (r *Retriever) embedQuestion(ctx context.Context, q string) ([]float32, error) {
	vecs, _, err := r.embedder.Embed(ctx, providers.EmbedRequest{
		Operation: "query",
		Inputs:    []string{q},
		Dimension: r.opts.EmbedDim,
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, errors.New("embedder returned no vector")
	}
	return vecs[0], nil
}

func (r *Retriever) search(ctx context.Context, vec []float32, topK int, f vector.Filter) ([]models.RetrievedChunk, error) {
	if r.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.SearchTimeout)
		defer cancel()
	}
	return r.index.Search(ctx, vec, topK, f)
}

// retryOnce repeats fn a single time when the first failure looks transient
// and the caller is still waiting.
func retryOnce[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	out, err := fn()
	if err == nil || ctx.Err() != nil || !providers.Retryable(err) {
		return out, err
	}
	return fn()
}

func upstream(stage string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", stage, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, stage, err)
}

func scopeDocID(docID string) string {
	docID = strings.TrimSpace(docID)
	if strings.EqualFold(docID, "all") {
		return ""
	}
	return docID
}

// rankResults keeps hits at or above minScore, best first, one per chunk_id,
// and numbers them from 1.
func rankResults(hits []models.RetrievedChunk, minScore float64, topK int) []models.RetrievedChunk {
	kept := make([]models.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		if math.IsNaN(h.Score) || h.Score < minScore {
			continue
		}
		kept = append(kept, h)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})

	seen := make(map[string]struct{}, len(kept))
	out := make([]models.RetrievedChunk, 0, len(kept))
	for _, h := range kept {
		if _, dup := seen[h.ChunkID]; dup {
			continue
		}
		seen[h.ChunkID] = struct{}{}
		h.Rank = len(out) + 1
		out = append(out, h)
		if topK > 0 && len(out) == topK {
			break
		}
	}
	return out
}
