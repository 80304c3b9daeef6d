package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/util"
)

// Reranker reorders retrieval candidates by relevance to the question. It
// never adds chunks and never changes their similarity scores.
type Reranker interface {
	Rerank(ctx context.Context, question string, candidates []models.RetrievedChunk) ([]models.RetrievedChunk, error)
}

const (
	rerankOperation    = "rerank"
	rerankPassageRunes = 600
	rerankSystem       = `You grade search results. For each numbered passage, rate from 0 to 10 how directly it answers the question. Reply with JSON only: {"scores":[<one number per passage, in order>]}.`
)

// LLMReranker scores every candidate with one call to the fast chain.
type LLMReranker struct {
	gen  Generator
	mode providers.Mode
}

func NewLLMReranker(gen Generator) *LLMReranker {
	return &LLMReranker{gen: gen, mode: providers.ModeFast}
}

func (r *LLMReranker) Rerank(ctx context.Context, question string, candidates []models.RetrievedChunk) ([]models.RetrievedChunk, error) {
	if len(candidates) < 2 {
		return candidates, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", strings.TrimSpace(question))
	for i, c := range candidates {
		fmt.Fprintf(&b, "Passage %d:\n%s\n\n", i+1, util.DisplaySnippet(c.Text, rerankPassageRunes))
	}

	resp, _, err := r.gen.Generate(ctx, r.mode, providers.GenerateRequest{
		Operation: rerankOperation,
		System:    rerankSystem,
		Prompt:    b.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	scores, err := parseRerankScores(resp.Text, len(candidates))
	if err != nil {
		return nil, err
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })

	out := make([]models.RetrievedChunk, len(candidates))
	for i, idx := range order {
		out[i] = candidates[idx]
	}
	return out, nil
}

func parseRerankScores(raw string, n int) ([]float64, error) {
	obj := extractJSONObject(raw)
	if obj == "" {
		return nil, fmt.Errorf("rerank: no JSON in completion")
	}
	var payload struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(payload.Scores) != n {
		return nil, fmt.Errorf("rerank: got %d scores for %d passages", len(payload.Scores), n)
	}
	return payload.Scores, nil
}
