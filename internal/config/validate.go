package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if c.ChunkSize < 1 {
		add("ingest.chunk_size", "chunk_size must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		add("ingest.chunk_overlap", "chunk_overlap must be in [0, chunk_size)")
	}
	if c.EmbedDim < 1 {
		add("ingest.embed_dim", "embed_dim must be positive")
	}
	if c.EmbedBatch < 1 {
		add("ingest.embed_batch", "embed_batch must be positive")
	}

	switch strings.ToLower(c.VectorBackend) {
	case "pgvector":
	case "qdrant":
		if strings.TrimSpace(c.QdrantURL) == "" {
			add("vector.qdrant_url", "qdrant_url is required for the qdrant backend")
		}
		if strings.TrimSpace(c.QdrantCollection) == "" {
			add("vector.qdrant_collection", "qdrant_collection is required for the qdrant backend")
		}
	default:
		add("vector.backend", fmt.Sprintf("unknown vector backend %q", c.VectorBackend))
	}

	if c.MaxTopK < 1 {
		add("retrieval.max_top_k", "max_top_k must be positive")
	}
	if c.DefaultTopK < 1 || c.DefaultTopK > c.MaxTopK {
		add("retrieval.default_top_k", "default_top_k must be in [1, max_top_k]")
	}
	if c.DefaultMinScore < 0 || c.DefaultMinScore > 1 {
		add("retrieval.default_min_score", "default_min_score must be in [0, 1]")
	}
	if c.RerankEnabled && (c.RerankCandidates < c.MaxTopK || c.RerankCandidates > 100) {
		add("retrieval.rerank_candidates", "rerank_candidates must be in [max_top_k, 100]")
	}
	if c.MaxQuestionLen < 1 {
		add("retrieval.max_question_len", "max_question_len must be positive")
	}

	for field, v := range map[string]int{
		"timeouts.embed_seconds":  c.EmbedTimeoutSecs,
		"timeouts.search_seconds": c.SearchTimeoutSecs,
		"timeouts.llm_seconds":    c.LLMTimeoutSecs,
	} {
		if v < 1 {
			add(field, "timeout must be at least one second")
		}
	}

	if c.SessionTurns < 0 {
		add("session.turns", "session_turns cannot be negative")
	}
	if c.RateLimitRPS < 0 {
		add("api.rate_limit_rps", "rate_limit_rps cannot be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		add("api.rate_limit_burst", "rate_limit_burst must be positive when rate limiting is enabled")
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		add("log.format", "log_format must be text or json")
	}
	return errs
}
