package activities

import "docchat/internal/models"

type ParseDocumentInput struct {
	DocID string `json:"doc_id"`
	Path  string `json:"path"`
}

type ParseDocumentOutput struct {
	Pages []models.Page `json:"pages"`
}

type ChunkDocumentInput struct {
	DocID        string        `json:"doc_id"`
	DocName      string        `json:"doc_name"`
	Pages        []models.Page `json:"pages"`
	ChunkSize    int           `json:"chunk_size"`
	ChunkOverlap int           `json:"chunk_overlap"`
}

type ChunkDocumentOutput struct {
	Chunks []models.Chunk `json:"chunks"`
}

type StoreChunksInput struct {
	DocID  string         `json:"doc_id"`
	Chunks []models.Chunk `json:"chunks"`
}

type EmbedChunksInput struct {
	Operation     string   `json:"operation"`
	DocID         string   `json:"doc_id"`
	ProviderIndex int      `json:"provider_index"`
	Texts         []string `json:"texts"`
}

type EmbedChunksOutput struct {
	Vectors      [][]float32 `json:"vectors"`
	ProviderName string      `json:"provider_name"`
	Model        string      `json:"model"`
}

// IndexChunksInput pairs Chunks[i] with Vectors[i].
type IndexChunksInput struct {
	Chunks  []models.Chunk `json:"chunks"`
	Vectors [][]float32    `json:"vectors"`
}

type UpdateDocumentStatusInput struct {
	DocID      string `json:"doc_id"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
	Pages      int    `json:"pages,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
}

type LogLLMCallInput struct {
	Operation    string `json:"operation"`
	DocID        string `json:"doc_id"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model"`
	Status       string `json:"status"`
	ErrorType    string `json:"error_type"`
	LatencyMs    int64  `json:"latency_ms"`
}

type WriteIngestManifestInput struct {
	DocID    string         `json:"doc_id"`
	Manifest map[string]any `json:"manifest"`
}

type WriteIngestManifestOutput struct {
	Path string `json:"path"`
}
