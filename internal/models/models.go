package models

import "time"

const (
	DocumentPending  = "pending"
	DocumentIndexing = "indexing"
	DocumentIndexed  = "indexed"
	DocumentFailed   = "failed"
)

type Document struct {
	DocID      string    `json:"doc_id"`
	DocName    string    `json:"doc_name"`
	SHA256     string    `json:"sha256"`
	Path       string    `json:"-"`
	Status     string    `json:"status"`
	FailReason string    `json:"fail_reason,omitempty"`
	PageCount  int       `json:"page_count"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Page struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	DocID      string `json:"doc_id"`
	DocName    string `json:"doc_name"`
	PageNumber int    `json:"page_number"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	StartChar  int    `json:"start_char,omitempty"`
	EndChar    int    `json:"end_char,omitempty"`
}

// RetrievedChunk is a chunk scored against one query. Rank starts at 1.
type RetrievedChunk struct {
	Chunk
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

type RetrievalResult struct {
	Chunks   []RetrievedChunk `json:"chunks"`
	EmbedMs  int64            `json:"embed_ms"`
	SearchMs int64            `json:"search_ms"`
}

type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	Score      float64 `json:"score"`
	DocID      string  `json:"doc_id"`
	DocName    string  `json:"doc_name"`
	PageNumber int     `json:"page_number"`
	ChunkIndex int     `json:"chunk_index"`
	Quote      string  `json:"quote"`
}

type Latency struct {
	EmbedMs  int64 `json:"embed_ms"`
	SearchMs int64 `json:"search_ms"`
	LLMMs    int64 `json:"llm_ms"`
	TotalMs  int64 `json:"total_ms"`
}

type ChatResponse struct {
	Answer    string     `json:"answer"`
	Abstained bool       `json:"abstained"`
	ModeUsed  string     `json:"mode_used"`
	ModelUsed string     `json:"model_used"`
	Citations []Citation `json:"citations"`
	Latency   Latency    `json:"latency"`
}

type Session struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionContext is the read-only conversation state handed to prompt building.
// Turns are oldest first.
type SessionContext struct {
	Summary string
	Turns   []Message
}

type Flashcard struct {
	Q string `json:"q"`
	A string `json:"a"`
}

// IngestJob is the input of the document ingest workflow.
type IngestJob struct {
	DocID           string `json:"doc_id"`
	DocName         string `json:"doc_name"`
	Path            string `json:"path"`
	EmbedProviders  int    `json:"embed_providers"`
	EmbedBatch      int    `json:"embed_batch"`
	CooldownSeconds int    `json:"cooldown_seconds"`
}

// IngestProgress is what the ingest workflow reports while it runs.
type IngestProgress struct {
	DocID          string `json:"doc_id"`
	Stage          string `json:"stage"`
	Pages          int    `json:"pages"`
	ChunksTotal    int    `json:"chunks_total"`
	ChunksEmbedded int    `json:"chunks_embedded"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}
