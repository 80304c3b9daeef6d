package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docchat/internal/config"
	"docchat/internal/ingest"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/rag"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// Assistant is the question answering surface of the RAG pipeline.
type Assistant interface {
	Chat(ctx context.Context, req rag.ChatRequest) (models.ChatResponse, error)
	Retrieve(ctx context.Context, req rag.RetrieveRequest) (models.RetrievalResult, error)
	Brief(ctx context.Context, req rag.BriefRequest) (rag.BriefResult, error)
	Flashcards(ctx context.Context, req rag.FlashcardsRequest) (rag.FlashcardsResult, error)
	Summarize(ctx context.Context, sessionID string) (string, error)
}

type DocumentStore interface {
	List(ctx context.Context) ([]models.Document, error)
	Get(ctx context.Context, docID string) (models.Document, error)
	Delete(ctx context.Context, docID string) error
}

type ChunkLister interface {
	ListByDocument(ctx context.Context, docID string, page *int, limit int) ([]models.Chunk, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, title string) (models.Session, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
	ListMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
	GetSummary(ctx context.Context, sessionID string) (string, error)
}

type Ingestor interface {
	Submit(ctx context.Context, name string, src io.Reader) (ingest.Result, error)
	Progress(ctx context.Context, docID string) (models.IngestProgress, error)
}

type IndexDeleter interface {
	DeleteByDocument(ctx context.Context, docID string) error
}

// IndexPinger reports whether the vector index is reachable.
type IndexPinger interface {
	Ping(ctx context.Context) error
}

// ProviderHealth reports the primary embed and chat backends.
type ProviderHealth interface {
	Health(ctx context.Context) []providers.ProviderHealth
}

type Deps struct {
	Assistant Assistant
	Documents DocumentStore
	Chunks    ChunkLister
	Sessions  SessionStore
	Ingestor  Ingestor
	Index     IndexDeleter
	// IndexPing and Providers are optional; a nil check is skipped.
	IndexPing IndexPinger
	Providers ProviderHealth
	Logger    *log.Logger
}

type Server struct {
	cfg       config.Config
	assistant Assistant
	docs      DocumentStore
	chunks    ChunkLister
	sessions  SessionStore
	ingestor  Ingestor
	index     IndexDeleter
	indexPing IndexPinger
	backends  ProviderHealth
	limiter   *rate.Limiter
	log       *log.Logger
}

func NewServer(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return &Server{
		cfg:       cfg,
		assistant: deps.Assistant,
		docs:      deps.Documents,
		chunks:    deps.Chunks,
		sessions:  deps.Sessions,
		ingestor:  deps.Ingestor,
		index:     deps.Index,
		indexPing: deps.IndexPing,
		backends:  deps.Providers,
		limiter:   limiter,
		log:       logger.With("component", "api"),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/retrieve", s.handleRetrieve)
	mux.HandleFunc("/studio/brief", s.handleBrief)
	mux.HandleFunc("/studio/flashcards", s.handleFlashcards)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessionScoped)
	mux.HandleFunc("/ingest", s.handleIngest)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentScoped)
	return withCORS(withRateLimit(s.limiter, mux))
}

type serviceHealth struct {
	OK      bool   `json:"ok"`
	Backend string `json:"backend,omitempty"`
	Error   string `json:"error,omitempty"`
}

type healthResponse struct {
	Status    string                     `json:"status"`
	Index     *serviceHealth             `json:"index,omitempty"`
	Providers []providers.ProviderHealth `json:"providers,omitempty"`
	Embedding map[string]any             `json:"embedding"`
}

// handleHealthz answers 503 with status "degraded" when the index or a
// primary provider fails its check.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Embedding: map[string]any{"dim": s.cfg.EmbedDim, "backend": s.cfg.VectorBackend},
	}
	if s.indexPing != nil {
		h := &serviceHealth{OK: true, Backend: s.cfg.VectorBackend}
		if err := s.indexPing.Ping(ctx); err != nil {
			h.OK = false
			h.Error = err.Error()
			resp.Status = "degraded"
		}
		resp.Index = h
	}
	if s.backends != nil {
		resp.Providers = s.backends.Health(ctx)
		for _, p := range resp.Providers {
			if !p.OK {
				resp.Status = "degraded"
			}
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
		s.log.Warn("health degraded", "index", resp.Index, "providers", resp.Providers)
	}
	writeJSON(w, status, resp)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return false
	}
	return true
}

// scopedParts splits "/prefix/{id}/rest" into ["{id}", "rest"].
func scopedParts(path, prefix string) []string {
	return strings.Split(strings.Trim(strings.TrimPrefix(path, prefix), "/"), "/")
}

// fail maps err to a status and logs server side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeErr(w, status, err)
}
