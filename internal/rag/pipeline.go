package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/storage"

	"github.com/charmbracelet/log"
)

type Generator interface {
	Generate(ctx context.Context, mode providers.Mode, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error)
	PrimaryModel(mode providers.Mode) string
}

type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
	LoadContext(ctx context.Context, sessionID string, turns int) (models.SessionContext, error)
	ListMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
	AppendTurn(ctx context.Context, sessionID, question, answer string) error
	UpsertSummary(ctx context.Context, sessionID, summary string) error
}

type AuditLog interface {
	Insert(ctx context.Context, rec storage.LLMCallRecord) error
}

type PipelineOptions struct {
	SessionTurns    int
	SummaryMaxTurns int
	Logger          *log.Logger
}

// Pipeline answers questions from retrieved chunks only. Sessions and audit are
// optional collaborators.
type Pipeline struct {
	retriever *Retriever
	gen       Generator
	sessions  SessionStore
	audit     AuditLog
	opts      PipelineOptions
	log       *log.Logger
	now       func() time.Time
}

func NewPipeline(retriever *Retriever, gen Generator, sessions SessionStore, audit AuditLog, opts PipelineOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.SummaryMaxTurns <= 0 {
		opts.SummaryMaxTurns = 50
	}
	return &Pipeline{
		retriever: retriever,
		gen:       gen,
		sessions:  sessions,
		audit:     audit,
		opts:      opts,
		log:       logger.With("component", "pipeline"),
		now:       time.Now,
	}
}

type ChatRequest struct {
	Question  string
	Mode      string
	TopK      int
	MinScore  float64
	DocID     string
	SessionID string
}

func (p *Pipeline) Retrieve(ctx context.Context, req RetrieveRequest) (models.RetrievalResult, error) {
	return p.retriever.Retrieve(ctx, req)
}

// Chat runs retrieve, gate, prompt, generate, validate and assemble. Evidence and
// citation shortfalls come back as a successful abstention; only bad input and
// upstream failures are errors.
func (p *Pipeline) Chat(ctx context.Context, req ChatRequest) (models.ChatResponse, error) {
	start := p.now()
	mode, err := providers.ParseMode(req.Mode)
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	rreq := RetrieveRequest{Question: req.Question, DocID: req.DocID, TopK: req.TopK, MinScore: req.MinScore}
	if err := p.retriever.Validate(rreq); err != nil {
		return models.ChatResponse{}, err
	}

	var sess models.SessionContext
	if req.SessionID != "" {
		sess, err = p.loadSession(ctx, req.SessionID)
		if err != nil {
			return models.ChatResponse{}, err
		}
	}

	ret, err := p.retriever.Retrieve(ctx, rreq)
	if err != nil {
		return models.ChatResponse{}, err
	}

	var (
		v     Validation
		model string
		info  providers.ProviderInfo
		llmMs int64
	)
	if !HasSufficientEvidence(ret, req.MinScore) {
		v = abstain(ReasonNoEvidence)
		model = p.gen.PrimaryModel(mode)
	} else {
		prompt := BuildPrompt(req.Question, ret.Chunks, sess, p.opts.SessionTurns)
		llmStart := p.now()
		var out providers.GenerateResponse
		out, info, err = p.gen.Generate(ctx, mode, providers.GenerateRequest{
			Operation: "chat",
			System:    prompt.System,
			Prompt:    prompt.User,
		})
		llmMs = p.now().Sub(llmStart).Milliseconds()
		if err != nil {
			p.recordCall(ctx, "chat", req, mode, info, "error", providers.ClassifyError(err), false, llmMs)
			return models.ChatResponse{}, upstream("generate answer", err)
		}
		v = ValidateCitations(out.Text, ret.Chunks, true)
		model = modelName(info)
	}

	resp := Assemble(v, string(mode), model, ret, llmMs, p.now().Sub(start).Milliseconds())
	if v.Reason != ReasonNoEvidence {
		p.recordCall(ctx, "chat", req, mode, info, "ok", "", resp.Abstained, llmMs)
	}
	p.log.Info("chat answered",
		"mode", resp.ModeUsed,
		"model", resp.ModelUsed,
		"abstained", resp.Abstained,
		"abstain_reason", v.Reason,
		"citations", len(resp.Citations),
		"embed_ms", resp.Latency.EmbedMs,
		"search_ms", resp.Latency.SearchMs,
		"llm_ms", resp.Latency.LLMMs,
		"total_ms", resp.Latency.TotalMs,
	)

	if req.SessionID != "" && ctx.Err() == nil {
		if err := p.sessions.AppendTurn(ctx, req.SessionID, strings.TrimSpace(req.Question), resp.Answer); err != nil {
			p.log.Error("append session turn failed", "session_id", req.SessionID, "err", err)
		}
	}
	return resp, nil
}

func (p *Pipeline) loadSession(ctx context.Context, sessionID string) (models.SessionContext, error) {
	if p.sessions == nil {
		return models.SessionContext{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess, err := p.sessions.LoadContext(ctx, sessionID, p.opts.SessionTurns)
	if errors.Is(err, storage.ErrNotFound) {
		return models.SessionContext{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return models.SessionContext{}, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func (p *Pipeline) recordCall(ctx context.Context, op string, req ChatRequest, mode providers.Mode, info providers.ProviderInfo, status string, errType providers.ErrorType, abstained bool, latencyMs int64) {
	if p.audit == nil {
		return
	}
	rec := storage.LLMCallRecord{
		Operation:    op,
		DocID:        scopeDocID(req.DocID),
		SessionID:    req.SessionID,
		Mode:         string(mode),
		ProviderName: info.Name,
		Model:        info.Model,
		Status:       status,
		ErrorType:    string(errType),
		Abstained:    abstained,
		LatencyMs:    latencyMs,
	}
	if rec.ProviderName == "" {
		rec.ProviderName = "unknown"
	}
	if err := p.audit.Insert(context.WithoutCancel(ctx), rec); err != nil {
		p.log.Warn("llm audit insert failed", "operation", op, "err", err)
	}
}

func modelName(info providers.ProviderInfo) string {
	if info.Model != "" {
		return info.Model
	}
	return info.Name
}
