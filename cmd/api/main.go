package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docchat/internal/api"
	"docchat/internal/config"
	"docchat/internal/ingest"
	"docchat/internal/logging"
	"docchat/internal/providers"
	"docchat/internal/rag"
	"docchat/internal/storage"
	"docchat/internal/vector"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", "error", err)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("invalid config", "field", e.Field, "error", e.Message)
		}
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", "error", err)
	}
}

func run(cfg config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := storage.NewDB(startCtx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(startCtx, cfg.EmbedDim); err != nil {
		return err
	}
	index, err := vector.Open(startCtx, cfg, db.Pool)
	if err != nil {
		return err
	}
	pm, err := providers.NewManager(cfg, logger)
	if err != nil {
		return err
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress, Logger: logging.Temporal(logger)})
	if err != nil {
		return err
	}
	defer tc.Close()

	docs := storage.NewDocumentRepo(db)
	sessions := storage.NewSessionRepo(db)
	retrieverOpts := rag.RetrieverOptions{
		EmbedDim:       cfg.EmbedDim,
		MaxTopK:        cfg.MaxTopK,
		MaxQuestionLen: cfg.MaxQuestionLen,
		SearchTimeout:  cfg.SearchTimeout(),
		Logger:         logger,
	}
	if cfg.RerankEnabled {
		retrieverOpts.Reranker = rag.NewLLMReranker(pm)
		retrieverOpts.RerankCandidates = cfg.RerankCandidates
	}
	retriever := rag.NewRetriever(pm, index, retrieverOpts)
	pipeline := rag.NewPipeline(retriever, pm, sessions, storage.NewLLMAuditRepo(db), rag.PipelineOptions{
		SessionTurns:    cfg.SessionTurns,
		SummaryMaxTurns: cfg.SummaryMaxTurns,
		Logger:          logger,
	})
	submitter := ingest.NewSubmitter(docs, tc, ingest.SubmitterOptions{
		InboxDir:        cfg.DataInRoot,
		TaskQueue:       cfg.TemporalTaskQueue,
		EmbedProviders:  pm.EmbedCount(),
		EmbedBatch:      cfg.EmbedBatch,
		CooldownSeconds: cfg.ProviderCooldownSecs,
		Logger:          logger,
	})

	deps := api.Deps{
		Assistant: pipeline,
		Documents: docs,
		Chunks:    storage.NewChunkRepo(db),
		Sessions:  sessions,
		Ingestor:  submitter,
		Index:     index,
		Providers: pm,
		Logger:    logger,
	}
	if p, ok := index.(vector.Pinger); ok {
		deps.IndexPing = p
	}
	srv := api.NewServer(cfg, deps)
	httpSrv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("docchat api listening", "addr", cfg.APIAddr, "vector_backend", cfg.VectorBackend,
			"fast_providers", cfg.FastProviders, "quality_providers", cfg.QualityProviders, "embed_providers", cfg.EmbedProviders)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	logger.Info("shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}
