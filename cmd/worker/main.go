package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docchat/internal/activities"
	"docchat/internal/config"
	"docchat/internal/ingest"
	"docchat/internal/logging"
	"docchat/internal/providers"
	"docchat/internal/storage"
	"docchat/internal/vector"
	"docchat/internal/watch"
	"docchat/internal/workflows"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
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
		logger.Fatal("worker stopped", "error", err)
	}
}

func run(cfg config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress, Logger: logging.Temporal(logger)})
	if err != nil {
		return err
	}
	defer c.Close()

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

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, db, index, pm))

	if cfg.WatchDir != "" {
		submitter := ingest.NewSubmitter(storage.NewDocumentRepo(db), c, ingest.SubmitterOptions{
			InboxDir:        cfg.DataInRoot,
			TaskQueue:       cfg.TemporalTaskQueue,
			EmbedProviders:  pm.EmbedCount(),
			EmbedBatch:      cfg.EmbedBatch,
			CooldownSeconds: cfg.ProviderCooldownSecs,
			Logger:          logger,
		})
		watcher := watch.New(cfg.WatchDir, submitter, 0, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("folder watcher stopped", "error", err)
			}
		}()
	}

	logger.Info("docchat worker listening", "temporal", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue,
		"embed_providers", cfg.EmbedProviders, "watch_dir", cfg.WatchDir)
	interrupt := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(interrupt)
	}()
	return w.Run(interrupt)
}
