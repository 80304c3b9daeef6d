// Package watch ingests documents dropped into a folder.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"docchat/internal/ingest"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 2 * time.Second

type FileSubmitter interface {
	SubmitFile(ctx context.Context, path string) (ingest.Result, error)
}

// Watcher submits every supported file in dir once it has stopped changing
// for the debounce interval. Files already present at start are submitted
// too; content hashing in the submitter makes repeats harmless.
type Watcher struct {
	dir      string
	submit   FileSubmitter
	debounce time.Duration
	log      *log.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func New(dir string, submit FileSubmitter, debounce time.Duration, logger *log.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		dir:      dir,
		submit:   submit,
		debounce: debounce,
		log:      logger.With("component", "watch", "dir", dir),
		pending:  map[string]*time.Timer{},
	}
}

// Run blocks until ctx is cancelled or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	ready := make(chan string, 64)
	defer w.stopTimers()

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read watch dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.schedule(ctx, filepath.Join(w.dir, e.Name()), ready)
		}
	}
	w.log.Info("watching for documents")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(ctx, ev.Name, ready)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		case path := <-ready:
			w.ingest(ctx, path)
		}
	}
}

// schedule (re)arms the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string, ready chan<- string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !ingest.SupportedExt(name) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	res, err := w.submit.SubmitFile(ctx, path)
	if err != nil {
		w.log.Error("auto ingest failed", "path", path, "error", err)
		return
	}
	w.log.Info("auto ingest", "path", path, "doc_id", res.Document.DocID, "deduped", res.Deduped)
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
