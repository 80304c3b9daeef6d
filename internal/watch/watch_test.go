package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"docchat/internal/ingest"
	"docchat/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingSubmitter) SubmitFile(_ context.Context, path string) (ingest.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
	return ingest.Result{}, nil
}

func (r *recordingSubmitter) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestWatcherSubmitsExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.docx"), []byte("skip"), 0o644))

	sub := &recordingSubmitter{}
	w := New(dir, sub, 80*time.Millisecond, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sub.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)

	path := filepath.Join(dir, "policy.md")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("Refunds within 30 days."), 0o644))
		time.Sleep(5 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return len(sub.seen()) == 2 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{"existing.txt", "policy.md"}, sub.seen())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
