package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docchat/internal/logging"
	"docchat/internal/models"
	"docchat/internal/storage"
	"docchat/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
)

func TestSupportedExt(t *testing.T) {
	assert.True(t, SupportedExt("Policy.PDF"))
	assert.True(t, SupportedExt("notes.md"))
	assert.True(t, SupportedExt("a.txt"))
	assert.False(t, SupportedExt("image.png"))
	assert.False(t, SupportedExt("noext"))
}

func TestParsePagesText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.txt")
	require.NoError(t, os.WriteFile(path, []byte("Refunds\x00 within   30 days.\n"), 0o644))

	pages, err := ParsePages(path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, "Refunds within   30 days.", pages[0].Text)
}

func TestParsePagesErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.md")
	require.NoError(t, os.WriteFile(empty, []byte(" \n\t "), 0o644))
	_, err := ParsePages(empty)
	require.ErrorIs(t, err, util.ErrNoExtractableText)

	_, err = ParsePages(filepath.Join(dir, "slides.pptx"))
	require.ErrorIs(t, err, util.ErrUnsupportedFile)
}

func TestChunkPagesRestartsIndexPerPage(t *testing.T) {
	pages := []models.Page{
		{PageNumber: 1, Text: strings.Repeat("a", 25)},
		{PageNumber: 3, Text: "short page"},
	}
	chunks := ChunkPages("doc-1", "policy.pdf", pages, 10, 2)
	require.Len(t, chunks, 4)

	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, 10, chunks[0].EndChar)
	assert.Equal(t, 8, chunks[1].StartChar)
	assert.Equal(t, 2, chunks[2].ChunkIndex)

	assert.Equal(t, 3, chunks[3].PageNumber)
	assert.Equal(t, 0, chunks[3].ChunkIndex)
	assert.Equal(t, "short page", chunks[3].Text)
	assert.Equal(t, "policy.pdf", chunks[3].DocName)

	assert.Equal(t, ChunkID("doc-1", 1, 0), chunks[0].ChunkID)
	assert.NotEqual(t, chunks[0].ChunkID, chunks[3].ChunkID)
	assert.Equal(t, ChunkID("doc-1", 3, 0), ChunkPages("doc-1", "renamed.pdf", pages[1:], 10, 2)[0].ChunkID)
}

type fakeDocs struct {
	byHash    map[string]models.Document
	created   []models.Document
	statuses  map[string]string
	createErr error
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{byHash: map[string]models.Document{}, statuses: map[string]string{}}
}

func (f *fakeDocs) FindBySHA256(_ context.Context, sum string) (models.Document, error) {
	d, ok := f.byHash[sum]
	if !ok {
		return models.Document{}, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeDocs) Create(_ context.Context, doc models.Document) (models.Document, error) {
	if f.createErr != nil {
		return models.Document{}, f.createErr
	}
	doc.DocID = "11111111-2222-3333-4444-555555555555"
	f.created = append(f.created, doc)
	f.byHash[doc.SHA256] = doc
	return doc, nil
}

func (f *fakeDocs) UpdateStatus(_ context.Context, docID, status, _ string) error {
	f.statuses[docID] = status
	return nil
}

func TestSubmitStartsWorkflowAndDedupes(t *testing.T) {
	inbox := t.TempDir()
	docs := newFakeDocs()
	tc := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("ingest-11111111-2222-3333-4444-555555555555")
	tc.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o tclient.StartWorkflowOptions) bool {
		return o.ID == "ingest-11111111-2222-3333-4444-555555555555" && o.TaskQueue == "docchat"
	}), WorkflowName, mock.MatchedBy(func(job models.IngestJob) bool {
		return job.DocName == "policy.txt" && job.EmbedBatch == 16 && strings.HasPrefix(job.Path, inbox)
	})).Return(run, nil).Once()

	s := NewSubmitter(docs, tc, SubmitterOptions{InboxDir: inbox, TaskQueue: "docchat", EmbedBatch: 16, Logger: logging.Discard()})
	res, err := s.Submit(context.Background(), "../policy.txt", strings.NewReader("Refunds within 30 days."))
	require.NoError(t, err)
	assert.False(t, res.Deduped)
	assert.Equal(t, "ingest-11111111-2222-3333-4444-555555555555", res.WorkflowID)
	require.Len(t, docs.created, 1)
	assert.Equal(t, util.SHA256Hex([]byte("Refunds within 30 days.")), docs.created[0].SHA256)
	_, err = os.Stat(docs.created[0].Path)
	require.NoError(t, err)

	again, err := s.Submit(context.Background(), "copy.txt", strings.NewReader("Refunds within 30 days."))
	require.NoError(t, err)
	assert.True(t, again.Deduped)
	assert.Equal(t, res.Document.DocID, again.Document.DocID)

	_, err = s.Submit(context.Background(), "blank.txt", strings.NewReader(""))
	require.ErrorIs(t, err, util.ErrEmptyFile)

	entries, err := os.ReadDir(inbox)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// A failed document is retried in place instead of being deduped.
	scanned := "Scanned page with no text layer."
	docs.byHash[util.SHA256Hex([]byte(scanned))] = models.Document{DocID: "failed-doc", DocName: "scan.txt", Status: models.DocumentFailed, FailReason: "no extractable text"}
	retryRun := &mocks.WorkflowRun{}
	retryRun.On("GetID").Return("ingest-failed-doc")
	tc.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o tclient.StartWorkflowOptions) bool {
		return o.ID == "ingest-failed-doc" && o.WorkflowIDReusePolicy == enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE
	}), WorkflowName, mock.MatchedBy(func(job models.IngestJob) bool {
		return job.DocID == "failed-doc" && strings.HasPrefix(job.Path, inbox)
	})).Return(retryRun, nil).Once()

	retried, err := s.Submit(context.Background(), "scan.txt", strings.NewReader(scanned))
	require.NoError(t, err)
	assert.False(t, retried.Deduped)
	assert.Equal(t, "ingest-failed-doc", retried.WorkflowID)
	assert.Equal(t, models.DocumentPending, retried.Document.Status)
	assert.Empty(t, retried.Document.FailReason)
	assert.Equal(t, models.DocumentPending, docs.statuses["failed-doc"])
	assert.Len(t, docs.created, 1)
	tc.AssertExpectations(t)

	entries, err = os.ReadDir(inbox)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSubmitRejectsUnsupported(t *testing.T) {
	s := NewSubmitter(newFakeDocs(), &mocks.Client{}, SubmitterOptions{InboxDir: t.TempDir(), TaskQueue: "docchat", Logger: logging.Discard()})
	_, err := s.Submit(context.Background(), "photo.jpg", strings.NewReader("x"))
	require.ErrorIs(t, err, util.ErrUnsupportedFile)
}

func TestSubmitMarksFailedWhenWorkflowCannotStart(t *testing.T) {
	docs := newFakeDocs()
	tc := &mocks.Client{}
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, WorkflowName, mock.Anything).Return(nil, errors.New("temporal down"))

	s := NewSubmitter(docs, tc, SubmitterOptions{InboxDir: t.TempDir(), TaskQueue: "docchat", Logger: logging.Discard()})
	_, err := s.Submit(context.Background(), "a.md", strings.NewReader("# Title"))
	require.Error(t, err)
	assert.Equal(t, models.DocumentFailed, docs.statuses["11111111-2222-3333-4444-555555555555"])
}

func TestProgressQueriesWorkflow(t *testing.T) {
	tc := &mocks.Client{}
	val := &mocks.Value{}
	val.On("Get", mock.Anything).Run(func(args mock.Arguments) {
		p := args.Get(0).(*models.IngestProgress)
		*p = models.IngestProgress{DocID: "d1", Stage: "embed", ChunksTotal: 10, ChunksEmbedded: 4}
	}).Return(nil)
	tc.On("QueryWorkflow", mock.Anything, "ingest-d1", "", ProgressQuery).Return(val, nil)

	s := NewSubmitter(newFakeDocs(), tc, SubmitterOptions{InboxDir: t.TempDir(), TaskQueue: "docchat", Logger: logging.Discard()})
	prog, err := s.Progress(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "embed", prog.Stage)
	assert.Equal(t, 4, prog.ChunksEmbedded)
}
