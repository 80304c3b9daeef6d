package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"docchat/internal/models"
	"docchat/internal/storage"
	"docchat/internal/util"

	"github.com/charmbracelet/log"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

const (
	WorkflowName  = "DocumentIngestWorkflow"
	ProgressQuery = "GetIngestProgress"
)

func WorkflowID(docID string) string {
	return "ingest-" + docID
}

type DocumentStore interface {
	FindBySHA256(ctx context.Context, sum string) (models.Document, error)
	Create(ctx context.Context, doc models.Document) (models.Document, error)
	UpdateStatus(ctx context.Context, docID, status, failReason string) error
}

type workflowClient interface {
	ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

type Result struct {
	Document   models.Document `json:"document"`
	Deduped    bool            `json:"deduped"`
	WorkflowID string          `json:"workflow_id,omitempty"`
}

// Submitter stores an upload in the inbox, dedupes it by content hash and
// starts the ingest workflow for new documents.
type Submitter struct {
	docs     DocumentStore
	temporal workflowClient
	opts     SubmitterOptions
	log      *log.Logger
}

type SubmitterOptions struct {
	InboxDir        string
	TaskQueue       string
	EmbedProviders  int
	EmbedBatch      int
	CooldownSeconds int
	Logger          *log.Logger
}

func NewSubmitter(docs DocumentStore, temporal workflowClient, opts SubmitterOptions) *Submitter {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Submitter{
		docs:     docs,
		temporal: temporal,
		opts:     opts,
		log:      logger.With("component", "ingest"),
	}
}

func (s *Submitter) Submit(ctx context.Context, name string, src io.Reader) (Result, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if !SupportedExt(name) {
		return Result{}, fmt.Errorf("%w: %s", util.ErrUnsupportedFile, name)
	}
	tmpPath, sum, err := s.saveToInbox(name, src)
	if err != nil {
		return Result{}, err
	}

	finalPath := filepath.Join(s.opts.InboxDir, sum+strings.ToLower(filepath.Ext(name)))
	existing, err := s.docs.FindBySHA256(ctx, sum)
	switch {
	case err == nil && existing.Status != models.DocumentFailed:
		_ = os.Remove(tmpPath)
		s.log.Info("duplicate upload", "doc_id", existing.DocID, "doc_name", name)
		return Result{Document: existing, Deduped: true}, nil
	case err == nil:
		// Same bytes failed before: rerun the pipeline on the existing row.
		if err := os.Rename(tmpPath, finalPath); err != nil {
			_ = os.Remove(tmpPath)
			return Result{}, fmt.Errorf("move upload into inbox: %w", err)
		}
		if err := s.docs.UpdateStatus(ctx, existing.DocID, models.DocumentPending, ""); err != nil {
			return Result{}, err
		}
		existing.Status = models.DocumentPending
		existing.FailReason = ""
		existing.Path = finalPath
		s.log.Info("retrying failed document", "doc_id", existing.DocID, "doc_name", name)
		return s.start(ctx, existing, finalPath)
	case !errors.Is(err, storage.ErrNotFound):
		_ = os.Remove(tmpPath)
		return Result{}, err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return Result{}, fmt.Errorf("move upload into inbox: %w", err)
	}

	doc, err := s.docs.Create(ctx, models.Document{DocName: name, SHA256: sum, Path: finalPath, Status: models.DocumentPending})
	if err != nil {
		// A concurrent upload of the same bytes may have won the insert.
		if existing, findErr := s.docs.FindBySHA256(ctx, sum); findErr == nil {
			return Result{Document: existing, Deduped: true}, nil
		}
		return Result{}, err
	}
	return s.start(ctx, doc, finalPath)
}

// start launches the ingest workflow for doc. The reuse policy lets a failed
// document run again under its original workflow id.
func (s *Submitter) start(ctx context.Context, doc models.Document, finalPath string) (Result, error) {
	run, err := s.temporal.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                    WorkflowID(doc.DocID),
		TaskQueue:             s.opts.TaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, WorkflowName, models.IngestJob{
		DocID:           doc.DocID,
		DocName:         doc.DocName,
		Path:            finalPath,
		EmbedProviders:  s.opts.EmbedProviders,
		EmbedBatch:      s.opts.EmbedBatch,
		CooldownSeconds: s.opts.CooldownSeconds,
	})
	if err != nil {
		_ = s.docs.UpdateStatus(context.WithoutCancel(ctx), doc.DocID, models.DocumentFailed, "could not start ingestion")
		return Result{}, fmt.Errorf("start ingest workflow: %w", err)
	}
	s.log.Info("ingest started", "doc_id", doc.DocID, "doc_name", doc.DocName, "workflow_id", run.GetID())
	return Result{Document: doc, WorkflowID: run.GetID()}, nil
}

// SubmitFile ingests a file that already sits on local disk.
func (s *Submitter) SubmitFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return s.Submit(ctx, filepath.Base(path), f)
}

func (s *Submitter) Progress(ctx context.Context, docID string) (models.IngestProgress, error) {
	var prog models.IngestProgress
	resp, err := s.temporal.QueryWorkflow(ctx, WorkflowID(docID), "", ProgressQuery)
	if err != nil {
		return prog, fmt.Errorf("query ingest progress: %w", err)
	}
	if err := resp.Get(&prog); err != nil {
		return prog, fmt.Errorf("decode ingest progress: %w", err)
	}
	return prog, nil
}

func (s *Submitter) saveToInbox(name string, src io.Reader) (path, sum string, err error) {
	if err := util.EnsureDir(s.opts.InboxDir); err != nil {
		return "", "", err
	}
	tmp, err := os.CreateTemp(s.opts.InboxDir, "upload-*"+strings.ToLower(filepath.Ext(name)))
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	sum, err = util.SHA256HexFromReader(io.TeeReader(src, tmp))
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", "", fmt.Errorf("write upload: %w", err)
	}
	info, err := tmp.Stat()
	if err == nil && info.Size() == 0 {
		err = fmt.Errorf("%w: %s", util.ErrEmptyFile, name)
	}
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close upload: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", "", err
	}
	return tmp.Name(), sum, nil
}
