package activities

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"docchat/internal/config"
	"docchat/internal/ingest"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/storage"
	"docchat/internal/util"
	"docchat/internal/vector"

	"go.temporal.io/sdk/temporal"
)

// Application error types the ingest workflow treats as a terminal document
// failure rather than a workflow error.
const (
	ErrTypeNoText      = "NoExtractableText"
	ErrTypeUnsupported = "UnsupportedFile"
	ErrTypeDimension   = "EmbeddingDimension"
)

type documentStore interface {
	UpdateStatus(ctx context.Context, docID, status, failReason string) error
	UpdateCounts(ctx context.Context, docID string, pages, chunks int) error
}

type chunkStore interface {
	ReplaceChunks(ctx context.Context, docID string, chunks []models.Chunk) error
}

type auditStore interface {
	Insert(ctx context.Context, rec storage.LLMCallRecord) error
}

type embedProviders interface {
	EmbedProviderByIndex(i int) (providers.EmbeddingProvider, providers.ProviderRef)
}

type Activities struct {
	cfg       config.Config
	docs      documentStore
	chunks    chunkStore
	audit     auditStore
	index     vector.Index
	providers embedProviders
}

func New(cfg config.Config, db *storage.DB, index vector.Index, pm *providers.Manager) *Activities {
	return &Activities{
		cfg:       cfg,
		docs:      storage.NewDocumentRepo(db),
		chunks:    storage.NewChunkRepo(db),
		audit:     storage.NewLLMAuditRepo(db),
		index:     index,
		providers: pm,
	}
}

func (a *Activities) ParseDocumentActivity(ctx context.Context, in ParseDocumentInput) (ParseDocumentOutput, error) {
	_ = ctx
	pages, err := ingest.ParsePages(in.Path)
	switch {
	case errors.Is(err, util.ErrNoExtractableText):
		return ParseDocumentOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNoText, nil)
	case errors.Is(err, util.ErrUnsupportedFile):
		return ParseDocumentOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnsupported, nil)
	case err != nil:
		return ParseDocumentOutput{}, fmt.Errorf("parse %s: %w", filepath.Base(in.Path), err)
	}
	return ParseDocumentOutput{Pages: pages}, nil
}

func (a *Activities) ChunkDocumentActivity(ctx context.Context, in ChunkDocumentInput) (ChunkDocumentOutput, error) {
	_ = ctx
	if in.ChunkSize <= 0 {
		in.ChunkSize = a.cfg.ChunkSize
	}
	if in.ChunkOverlap < 0 || in.ChunkOverlap >= in.ChunkSize {
		in.ChunkOverlap = a.cfg.ChunkOverlap
	}
	chunks := ingest.ChunkPages(in.DocID, in.DocName, in.Pages, in.ChunkSize, in.ChunkOverlap)
	if len(chunks) == 0 {
		return ChunkDocumentOutput{}, temporal.NewNonRetryableApplicationError(util.ErrNoExtractableText.Error(), ErrTypeNoText, nil)
	}
	return ChunkDocumentOutput{Chunks: chunks}, nil
}

// StoreChunksActivity drops whatever the index held for the document and
// replaces its chunk rows.
func (a *Activities) StoreChunksActivity(ctx context.Context, in StoreChunksInput) error {
	if err := a.index.DeleteByDocument(ctx, in.DocID); err != nil {
		return fmt.Errorf("clear index for %s: %w", in.DocID, err)
	}
	return a.chunks.ReplaceChunks(ctx, in.DocID, in.Chunks)
}

func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	provider, ref := a.providers.EmbedProviderByIndex(in.ProviderIndex)
	vectors, info, err := provider.Embed(ctx, providers.EmbedRequest{
		Operation: in.Operation,
		Inputs:    in.Texts,
		Dimension: a.cfg.EmbedDim,
	})
	if err != nil {
		return EmbedChunksOutput{}, fmt.Errorf("embed via %s failed: %w", ref.Raw, err)
	}
	if len(vectors) != len(in.Texts) {
		return EmbedChunksOutput{}, fmt.Errorf("embed via %s returned %d vectors for %d inputs", ref.Raw, len(vectors), len(in.Texts))
	}
	for _, v := range vectors {
		if len(v) != a.cfg.EmbedDim {
			msg := fmt.Sprintf("embed via %s returned dimension %d, index expects %d", ref.Raw, len(v), a.cfg.EmbedDim)
			return EmbedChunksOutput{}, temporal.NewNonRetryableApplicationError(msg, ErrTypeDimension, nil)
		}
	}
	return EmbedChunksOutput{
		Vectors:      vectors,
		ProviderName: info.Name,
		Model:        info.Model,
	}, nil
}

func (a *Activities) IndexChunksActivity(ctx context.Context, in IndexChunksInput) error {
	if len(in.Chunks) != len(in.Vectors) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("index: %d chunks but %d vectors", len(in.Chunks), len(in.Vectors)), "InvalidInput", nil)
	}
	points := make([]vector.Point, 0, len(in.Chunks))
	for i, c := range in.Chunks {
		points = append(points, vector.Point{Chunk: c, Vector: in.Vectors[i]})
	}
	return a.index.Upsert(ctx, points)
}

func (a *Activities) UpdateDocumentStatusActivity(ctx context.Context, in UpdateDocumentStatusInput) error {
	if in.Status == models.DocumentIndexed {
		if err := a.docs.UpdateCounts(ctx, in.DocID, in.Pages, in.Chunks); err != nil {
			return err
		}
	}
	return a.docs.UpdateStatus(ctx, in.DocID, in.Status, in.FailReason)
}

func (a *Activities) LogLLMCallActivity(ctx context.Context, in LogLLMCallInput) error {
	return a.audit.Insert(ctx, storage.LLMCallRecord{
		Operation:    in.Operation,
		DocID:        in.DocID,
		ProviderName: in.ProviderName,
		Model:        in.Model,
		Status:       in.Status,
		ErrorType:    in.ErrorType,
		LatencyMs:    in.LatencyMs,
	})
}

func (a *Activities) WriteIngestManifestActivity(ctx context.Context, in WriteIngestManifestInput) (WriteIngestManifestOutput, error) {
	_ = ctx
	path := filepath.Join(a.cfg.DataOutRoot, "documents", in.DocID, "manifest.json")
	if err := util.WriteJSONAtomic(path, in.Manifest); err != nil {
		return WriteIngestManifestOutput{}, err
	}
	return WriteIngestManifestOutput{Path: path}, nil
}
