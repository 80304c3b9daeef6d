package workflows

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"docchat/internal/activities"
	"docchat/internal/ingest"
	"docchat/internal/models"
	"docchat/internal/providers"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// DocumentIngestWorkflow parses, chunks, embeds and indexes one uploaded
// document. It returns the final document status. Documents without
// extractable text end as "failed" without failing the workflow.
func DocumentIngestWorkflow(ctx workflow.Context, job models.IngestJob) (string, error) {
	progress := models.IngestProgress{
		DocID:  job.DocID,
		Stage:  StageQueued,
		Status: models.DocumentIndexing,
	}
	if err := workflow.SetQueryHandler(ctx, ingest.ProgressQuery, func() (models.IngestProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	cooldown := durationOrDefault(job.CooldownSeconds, defaultCooldownSeconds)
	providerCount := job.EmbedProviders
	if providerCount <= 0 {
		providerCount = 1
	}
	batchSize := job.EmbedBatch
	if batchSize <= 0 {
		batchSize = defaultEmbedBatch
	}
	state := newProviderState()
	retryCounts := map[string]int{}
	providersUsed := map[string]bool{}

	setStatus := func(in activities.UpdateDocumentStatusInput) error {
		in.DocID = job.DocID
		return workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", in).Get(ctx, nil)
	}
	// fail records the failure on the document row. Terminal document errors
	// finish the workflow with "failed"; anything else is returned.
	fail := func(err error) (string, error) {
		progress.Status = models.DocumentFailed
		progress.Error = failReason(err)
		if uerr := setStatus(activities.UpdateDocumentStatusInput{Status: models.DocumentFailed, FailReason: progress.Error}); uerr != nil {
			logger.Warn("mark document failed", "doc_id", job.DocID, "error", uerr)
		}
		if isDocumentError(err) {
			return progress.Status, nil
		}
		return "", err
	}

	if err := setStatus(activities.UpdateDocumentStatusInput{Status: models.DocumentIndexing}); err != nil {
		return "", err
	}

	progress.Stage = StageParse
	var parsed activities.ParseDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "ParseDocumentActivity", activities.ParseDocumentInput{DocID: job.DocID, Path: job.Path}).Get(ctx, &parsed); err != nil {
		return fail(err)
	}
	progress.Pages = len(parsed.Pages)

	progress.Stage = StageChunk
	var chunked activities.ChunkDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkDocumentActivity", activities.ChunkDocumentInput{DocID: job.DocID, DocName: job.DocName, Pages: parsed.Pages}).Get(ctx, &chunked); err != nil {
		return fail(err)
	}
	progress.ChunksTotal = len(chunked.Chunks)

	progress.Stage = StageStore
	if err := workflow.ExecuteActivity(ctx, "StoreChunksActivity", activities.StoreChunksInput{DocID: job.DocID, Chunks: chunked.Chunks}).Get(ctx, nil); err != nil {
		return fail(err)
	}

	progress.Stage = StageEmbed
	for start := 0; start < len(chunked.Chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunked.Chunks) {
			end = len(chunked.Chunks)
		}
		batch := chunked.Chunks[start:end]
		texts := make([]string, 0, len(batch))
		for _, c := range batch {
			texts = append(texts, c.Text)
		}
		embedOut, err := callEmbedWithFailover(ctx, &state, providerCount, cooldown, activities.EmbedChunksInput{
			Operation: "embed",
			DocID:     job.DocID,
			Texts:     texts,
		}, retryCounts)
		if err != nil {
			return fail(err)
		}
		providersUsed[embedOut.ProviderName] = true
		if err := workflow.ExecuteActivity(ctx, "IndexChunksActivity", activities.IndexChunksInput{Chunks: batch, Vectors: embedOut.Vectors}).Get(ctx, nil); err != nil {
			return fail(err)
		}
		progress.ChunksEmbedded = end
	}

	progress.Stage = StageManifest
	used := make([]string, 0, len(providersUsed))
	for name := range providersUsed {
		used = append(used, name)
	}
	sort.Strings(used)
	manifest := map[string]any{
		"doc_id":         job.DocID,
		"doc_name":       job.DocName,
		"pages":          progress.Pages,
		"chunks":         progress.ChunksTotal,
		"embed_batch":    batchSize,
		"providers_used": used,
		"retry_counts":   retryCounts,
		"generated_at":   workflow.Now(ctx),
	}
	if err := workflow.ExecuteActivity(ctx, "WriteIngestManifestActivity", activities.WriteIngestManifestInput{DocID: job.DocID, Manifest: manifest}).Get(ctx, nil); err != nil {
		return fail(err)
	}

	if err := setStatus(activities.UpdateDocumentStatusInput{Status: models.DocumentIndexed, Pages: progress.Pages, Chunks: progress.ChunksTotal}); err != nil {
		return fail(err)
	}
	progress.Stage = StageDone
	progress.Status = models.DocumentIndexed
	logger.Info("document indexed", "doc_id", job.DocID, "pages", progress.Pages, "chunks", progress.ChunksTotal)
	return progress.Status, nil
}

// callEmbedWithFailover rotates through the embedding providers. Quota errors
// park a provider for the cooldown, rate and transient errors back off and
// retry the same provider twice before moving on.
func callEmbedWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.EmbedChunksInput, retryCounts map[string]int) (activities.EmbedChunksOutput, error) {
	var lastErr error
	for attempt := 0; attempt < providerCount*4; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		started := workflow.Now(ctx)
		var out activities.EmbedChunksOutput
		err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", input).Get(ctx, &out)
		latency := workflow.Now(ctx).Sub(started).Milliseconds()
		if err == nil {
			_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{Operation: input.Operation, DocID: input.DocID, ProviderName: out.ProviderName, Model: out.Model, Status: "ok", LatencyMs: latency}).Get(ctx, nil)
			return out, nil
		}
		lastErr = err
		if isDocumentError(err) {
			return activities.EmbedChunksOutput{}, err
		}
		errType := providers.ClassifyError(err)
		_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{Operation: input.Operation, DocID: input.DocID, ProviderName: fmt.Sprintf("provider-%d", idx), Status: "failed", ErrorType: string(errType), LatencyMs: latency}).Get(ctx, nil)
		key := fmt.Sprintf("embed-%d", idx)
		retryCounts[key]++
		switch errType {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if retryCounts[key] <= 2 {
				_ = workflow.Sleep(ctx, time.Duration(retryCounts[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if retryCounts[key] <= 2 {
				_ = workflow.Sleep(ctx, time.Duration(retryCounts[key])*time.Second)
				attempt--
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = errors.New("all embed providers exhausted")
	}
	return activities.EmbedChunksOutput{}, lastErr
}

func isProviderDisabled(ctx workflow.Context, state *providerState, idx int) bool {
	until, ok := state.disabledUntil[idx]
	if !ok {
		return false
	}
	return workflow.Now(ctx).Before(until)
}

func disableProviderUntil(ctx workflow.Context, state *providerState, idx int, d time.Duration) {
	state.disabledUntil[idx] = workflow.Now(ctx).Add(d)
}

// isDocumentError reports failures that no retry can fix: the document itself
// is unusable or the embedding setup does not match the index.
func isDocumentError(err error) bool {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		switch appErr.Type() {
		case activities.ErrTypeNoText, activities.ErrTypeUnsupported, activities.ErrTypeDimension:
			return true
		}
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "no extractable text") || strings.Contains(e, "unsupported file type")
}

func failReason(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
