package rag

import (
	"context"
	"errors"
	"sync"
	"time"

	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/storage"
	"docchat/internal/vector"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeEmbedder struct {
	clock *fakeClock
	cost  time.Duration
	errs  []error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	f.calls++
	if f.clock != nil {
		f.clock.Advance(f.cost)
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, providers.ProviderInfo{}, err
		}
	}
	out := make([][]float32, len(req.Inputs))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, providers.ProviderInfo{Name: "fake", Model: "fake-embed"}, nil
}

type fakeIndex struct {
	hits    []models.RetrievedChunk
	errs    []error
	calls   int
	filters []vector.Filter
	topKs   []int
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, topK int, flt vector.Filter) ([]models.RetrievedChunk, error) {
	f.calls++
	f.filters = append(f.filters, flt)
	f.topKs = append(f.topKs, topK)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make([]models.RetrievedChunk, len(f.hits))
	copy(out, f.hits)
	return out, nil
}

func (f *fakeIndex) Upsert(context.Context, []vector.Point) error { return nil }

func (f *fakeIndex) DeleteByDocument(context.Context, string) error { return nil }

type fakeGenerator struct {
	text     string
	info     providers.ProviderInfo
	err      error
	primary  string
	requests []providers.GenerateRequest
	modes    []providers.Mode
}

func (f *fakeGenerator) Generate(_ context.Context, mode providers.Mode, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	f.requests = append(f.requests, req)
	f.modes = append(f.modes, mode)
	if f.err != nil {
		return providers.GenerateResponse{}, f.info, f.err
	}
	return providers.GenerateResponse{Text: f.text}, f.info, nil
}

func (f *fakeGenerator) PrimaryModel(mode providers.Mode) string {
	if f.primary != "" {
		return f.primary + "-" + string(mode)
	}
	return "primary-" + string(mode)
}

type appendedTurn struct {
	sessionID, question, answer string
}

type fakeSessions struct {
	known     map[string]models.SessionContext
	messages  map[string][]models.Message
	appended  []appendedTurn
	appendErr error
	summaries map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		known:     map[string]models.SessionContext{},
		messages:  map[string][]models.Message{},
		summaries: map[string]string{},
	}
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (models.Session, error) {
	if _, ok := f.known[id]; !ok {
		return models.Session{}, storage.ErrNotFound
	}
	return models.Session{SessionID: id}, nil
}

func (f *fakeSessions) LoadContext(_ context.Context, id string, _ int) (models.SessionContext, error) {
	sess, ok := f.known[id]
	if !ok {
		return models.SessionContext{}, errors.Join(errors.New("session "+id), storage.ErrNotFound)
	}
	return sess, nil
}

func (f *fakeSessions) ListMessages(_ context.Context, id string, _ int) ([]models.Message, error) {
	return f.messages[id], nil
}

func (f *fakeSessions) AppendTurn(_ context.Context, id, q, a string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, appendedTurn{sessionID: id, question: q, answer: a})
	return nil
}

func (f *fakeSessions) UpsertSummary(_ context.Context, id, summary string) error {
	f.summaries[id] = summary
	return nil
}

type fakeAudit struct {
	records []storage.LLMCallRecord
}

func (f *fakeAudit) Insert(_ context.Context, rec storage.LLMCallRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func policyChunk() models.RetrievedChunk {
	return models.RetrievedChunk{
		Chunk: models.Chunk{
			ChunkID:    "c-policy-2-1",
			DocID:      "d-policy",
			DocName:    "policy.pdf",
			PageNumber: 2,
			ChunkIndex: 1,
			Text:       "Customers may request a refund within 30 days of purchase.",
		},
		Score: 0.82,
		Rank:  1,
	}
}

func shippingChunk() models.RetrievedChunk {
	return models.RetrievedChunk{
		Chunk: models.Chunk{
			ChunkID:    "c-policy-3-0",
			DocID:      "d-policy",
			DocName:    "policy.pdf",
			PageNumber: 3,
			ChunkIndex: 0,
			Text:       "Orders ship within two business days.",
		},
		Score: 0.61,
		Rank:  2,
	}
}
