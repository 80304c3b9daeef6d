package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"docchat/internal/logging"
	"docchat/internal/models"
	"docchat/internal/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	idx      *fakeIndex
	gen      *fakeGenerator
	sessions *fakeSessions
	audit    *fakeAudit
	p        *Pipeline
}

func newPipelineFixture(hits ...models.RetrievedChunk) *pipelineFixture {
	f := &pipelineFixture{
		idx:      &fakeIndex{hits: hits},
		gen:      &fakeGenerator{info: providers.ProviderInfo{Name: "ollama", Model: "phi3:mini"}},
		sessions: newFakeSessions(),
		audit:    &fakeAudit{},
	}
	r := NewRetriever(&fakeEmbedder{}, f.idx, RetrieverOptions{EmbedDim: 3, MaxTopK: 20, Logger: logging.Discard()})
	f.p = NewPipeline(r, f.gen, f.sessions, f.audit, PipelineOptions{SessionTurns: 3, Logger: logging.Discard()})
	return f
}

func refundRequest() ChatRequest {
	return ChatRequest{Question: "What is the refund window?", Mode: "fast", TopK: 5, MinScore: 0.5}
}

func TestChatRefundScenario(t *testing.T) {
	f := newPipelineFixture(policyChunk(), shippingChunk())
	f.gen.text = "You may request a refund within 30 days [DOC=policy.pdf|PAGE=2|CHUNK=1]."
	f.sessions.known["s1"] = models.SessionContext{}

	req := refundRequest()
	req.SessionID = "s1"
	resp, err := f.p.Chat(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, resp.Abstained)
	assert.Contains(t, resp.Answer, "30 days")
	assert.Contains(t, resp.Answer, "[DOC=policy.pdf|PAGE=2|CHUNK=1]")
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "policy.pdf", resp.Citations[0].DocName)
	assert.Equal(t, 2, resp.Citations[0].PageNumber)
	assert.Equal(t, 1, resp.Citations[0].ChunkIndex)
	assert.Equal(t, "fast", resp.ModeUsed)
	assert.Equal(t, "phi3:mini", resp.ModelUsed)

	require.Len(t, f.gen.requests, 1)
	assert.Equal(t, providers.ModeFast, f.gen.modes[0])
	assert.Contains(t, f.gen.requests[0].Prompt, "[DOC=policy.pdf|PAGE=2|CHUNK=1]")

	require.Len(t, f.sessions.appended, 1)
	assert.Equal(t, "What is the refund window?", f.sessions.appended[0].question)
	assert.Equal(t, resp.Answer, f.sessions.appended[0].answer)

	require.Len(t, f.audit.records, 1)
	assert.Equal(t, "ok", f.audit.records[0].Status)
	assert.False(t, f.audit.records[0].Abstained)
}

func TestChatAbstainsWithoutEvidence(t *testing.T) {
	weak := policyChunk()
	weak.Score = 0.4
	f := newPipelineFixture(weak)
	req := refundRequest()
	req.Mode = "quality"
	req.MinScore = 0.9

	resp, err := f.p.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Abstained)
	assert.Equal(t, AbstainText, resp.Answer)
	assert.Empty(t, resp.Citations)
	assert.Zero(t, resp.Latency.LLMMs)
	assert.Equal(t, "quality", resp.ModeUsed)
	assert.Equal(t, "primary-quality", resp.ModelUsed)
	assert.Empty(t, f.gen.requests)
	assert.Empty(t, f.audit.records)
}

func TestChatAbstainsOnEmptyIndex(t *testing.T) {
	f := newPipelineFixture()
	resp, err := f.p.Chat(context.Background(), refundRequest())
	require.NoError(t, err)
	assert.True(t, resp.Abstained)
	assert.Zero(t, resp.Latency.LLMMs)
}

func TestChatAbstainsOnFabricatedCitation(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	f.gen.text = "Thirty days [DOC=policy.pdf|PAGE=2|CHUNK=1]. Lifetime warranty [DOC=warranty.pdf|PAGE=1|CHUNK=0]."
	resp, err := f.p.Chat(context.Background(), refundRequest())
	require.NoError(t, err)
	assert.True(t, resp.Abstained)
	assert.Equal(t, AbstainText, resp.Answer)
	assert.Empty(t, resp.Citations)
	assert.Equal(t, "phi3:mini", resp.ModelUsed)
	require.Len(t, f.audit.records, 1)
	assert.True(t, f.audit.records[0].Abstained)
}

func TestChatAbstainsOnUncitedAnswer(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	f.gen.text = "Refunds are possible within a month."
	resp, err := f.p.Chat(context.Background(), refundRequest())
	require.NoError(t, err)
	assert.True(t, resp.Abstained)
}

func TestChatRejectsInvalidInput(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	for _, mutate := range []func(*ChatRequest){
		func(r *ChatRequest) { r.Question = "" },
		func(r *ChatRequest) { r.TopK = 0 },
		func(r *ChatRequest) { r.MinScore = 1.5 },
		func(r *ChatRequest) { r.Mode = "turbo" },
	} {
		req := refundRequest()
		mutate(&req)
		_, err := f.p.Chat(context.Background(), req)
		require.ErrorIs(t, err, ErrInvalidInput)
	}
	assert.Zero(t, f.idx.calls)
}

func TestChatModelFailureIsUpstream(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	f.gen.err = errors.New("all providers failed: fast: connection refused")
	f.sessions.known["s1"] = models.SessionContext{}
	req := refundRequest()
	req.SessionID = "s1"

	_, err := f.p.Chat(context.Background(), req)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Empty(t, f.sessions.appended)
	require.Len(t, f.audit.records, 1)
	assert.Equal(t, "error", f.audit.records[0].Status)
}

func TestChatIndexFailureIsUpstream(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	f.idx.errs = []error{errors.New("connection refused"), errors.New("connection refused")}
	_, err := f.p.Chat(context.Background(), refundRequest())
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Empty(t, f.gen.requests)
}

func TestChatUnknownSession(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	req := refundRequest()
	req.SessionID = "missing"
	_, err := f.p.Chat(context.Background(), req)
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, f.idx.calls)
}

func TestChatUsesSessionSummary(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	f.gen.text = AbstainText
	f.sessions.known["s1"] = models.SessionContext{Summary: "User asked about shipping."}
	req := refundRequest()
	req.SessionID = "s1"

	resp, err := f.p.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Abstained)
	assert.Contains(t, f.gen.requests[0].Prompt, "Summary of earlier conversation: User asked about shipping.")
	require.Len(t, f.sessions.appended, 1)
	assert.Equal(t, AbstainText, f.sessions.appended[0].answer)
}

func TestChatAppendFailureDoesNotFailResponse(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	f.gen.text = "Thirty days [DOC=policy.pdf|PAGE=2|CHUNK=1]."
	f.sessions.known["s1"] = models.SessionContext{}
	f.sessions.appendErr = errors.New("db down")
	req := refundRequest()
	req.SessionID = "s1"

	resp, err := f.p.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.Abstained)
}

func TestChatLatencyBreakdown(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	clock := newFakeClock()
	f.p.now = clock.Now
	f.p.retriever.now = clock.Now
	f.p.retriever.embedder = &fakeEmbedder{clock: clock, cost: 5 * time.Millisecond}
	f.gen.text = "Thirty days [DOC=policy.pdf|PAGE=2|CHUNK=1]."

	resp, err := f.p.Chat(context.Background(), refundRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.Latency.EmbedMs)
	assert.GreaterOrEqual(t, resp.Latency.TotalMs, resp.Latency.EmbedMs+resp.Latency.SearchMs+resp.Latency.LLMMs)
}

func TestChatWithMockProviders(t *testing.T) {
	idx := &fakeIndex{hits: []models.RetrievedChunk{policyChunk(), shippingChunk()}}
	mgr := providers.NewManagerWithProviders(nil, nil, providers.ManagerOptions{Logger: logging.Discard()})
	r := NewRetriever(mgr, idx, RetrieverOptions{EmbedDim: 8, Logger: logging.Discard()})
	p := NewPipeline(r, mgr, nil, nil, PipelineOptions{Logger: logging.Discard()})

	resp, err := p.Chat(context.Background(), refundRequest())
	require.NoError(t, err)
	assert.False(t, resp.Abstained)
	assert.Equal(t, "mock-llm-v1", resp.ModelUsed)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "c-policy-2-1", resp.Citations[0].ChunkID)
}
