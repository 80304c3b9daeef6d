package rag

import (
	"context"
	"errors"
	"testing"

	"docchat/internal/models"
	"docchat/internal/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBriefDefaultsAndCitations(t *testing.T) {
	f := newPipelineFixture(policyChunk(), shippingChunk())
	f.gen.text = "## Refunds\nWithin 30 days [DOC=policy.pdf|PAGE=2|CHUNK=1]."

	res, err := f.p.Brief(context.Background(), BriefRequest{})
	require.NoError(t, err)
	assert.False(t, res.Abstained)
	require.Len(t, res.Citations, 1)
	assert.Equal(t, providers.ModeQuality, f.gen.modes[0])
	assert.Contains(t, f.gen.requests[0].Prompt, "QUESTION:\n"+DefaultBriefQuestion)
	assert.Equal(t, 20, f.idx.topKs[0])
}

func TestBriefWithoutMarkersIsAccepted(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	f.gen.text = "Refund policy overview."
	res, err := f.p.Brief(context.Background(), BriefRequest{Question: "refunds", Mode: "fast"})
	require.NoError(t, err)
	assert.False(t, res.Abstained)
	assert.Equal(t, "Refund policy overview.", res.Brief)
	assert.NotNil(t, res.Citations)
}

func TestBriefInvalidMarkerAbstains(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	f.gen.text = "Overview [DOC=other.pdf|PAGE=1|CHUNK=0]."
	res, err := f.p.Brief(context.Background(), BriefRequest{})
	require.NoError(t, err)
	assert.True(t, res.Abstained)
	assert.Equal(t, AbstainText, res.Brief)
}

func TestBriefWithoutDocumentsAbstains(t *testing.T) {
	f := newPipelineFixture()
	res, err := f.p.Brief(context.Background(), BriefRequest{})
	require.NoError(t, err)
	assert.True(t, res.Abstained)
	assert.Empty(t, f.gen.requests)
}

func TestFlashcardsCountBounds(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	for _, n := range []int{0, 2, 21} {
		_, err := f.p.Flashcards(context.Background(), FlashcardsRequest{Count: n})
		require.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestFlashcardsParsesFencedJSON(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	f.gen.text = "Here you go:\n```json\n{\"cards\":[{\"q\":\"Refund window?\",\"a\":\"30 days [DOC=policy.pdf|PAGE=2|CHUNK=1]\"},{\"q\":\" \",\"a\":\"skip\"},{\"q\":\"Shipping?\",\"a\":\"Two days\"},{\"q\":\"Extra\",\"a\":\"cut\"},{\"q\":\"More\",\"a\":\"cut\"}]}\n```"
	res, err := f.p.Flashcards(context.Background(), FlashcardsRequest{Count: 3})
	require.NoError(t, err)
	assert.False(t, res.Abstained)
	require.Len(t, res.Cards, 3)
	assert.Equal(t, "Refund window?", res.Cards[0].Q)
	assert.Equal(t, "Shipping?", res.Cards[1].Q)
	assert.Contains(t, f.gen.requests[0].System, "exactly 3 flashcards")
}

func TestFlashcardsFabricatedMarkerAbstains(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	f.gen.text = `{"cards":[{"q":"Q","a":"A [DOC=nope.pdf|PAGE=1|CHUNK=1]"}]}`
	res, err := f.p.Flashcards(context.Background(), FlashcardsRequest{Count: 5})
	require.NoError(t, err)
	assert.True(t, res.Abstained)
	assert.Empty(t, res.Cards)
	assert.NotNil(t, res.Cards)
}

func TestFlashcardsUnparseable(t *testing.T) {
	assert.Empty(t, parseFlashcards("no json here", 5))
	assert.Empty(t, parseFlashcards("{not json}", 5))
	assert.Equal(t, []models.Flashcard{{Q: "a", A: "b"}}, parseFlashcards(`{"cards":[{"q":"a","a":"b"}]}`, 5))
}

func TestFlashcardsUpstreamError(t *testing.T) {
	f := newPipelineFixture(policyChunk())
	f.gen.err = errors.New("503 service unavailable")
	_, err := f.p.Flashcards(context.Background(), FlashcardsRequest{Count: 5})
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestSummarize(t *testing.T) {
	f := newPipelineFixture()
	f.gen.text = "  The user asked about refunds.  "
	f.sessions.known["s1"] = models.SessionContext{}
	f.sessions.messages["s1"] = turns(2)

	summary, err := f.p.Summarize(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "The user asked about refunds.", summary)
	assert.Equal(t, summary, f.sessions.summaries["s1"])
	assert.Contains(t, f.gen.requests[0].Prompt, "User: question a\nAssistant: answer a")
	assert.Equal(t, "summary", f.gen.requests[0].Operation)
}

func TestSummarizeEmptyAndMissing(t *testing.T) {
	f := newPipelineFixture()
	f.sessions.known["s1"] = models.SessionContext{}
	summary, err := f.p.Summarize(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, summary)
	assert.Empty(t, f.gen.requests)

	_, err = f.p.Summarize(context.Background(), "nope")
	require.ErrorIs(t, err, ErrSessionNotFound)
}
