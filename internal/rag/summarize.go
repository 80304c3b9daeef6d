package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docchat/internal/providers"
	"docchat/internal/storage"
)

const summarySystemPrompt = `Summarize the conversation below in a few sentences.
Keep the questions asked, the facts established and any open points.
Do not add information that is not in the conversation.`

// Summarize compresses the session's recent turns into its rolling summary. A
// session with no turns yields "" and stores nothing.
func (p *Pipeline) Summarize(ctx context.Context, sessionID string) (string, error) {
	if p.sessions == nil {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if _, err := p.sessions.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return "", fmt.Errorf("get session: %w", err)
	}
	msgs, err := p.sessions.ListMessages(ctx, sessionID, p.opts.SummaryMaxTurns*2)
	if err != nil {
		return "", fmt.Errorf("list session messages: %w", err)
	}
	transcript := FormatTranscript(msgs)
	if transcript == "" {
		return "", nil
	}

	out, info, err := p.gen.Generate(ctx, providers.ModeFast, providers.GenerateRequest{
		Operation: "summary",
		System:    summarySystemPrompt,
		Prompt:    "CONVERSATION:\n" + transcript + "\n\nSUMMARY:\n",
	})
	if err != nil {
		return "", upstream("generate summary", err)
	}
	summary := strings.TrimSpace(out.Text)
	if err := p.sessions.UpsertSummary(ctx, sessionID, summary); err != nil {
		return "", fmt.Errorf("store summary: %w", err)
	}
	p.log.Info("session summarized", "session_id", sessionID, "messages", len(msgs), "model", modelName(info))
	return summary, nil
}
