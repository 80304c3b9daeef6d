package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"docchat/internal/models"
	"docchat/internal/providers"
)

const (
	DefaultBriefQuestion = "Summarize the key points."
	studioContextChars   = 8000
	studioTopK           = 20
	MinFlashcards        = 3
	MaxFlashcards        = 20
)

type BriefRequest struct {
	DocID    string
	Question string
	Mode     string
}

type BriefResult struct {
	Brief     string            `json:"brief"`
	Abstained bool              `json:"abstained"`
	Citations []models.Citation `json:"citations"`
	ModelUsed string            `json:"model_used"`
}

type FlashcardsRequest struct {
	DocID string
	Count int
	Mode  string
}

type FlashcardsResult struct {
	Cards     []models.Flashcard `json:"cards"`
	Abstained bool               `json:"abstained"`
	ModelUsed string             `json:"model_used"`
}

func studioMode(raw string) (providers.Mode, error) {
	if strings.TrimSpace(raw) == "" {
		return providers.ModeQuality, nil
	}
	mode, err := providers.ParseMode(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	return mode, nil
}

// studioRetrieve pulls a wide, unthresholded candidate set for study material.
func (p *Pipeline) studioRetrieve(ctx context.Context, question, docID string) (models.RetrievalResult, error) {
	topK := studioTopK
	if limit := p.retriever.MaxTopK(); topK > limit {
		topK = limit
	}
	return p.retriever.Retrieve(ctx, RetrieveRequest{Question: question, DocID: docID, TopK: topK, MinScore: 0})
}

const briefSystemPrompt = `Create a clear, structured brief using ONLY the context below.
- Use short sections with headings.
- When you rely on a passage, copy its tag exactly as provided, e.g. [DOC=...|PAGE=...|CHUNK=...]
- If the context is insufficient, say what is missing.`

// Brief writes study notes over the retrieved chunks. Markers are optional, but
// one that does not resolve discards the brief.
func (p *Pipeline) Brief(ctx context.Context, req BriefRequest) (BriefResult, error) {
	mode, err := studioMode(req.Mode)
	if err != nil {
		return BriefResult{}, err
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		question = DefaultBriefQuestion
	}
	ret, err := p.studioRetrieve(ctx, question, req.DocID)
	if err != nil {
		return BriefResult{}, err
	}
	if len(ret.Chunks) == 0 {
		return BriefResult{Brief: AbstainText, Abstained: true, Citations: []models.Citation{}, ModelUsed: p.gen.PrimaryModel(mode)}, nil
	}

	user := "QUESTION:\n" + question + "\n\nCONTEXT:\n" + contextBlocks(ret.Chunks, studioContextChars) + "\n\nBRIEF:\n"
	out, info, err := p.gen.Generate(ctx, mode, providers.GenerateRequest{Operation: "brief", System: briefSystemPrompt, Prompt: user})
	if err != nil {
		return BriefResult{}, upstream("generate brief", err)
	}
	v := ValidateCitations(out.Text, ret.Chunks, false)
	p.log.Info("brief generated", "mode", mode, "model", modelName(info), "abstained", v.Abstained, "abstain_reason", v.Reason, "citations", len(v.Citations))
	return BriefResult{Brief: v.Answer, Abstained: v.Abstained, Citations: v.Citations, ModelUsed: modelName(info)}, nil
}

func flashcardsPrompt(count int) string {
	return fmt.Sprintf(`Create exactly %d flashcards from the context below.
Do NOT use markdown code fences.
Return STRICT JSON with this format:
{"cards":[{"q":"...","a":"..."}, ...]}
Answers may end with the tag of the passage they come from, copied exactly as provided.`, count)
}

func (p *Pipeline) Flashcards(ctx context.Context, req FlashcardsRequest) (FlashcardsResult, error) {
	if req.Count < MinFlashcards || req.Count > MaxFlashcards {
		return FlashcardsResult{}, fmt.Errorf("%w: count must be between %d and %d", ErrInvalidInput, MinFlashcards, MaxFlashcards)
	}
	mode, err := studioMode(req.Mode)
	if err != nil {
		return FlashcardsResult{}, err
	}
	ret, err := p.studioRetrieve(ctx, DefaultBriefQuestion, req.DocID)
	if err != nil {
		return FlashcardsResult{}, err
	}
	if len(ret.Chunks) == 0 {
		return FlashcardsResult{Cards: []models.Flashcard{}, Abstained: true, ModelUsed: p.gen.PrimaryModel(mode)}, nil
	}

	user := "CONTEXT:\n" + contextBlocks(ret.Chunks, studioContextChars) + "\n\nJSON:\n"
	out, info, err := p.gen.Generate(ctx, mode, providers.GenerateRequest{Operation: "flashcards", System: flashcardsPrompt(req.Count), Prompt: user})
	if err != nil {
		return FlashcardsResult{}, upstream("generate flashcards", err)
	}

	cards := parseFlashcards(out.Text, req.Count)
	for _, c := range cards {
		if ValidateCitations(c.Q+"\n"+c.A, ret.Chunks, false).Abstained {
			cards = nil
			break
		}
	}
	if cards == nil {
		cards = []models.Flashcard{}
	}
	p.log.Info("flashcards generated", "mode", mode, "model", modelName(info), "cards", len(cards))
	return FlashcardsResult{Cards: cards, Abstained: len(cards) == 0, ModelUsed: modelName(info)}, nil
}

// parseFlashcards reads {"cards":[{"q","a"}]} out of a completion that may be
// wrapped in prose or code fences. Anything unreadable yields no cards.
func parseFlashcards(raw string, limit int) []models.Flashcard {
	obj := extractJSONObject(raw)
	if obj == "" {
		return nil
	}
	var payload struct {
		Cards []models.Flashcard `json:"cards"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil
	}
	out := make([]models.Flashcard, 0, len(payload.Cards))
	for _, c := range payload.Cards {
		q, a := strings.TrimSpace(c.Q), strings.TrimSpace(c.A)
		if q == "" || a == "" {
			continue
		}
		out = append(out, models.Flashcard{Q: q, A: a})
		if len(out) == limit {
			break
		}
	}
	return out
}

func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	var kept []string
	inFence := false
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			kept = append(kept, line)
		}
	}
	if out := strings.TrimSpace(strings.Join(kept, "\n")); out != "" {
		return out
	}
	return s
}

func extractJSONObject(s string) string {
	s = strings.TrimSpace(stripFences(s))
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
