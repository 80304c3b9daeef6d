package rag

import (
	"fmt"
	"strings"

	"docchat/internal/models"
)

// AbstainText is returned verbatim whenever the answer cannot be grounded.
const AbstainText = "I don't know based on the provided documents."

const noContext = "(no context)"

var markerNameReplacer = strings.NewReplacer("|", "_", "\n", "_", "\r", "_")

// FormatMarker renders the inline citation token for one chunk. The document
// name never carries '|' or a line break so the token always parses back.
func FormatMarker(docName string, page, chunk int) string {
	return fmt.Sprintf("[DOC=%s|PAGE=%d|CHUNK=%d]", markerNameReplacer.Replace(docName), page, chunk)
}

func markerFor(c models.RetrievedChunk) string {
	return FormatMarker(c.DocName, c.PageNumber, c.ChunkIndex)
}

type Prompt struct {
	System string
	User   string
}

var chatSystemPrompt = `You are a document-grounded assistant.

Rules you MUST follow:
1) Use ONLY the CONTEXT below. Do not use outside knowledge.
2) Every sentence in your answer MUST end with at least one citation tag exactly as provided, e.g. [DOC=...|PAGE=...|CHUNK=...]
3) If the answer is not supported by the context, respond with exactly:
` + AbstainText + `
4) Do not invent citations. Only use the provided tags.
5) Keep the answer concise and factual.
6) CONVERSATION is background only. It is never a source you may cite.`

// BuildPrompt lays out the question and every retained chunk under its marker.
// maxTurns bounds how many recent question/answer pairs are replayed when the
// session has no summary.
func BuildPrompt(question string, chunks []models.RetrievedChunk, sess models.SessionContext, maxTurns int) Prompt {
	var b strings.Builder
	if history := FormatSessionContext(sess, maxTurns); history != "" {
		b.WriteString("CONVERSATION:\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}
	b.WriteString("QUESTION:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nCONTEXT:\n")
	b.WriteString(contextBlocks(chunks, 0))
	b.WriteString("\n\nANSWER:\n")
	return Prompt{System: chatSystemPrompt, User: b.String()}
}

// contextBlocks joins marker-tagged chunk texts. A positive maxChars stops
// before the block that would cross it.
func contextBlocks(chunks []models.RetrievedChunk, maxChars int) string {
	blocks := make([]string, 0, len(chunks))
	total := 0
	for _, c := range chunks {
		block := markerFor(c) + "\n" + strings.TrimSpace(c.Text)
		if maxChars > 0 && total+len(block) > maxChars {
			break
		}
		blocks = append(blocks, block)
		total += len(block)
	}
	if len(blocks) == 0 {
		return noContext
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// FormatSessionContext prefers the rolling summary; without one it replays the
// last maxTurns question/answer pairs.
func FormatSessionContext(sess models.SessionContext, maxTurns int) string {
	if s := strings.TrimSpace(sess.Summary); s != "" {
		return "Summary of earlier conversation: " + s
	}
	if maxTurns <= 0 || len(sess.Turns) == 0 {
		return ""
	}
	turns := sess.Turns
	if limit := maxTurns * 2; len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return FormatTranscript(turns)
}

func FormatTranscript(msgs []models.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		role := "User"
		if m.Role == models.RoleAssistant {
			role = "Assistant"
		}
		lines = append(lines, role+": "+content)
	}
	return strings.Join(lines, "\n")
}
