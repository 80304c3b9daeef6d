package rag

import "docchat/internal/models"

// Assemble builds the response. An abstained validation always yields the
// fixed text with no citations, whatever else it carries.
func Assemble(v Validation, modeUsed, modelUsed string, ret models.RetrievalResult, llmMs, totalMs int64) models.ChatResponse {
	resp := models.ChatResponse{
		Answer:    v.Answer,
		Abstained: v.Abstained,
		ModeUsed:  modeUsed,
		ModelUsed: modelUsed,
		Citations: v.Citations,
		Latency: models.Latency{
			EmbedMs:  ret.EmbedMs,
			SearchMs: ret.SearchMs,
			LLMMs:    llmMs,
			TotalMs:  totalMs,
		},
	}
	if resp.Abstained {
		resp.Answer = AbstainText
		resp.Citations = []models.Citation{}
	}
	if resp.Citations == nil {
		resp.Citations = []models.Citation{}
	}
	if resp.Latency.TotalMs < resp.Latency.EmbedMs+resp.Latency.SearchMs+resp.Latency.LLMMs {
		resp.Latency.TotalMs = resp.Latency.EmbedMs + resp.Latency.SearchMs + resp.Latency.LLMMs
	}
	return resp
}
