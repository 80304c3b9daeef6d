package rag

import "docchat/internal/models"

// HasSufficientEvidence reports whether an answer may be attempted at all:
// something was retrieved and the best hit clears the threshold.
func HasSufficientEvidence(res models.RetrievalResult, minScore float64) bool {
	if len(res.Chunks) == 0 {
		return false
	}
	return res.Chunks[0].Score >= minScore
}
