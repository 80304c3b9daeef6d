package rag

import (
	"regexp"
	"strconv"
	"strings"

	"docchat/internal/models"
	"docchat/internal/util"
)

type AbstainReason string

const (
	ReasonNone            AbstainReason = ""
	ReasonNoEvidence      AbstainReason = "no_evidence"
	ReasonEmptyCompletion AbstainReason = "empty_completion"
	ReasonModelAbstained  AbstainReason = "model_abstained"
	ReasonInvalidCitation AbstainReason = "invalid_citation"
	ReasonMissingCitation AbstainReason = "missing_citation"
)

const quoteRunes = 500

var (
	markerRe = regexp.MustCompile(`\[DOC=([^|\n]*?)\|PAGE=(\d+)\|CHUNK=(\d+)\]`)
	// Fragments of a marker in any case or spacing. Each must sit inside a
	// full marker match.
	nearMarkerRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\[\s*DOC\s*=`),
		regexp.MustCompile(`(?i)DOC\s*=[^\]\n]*?\|\s*PAGE`),
		regexp.MustCompile(`(?i)PAGE\s*=\s*\d+\s*\|\s*CHUNK`),
	}
)

// Validation is the outcome of checking a completion against the retained chunks.
type Validation struct {
	Answer    string
	Citations []models.Citation
	Abstained bool
	Reason    AbstainReason
}

func abstain(reason AbstainReason) Validation {
	return Validation{Answer: AbstainText, Citations: []models.Citation{}, Abstained: true, Reason: reason}
}

type markerKey struct {
	doc   string
	page  int
	chunk int
}

// ValidateCitations parses every marker in the completion and resolves it to a
// retained chunk by (doc, page, chunk). One unresolved or malformed marker
// discards the whole completion. With requireCitation set, a completion with no
// marker is only accepted when it is exactly AbstainText.
func ValidateCitations(completion string, retained []models.RetrievedChunk, requireCitation bool) Validation {
	answer := strings.TrimSpace(completion)
	if answer == "" {
		return abstain(ReasonEmptyCompletion)
	}
	if strings.HasPrefix(answer, AbstainText) {
		return abstain(ReasonModelAbstained)
	}

	matches := markerRe.FindAllStringSubmatchIndex(answer, -1)
	if hasStrayFragment(answer, matches) {
		return abstain(ReasonInvalidCitation)
	}

	byKey := make(map[markerKey]models.RetrievedChunk, len(retained))
	for _, c := range retained {
		k := markerKey{doc: markerNameReplacer.Replace(c.DocName), page: c.PageNumber, chunk: c.ChunkIndex}
		if _, exists := byKey[k]; !exists {
			byKey[k] = c
		}
	}

	citations := make([]models.Citation, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		page, err1 := strconv.Atoi(answer[m[4]:m[5]])
		chunk, err2 := strconv.Atoi(answer[m[6]:m[7]])
		if err1 != nil || err2 != nil {
			return abstain(ReasonInvalidCitation)
		}
		c, ok := byKey[markerKey{doc: answer[m[2]:m[3]], page: page, chunk: chunk}]
		if !ok {
			return abstain(ReasonInvalidCitation)
		}
		if _, dup := seen[c.ChunkID]; dup {
			continue
		}
		seen[c.ChunkID] = struct{}{}
		citations = append(citations, citationFrom(c))
	}

	if len(citations) == 0 && requireCitation {
		return abstain(ReasonMissingCitation)
	}
	return Validation{Answer: answer, Citations: citations}
}

func hasStrayFragment(answer string, matches [][]int) bool {
	for _, re := range nearMarkerRes {
		for _, f := range re.FindAllStringIndex(answer, -1) {
			inside := false
			for _, m := range matches {
				if f[0] >= m[0] && f[1] <= m[1] {
					inside = true
					break
				}
			}
			if !inside {
				return true
			}
		}
	}
	return false
}

func citationFrom(c models.RetrievedChunk) models.Citation {
	return models.Citation{
		ChunkID:    c.ChunkID,
		Score:      c.Score,
		DocID:      c.DocID,
		DocName:    c.DocName,
		PageNumber: c.PageNumber,
		ChunkIndex: c.ChunkIndex,
		Quote:      util.Truncate(strings.TrimSpace(c.Text), quoteRunes),
	}
}
