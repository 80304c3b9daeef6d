package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

const mockAbstainText = "I don't know based on the provided documents."

var (
	mockMarkerRe  = regexp.MustCompile(`\[DOC=[^|\n]*\|PAGE=\d+\|CHUNK=\d+\]`)
	mockPassageRe = regexp.MustCompile(`(?m)^Passage \d+:`)
)

// MockProvider is deterministic and offline. Its completions cite the first
// marker found in the prompt, so the whole answer path can run without a model.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 768
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, ProviderInfo{Name: "mock", Key: "mock"}, err
	}
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	if err := ctx.Err(); err != nil {
		return GenerateResponse{}, info, err
	}
	marker := mockMarkerRe.FindString(req.Prompt)
	op := strings.ToLower(req.Operation)
	var text string
	switch {
	case op == "rerank":
		// Keeps the incoming order.
		n := len(mockPassageRe.FindAllStringIndex(req.Prompt, -1))
		scores := make([]int, n)
		for i := range scores {
			scores[i] = n - i
		}
		b, _ := json.Marshal(map[string]any{"scores": scores})
		text = string(b)
	case strings.Contains(op, "flashcard"):
		cards := []map[string]string{}
		if marker != "" {
			for i := 1; i <= 3; i++ {
				cards = append(cards, map[string]string{
					"q": fmt.Sprintf("Mock question %d?", i),
					"a": "Deterministic answer taken from the context " + marker,
				})
			}
		}
		b, _ := json.Marshal(map[string]any{"cards": cards})
		text = string(b)
	case strings.Contains(op, "summary"):
		text = "Mock summary of the conversation so far."
	case marker == "":
		text = mockAbstainText
	default:
		text = "Deterministic mock answer drawn from the retrieved context. " + marker
	}
	return GenerateResponse{Text: text}, info, nil
}

func (m *MockProvider) Model() string { return "mock-llm-v1" }

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		v := float32(u%2000)/1000.0 - 1.0
		vec[i] = v
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / (math.Sqrt(sum) + 1e-9))
	for i := range v {
		v[i] *= inv
	}
	return v
}
