package providers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
)

// OllamaProvider serves both generation and embeddings from a local Ollama
// server. The provider alias is the model tag, e.g. ollama:phi3:mini.
type OllamaProvider struct {
	alias   string
	model   string
	baseURL string
	llm     *ollama.LLM
	http    *http.Client
}

func NewOllamaProvider(baseURL, alias string, embed bool) (*OllamaProvider, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://localhost:11434"
	}
	model := resolveOllamaChatModel(alias)
	if embed {
		model = resolveOllamaEmbedModel(alias)
	}
	baseURL = strings.TrimRight(baseURL, "/")
	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("init ollama %s: %w", model, err)
	}
	return &OllamaProvider{alias: alias, model: model, baseURL: baseURL, llm: llm, http: &http.Client{}}, nil
}

func (o *OllamaProvider) Model() string { return o.model }

// Health asks the server for its model list; langchaingo has no ping.
func (o *OllamaProvider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health returned %d", resp.StatusCode)
	}
	return nil
}

func (o *OllamaProvider) info() ProviderInfo {
	return ProviderInfo{Name: "ollama", Model: o.model, Key: o.alias}
}

func (o *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	content := make([]llms.MessageContent, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	content = append(content, llms.TextParts(schema.ChatMessageTypeHuman, req.Prompt))

	resp, err := o.llm.GenerateContent(ctx, content, llms.WithTemperature(0))
	if err != nil {
		return GenerateResponse{}, o.info(), fmt.Errorf("ollama generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return GenerateResponse{}, o.info(), fmt.Errorf("ollama returned empty choices")
	}
	return GenerateResponse{Text: resp.Choices[0].Content}, o.info(), nil
}

func (o *OllamaProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if len(req.Inputs) == 0 {
		return nil, o.info(), fmt.Errorf("no embedding inputs")
	}
	vectors, err := o.llm.CreateEmbedding(ctx, req.Inputs)
	if err != nil {
		return nil, o.info(), fmt.Errorf("ollama embedding: %w", err)
	}
	if len(vectors) != len(req.Inputs) {
		return nil, o.info(), fmt.Errorf("ollama returned %d embeddings for %d inputs", len(vectors), len(req.Inputs))
	}
	out := make([][]float32, 0, len(vectors))
	for _, v := range vectors {
		if len(v) == 0 {
			return nil, o.info(), fmt.Errorf("ollama returned empty embedding")
		}
		out = append(out, matchDimension(v, req.Dimension))
	}
	return out, o.info(), nil
}

func resolveOllamaChatModel(alias string) string {
	if alias = strings.TrimSpace(alias); alias != "" {
		return alias
	}
	if v := strings.TrimSpace(os.Getenv("DOCCHAT_OLLAMA_CHAT_MODEL")); v != "" {
		return v
	}
	return "phi3:mini"
}

func resolveOllamaEmbedModel(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias != "" {
		switch strings.ToLower(alias) {
		case "nomic":
			return "nomic-embed-text"
		case "bge":
			return "bge-small-en-v1.5"
		}
		return alias
	}
	if v := strings.TrimSpace(os.Getenv("DOCCHAT_OLLAMA_EMBED_MODEL")); v != "" {
		return v
	}
	return "nomic-embed-text"
}

// matchDimension truncates or zero-pads v so every stored vector has the
// configured column width.
func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
