package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// GroqProvider supports generation via Groq's OpenAI-compatible API.
type GroqProvider struct {
	keyName string
	apiKey  string
	model   string
	client  *openai.Client
}

func NewGroqProvider(keyName string) *GroqProvider {
	model := os.Getenv("DOCCHAT_GROQ_MODEL")
	if strings.TrimSpace(model) == "" {
		model = "llama-3.1-8b-instant"
	}
	baseURL := os.Getenv("DOCCHAT_GROQ_BASE_URL")
	if strings.TrimSpace(baseURL) == "" {
		baseURL = groqBaseURL
	}
	apiKey := resolveGroqKey(keyName)
	return &GroqProvider{
		keyName: keyName,
		apiKey:  apiKey,
		model:   model,
		client:  newOpenAIClient(apiKey, baseURL),
	}
}

func (g *GroqProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "groq", Key: g.keyName, Model: g.model}
	if g.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("groq key missing for alias %q", g.keyName)
	}
	text, err := chatCompletion(ctx, g.client, g.model, req)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("groq generate: %w", err)
	}
	return GenerateResponse{Text: text}, info, nil
}

func (g *GroqProvider) Model() string { return g.model }

func (g *GroqProvider) Health(context.Context) error {
	if g.apiKey == "" {
		return fmt.Errorf("groq key missing for alias %q", g.keyName)
	}
	return nil
}

func resolveGroqKey(alias string) string {
	if alias != "" {
		if v := os.Getenv("DOCCHAT_GROQ_KEY_" + sanitizeEnvToken(alias)); v != "" {
			return v
		}
	}
	return os.Getenv("GROQ_API_KEY")
}
