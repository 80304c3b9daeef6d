package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"docchat/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(GenerateResponse), args.Get(1).(ProviderInfo), args.Error(2)
}

func (m *mockLLM) Model() string { return "mock-chat" }

type blockingLLM struct{}

func (blockingLLM) Model() string { return "slow" }

func (blockingLLM) Generate(ctx context.Context, _ GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	<-ctx.Done()
	return GenerateResponse{}, ProviderInfo{Name: "slow"}, ctx.Err()
}

func chainOf(providers ...LLMProvider) []NamedLLMProvider {
	out := make([]NamedLLMProvider, 0, len(providers))
	for i, p := range providers {
		name := string(rune('a' + i))
		out = append(out, NamedLLMProvider{Ref: ProviderRef{Raw: name, Name: name}, Provider: p})
	}
	return out
}

func newTestManager(fast []NamedLLMProvider, opts ManagerOptions) *Manager {
	opts.Logger = logging.Discard()
	return NewManagerWithProviders(nil, map[Mode][]NamedLLMProvider{ModeFast: fast}, opts)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFast, m)
	m, err = ParseMode(" Quality ")
	require.NoError(t, err)
	assert.Equal(t, ModeQuality, m)
	_, err = ParseMode("turbo")
	require.Error(t, err)
}

func TestGenerateFallsBackInOrder(t *testing.T) {
	first, second := new(mockLLM), new(mockLLM)
	first.On("Generate", mock.Anything, mock.Anything).Return(GenerateResponse{}, ProviderInfo{Name: "a"}, errors.New("service unavailable"))
	second.On("Generate", mock.Anything, mock.Anything).Return(GenerateResponse{Text: "ok"}, ProviderInfo{Name: "b", Model: "b-model"}, nil)

	m := newTestManager(chainOf(first, second), ManagerOptions{})
	resp, info, err := m.Generate(context.Background(), ModeFast, GenerateRequest{Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, "b-model", info.Model)
	first.AssertNumberOfCalls(t, "Generate", 1)
}

func TestQuotaFailureCoolsDownProvider(t *testing.T) {
	first, second := new(mockLLM), new(mockLLM)
	first.On("Generate", mock.Anything, mock.Anything).Return(GenerateResponse{}, ProviderInfo{}, errors.New("insufficient_quota"))
	second.On("Generate", mock.Anything, mock.Anything).Return(GenerateResponse{Text: "ok"}, ProviderInfo{Name: "b"}, nil)

	m := newTestManager(chainOf(first, second), ManagerOptions{Cooldown: time.Hour})
	for i := 0; i < 3; i++ {
		_, _, err := m.Generate(context.Background(), ModeFast, GenerateRequest{})
		require.NoError(t, err)
	}
	first.AssertNumberOfCalls(t, "Generate", 1)
	second.AssertNumberOfCalls(t, "Generate", 3)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, _, err := m.Generate(context.Background(), ModeFast, GenerateRequest{})
	require.NoError(t, err)
	first.AssertNumberOfCalls(t, "Generate", 2)
}

func TestContextLengthStopsChain(t *testing.T) {
	first, second := new(mockLLM), new(mockLLM)
	first.On("Generate", mock.Anything, mock.Anything).Return(GenerateResponse{}, ProviderInfo{}, errors.New("prompt too long"))

	m := newTestManager(chainOf(first, second), ManagerOptions{})
	_, _, err := m.Generate(context.Background(), ModeFast, GenerateRequest{})
	require.ErrorIs(t, err, ErrProvidersExhausted)
	second.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestPerAttemptTimeoutMovesToNextProvider(t *testing.T) {
	second := new(mockLLM)
	second.On("Generate", mock.Anything, mock.Anything).Return(GenerateResponse{Text: "late but fine"}, ProviderInfo{Name: "b"}, nil)

	m := newTestManager(chainOf(blockingLLM{}, second), ManagerOptions{GenerateTimeout: 20 * time.Millisecond})
	resp, _, err := m.Generate(context.Background(), ModeFast, GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "late but fine", resp.Text)
}

func TestCancelledCallerStopsChain(t *testing.T) {
	second := new(mockLLM)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := newTestManager(chainOf(blockingLLM{}, second), ManagerOptions{})
	_, _, err := m.Generate(ctx, ModeFast, GenerateRequest{})
	require.ErrorIs(t, err, context.Canceled)
	second.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestUnknownModeAndDefaults(t *testing.T) {
	m := newTestManager(nil, ManagerOptions{})
	_, _, err := m.Generate(context.Background(), Mode("turbo"), GenerateRequest{})
	require.Error(t, err)
	assert.Equal(t, "mock-llm-v1", m.PrimaryModel(ModeQuality))
	assert.Equal(t, 1, m.EmbedCount())

	vecs, info, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"a"}, Dimension: 4})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Len(t, vecs[0], 4)
	assert.Equal(t, "mock", info.Name)
}

func TestPrimaryModelIsTheChatModelGenerateReports(t *testing.T) {
	t.Setenv("DOCCHAT_GROQ_MODEL", "")
	t.Setenv("DOCCHAT_OPENAI_MODEL", "")
	ollamaProvider, err := NewOllamaProvider("http://127.0.0.1:1", "phi3:mini", false)
	require.NoError(t, err)

	cases := []struct {
		ref      string
		provider LLMProvider
		want     string
	}{
		{"groq", NewGroqProvider(""), "llama-3.1-8b-instant"},
		{"openai:team", NewOpenAIProvider("team"), "gpt-4o-mini"},
		{"ollama:phi3:mini", ollamaProvider, "phi3:mini"},
		{"mock", NewMockProvider(4), "mock-llm-v1"},
	}
	for _, tc := range cases {
		ref := ParseProviderList(tc.ref)[0]
		m := NewManagerWithProviders(nil, map[Mode][]NamedLLMProvider{
			ModeFast: {{Ref: ref, Provider: tc.provider}},
		}, ManagerOptions{Logger: logging.Discard()})
		assert.Equal(t, tc.want, m.PrimaryModel(ModeFast), tc.ref)
		assert.NotContains(t, m.PrimaryModel(ModeFast), "team", tc.ref)
	}
}

func TestHealthReportsPrimaryBackends(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DOCCHAT_OPENAI_KEY_TEAM", "")
	m := NewManagerWithProviders(nil, map[Mode][]NamedLLMProvider{
		ModeQuality: {{Ref: ParseProviderList("openai:team")[0], Provider: NewOpenAIProvider("team")}},
	}, ManagerOptions{Logger: logging.Discard()})

	got := m.Health(context.Background())
	require.Len(t, got, 3)
	assert.Equal(t, ProviderHealth{Role: "embed", Provider: "mock", OK: true}, got[0])
	assert.Equal(t, ProviderHealth{Role: "fast", Provider: "mock", Model: "mock-llm-v1", OK: true}, got[1])
	assert.Equal(t, "quality", got[2].Role)
	assert.Equal(t, "gpt-4o-mini", got[2].Model)
	assert.False(t, got[2].OK)
	assert.Contains(t, got[2].Error, "key missing")
}
