package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"docchat/internal/config"

	"github.com/charmbracelet/log"
)

// Mode selects one of the configured generation chains.
type Mode string

const (
	ModeFast    Mode = "fast"
	ModeQuality Mode = "quality"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFast:
		return ModeFast, nil
	case ModeQuality:
		return ModeQuality, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

type ManagerOptions struct {
	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration
	Cooldown        time.Duration
	Logger          *log.Logger
}

// Manager owns the ordered provider chains. Each mode is a closed list tried
// in order; the first success wins.
type Manager struct {
	embedProviders []NamedEmbedProvider
	chains         map[Mode][]NamedLLMProvider
	opts           ManagerOptions
	log            *log.Logger
	now            func() time.Time

	mu            sync.Mutex
	disabledUntil map[string]time.Time
}

func NewManager(cfg config.Config, logger *log.Logger) (*Manager, error) {
	embed := make([]NamedEmbedProvider, 0)
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg, true)
		if err != nil {
			return nil, err
		}
		e, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		embed = append(embed, NamedEmbedProvider{Ref: ref, Provider: e})
	}

	chains := map[Mode][]NamedLLMProvider{}
	for mode, raw := range map[Mode]string{ModeFast: cfg.FastProviders, ModeQuality: cfg.QualityProviders} {
		for _, ref := range ParseProviderList(raw) {
			p, err := buildProvider(ref, cfg, false)
			if err != nil {
				return nil, err
			}
			l, ok := p.(LLMProvider)
			if !ok {
				return nil, fmt.Errorf("provider %s does not support generation", ref.Raw)
			}
			chains[mode] = append(chains[mode], NamedLLMProvider{Ref: ref, Provider: l})
		}
	}

	return NewManagerWithProviders(embed, chains, ManagerOptions{
		EmbedTimeout:    cfg.EmbedTimeout(),
		GenerateTimeout: cfg.LLMTimeout(),
		Cooldown:        cfg.ProviderCooldown(),
		Logger:          logger,
	}), nil
}

func NewManagerWithProviders(embed []NamedEmbedProvider, chains map[Mode][]NamedLLMProvider, opts ManagerOptions) *Manager {
	if len(embed) == 0 {
		embed = []NamedEmbedProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(0)}}
	}
	if chains == nil {
		chains = map[Mode][]NamedLLMProvider{}
	}
	for _, mode := range []Mode{ModeFast, ModeQuality} {
		if len(chains[mode]) == 0 {
			chains[mode] = []NamedLLMProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(0)}}
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		embedProviders: embed,
		chains:         chains,
		opts:           opts,
		log:            logger.With("component", "providers"),
		now:            time.Now,
		disabledUntil:  map[string]time.Time{},
	}
}

// Embed runs the embedding chain. Each attempt gets its own timeout.
func (m *Manager) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	var lastErr error
	for _, p := range m.embedProviders {
		key := "embed/" + p.Ref.Raw
		if m.isDisabled(key) {
			continue
		}
		vecs, info, err := callWithTimeout(ctx, m.opts.EmbedTimeout, func(c context.Context) ([][]float32, ProviderInfo, error) {
			return p.Provider.Embed(c, req)
		})
		if err == nil && len(vecs) == len(req.Inputs) {
			return vecs, info, nil
		}
		if err == nil {
			err = fmt.Errorf("provider %s returned %d vectors for %d inputs", p.Ref.Raw, len(vecs), len(req.Inputs))
		}
		lastErr = err
		if stop := m.afterFailure(ctx, key, p.Ref, req.Operation, err); stop {
			break
		}
	}
	return nil, ProviderInfo{}, exhausted("embed", lastErr)
}

// Generate runs the chain configured for mode. The returned ProviderInfo names
// the backend that actually produced the text.
func (m *Manager) Generate(ctx context.Context, mode Mode, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	chain, ok := m.chains[mode]
	if !ok {
		return GenerateResponse{}, ProviderInfo{}, fmt.Errorf("unknown mode %q", mode)
	}
	var lastErr error
	for _, p := range chain {
		key := string(mode) + "/" + p.Ref.Raw
		if m.isDisabled(key) {
			continue
		}
		resp, info, err := callWithTimeout(ctx, m.opts.GenerateTimeout, func(c context.Context) (GenerateResponse, ProviderInfo, error) {
			return p.Provider.Generate(c, req)
		})
		if err == nil {
			return resp, info, nil
		}
		lastErr = err
		if stop := m.afterFailure(ctx, key, p.Ref, req.Operation, err); stop {
			break
		}
	}
	return GenerateResponse{}, ProviderInfo{}, exhausted(string(mode), lastErr)
}

// PrimaryModel is the model a mode tries first; reported when no model ran.
func (m *Manager) PrimaryModel(mode Mode) string {
	chain := m.chains[mode]
	if len(chain) == 0 {
		return ""
	}
	return chain[0].Provider.Model()
}

// ProviderHealth describes the first backend of one chain.
type ProviderHealth struct {
	Role     string `json:"role"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

// Health checks the primary embed backend and the primary backend of each mode.
func (m *Manager) Health(ctx context.Context) []ProviderHealth {
	type target struct {
		role  string
		ref   ProviderRef
		model string
		p     any
	}
	targets := []target{{role: "embed", ref: m.embedProviders[0].Ref, p: m.embedProviders[0].Provider}}
	for _, mode := range []Mode{ModeFast, ModeQuality} {
		first := m.chains[mode][0]
		targets = append(targets, target{role: string(mode), ref: first.Ref, model: first.Provider.Model(), p: first.Provider})
	}

	out := make([]ProviderHealth, 0, len(targets))
	for _, t := range targets {
		h := ProviderHealth{Role: t.role, Provider: t.ref.Name, Model: t.model, OK: true}
		if hc, ok := t.p.(HealthChecker); ok {
			cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if err := hc.Health(cctx); err != nil {
				h.OK = false
				h.Error = err.Error()
			}
			cancel()
		}
		out = append(out, h)
	}
	return out
}

func (m *Manager) EmbedProviderByIndex(i int) (EmbeddingProvider, ProviderRef) {
	if i < 0 || i >= len(m.embedProviders) {
		i = 0
	}
	return m.embedProviders[i].Provider, m.embedProviders[i].Ref
}

func (m *Manager) EmbedCount() int {
	return len(m.embedProviders)
}

// afterFailure records the failure and reports whether the chain should stop.
func (m *Manager) afterFailure(ctx context.Context, key string, ref ProviderRef, op string, err error) bool {
	errType := ClassifyError(err)
	m.log.Warn("provider call failed", "provider", ref.Raw, "operation", op, "error_type", errType, "err", err)
	if ctx.Err() != nil {
		return true
	}
	switch errType {
	case ErrorQuota:
		m.disable(key, m.opts.Cooldown)
	case ErrorContext, ErrorCanceled:
		return true
	}
	return false
}

func (m *Manager) isDisabled(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.disabledUntil[key]
	if !ok {
		return false
	}
	if m.now().After(until) {
		delete(m.disabledUntil, key)
		return false
	}
	return true
}

func (m *Manager) disable(key string, d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.disabledUntil[key] = m.now().Add(d)
	m.mu.Unlock()
}

func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, ProviderInfo, error)) (T, ProviderInfo, error) {
	if d <= 0 {
		return fn(ctx)
	}
	c, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(c)
}

func exhausted(what string, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("%w: %s: every provider is cooling down", ErrProvidersExhausted, what)
	}
	if errors.Is(lastErr, context.Canceled) {
		return fmt.Errorf("%s: %w", what, lastErr)
	}
	return fmt.Errorf("%w: %s: %w", ErrProvidersExhausted, what, lastErr)
}

func buildProvider(ref ProviderRef, cfg config.Config, embed bool) (any, error) {
	switch ref.Name {
	case "mock":
		return NewMockProvider(cfg.EmbedDim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(cfg.OllamaBaseURL, ref.KeyAlias, embed)
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
