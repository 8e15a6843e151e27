package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"verixiv/internal/config"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

// Manager holds the configured providers and fails over between them.
// It satisfies LLMProvider itself, so callers never pick a provider by hand.
type Manager struct {
	llmProviders []NamedLLMProvider
	cooldown     time.Duration
	now          func() time.Time

	mu            sync.Mutex
	disabledUntil map[int]time.Time
}

func NewManager(cfg config.Config) (*Manager, error) {
	refs := ParseProviderList(cfg.LLMProviders)
	m := &Manager{
		cooldown:      time.Duration(cfg.ProviderCooldownSecs) * time.Second,
		now:           time.Now,
		disabledUntil: map[int]time.Time{},
	}
	if m.cooldown <= 0 {
		m.cooldown = 15 * time.Minute
	}
	for _, ref := range refs {
		p, err := buildProvider(ref)
		if err != nil {
			return nil, err
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: p})
	}
	if len(m.llmProviders) == 0 {
		m.llmProviders = []NamedLLMProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider()}}
	}
	return m, nil
}

// NewManagerWith builds a manager over already constructed providers.
func NewManagerWith(providers ...NamedLLMProvider) *Manager {
	return &Manager{
		llmProviders:  providers,
		cooldown:      15 * time.Minute,
		now:           time.Now,
		disabledUntil: map[int]time.Time{},
	}
}

func (m *Manager) LLMProviderByIndex(i int) (LLMProvider, ProviderRef) {
	if len(m.llmProviders) == 0 {
		return NewMockProvider(), ProviderRef{Raw: "mock", Name: "mock"}
	}
	if i < 0 || i >= len(m.llmProviders) {
		i = 0
	}
	return m.llmProviders[i].Provider, m.llmProviders[i].Ref
}

func (m *Manager) LLMCount() int {
	return len(m.llmProviders)
}

// Primary returns the provider the manager tries first.
func (m *Manager) Primary() (LLMProvider, ProviderRef) {
	order := m.PreferredLLMOrder()
	if len(order) == 0 {
		return m.LLMProviderByIndex(0)
	}
	return m.LLMProviderByIndex(order[0])
}

func (m *Manager) PreferredLLMOrder() []int {
	return preferredOrder(len(m.llmProviders), func(i int) string { return strings.ToLower(m.llmProviders[i].Ref.Name) })
}

func preferredOrder(n int, nameAt func(i int) string) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if nameAt(i) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if nameAt(i) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

// Generate tries providers in preferred order. Quota and rate errors put a
// provider on cooldown and move on; context-length errors stop immediately.
func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	var (
		lastErr  error
		lastInfo ProviderInfo
	)
	for _, idx := range m.PreferredLLMOrder() {
		if m.isDisabled(idx) {
			continue
		}
		p := m.llmProviders[idx].Provider
		resp, info, err := p.Generate(ctx, req)
		if err == nil {
			return resp, info, nil
		}
		lastErr, lastInfo = err, info
		errType := ClassifyError(err)
		slog.Warn("llm provider failed", "provider", m.llmProviders[idx].Ref.Raw, "operation", req.Operation, "error_type", errType, "err", err)
		switch errType {
		case ErrorQuota:
			m.disable(idx, m.cooldown)
		case ErrorRate:
			m.disable(idx, 2*time.Minute)
		case ErrorContext:
			return GenerateResponse{}, info, Wrap(err)
		}
		if ctx.Err() != nil {
			return GenerateResponse{}, info, Wrap(err)
		}
	}
	if lastErr == nil {
		lastErr = errors.New("all llm providers exhausted")
	}
	return GenerateResponse{}, lastInfo, Wrap(lastErr)
}

// CountTokens asks the first available provider, so counts line up with the
// model that will most likely serve the matching Generate call.
func (m *Manager) CountTokens(ctx context.Context, req CountTokensRequest) (int, error) {
	var lastErr error
	for _, idx := range m.PreferredLLMOrder() {
		if m.isDisabled(idx) {
			continue
		}
		n, err := m.llmProviders[idx].Provider.CountTokens(ctx, req)
		if err == nil {
			return n, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("all llm providers exhausted")
	}
	return 0, fmt.Errorf("count tokens: %w", lastErr)
}

func (m *Manager) isDisabled(idx int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.disabledUntil[idx]
	if !ok {
		return false
	}
	return m.now().Before(until)
}

func (m *Manager) disable(idx int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabledUntil[idx] = m.now().Add(d)
}

func buildProvider(ref ProviderRef) (LLMProvider, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(), nil
	case "gemini":
		return NewGeminiProvider(ref.KeyAlias), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
