package providers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// GroqProvider supports LLM generation via Groq's OpenAI-compatible API.
type GroqProvider struct {
	keyName string
	apiKey  string
	model   string
	client  *http.Client
}

func NewGroqProvider(keyName string) *GroqProvider {
	model := os.Getenv("VERIXIV_GROQ_MODEL")
	if strings.TrimSpace(model) == "" {
		model = "llama-3.1-8b-instant"
	}
	return &GroqProvider{
		keyName: keyName,
		apiKey:  resolveGroqKey(keyName),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *GroqProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	// Groq serves its own model catalogue, so a Gemini-style model id is ignored.
	info := ProviderInfo{Name: "groq", Key: g.keyName, Model: g.model}
	if g.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("groq key missing for alias %q", g.keyName)
	}
	text, err := chatCompletion(ctx, g.client, "https://api.groq.com/openai/v1/chat/completions", g.apiKey, g.model, req.Prompt)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("groq generate: %w", err)
	}
	return GenerateResponse{Text: text}, info, nil
}

func (g *GroqProvider) CountTokens(_ context.Context, req CountTokensRequest) (int, error) {
	return EstimateTokens(req.Text), nil
}

func resolveGroqKey(alias string) string {
	if alias != "" {
		if v := os.Getenv("VERIXIV_GROQ_KEY_" + strings.ToUpper(sanitizeEnvToken(alias))); v != "" {
			return v
		}
	}
	return os.Getenv("GROQ_API_KEY")
}
