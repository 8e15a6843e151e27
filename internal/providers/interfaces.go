package providers

import "context"

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type GenerateRequest struct {
	Operation      string `json:"operation"`
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	ThinkingBudget int    `json:"thinking_budget"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

type CountTokensRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
	CountTokens(ctx context.Context, req CountTokensRequest) (int, error)
}
