package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OpenAIProvider uses the OpenAI chat completions API when keys are configured.
type OpenAIProvider struct {
	keyName string
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewOpenAIProvider(keyName string) *OpenAIProvider {
	model := strings.TrimSpace(os.Getenv("VERIXIV_OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := strings.TrimSpace(os.Getenv("VERIXIV_OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		keyName: keyName,
		apiKey:  resolveOpenAIKey(keyName),
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (o *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	model := o.model
	if isOpenAIModel(req.Model) {
		model = req.Model
	}
	info := ProviderInfo{Name: "openai", Model: model, Key: o.keyName}
	if o.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("openai key missing for alias %q", o.keyName)
	}
	text, err := chatCompletion(ctx, o.client, o.baseURL+"/chat/completions", o.apiKey, model, req.Prompt)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("openai generate: %w", err)
	}
	return GenerateResponse{Text: text}, info, nil
}

func (o *OpenAIProvider) CountTokens(_ context.Context, req CountTokensRequest) (int, error) {
	return EstimateTokens(req.Text), nil
}

// isOpenAIModel reports whether id names an OpenAI model. Requests carry the
// configured model id, which is a Gemini id unless OpenAI is the primary.
func isOpenAIModel(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, prefix := range []string{"gpt-", "chatgpt-", "o1", "o3", "o4"} {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

func resolveOpenAIKey(alias string) string {
	if alias != "" {
		k := os.Getenv("VERIXIV_OPENAI_KEY_" + strings.ToUpper(sanitizeEnvToken(alias)))
		if k != "" {
			return k
		}
	}
	return os.Getenv("OPENAI_API_KEY")
}

// chatCompletion posts a single-turn chat to an OpenAI-compatible endpoint.
func chatCompletion(ctx context.Context, client *http.Client, endpoint, apiKey, model, prompt string) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": "You grade research papers against a reproducibility rubric. Follow the output format exactly."},
			{"role": "user", "content": prompt},
		},
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
