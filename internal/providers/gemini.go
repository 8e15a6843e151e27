package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider talks to the Gemini REST API and supports a thinking budget.
type GeminiProvider struct {
	keyName string
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewGeminiProvider(keyName string) *GeminiProvider {
	model := strings.TrimSpace(os.Getenv("VERIXIV_GEMINI_MODEL"))
	if model == "" {
		model = "gemini-2.5-flash"
	}
	baseURL := strings.TrimSpace(os.Getenv("VERIXIV_GEMINI_BASE_URL"))
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &GeminiProvider{
		keyName: keyName,
		apiKey:  resolveGeminiKey(keyName),
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

func (g *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	model := pickModel(req.Model, "gemini", g.model)
	info := ProviderInfo{Name: "gemini", Model: model, Key: g.keyName}
	if g.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("gemini key missing for alias %q", g.keyName)
	}
	body := map[string]any{
		"contents": []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.ThinkingBudget > 0 {
		body["generationConfig"] = map[string]any{
			"thinkingConfig": map[string]any{"thinkingBudget": req.ThinkingBudget},
		}
	}
	raw, err := g.post(ctx, model, "generateContent", body)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("gemini generate: %w", err)
	}
	var parsed struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return GenerateResponse{}, info, fmt.Errorf("gemini returned empty candidates")
	}
	var b strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return GenerateResponse{Text: b.String()}, info, nil
}

func (g *GeminiProvider) CountTokens(ctx context.Context, req CountTokensRequest) (int, error) {
	if g.apiKey == "" {
		return 0, fmt.Errorf("gemini key missing for alias %q", g.keyName)
	}
	model := pickModel(req.Model, "gemini", g.model)
	raw, err := g.post(ctx, model, "countTokens", map[string]any{
		"contents": []geminiContent{{Parts: []geminiPart{{Text: req.Text}}}},
	})
	if err != nil {
		return 0, fmt.Errorf("gemini count tokens: %w", err)
	}
	var parsed struct {
		TotalTokens int `json:"totalTokens"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, fmt.Errorf("decode gemini token count: %w", err)
	}
	return parsed.TotalTokens, nil
}

func (g *GeminiProvider) post(ctx context.Context, model, method string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:%s", g.baseURL, url.PathEscape(model), method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gemini error %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func resolveGeminiKey(alias string) string {
	if alias != "" {
		if v := os.Getenv("VERIXIV_GEMINI_KEY_" + strings.ToUpper(sanitizeEnvToken(alias))); v != "" {
			return v
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		return v
	}
	return os.Getenv("GOOGLE_API_KEY")
}
