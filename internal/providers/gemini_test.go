package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestGemini(t *testing.T, h http.HandlerFunc) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("VERIXIV_GEMINI_BASE_URL", srv.URL)
	return NewGeminiProvider("")
}

func TestGeminiGenerateSendsThinkingBudget(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Runtime: "},{"text":"Complete"}]}}]}`))
	})

	resp, info, err := p.Generate(context.Background(), GenerateRequest{Model: "gemini-2.5-pro", Prompt: "hi", ThinkingBudget: 2000})
	require.NoError(t, err)
	require.Equal(t, "Runtime: Complete", resp.Text)
	require.Equal(t, "gemini-2.5-pro", info.Model)
	require.Equal(t, "/models/gemini-2.5-pro:generateContent", gotPath)

	cfg := gotBody["generationConfig"].(map[string]any)
	thinking := cfg["thinkingConfig"].(map[string]any)
	require.EqualValues(t, 2000, thinking["thinkingBudget"])
}

func TestGeminiCountTokens(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, ":countTokens"))
		_, _ = w.Write([]byte(`{"totalTokens":42}`))
	})
	n, err := p.CountTokens(context.Background(), CountTokensRequest{Text: "some text"})
	require.NoError(t, err)
	require.Equal(t, 42, n)
}

func TestGeminiErrorStatusIsClassified(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"status":"RESOURCE_EXHAUSTED"}}`))
	})
	_, _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.Error(t, err)
	require.Equal(t, ErrorRate, ClassifyError(err))
}

func TestGeminiMissingKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	p := NewGeminiProvider("nokey")
	_, _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)
}
