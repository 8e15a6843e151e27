package providers

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"verixiv/internal/rubric"
)

// MockProvider returns a deterministic rubric so the pipeline runs without keys.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Generate(_ context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	page := req.Prompt
	if i := strings.LastIndex(page, "=== PAPER BEGINS ==="); i >= 0 {
		page = page[i:]
	}
	var b strings.Builder
	for _, field := range rubric.ReproducibilityFields {
		fmt.Fprintf(&b, "%s: %s\n", field, mockGrade(field, page))
	}
	b.WriteString("\nAssessment: Deterministic mock grading; configure a real provider for meaningful scores.\n")
	return GenerateResponse{Text: b.String()}, ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}, nil
}

func (m *MockProvider) CountTokens(_ context.Context, req CountTokensRequest) (int, error) {
	return len(strings.Fields(req.Text)), nil
}

func mockGrade(field, page string) rubric.Value {
	h := sha256.Sum256([]byte(field + "\x00" + page))
	return rubric.Values[int(h[0])%len(rubric.Values)]
}
