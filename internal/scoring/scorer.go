// Package scoring grades papers page by page with an LLM and merges the
// page rubrics into one paper-level report.
package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"verixiv/internal/providers"
	"verixiv/internal/rubric"
	"verixiv/internal/storage"
)

const scorePageOperation = "score_page"

type PageRequest struct {
	PaperID    string
	PageNumber int
	Text       string
	Model      string
}

// PageScore is the validated rubric for one page plus its token accounting.
type PageScore struct {
	Validation  rubric.ValidationResult
	PageTokens  int
	TotalTokens int
	Provider    string
	Model       string
}

// Fields returns the page rubric, or nil for an absent page.
func (p *PageScore) Fields() rubric.PageRubric {
	if p == nil {
		return nil
	}
	return p.Validation.Fields
}

type PageScorer interface {
	ScorePage(ctx context.Context, req PageRequest) (PageScore, error)
}

// CallAuditor records every page LLM call.
type CallAuditor interface {
	Insert(ctx context.Context, rec storage.LLMCallRecord) error
}

// Scorer grades one page with a single LLM call. Provider errors are
// returned as is; there is no retry here.
type Scorer struct {
	llm            providers.LLMProvider
	validator      *rubric.Validator
	thinkingBudget int
	audit          CallAuditor
}

func NewScorer(llm providers.LLMProvider, validator *rubric.Validator, thinkingBudget int) *Scorer {
	return &Scorer{llm: llm, validator: validator, thinkingBudget: thinkingBudget}
}

// WithAudit makes the scorer record each call through a.
func (s *Scorer) WithAudit(a CallAuditor) *Scorer {
	s.audit = a
	return s
}

func (s *Scorer) ScorePage(ctx context.Context, req PageRequest) (PageScore, error) {
	prompt := rubric.BuildPagePrompt(req.Text)

	pageTokens, err := s.llm.CountTokens(ctx, providers.CountTokensRequest{Model: req.Model, Text: req.Text})
	if err != nil {
		s.record(ctx, req, providers.ProviderInfo{Model: req.Model}, 0, 0, err)
		return PageScore{}, fmt.Errorf("count page tokens: %w", err)
	}
	totalTokens, err := s.llm.CountTokens(ctx, providers.CountTokensRequest{Model: req.Model, Text: prompt})
	if err != nil {
		s.record(ctx, req, providers.ProviderInfo{Model: req.Model}, pageTokens, 0, err)
		return PageScore{}, fmt.Errorf("count prompt tokens: %w", err)
	}

	resp, info, err := s.llm.Generate(ctx, providers.GenerateRequest{
		Operation:      scorePageOperation,
		Model:          req.Model,
		Prompt:         prompt,
		ThinkingBudget: s.thinkingBudget,
	})
	s.record(ctx, req, info, pageTokens, totalTokens, err)
	if err != nil {
		return PageScore{}, fmt.Errorf("generate page rubric: %w", err)
	}

	return PageScore{
		Validation:  s.validator.Validate(resp.Text),
		PageTokens:  pageTokens,
		TotalTokens: totalTokens,
		Provider:    info.Name,
		Model:       info.Model,
	}, nil
}

func (s *Scorer) record(ctx context.Context, req PageRequest, info providers.ProviderInfo, pageTokens, totalTokens int, callErr error) {
	if s.audit == nil {
		return
	}
	rec := storage.LLMCallRecord{
		Operation:    scorePageOperation,
		PaperID:      req.PaperID,
		PageNumber:   req.PageNumber,
		ProviderName: info.Name,
		Model:        info.Model,
		Status:       "ok",
		PageTokens:   pageTokens,
		TotalTokens:  totalTokens,
	}
	if rec.ProviderName == "" {
		rec.ProviderName = "unknown"
	}
	if rec.Model == "" {
		rec.Model = req.Model
	}
	if callErr != nil {
		rec.Status = "failed"
		rec.ErrorType = string(providers.ClassifyError(callErr))
	}
	// auditing must not fail the page
	if err := s.audit.Insert(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("audit llm call failed", "paper_id", req.PaperID, "page", req.PageNumber, "err", err)
	}
}
