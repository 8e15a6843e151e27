package storage

import (
	"context"
	"fmt"
)

type LLMCallRecord struct {
	CallID       string
	Operation    string
	PaperID      string
	PageNumber   int
	ProviderName string
	Model        string
	Status       string
	ErrorType    string
	PageTokens   int
	TotalTokens  int
}

type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec LLMCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(call_id, operation, paper_id, page_number, provider_name, model, status, error_type, page_tokens, total_tokens)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, NULLIF($3,''), NULLIF($4,0), $5, $6, $7, NULLIF($8,''), $9, $10)`,
		rec.CallID, rec.Operation, rec.PaperID, rec.PageNumber, rec.ProviderName, rec.Model, rec.Status, rec.ErrorType, rec.PageTokens, rec.TotalTokens)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

type LLMCallStats struct {
	Calls       int `json:"calls"`
	Failed      int `json:"failed"`
	TotalTokens int `json:"total_tokens"`
}

// StatsForPaper summarises the audited calls made while scoring one paper.
func (r *LLMAuditRepo) StatsForPaper(ctx context.Context, paperID string) (LLMCallStats, error) {
	var s LLMCallStats
	err := r.db.Pool.QueryRow(ctx, `
SELECT COUNT(*), COUNT(*) FILTER (WHERE status <> 'ok'), COALESCE(SUM(total_tokens),0)
FROM llm_calls WHERE paper_id=$1`, paperID).Scan(&s.Calls, &s.Failed, &s.TotalTokens)
	if err != nil {
		return LLMCallStats{}, fmt.Errorf("llm call stats: %w", err)
	}
	return s, nil
}
