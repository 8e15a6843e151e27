package workflows

import "verixiv/internal/scoring"

type ScorePaperInput struct {
	PaperID string `json:"paper_id"`
	PDFURL  string `json:"pdf_url,omitempty"`
	Text    string `json:"text,omitempty"`
}

type ScoreStatus struct {
	PaperID     string            `json:"paper_id"`
	Status      string            `json:"status"`
	CurrentStep string            `json:"current_step"`
	Steps       map[string]string `json:"steps"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Pages       int               `json:"pages,omitempty"`
	Cached      bool              `json:"cached,omitempty"`
	RunID       string            `json:"run_id,omitempty"`
	Report      *scoring.Report   `json:"report,omitempty"`
}

type ScoreBatchInput struct {
	BatchID               string            `json:"batch_id"`
	Papers                []ScorePaperInput `json:"papers"`
	MaxConcurrentChildren int               `json:"max_concurrent_children"`
}

type ScoreBatchProgress struct {
	BatchID       string            `json:"batch_id"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	PerPaper      map[string]string `json:"per_paper"`
	ChildWorkflow map[string]string `json:"child_workflow"`
}
