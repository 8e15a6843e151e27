package activities

import "verixiv/internal/scoring"

type ExtractPagesInput struct {
	PaperID string `json:"paper_id"`
	PDFURL  string `json:"pdf_url,omitempty"`
	Text    string `json:"text,omitempty"`
}

type ExtractPagesOutput struct {
	Pages []string `json:"pages"`
}

type ScorePagesInput struct {
	PaperID string   `json:"paper_id"`
	Pages   []string `json:"pages"`
}

type ScorePagesOutput struct {
	Report      scoring.Report `json:"report"`
	Cached      bool           `json:"cached"`
	PagesTotal  int            `json:"pages_total"`
	PagesFailed int            `json:"pages_failed"`
	Model       string         `json:"model"`
}

type RecordScoreInput struct {
	Score ScorePagesOutput `json:"score"`
}

type RecordScoreOutput struct {
	RunID string `json:"run_id,omitempty"`
}
