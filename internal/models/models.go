package models

import "time"

// ScoreRun is one persisted scoring of a paper.
type ScoreRun struct {
	RunID          string            `json:"run_id"`
	PaperID        string            `json:"paper_id"`
	Model          string            `json:"model"`
	Score          float64           `json:"score"`
	GradedRubric   map[string]string `json:"graded_rubric"`
	PageReferences map[string][]int  `json:"page_references"`
	PagesTotal     int               `json:"pages_total"`
	PagesFailed    int               `json:"pages_failed"`
	CreatedAt      time.Time         `json:"created_at"`
}
