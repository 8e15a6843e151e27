package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"verixiv/internal/models"
)

var ErrNoScoreRuns = errors.New("no score runs for paper")

type ScoreRepo struct {
	db *DB
}

func NewScoreRepo(db *DB) *ScoreRepo {
	return &ScoreRepo{db: db}
}

// InsertRun stores a run and returns its id.
func (r *ScoreRepo) InsertRun(ctx context.Context, run models.ScoreRun) (string, error) {
	rubric, err := json.Marshal(run.GradedRubric)
	if err != nil {
		return "", fmt.Errorf("encode graded rubric: %w", err)
	}
	refs, err := json.Marshal(run.PageReferences)
	if err != nil {
		return "", fmt.Errorf("encode page references: %w", err)
	}
	var id string
	err = r.db.Pool.QueryRow(ctx, `
INSERT INTO score_runs (run_id, paper_id, model, score, graded_rubric, page_references, pages_total, pages_failed)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8)
RETURNING run_id::text`,
		run.RunID, run.PaperID, run.Model, run.Score, string(rubric), string(refs), run.PagesTotal, run.PagesFailed,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert score run: %w", err)
	}
	return id, nil
}

func (r *ScoreRepo) ListRuns(ctx context.Context, paperID string, limit int) ([]models.ScoreRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT run_id::text, paper_id, model, score, graded_rubric, page_references, pages_total, pages_failed, created_at
FROM score_runs
WHERE paper_id=$1
ORDER BY created_at DESC
LIMIT $2`, paperID, limit)
	if err != nil {
		return nil, fmt.Errorf("list score runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.ScoreRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score runs: %w", err)
	}
	return out, nil
}

func (r *ScoreRepo) LatestRun(ctx context.Context, paperID string) (models.ScoreRun, error) {
	row := r.db.Pool.QueryRow(ctx, `
SELECT run_id::text, paper_id, model, score, graded_rubric, page_references, pages_total, pages_failed, created_at
FROM score_runs
WHERE paper_id=$1
ORDER BY created_at DESC
LIMIT 1`, paperID)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ScoreRun{}, ErrNoScoreRuns
	}
	return run, err
}

func scanRun(row pgx.Row) (models.ScoreRun, error) {
	var (
		run        models.ScoreRun
		rubricJSON []byte
		refsJSON   []byte
	)
	if err := row.Scan(&run.RunID, &run.PaperID, &run.Model, &run.Score, &rubricJSON, &refsJSON, &run.PagesTotal, &run.PagesFailed, &run.CreatedAt); err != nil {
		return models.ScoreRun{}, fmt.Errorf("scan score run: %w", err)
	}
	if err := json.Unmarshal(rubricJSON, &run.GradedRubric); err != nil {
		return models.ScoreRun{}, fmt.Errorf("decode graded rubric: %w", err)
	}
	if err := json.Unmarshal(refsJSON, &run.PageReferences); err != nil {
		return models.ScoreRun{}, fmt.Errorf("decode page references: %w", err)
	}
	return run, nil
}
