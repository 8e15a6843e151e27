package activities

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"verixiv/internal/config"
	"verixiv/internal/models"
	"verixiv/internal/pdftext"
	"verixiv/internal/providers"
	"verixiv/internal/rubric"
	"verixiv/internal/scoring"
	"verixiv/internal/storage"
	"verixiv/internal/util"
)

type Activities struct {
	cfg        config.Config
	downloader *pdftext.Downloader
	service    *scoring.Service
	scoreRepo  *storage.ScoreRepo
}

// New builds the activity set. Runs are recorded by RecordScoreActivity, so the
// service's own recorder is switched off. db may be nil.
func New(cfg config.Config, svc *scoring.Service, db *storage.DB) *Activities {
	a := &Activities{
		cfg:        cfg,
		downloader: pdftext.NewDownloader(time.Duration(cfg.DownloadTimeoutSecs)*time.Second, 0),
		service:    svc.WithoutRuns(),
	}
	if db != nil {
		a.scoreRepo = storage.NewScoreRepo(db)
	}
	return a
}

func (a *Activities) ExtractPagesActivity(ctx context.Context, in ExtractPagesInput) (ExtractPagesOutput, error) {
	if strings.TrimSpace(in.Text) != "" {
		return ExtractPagesOutput{Pages: scoring.SplitPages(in.Text, a.cfg.PageChars)}, nil
	}
	if in.PDFURL == "" {
		return ExtractPagesOutput{}, temporal.NewNonRetryableApplicationError("either pdf_url or text is required", "InvalidInput", nil)
	}
	pages, err := a.downloader.Pages(ctx, in.PDFURL)
	if errors.Is(err, util.ErrNoExtractableText) {
		return ExtractPagesOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), "NoExtractableText", nil)
	}
	if err != nil {
		return ExtractPagesOutput{}, fmt.Errorf("extract pages of %s: %w", in.PaperID, err)
	}
	return ExtractPagesOutput{Pages: pages}, nil
}

func (a *Activities) ScorePagesActivity(ctx context.Context, in ScorePagesInput) (ScorePagesOutput, error) {
	activity.GetLogger(ctx).Info("scoring paper", "paper_id", in.PaperID, "pages", len(in.Pages))
	report, err := a.service.ScorePaper(ctx, in.PaperID, func(context.Context) ([]string, error) {
		return in.Pages, nil
	})
	if err != nil {
		return ScorePagesOutput{}, classifyScoreError(err)
	}
	return ScorePagesOutput{
		Report:      report,
		Cached:      report.Cached,
		PagesTotal:  report.PagesTotal,
		PagesFailed: report.PagesFailed,
		Model:       report.Model,
	}, nil
}

func (a *Activities) RecordScoreActivity(ctx context.Context, in RecordScoreInput) (RecordScoreOutput, error) {
	if a.scoreRepo == nil || in.Score.Cached {
		return RecordScoreOutput{}, nil
	}
	r := in.Score.Report
	id, err := a.scoreRepo.InsertRun(ctx, models.ScoreRun{
		PaperID:        r.PaperID,
		Model:          in.Score.Model,
		Score:          r.Score,
		GradedRubric:   r.GradedRubric,
		PageReferences: r.PageReferences,
		PagesTotal:     in.Score.PagesTotal,
		PagesFailed:    in.Score.PagesFailed,
	})
	if err != nil {
		return RecordScoreOutput{}, err
	}
	return RecordScoreOutput{RunID: id}, nil
}

// classifyScoreError marks failures that another attempt cannot fix.
func classifyScoreError(err error) error {
	var missing *rubric.MissingFieldError
	switch {
	case errors.As(err, &missing):
		return temporal.NewNonRetryableApplicationError(err.Error(), "MissingField", nil)
	case errors.Is(err, util.ErrNoExtractableText):
		return temporal.NewNonRetryableApplicationError(err.Error(), "NoExtractableText", nil)
	case errors.Is(err, scoring.ErrNoPagesScored):
		// usually every page hit a rate limit; a later attempt may succeed
		return err
	case !providers.Retryable(providers.ClassifyError(err)):
		return temporal.NewNonRetryableApplicationError(err.Error(), string(providers.ClassifyError(err)), nil)
	default:
		return err
	}
}
