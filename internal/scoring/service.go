package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"verixiv/internal/cache"
	"verixiv/internal/logging"
	"verixiv/internal/models"
	"verixiv/internal/rubric"
	"verixiv/internal/util"
)

var ErrNoPagesScored = errors.New("no page of the paper could be scored")

// Result is what the cache stores per paper.
type Result struct {
	Fields         rubric.PageRubric     `json:"fields"`
	PageReferences rubric.PageReferences `json:"page_references"`
	PagesTotal     int                   `json:"pages_total"`
	PagesFailed    int                   `json:"pages_failed"`
	PagesInvalid   int                   `json:"pages_invalid"`
	PageTokens     int                   `json:"page_tokens"`
	TotalTokens    int                   `json:"total_tokens"`
	Model          string                `json:"model"`
}

type Report struct {
	GradedRubric   rubric.PageRubric     `json:"graded_rubric"`
	Score          float64               `json:"graded_rubric_score"`
	PageReferences rubric.PageReferences `json:"page_references"`
	PaperID        string                `json:"paper_id"`
	Timestamp      string                `json:"timestamp"`

	Cached      bool   `json:"-"`
	PagesTotal  int    `json:"-"`
	PagesFailed int    `json:"-"`
	Model       string `json:"-"`
	RunID       string `json:"-"`
}

// PageLoader produces the page texts of a paper. It only runs on a cache miss.
type PageLoader func(ctx context.Context) ([]string, error)

// RunRecorder persists finished reports.
type RunRecorder interface {
	InsertRun(ctx context.Context, run models.ScoreRun) (string, error)
}

type Options struct {
	Model          string
	MaxConcurrency int
	Required       []string
	Runs           RunRecorder
}

type Service struct {
	cache        *cache.Cache[Result]
	orchestrator *Orchestrator
	required     []string
	model        string
	runs         RunRecorder
	now          func() time.Time
}

func NewService(scorer PageScorer, results *cache.Cache[Result], opts Options) *Service {
	required := opts.Required
	if len(required) == 0 {
		required = rubric.ReproducibilityFields
	}
	return &Service{
		cache:        results,
		orchestrator: NewOrchestrator(scorer, opts.MaxConcurrency),
		required:     required,
		model:        opts.Model,
		runs:         opts.Runs,
		now:          time.Now,
	}
}

func (s *Service) Model() string {
	return s.model
}

// ScorePaper returns the report for paperID, scoring it only when the cache
// has no result yet. Concurrent calls for one uncached paper share one run.
func (s *Service) ScorePaper(ctx context.Context, paperID string, load PageLoader) (Report, error) {
	ctx = logging.WithPaperID(ctx, paperID)
	log := logging.WithContext(ctx)

	res, hit, err := s.cache.GetOrCompute(ctx, paperID, func(ctx context.Context) (Result, error) {
		return s.compute(ctx, paperID, load)
	})
	if err != nil {
		return Report{}, err
	}
	if hit {
		log.Info("cache hit")
	}

	score, err := rubric.ToNumber(res.Fields, s.required)
	if err != nil {
		return Report{}, fmt.Errorf("quantify cached result: %w", err)
	}
	report := Report{
		GradedRubric:   res.Fields,
		Score:          score,
		PageReferences: res.PageReferences,
		PaperID:        paperID,
		Timestamp:      s.now().UTC().Format(time.RFC3339),
		Cached:         hit,
		PagesTotal:     res.PagesTotal,
		PagesFailed:    res.PagesFailed,
		Model:          res.Model,
	}
	log.Info("paper scored", "score", score, "cached", hit, "pages", res.PagesTotal, "pages_failed", res.PagesFailed)

	if s.runs != nil && !hit {
		id, err := s.runs.InsertRun(context.WithoutCancel(ctx), models.ScoreRun{
			PaperID:        paperID,
			Model:          res.Model,
			Score:          score,
			GradedRubric:   res.Fields,
			PageReferences: res.PageReferences,
			PagesTotal:     res.PagesTotal,
			PagesFailed:    res.PagesFailed,
		})
		if err != nil {
			log.Warn("record score run failed", "err", err)
		} else {
			report.RunID = id
		}
	}
	return report, nil
}

func (s *Service) compute(ctx context.Context, paperID string, load PageLoader) (Result, error) {
	log := logging.WithContext(ctx)
	log.Info("cache miss, scoring paper")

	pages, err := load(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(pages) == 0 {
		return Result{}, util.ErrNoExtractableText
	}

	scores := s.orchestrator.ScoreAll(ctx, paperID, pages, s.model)

	res := Result{PagesTotal: len(pages), Model: s.model}
	rubrics := make([]rubric.PageRubric, len(scores))
	for i, sc := range scores {
		if sc == nil {
			res.PagesFailed++
			continue
		}
		if !sc.Validation.Valid {
			res.PagesInvalid++
			log.Warn("page rubric failed validation", "page", i+1, "errors", strings.Join(sc.Validation.Errors, "; "))
		}
		if len(sc.Validation.Warnings) > 0 {
			log.Debug("page rubric warnings", "page", i+1, "warnings", sc.Validation.Warnings)
		}
		if sc.Model != "" {
			res.Model = sc.Model
		}
		res.PageTokens += sc.PageTokens
		res.TotalTokens += sc.TotalTokens
		rubrics[i] = sc.Fields()
	}
	if res.PagesFailed == res.PagesTotal {
		return Result{}, ErrNoPagesScored
	}

	res.Fields = rubric.Aggregate(rubrics)
	res.PageReferences = rubric.References(s.required, rubrics)
	if _, err := rubric.ToNumber(res.Fields, s.required); err != nil {
		return Result{}, fmt.Errorf("quantify aggregate rubric: %w", err)
	}
	return res, nil
}

// SplitPages turns plain text into pages: form feeds separate pages, and a
// page longer than pageChars is split into pageChars-sized pieces.
func SplitPages(text string, pageChars int) []string {
	out := make([]string, 0)
	for _, page := range strings.Split(text, "\f") {
		if pageChars > 0 && utf8.RuneCountInString(page) > pageChars {
			out = append(out, util.ChunkText(page, pageChars, 0)...)
			continue
		}
		out = append(out, page)
	}
	return out
}
