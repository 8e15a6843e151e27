package scoring

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"verixiv/internal/logging"
	"verixiv/internal/providers"
)

const DefaultMaxConcurrency = 4

// Orchestrator scores the pages of one paper on a bounded pool of goroutines.
type Orchestrator struct {
	scorer         PageScorer
	maxConcurrency int
}

func NewOrchestrator(scorer PageScorer, maxConcurrency int) *Orchestrator {
	if maxConcurrency < 1 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Orchestrator{scorer: scorer, maxConcurrency: maxConcurrency}
}

// ScoreAll returns one entry per page, in page order. A page whose scoring
// fails or panics, or whose text is blank, is nil; the rest of the batch is
// unaffected. At most maxConcurrency pages are scored at once.
func (o *Orchestrator) ScoreAll(ctx context.Context, paperID string, pages []string, model string) []*PageScore {
	results := make([]*PageScore, len(pages))
	log := logging.WithContext(ctx)

	var g errgroup.Group
	g.SetLimit(o.maxConcurrency)
	for i, text := range pages {
		if strings.TrimSpace(text) == "" {
			log.Debug("skipping blank page", "page", i+1)
			continue
		}
		i, text := i, text
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
				if err != nil {
					log.Warn("page scoring failed", "page", i+1, "error_type", providers.ClassifyError(err), "err", err)
				}
			}()
			score, err := o.scorer.ScorePage(ctx, PageRequest{
				PaperID:    paperID,
				PageNumber: i + 1,
				Text:       text,
				Model:      model,
			})
			if err != nil {
				return err
			}
			results[i] = &score
			return nil
		})
	}
	// per-page errors are already logged; the batch itself never fails
	_ = g.Wait()
	return results
}
