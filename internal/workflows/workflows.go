package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"verixiv/internal/activities"
)

const (
	QueryGetStatus   = "GetStatus"
	QueryGetProgress = "GetProgress"

	StatusProcessing = "processing"
	StatusScored     = "scored"
	StatusFailed     = "failed"
)

// WorkflowID is the id a paper's scoring job runs under.
func WorkflowID(paperID string) string {
	return "score-" + paperID
}

func ScorePaperWorkflow(ctx workflow.Context, input ScorePaperInput) (string, error) {
	status := ScoreStatus{
		PaperID:     input.PaperID,
		Status:      StatusProcessing,
		CurrentStep: "init",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetStatus, func() (ScoreStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	fail := func(reason string) (string, error) {
		status.Status = StatusFailed
		status.FailReason = reason
		status.Steps[status.CurrentStep] = StatusFailed
		return status.Status, nil
	}

	status.CurrentStep = "extract_pages"
	status.Steps[status.CurrentStep] = StatusProcessing
	var pagesOut activities.ExtractPagesOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractPagesActivity", activities.ExtractPagesInput{
		PaperID: input.PaperID,
		PDFURL:  input.PDFURL,
		Text:    input.Text,
	}).Get(ctx, &pagesOut); err != nil {
		if isNonRetryable(err) {
			return fail(rootMessage(err))
		}
		return "", err
	}
	status.Pages = len(pagesOut.Pages)
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "score_pages"
	status.Steps[status.CurrentStep] = StatusProcessing
	var scoreOut activities.ScorePagesOutput
	if err := workflow.ExecuteActivity(ctx, "ScorePagesActivity", activities.ScorePagesInput{
		PaperID: input.PaperID,
		Pages:   pagesOut.Pages,
	}).Get(ctx, &scoreOut); err != nil {
		if isNonRetryable(err) {
			return fail(rootMessage(err))
		}
		return "", err
	}
	report := scoreOut.Report
	status.Report = &report
	status.Cached = scoreOut.Cached
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "record_score"
	status.Steps[status.CurrentStep] = StatusProcessing
	var recordOut activities.RecordScoreOutput
	if err := workflow.ExecuteActivity(ctx, "RecordScoreActivity", activities.RecordScoreInput{Score: scoreOut}).Get(ctx, &recordOut); err != nil {
		// the score itself is done; a lost history row is not worth failing the job
		workflow.GetLogger(ctx).Warn("record score failed", "paper_id", input.PaperID, "error", err)
		status.Steps[status.CurrentStep] = StatusFailed
	} else {
		status.RunID = recordOut.RunID
		status.Steps[status.CurrentStep] = "done"
	}

	status.CurrentStep = "done"
	status.Status = StatusScored
	return status.Status, nil
}

// ScoreBatchWorkflow scores many papers as child workflows, a few at a time.
func ScoreBatchWorkflow(ctx workflow.Context, input ScoreBatchInput) (string, error) {
	progress := ScoreBatchProgress{
		BatchID:       input.BatchID,
		Total:         len(input.Papers),
		PerPaper:      map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (ScoreBatchProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}
	papers := input.Papers
	for i := 0; i < len(papers); i += maxChildren {
		end := i + maxChildren
		if end > len(papers) {
			end = len(papers)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		batch := papers[i:end]
		for _, p := range batch {
			progress.PerPaper[p.PaperID] = StatusProcessing
			id := WorkflowID(p.PaperID) + "-" + input.BatchID
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: id})
			futures = append(futures, workflow.ExecuteChildWorkflow(childCtx, ScorePaperWorkflow, p))
			progress.ChildWorkflow[p.PaperID] = id
		}
		for idx, f := range futures {
			paperID := batch[idx].PaperID
			var childStatus string
			if err := f.Get(ctx, &childStatus); err != nil {
				progress.Failed++
				progress.PerPaper[paperID] = StatusFailed
				continue
			}
			if childStatus == StatusFailed {
				progress.Failed++
			}
			progress.Done++
			progress.PerPaper[paperID] = childStatus
		}
	}
	return "completed", nil
}

func isNonRetryable(err error) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.NonRetryable()
}

func rootMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}
