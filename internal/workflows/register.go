package workflows

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker) {
	w.RegisterWorkflow(ScorePaperWorkflow)
	w.RegisterWorkflow(ScoreBatchWorkflow)
}
