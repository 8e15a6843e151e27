package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ExtractPagesActivity)
	w.RegisterActivity(a.ScorePagesActivity)
	w.RegisterActivity(a.RecordScoreActivity)
}
