package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"

	"verixiv/internal/storage"
	"verixiv/internal/workflows"
)

const batchWorkflowPrefix = "score-batch-"

var errJobsDisabled = userError("Background jobs are disabled: no Temporal address configured.")

type jobRequest struct {
	PaperID string `json:"paper_id"`
	PDFURL  string `json:"pdf_url"`
	Text    string `json:"paper_text"`
}

func (j jobRequest) input() (workflows.ScorePaperInput, error) {
	in := workflows.ScorePaperInput{
		PaperID: strings.TrimSpace(j.PaperID),
		PDFURL:  strings.TrimSpace(j.PDFURL),
		Text:    j.Text,
	}
	if in.PaperID == "" {
		return in, userError("Paper ID is required")
	}
	if in.PDFURL == "" && strings.TrimSpace(in.Text) == "" {
		return in, userError("pdf_url or paper_text is required")
	}
	return in, nil
}

func (s *Server) startOptions(id string) tclient.StartWorkflowOptions {
	return tclient.StartWorkflowOptions{
		ID:                                       id,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, errJobsDisabled)
		return
	}
	var req jobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	we, err := s.temporal.ExecuteWorkflow(r.Context(), s.startOptions(workflows.WorkflowID(in.PaperID)), workflows.ScorePaperWorkflow, in)
	if err != nil {
		writeErr(w, startStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, errJobsDisabled)
		return
	}
	var req struct {
		Papers                []jobRequest `json:"papers"`
		MaxConcurrentChildren int          `json:"max_concurrent_children"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Papers) == 0 {
		writeErr(w, http.StatusBadRequest, userError("papers must not be empty"))
		return
	}
	papers := make([]workflows.ScorePaperInput, 0, len(req.Papers))
	seen := make(map[string]bool, len(req.Papers))
	for i, p := range req.Papers {
		in, err := p.input()
		if err != nil {
			writeErr(w, http.StatusBadRequest, userError(fmt.Sprintf("papers[%d]: %s", i, err)))
			return
		}
		if seen[in.PaperID] {
			writeErr(w, http.StatusBadRequest, userError("duplicate paper_id: "+in.PaperID))
			return
		}
		seen[in.PaperID] = true
		papers = append(papers, in)
	}

	batchID := uuid.NewString()
	we, err := s.temporal.ExecuteWorkflow(r.Context(), s.startOptions(batchWorkflowPrefix+batchID), workflows.ScoreBatchWorkflow, workflows.ScoreBatchInput{
		BatchID:               batchID,
		Papers:                papers,
		MaxConcurrentChildren: req.MaxConcurrentChildren,
	})
	if err != nil {
		writeErr(w, startStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"batch_id": batchID, "workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, errJobsDisabled)
		return
	}
	id := chi.URLParam(r, "id")
	if strings.HasPrefix(id, batchWorkflowPrefix) {
		var prog workflows.ScoreBatchProgress
		resp, err := s.temporal.QueryWorkflow(r.Context(), id, "", workflows.QueryGetProgress)
		if err != nil {
			writeErr(w, queryStatus(err), err)
			return
		}
		if err := resp.Get(&prog); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, prog)
		return
	}

	var status workflows.ScoreStatus
	resp, err := s.temporal.QueryWorkflow(r.Context(), id, "", workflows.QueryGetStatus)
	if err != nil {
		writeErr(w, queryStatus(err), err)
		return
	}
	if err := resp.Get(&status); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeErr(w, http.StatusServiceUnavailable, userError("Score history needs a database: set VERIXIV_POSTGRES_URL."))
		return
	}
	paperID := chi.URLParam(r, "paper_id")
	out := map[string]any{"paper_id": paperID}

	if raw := r.URL.Query().Get("latest"); raw != "" {
		latest, err := strconv.ParseBool(raw)
		if err != nil {
			writeErr(w, http.StatusBadRequest, userError("latest must be a boolean"))
			return
		}
		if latest {
			run, err := s.runs.LatestRun(r.Context(), paperID)
			if errors.Is(err, storage.ErrNoScoreRuns) {
				writeErr(w, http.StatusNotFound, err)
				return
			}
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			out["run"] = run
		}
	}

	if _, ok := out["run"]; !ok {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 100 {
				writeErr(w, http.StatusBadRequest, userError("limit must be between 1 and 100"))
				return
			}
			limit = n
		}
		runs, err := s.runs.ListRuns(r.Context(), paperID, limit)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		out["runs"] = runs
	}

	if s.calls != nil {
		stats, err := s.calls.StatsForPaper(r.Context(), paperID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		out["llm_calls"] = stats
	}
	writeJSON(w, http.StatusOK, out)
}

func startStatus(err error) int {
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func queryStatus(err error) int {
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
