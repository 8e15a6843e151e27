package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"verixiv/internal/cache"
	"verixiv/internal/config"
	"verixiv/internal/models"
	"verixiv/internal/pdftext"
	"verixiv/internal/providers"
	"verixiv/internal/rubric"
	"verixiv/internal/scoring"
	"verixiv/internal/storage"
	"verixiv/internal/workflows"
)

type fakePDFs struct {
	mu    sync.Mutex
	pages map[string][]string
	err   error
	calls int
}

func (f *fakePDFs) Pages(_ context.Context, url string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	pages, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: status 404 from %s", pdftext.ErrDownload, url)
	}
	return pages, nil
}

type fakeRuns struct {
	runs []models.ScoreRun
}

func (f *fakeRuns) ListRuns(_ context.Context, paperID string, limit int) ([]models.ScoreRun, error) {
	out := make([]models.ScoreRun, 0)
	for _, r := range f.runs {
		if r.PaperID == paperID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuns) LatestRun(_ context.Context, paperID string) (models.ScoreRun, error) {
	for _, r := range f.runs {
		if r.PaperID == paperID {
			return r, nil
		}
	}
	return models.ScoreRun{}, storage.ErrNoScoreRuns
}

type fakeCalls struct{}

func (fakeCalls) StatsForPaper(context.Context, string) (storage.LLMCallStats, error) {
	return storage.LLMCallStats{Calls: 3, Failed: 1, TotalTokens: 900}, nil
}

// jsonValue stands in for a Temporal query result.
type jsonValue struct{ v any }

func (j jsonValue) HasValue() bool { return j.v != nil }

func (j jsonValue) Get(ptr interface{}) error {
	b, err := json.Marshal(j.v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ptr)
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.MaxUploadBytes = 1 << 20
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config, deps Deps) (*Server, http.Handler) {
	t.Helper()
	if deps.Scoring == nil {
		store, err := cache.NewMemoryStore(16)
		require.NoError(t, err)
		scorer := scoring.NewScorer(providers.NewMockProvider(), rubric.NewValidator(rubric.ReproducibilityFields), 0)
		deps.Scoring = scoring.NewService(scorer, cache.New[scoring.Result](store), scoring.Options{Model: "mock-llm-v1", MaxConcurrency: 2})
	}
	if deps.PDFs == nil {
		deps.PDFs = &fakePDFs{}
	}
	s := NewServer(cfg, deps)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s, s.Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	out := map[string]any{}
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func errorCode(out map[string]any) (string, string) {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)
	msg, _ := e["message"].(string)
	return code, msg
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t, testConfig(), Deps{})
	for _, path := range []string{"/", "/healthz"} {
		rr, out := do(t, h, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "healthy", out["status"])
		require.Equal(t, "VeriXiv API", out["service"])
		require.Equal(t, "2025-03-01T12:00:00Z", out["timestamp"])
		require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestScoreRequiresFields(t *testing.T) {
	_, h := newTestServer(t, testConfig(), Deps{})
	cases := []struct {
		name string
		body string
		msg  string
	}{
		{"malformed", `{"paper_id":`, "Malformed JSON request body."},
		{"no paper id", `{"pdf_url":"https://x/p.pdf"}`, "ArXiv Paper Id is required"},
		{"no url", `{"paper_id":"2401.1"}`, "PDF URL is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, out := do(t, h, http.MethodPost, "/score", tc.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			code, msg := errorCode(out)
			require.Equal(t, "VX-API-4001", code)
			require.Equal(t, tc.msg, msg)
		})
	}
}

func TestScoreDownloadsOnlyOnMiss(t *testing.T) {
	url := "https://arxiv.org/pdf/2401.00001.pdf"
	pdfs := &fakePDFs{pages: map[string][]string{url: {"We train a transformer.", "Runtime was 3 hours."}}}
	_, h := newTestServer(t, testConfig(), Deps{PDFs: pdfs})

	body := fmt.Sprintf(`{"paper_id":"2401.00001","pdf_url":%q}`, url)
	rr, first := do(t, h, http.MethodPost, "/score", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "2401.00001", first["paper_id"])
	require.Equal(t, url, first["pdf_url"])
	require.Equal(t, false, first["cached"])
	require.Len(t, first["graded_rubric"], len(rubric.ReproducibilityFields))
	require.Len(t, first["page_references"], len(rubric.ReproducibilityFields))
	score := first["graded_rubric_score"].(float64)
	require.GreaterOrEqual(t, score, 0.0)
	require.LessOrEqual(t, score, 1.0)

	rr, second := do(t, h, http.MethodPost, "/score", body)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, second["cached"])
	require.Equal(t, first["graded_rubric"], second["graded_rubric"])
	require.Equal(t, score, second["graded_rubric_score"])
	require.Equal(t, 1, pdfs.calls)
}

func TestScoreDownloadFailure(t *testing.T) {
	_, h := newTestServer(t, testConfig(), Deps{})
	rr, out := do(t, h, http.MethodPost, "/score", `{"paper_id":"missing","pdf_url":"https://x/missing.pdf"}`)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	code, msg := errorCode(out)
	require.Equal(t, "VX-API-5020", code)
	require.Equal(t, "Failed to download PDF", msg)
}

func TestScoreByText(t *testing.T) {
	_, h := newTestServer(t, testConfig(), Deps{})

	rr, out := do(t, h, http.MethodPost, "/score-by-text", `{"paper_id":"t1","paper_text":"   "}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	_, msg := errorCode(out)
	require.Equal(t, "Paper text is required", msg)

	rr, out = do(t, h, http.MethodPost, "/score-by-text", `{"paper_id":"t1","paper_text":"Intro\fMethods\fResults"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "t1", out["paper_id"])
	require.NotContains(t, out, "pdf_url")
	require.Equal(t, "2025-03-01T12:00:00Z", out["timestamp"])
}

func TestScoreUnprocessablePaper(t *testing.T) {
	pdfs := &fakePDFs{pages: map[string][]string{"https://x/blank.pdf": {"", "  "}}}
	_, h := newTestServer(t, testConfig(), Deps{PDFs: pdfs})
	rr, out := do(t, h, http.MethodPost, "/score", `{"paper_id":"blank","pdf_url":"https://x/blank.pdf"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	code, _ := errorCode(out)
	require.Equal(t, "VX-API-4220", code)
}

func TestProcessArxiv(t *testing.T) {
	pdfs := &fakePDFs{pages: map[string][]string{"https://arxiv.org/pdf/2401.00002.pdf": {"ab", "c"}}}
	_, h := newTestServer(t, testConfig(), Deps{PDFs: pdfs})
	rr, out := do(t, h, http.MethodPost, "/process-arxiv", `{"paper_id":"2401.00002"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "processed", out["status"])
	require.Equal(t, "https://arxiv.org/pdf/2401.00002.pdf", out["pdf_url"])
	require.Equal(t, "ab\fc", out["text"])
	require.EqualValues(t, 4, out["text_length"])
	require.EqualValues(t, 2, out["page_count"])
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadPDFValidation(t *testing.T) {
	_, h := newTestServer(t, testConfig(), Deps{})
	cases := []struct {
		name  string
		field string
		file  string
		data  []byte
		msg   string
	}{
		{"no file", "", "", nil, "No file uploaded"},
		{"not a pdf", "file", "notes.pdf", []byte("plain text, not a pdf"), "Failed to process PDF"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := multipartBody(t, tc.field, tc.file, tc.data)
			req := httptest.NewRequest(http.MethodPost, "/upload-pdf", body)
			req.Header.Set("Content-Type", ct)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			var out map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
			_, msg := errorCode(out)
			require.Equal(t, tc.msg, msg)
		})
	}
}

func TestMethodNotAllowedAndNotFound(t *testing.T) {
	_, h := newTestServer(t, testConfig(), Deps{})
	rr, out := do(t, h, http.MethodGet, "/score", "")
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	code, _ := errorCode(out)
	require.Equal(t, "VX-API-4005", code)

	rr, out = do(t, h, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	code, _ = errorCode(out)
	require.Equal(t, "VX-API-4004", code)
}

func TestCORSRestrictedOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = "https://verixiv.pages.dev, https://localhost:5173"
	_, h := newTestServer(t, cfg, Deps{})

	req := httptest.NewRequest(http.MethodOptions, "/score", nil)
	req.Header.Set("Origin", "https://verixiv.pages.dev")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "https://verixiv.pages.dev", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestJobsDisabledWithoutTemporal(t *testing.T) {
	_, h := newTestServer(t, testConfig(), Deps{})
	rr, out := do(t, h, http.MethodPost, "/jobs", `{"paper_id":"p","pdf_url":"https://x/p.pdf"}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	code, _ := errorCode(out)
	require.Equal(t, "VX-API-5030", code)

	rr, _ = do(t, h, http.MethodGet, "/jobs/score-p", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestStartJob(t *testing.T) {
	tc := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("score-2401.1")
	run.On("GetRunID").Return("run-abc")
	tc.On("ExecuteWorkflow", mock.Anything, mock.MatchedBy(func(o tclient.StartWorkflowOptions) bool {
		return o.ID == "score-2401.1" && o.TaskQueue == "verixiv"
	}), mock.Anything, workflows.ScorePaperInput{PaperID: "2401.1", PDFURL: "https://x/2401.1.pdf"}).Return(run, nil).Once()
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "")).Once()

	_, h := newTestServer(t, testConfig(), Deps{Temporal: tc})
	body := `{"paper_id":"2401.1","pdf_url":"https://x/2401.1.pdf"}`
	rr, out := do(t, h, http.MethodPost, "/jobs", body)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.Equal(t, "score-2401.1", out["workflow_id"])
	require.Equal(t, "run-abc", out["run_id"])

	rr, out = do(t, h, http.MethodPost, "/jobs", body)
	require.Equal(t, http.StatusConflict, rr.Code)
	code, _ := errorCode(out)
	require.Equal(t, "VX-API-4009", code)

	rr, _ = do(t, h, http.MethodPost, "/jobs", `{"paper_id":"2401.1"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	tc.AssertExpectations(t)
}

func TestStartBatchRejectsDuplicates(t *testing.T) {
	tc := &mocks.Client{}
	_, h := newTestServer(t, testConfig(), Deps{Temporal: tc})
	rr, out := do(t, h, http.MethodPost, "/jobs/batch", `{"papers":[{"paper_id":"a","pdf_url":"u"},{"paper_id":"a","pdf_url":"u"}]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	_, msg := errorCode(out)
	require.Equal(t, "duplicate paper_id: a", msg)
	tc.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStartBatch(t *testing.T) {
	tc := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("score-batch-x")
	run.On("GetRunID").Return("run-b")
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(in workflows.ScoreBatchInput) bool {
		return len(in.Papers) == 2 && in.BatchID != "" && in.MaxConcurrentChildren == 2
	})).Return(run, nil).Once()

	_, h := newTestServer(t, testConfig(), Deps{Temporal: tc})
	rr, out := do(t, h, http.MethodPost, "/jobs/batch", `{"max_concurrent_children":2,"papers":[{"paper_id":"a","pdf_url":"u1"},{"paper_id":"b","paper_text":"body"}]}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.NotEmpty(t, out["batch_id"])
	require.Equal(t, "score-batch-x", out["workflow_id"])
	tc.AssertExpectations(t)
}

func TestJobStatus(t *testing.T) {
	tc := &mocks.Client{}
	tc.On("QueryWorkflow", mock.Anything, "score-p", "", workflows.QueryGetStatus).
		Return(jsonValue{v: workflows.ScoreStatus{PaperID: "p", Status: workflows.StatusScored, CurrentStep: "done"}}, nil)
	tc.On("QueryWorkflow", mock.Anything, "score-batch-1", "", workflows.QueryGetProgress).
		Return(jsonValue{v: workflows.ScoreBatchProgress{BatchID: "1", Total: 2, Done: 1}}, nil)
	tc.On("QueryWorkflow", mock.Anything, "score-gone", "", workflows.QueryGetStatus).
		Return(nil, serviceerror.NewNotFound("workflow not found"))

	_, h := newTestServer(t, testConfig(), Deps{Temporal: tc})
	rr, out := do(t, h, http.MethodGet, "/jobs/score-p", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "scored", out["status"])

	rr, out = do(t, h, http.MethodGet, "/jobs/score-batch-1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 2, out["total"])

	rr, _ = do(t, h, http.MethodGet, "/jobs/score-gone", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRuns(t *testing.T) {
	_, h := newTestServer(t, testConfig(), Deps{})
	rr, _ := do(t, h, http.MethodGet, "/papers/p/runs", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	runs := &fakeRuns{runs: []models.ScoreRun{
		{RunID: "r2", PaperID: "p", Score: 0.5},
		{RunID: "r1", PaperID: "p", Score: 0.25},
		{RunID: "x", PaperID: "other"},
	}}
	_, h = newTestServer(t, testConfig(), Deps{Runs: runs, Calls: fakeCalls{}})
	rr, out := do(t, h, http.MethodGet, "/papers/p/runs?limit=1", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, out["runs"], 1)
	calls := out["llm_calls"].(map[string]any)
	require.EqualValues(t, 3, calls["calls"])

	rr, _ = do(t, h, http.MethodGet, "/papers/p/runs?limit=abc", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLatestRun(t *testing.T) {
	runs := &fakeRuns{runs: []models.ScoreRun{
		{RunID: "r2", PaperID: "p", Score: 0.5},
		{RunID: "r1", PaperID: "p", Score: 0.25},
	}}
	_, h := newTestServer(t, testConfig(), Deps{Runs: runs})

	rr, out := do(t, h, http.MethodGet, "/papers/p/runs?latest=1", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	run := out["run"].(map[string]any)
	require.Equal(t, "r2", run["run_id"])
	require.NotContains(t, out, "runs")
	require.NotContains(t, out, "llm_calls")

	rr, _ = do(t, h, http.MethodGet, "/papers/never-scored/runs?latest=1", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "VX-API-4004")

	rr, out = do(t, h, http.MethodGet, "/papers/p/runs?latest=false", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, out["runs"], 2)

	rr, _ = do(t, h, http.MethodGet, "/papers/p/runs?latest=maybe", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&rubric.MissingFieldError{Field: "Runtime"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("compute: %w", scoring.ErrNoPagesScored), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: timeout", pdftext.ErrDownload), http.StatusBadGateway},
		{providers.Wrap(errors.New("gemini error 429: RESOURCE_EXHAUSTED quota")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
