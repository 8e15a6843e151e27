package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tclient "go.temporal.io/sdk/client"

	"verixiv/internal/config"
	"verixiv/internal/models"
	"verixiv/internal/scoring"
	"verixiv/internal/storage"
)

// PDFSource downloads a PDF and returns its page texts.
type PDFSource interface {
	Pages(ctx context.Context, url string) ([]string, error)
}

type RunHistory interface {
	ListRuns(ctx context.Context, paperID string, limit int) ([]models.ScoreRun, error)
	// LatestRun returns storage.ErrNoScoreRuns when the paper was never scored.
	LatestRun(ctx context.Context, paperID string) (models.ScoreRun, error)
}

type CallStats interface {
	StatsForPaper(ctx context.Context, paperID string) (storage.LLMCallStats, error)
}

// Deps are the collaborators of the HTTP server. Runs, Calls and Temporal
// are optional; the routes that need them answer 503 when they are nil.
type Deps struct {
	Scoring  *scoring.Service
	PDFs     PDFSource
	Runs     RunHistory
	Calls    CallStats
	Temporal tclient.Client
}

type Server struct {
	cfg      config.Config
	scoring  *scoring.Service
	pdfs     PDFSource
	runs     RunHistory
	calls    CallStats
	temporal tclient.Client
	now      func() time.Time
}

func NewServer(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:      cfg,
		scoring:  deps.Scoring,
		pdfs:     deps.PDFs,
		runs:     deps.Runs,
		calls:    deps.Calls,
		temporal: deps.Temporal,
		now:      time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer, withCORS(s.cfg.Origins()))

	r.Get("/", s.handleHealthz)
	r.Get("/healthz", s.handleHealthz)

	r.Post("/score", s.handleScore)
	r.Post("/score-by-text", s.handleScoreByText)
	r.Post("/process-arxiv", s.handleProcessArxiv)
	r.Post("/upload-pdf", s.handleUploadPDF)

	r.Post("/jobs", s.handleStartJob)
	r.Post("/jobs/batch", s.handleStartBatch)
	r.Get("/jobs/{id}", s.handleJobStatus)

	r.Get("/papers/{paper_id}/runs", s.handleRuns)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "VeriXiv API",
		"timestamp": s.timestamp(),
	})
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
