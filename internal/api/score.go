package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"verixiv/internal/logging"
	"verixiv/internal/pdftext"
	"verixiv/internal/scoring"
	"verixiv/internal/util"
)

type scoreResponse struct {
	scoring.Report
	PDFURL string `json:"pdf_url,omitempty"`
	Cached bool   `json:"cached"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", userError("Malformed JSON request body."), err)
	}
	return nil
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaperID string `json:"paper_id"`
		PDFURL  string `json:"pdf_url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	req.PaperID = strings.TrimSpace(req.PaperID)
	req.PDFURL = strings.TrimSpace(req.PDFURL)
	if req.PaperID == "" {
		writeErr(w, http.StatusBadRequest, userError("ArXiv Paper Id is required"))
		return
	}
	if req.PDFURL == "" {
		writeErr(w, http.StatusBadRequest, userError("PDF URL is required"))
		return
	}

	report, err := s.scoring.ScorePaper(r.Context(), req.PaperID, func(ctx context.Context) ([]string, error) {
		return s.pdfs.Pages(ctx, req.PDFURL)
	})
	if err != nil {
		s.scoreFailed(w, r, req.PaperID, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{Report: report, PDFURL: req.PDFURL, Cached: report.Cached})
}

func (s *Server) handleScoreByText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaperID   string `json:"paper_id"`
		PaperText string `json:"paper_text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	req.PaperID = strings.TrimSpace(req.PaperID)
	if req.PaperID == "" {
		writeErr(w, http.StatusBadRequest, userError("Paper ID is required"))
		return
	}
	if strings.TrimSpace(req.PaperText) == "" {
		writeErr(w, http.StatusBadRequest, userError("Paper text is required"))
		return
	}

	report, err := s.scoring.ScorePaper(r.Context(), req.PaperID, func(context.Context) ([]string, error) {
		return scoring.SplitPages(req.PaperText, s.cfg.PageChars), nil
	})
	if err != nil {
		s.scoreFailed(w, r, req.PaperID, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{Report: report, Cached: report.Cached})
}

func (s *Server) scoreFailed(w http.ResponseWriter, r *http.Request, paperID string, err error) {
	status := statusFor(err)
	ctx := logging.WithPaperID(r.Context(), paperID)
	logging.WithContext(ctx).Error("score paper failed", "status", status, "err", err)
	writeErr(w, status, err)
}

type extractResponse struct {
	PaperID    string `json:"paper_id"`
	PDFURL     string `json:"pdf_url,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Status     string `json:"status"`
	Text       string `json:"text"`
	TextLength int    `json:"text_length"`
	PageCount  int    `json:"page_count"`
	Timestamp  string `json:"timestamp"`
}

func (s *Server) handleProcessArxiv(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaperID string `json:"paper_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	req.PaperID = strings.TrimSpace(req.PaperID)
	if req.PaperID == "" {
		writeErr(w, http.StatusBadRequest, userError("Paper ID is required"))
		return
	}

	pdfURL := s.cfg.ArxivPDFBase + req.PaperID + ".pdf"
	pages, err := s.pdfs.Pages(r.Context(), pdfURL)
	if err != nil {
		s.scoreFailed(w, r, req.PaperID, err)
		return
	}
	text := pdftext.Join(pages)
	writeJSON(w, http.StatusOK, extractResponse{
		PaperID:    req.PaperID,
		PDFURL:     pdfURL,
		Status:     "processed",
		Text:       text,
		TextLength: utf8.RuneCountInString(text),
		PageCount:  len(pages),
		Timestamp:  s.timestamp(),
	})
}

func (s *Server) handleUploadPDF(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeErr(w, http.StatusBadRequest, userError("Uploaded file is too large"))
			return
		}
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	file, fh, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, userError("No file uploaded"))
		return
	}
	defer file.Close()
	if fh.Filename == "" {
		writeErr(w, http.StatusBadRequest, userError("No file selected"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("read upload: %w", err))
		return
	}
	pages, err := pdftext.ExtractPages(data)
	if err != nil {
		if errors.Is(err, util.ErrNoExtractableText) {
			writeErr(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeErr(w, http.StatusBadRequest, fmt.Errorf("%w: %v", userError("Failed to process PDF"), err))
		return
	}

	text := pdftext.Join(pages)
	writeJSON(w, http.StatusOK, extractResponse{
		PaperID:    "uploaded_" + util.SHA256Hex(data)[:12],
		Filename:   fh.Filename,
		Status:     "processed",
		Text:       text,
		TextLength: utf8.RuneCountInString(text),
		PageCount:  len(pages),
		Timestamp:  s.timestamp(),
	})
}
