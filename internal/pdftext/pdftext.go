// Package pdftext downloads PDFs and turns them into per-page plain text.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"verixiv/internal/util"
)

var ErrDownload = errors.New("failed to download PDF")

const defaultMaxBytes = 100 << 20

type Downloader struct {
	client   *http.Client
	maxBytes int64
}

func NewDownloader(timeout time.Duration, maxBytes int64) *Downloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Downloader{client: &http.Client{Timeout: timeout}, maxBytes: maxBytes}
}

// Download fetches url and returns the body. Every failure wraps ErrDownload.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	req.Header.Set("User-Agent", "verixiv/1.0")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d from %s", ErrDownload, resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrDownload, err)
	}
	if int64(len(body)) > d.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrDownload, d.maxBytes)
	}
	return body, nil
}

// Pages downloads url and extracts its pages.
func (d *Downloader) Pages(ctx context.Context, url string) ([]string, error) {
	data, err := d.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	return ExtractPages(data)
}

// ExtractPages returns one string per PDF page in page order. Pages without a
// text layer come back empty so later pages keep their numbers. It fails with
// util.ErrNoExtractableText when no page yields any text.
func ExtractPages(data []byte) (pages []string, err error) {
	defer func() {
		// the pdf reader panics on some malformed inputs
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := r.NumPage()
	pages = make([]string, n)
	found := false
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			slog.Warn("page text extraction failed", "page", i, "err", err)
			continue
		}
		text = util.SanitizeText(text)
		pages[i-1] = text
		if text != "" {
			found = true
		}
	}
	if !found {
		return nil, util.ErrNoExtractableText
	}
	return pages, nil
}

// Join renders pages as one text with form feeds between pages.
func Join(pages []string) string {
	return strings.Join(pages, "\f")
}

