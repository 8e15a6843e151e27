package pdftext

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.pdf":
			_, _ = w.Write([]byte("%PDF-1.4 body"))
		case "/big.pdf":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewDownloader(time.Second, 32)
	body, err := d.Download(context.Background(), srv.URL+"/ok.pdf")
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 body", string(body))

	_, err = d.Download(context.Background(), srv.URL+"/missing.pdf")
	require.ErrorIs(t, err, ErrDownload)

	_, err = d.Download(context.Background(), srv.URL+"/big.pdf")
	require.ErrorIs(t, err, ErrDownload)

	_, err = d.Download(context.Background(), "http://127.0.0.1:1/unreachable.pdf")
	require.ErrorIs(t, err, ErrDownload)
}

func TestPagesPropagatesDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	_, err := NewDownloader(time.Second, 0).Pages(context.Background(), srv.URL)
	require.True(t, errors.Is(err, ErrDownload))
}

func TestExtractPagesRejectsGarbage(t *testing.T) {
	_, err := ExtractPages([]byte("definitely not a pdf"))
	require.Error(t, err)
	_, err = ExtractPages(nil)
	require.Error(t, err)
}

func TestJoinSeparatesPagesWithFormFeed(t *testing.T) {
	require.Equal(t, "intro\f\fmethod", Join([]string{"intro", "", "method"}))
	require.Empty(t, Join(nil))
}
