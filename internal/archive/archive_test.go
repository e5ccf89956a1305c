package archive

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmsas95/ddtscan/internal/config"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

type failing struct {
	calls int
}

func (f *failing) Name() string { return "failing" }

func (f *failing) Export(context.Context, string, []byte) error {
	f.calls++
	return errors.New("backend down")
}

func TestLocalExport(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir)

	require.NoError(t, l.Export(t.Context(), "2025/03/doc.pdf", []byte("%PDF-")))
	data, err := os.ReadFile(filepath.Join(dir, "2025", "03", "doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-"), data)

	require.NoError(t, l.Export(t.Context(), "2025/03/doc.pdf", []byte("%PDF-2")), "re-export overwrites")
	data, _ = os.ReadFile(filepath.Join(dir, "2025", "03", "doc.pdf"))
	assert.Equal(t, []byte("%PDF-2"), data)

	assert.ErrorIs(t, l.Export(t.Context(), "../escape.pdf", nil), apperrors.ErrBadRequest)
	assert.ErrorIs(t, l.Export(t.Context(), "/abs.pdf", nil), apperrors.ErrBadRequest)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	inner := &failing{}
	b := NewBreaker(inner, BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute}, nil)

	assert.Error(t, b.Export(t.Context(), "k", nil))
	assert.Error(t, b.Export(t.Context(), "k", nil))
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Export(t.Context(), "k", nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls, "open breaker must not call the backend")
}

func TestNewBackends(t *testing.T) {
	x, err := New(t.Context(), config.ArchiveConfig{Backend: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, x)

	x, err = New(t.Context(), config.ArchiveConfig{Backend: "local", Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.Equal(t, "local", x.Name())

	_, err = New(t.Context(), config.ArchiveConfig{Backend: "ftp"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)

	_, err = New(t.Context(), config.ArchiveConfig{Backend: "s3"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func TestS3Export(t *testing.T) {
	var mu sync.Mutex
	var method, path string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	x, err := NewS3(t.Context(), config.S3Config{
		Bucket:       "ddt",
		Region:       "eu-south-1",
		Endpoint:     srv.URL,
		AccessKey:    "AKIATEST",
		SecretKey:    "secret",
		Prefix:       "signed",
		UsePathStyle: true,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, x.Export(t.Context(), "doc.pdf", []byte("%PDF-1.3")))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/ddt/signed/doc.pdf", path)
	assert.Contains(t, string(body), "%PDF-1.3")
}
