package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"github.com/stretchr/testify/require"
)

func TestFetchHTTPBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		_, _ = w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	f := New()
	out, err := f.Fetch(context.Background(), Request{Mirrors: []string{srv.URL}, Subpath: "object"})
	require.NoError(t, err)
	require.Equal(t, OutcomeBytes, out.Kind)
	require.Equal(t, []byte("hello world"), out.Buf)
	require.Equal(t, `"abc"`, out.ETag)
	require.EqualValues(t, len("hello world"), f.BytesTransferred())
}

func TestFetchNotFoundIsTerminal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New()
	_, err := f.Fetch(context.Background(), Request{Mirrors: []string{srv.URL, srv.URL}, Subpath: "missing"})
	require.Error(t, err)
	require.True(t, ostreeerr.Is(err, ostreeerr.ErrNotFound))
	require.Equal(t, 1, calls, "NotFound must not rotate to the next mirror")
}

func TestFetchRotatesOnServerError(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer good.Close()

	f := New()
	out, err := f.Fetch(context.Background(), Request{Mirrors: []string{bad.URL, good.URL}, Subpath: "x"})
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), out.Buf)
}

func TestFetchAllMirrorsFailed(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	f := New()
	_, err := f.Fetch(context.Background(), Request{Mirrors: []string{bad.URL}, Subpath: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "All 1 mirrors failed")
}

func TestFetchNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	f := New()
	out, err := f.Fetch(context.Background(), Request{Mirrors: []string{srv.URL}, Subpath: "x", IfNoneMatch: `"abc"`})
	require.NoError(t, err)
	require.Equal(t, OutcomeNotModified, out.Kind)
}

func TestFetchMaxSizeExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	f := New()
	_, err := f.Fetch(context.Background(), Request{Mirrors: []string{srv.URL}, Subpath: "x", MaxSize: 10})
	require.Error(t, err)
	require.True(t, ostreeerr.Is(err, ostreeerr.ErrSizeExceeded))
}

func TestFetchFileScheme(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "object")
	require.NoError(t, os.WriteFile(path, []byte("filedata"), 0o644))

	f := New()
	out, err := f.Fetch(context.Background(), Request{Mirrors: []string{"file://" + dir}, Subpath: "object"})
	require.NoError(t, err)
	require.Equal(t, []byte("filedata"), out.Buf)
}

func TestFetchFileSchemeNotFound(t *testing.T) {
	dir := t.TempDir()
	f := New()
	_, err := f.Fetch(context.Background(), Request{Mirrors: []string{"file://" + dir}, Subpath: "missing"})
	require.Error(t, err)
	require.True(t, ostreeerr.Is(err, ostreeerr.ErrNotFound))
}

func TestFetchToTmpFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tmpdata"))
	}))
	defer srv.Close()

	f := New()
	out, err := f.Fetch(context.Background(), Request{Mirrors: []string{srv.URL}, Subpath: "x", AsTmpFile: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeTmpFile, out.Kind)
	defer os.Remove(out.Path)
	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	require.Equal(t, []byte("tmpdata"), data)
}
