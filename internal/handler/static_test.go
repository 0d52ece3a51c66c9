package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveFileServer(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "2024-05-01_12-00-00_ffa")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "thumbnail.png"), []byte("png bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(root), "secret.txt"), []byte("nope"), 0o644))
	t.Cleanup(func() { os.Remove(filepath.Join(filepath.Dir(root), "secret.txt")) })

	r := chi.NewRouter()
	r.Handle("/archive/*", NewArchiveFileServer(root))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		return rec
	}

	t.Run("serves archived files", func(t *testing.T) {
		rec := get("/archive/2024-05-01_12-00-00_ffa/thumbnail.png")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "png bytes", rec.Body.String())
	})

	t.Run("does not list directories", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get("/archive/2024-05-01_12-00-00_ffa/").Code)
		assert.Equal(t, http.StatusNotFound, get("/archive/").Code)
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get("/archive/2024-05-01_12-00-00_ffa/fullsize.png").Code)
	})

	t.Run("stays inside the archive", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/archive/x", nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("*", "../secret.txt")
		req = req.WithContext(chiContext(req, rctx))
		NewArchiveFileServer(root).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestWithin(t *testing.T) {
	root := filepath.FromSlash("/srv/archive")

	path, ok := within(root, "a/b.park")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(root, "a", "b.park"), path)

	for _, name := range []string{"", ".", "..", "../etc/passwd", "a/../../x"} {
		_, ok := within(root, name)
		assert.False(t, ok, name)
	}
}
