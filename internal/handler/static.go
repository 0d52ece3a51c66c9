package handler

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ArchiveFileServer serves saves and images from the archive directory.
// Directories are never listed.
type ArchiveFileServer struct {
	root string
}

func NewArchiveFileServer(root string) *ArchiveFileServer {
	return &ArchiveFileServer{root: root}
}

func (h *ArchiveFileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Get the wildcard path from Chi router context
	name := strings.TrimPrefix(chi.URLParam(r, "*"), "/")

	path, ok := within(h.root, name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, path)
}
