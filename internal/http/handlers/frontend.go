package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hongminglow/moviebox-be/internal/http/respond"
)

// FrontendHandler serves the built single-page app. Unknown paths fall back
// to index.html so client-side routes work; unmatched /api paths get a JSON 404.
type FrontendHandler struct {
	dir string
}

// NewFrontendHandler serves files from dir.
func NewFrontendHandler(dir string) *FrontendHandler {
	return &FrontendHandler{dir: dir}
}

// Register attaches the catch-all routes to the mux.
func (h *FrontendHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/", h.handleAPINotFound)
	mux.Handle("/", h)
}

func (h *FrontendHandler) handleAPINotFound(w http.ResponseWriter, r *http.Request) {
	respond.Error(w, http.StatusNotFound, "Not found")
}

func (h *FrontendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	if clean != "/" && !strings.HasSuffix(clean, "/index.html") {
		file := filepath.Join(h.dir, filepath.FromSlash(clean))
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			http.ServeFile(w, r, file)
			return
		}
	}

	index := filepath.Join(h.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.Error(w, "Frontend build not found.", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, index)
}
