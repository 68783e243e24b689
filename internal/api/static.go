package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yegors/livecap/pkg/logger"
)

// StaticFileHandler serves the caption UI assets, falling back to
// index.html for unknown paths so client-side routing keeps working.
type StaticFileHandler struct {
	root   string
	fs     http.Handler
	logger *logger.Logger
}

// NewStaticFileHandler creates a handler rooted at the given directory.
func NewStaticFileHandler(root string, log *logger.Logger) *StaticFileHandler {
	return &StaticFileHandler{
		root:   root,
		fs:     http.FileServer(http.Dir(root)),
		logger: log.Named("static"),
	}
}

func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Reject path traversal before touching the filesystem
	if strings.Contains(r.URL.Path, "..") {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	path := filepath.Join(h.root, filepath.Clean("/"+r.URL.Path))
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		if r.URL.Path != "/" {
			http.ServeFile(w, r, filepath.Join(h.root, "index.html"))
			return
		}
	}

	h.fs.ServeHTTP(w, r)
}
