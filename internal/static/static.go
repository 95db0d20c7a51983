// Package static serves the built client bundle with single-page-app
// fallback: any path that is not a file gets index.html.
package static

import (
	"bytes"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const indexFile = "index.html"

// NotBuiltMessage is the 404 body returned when the bundle has no index.
const NotBuiltMessage = "Not found. Build the client bundle first."

var mimeTypes = map[string]string{
	".html":  "text/html",
	".js":    "application/javascript",
	".css":   "text/css",
	".json":  "application/json",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".ico":   "image/x-icon",
	".svg":   "image/svg+xml",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".mid":   "audio/midi",
	".midi":  "audio/midi",
	".mp3":   "audio/mpeg",
	".wav":   "audio/wav",
	".webp":  "image/webp",
	".map":   "application/json",
}

// ContentType returns the MIME type served for name.
func ContentType(name string) string {
	if ct, ok := mimeTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Handler serves files from a directory.
type Handler struct {
	fsys   fs.FS
	logger *zap.Logger
}

// NewHandler serves the directory dir.
func NewHandler(dir string, logger *zap.Logger) *Handler {
	return NewFSHandler(os.DirFS(dir), logger)
}

// NewFSHandler serves an arbitrary file system.
func NewFSHandler(fsys fs.FS, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{fsys: fsys, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if rel, ok := relPath(r.URL.Path); ok {
		if h.serveFile(w, r, rel) {
			return
		}
	}

	if !h.serveFile(w, r, indexFile) {
		h.logger.Warn("Client bundle missing", zap.String("path", r.URL.Path))
		http.Error(w, NotBuiltMessage, http.StatusNotFound)
	}
}

// serveFile writes rel if it is a regular file and reports whether it did.
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, rel string) bool {
	f, err := h.fsys.Open(rel)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return false
	}

	w.Header().Set("Content-Type", ContentType(rel))
	if rs, ok := f.(io.ReadSeeker); ok {
		http.ServeContent(w, r, rel, info.ModTime(), rs)
		return true
	}

	data, err := fs.ReadFile(h.fsys, rel)
	if err != nil {
		return false
	}
	http.ServeContent(w, r, rel, info.ModTime(), bytes.NewReader(data))
	return true
}

// relPath maps a URL path to a path inside the bundle. Traversal, NUL,
// backslashes and absolute-path tricks are rejected.
func relPath(urlPath string) (string, bool) {
	rel := strings.TrimPrefix(urlPath, "/")
	if rel == "" {
		return "", false
	}
	if strings.IndexByte(rel, 0) != -1 || strings.Contains(rel, "\\") {
		return "", false
	}
	if strings.HasPrefix(rel, "/") {
		return "", false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "." || seg == ".." {
			return "", false
		}
	}

	clean := path.Clean(rel)
	if clean == "." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	osPath := filepath.FromSlash(clean)
	if filepath.IsAbs(osPath) || filepath.VolumeName(osPath) != "" {
		return "", false
	}
	return clean, true
}
