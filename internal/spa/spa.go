// Package spa serves the built single-page frontend and keeps its cached
// index document fresh while the build directory changes.
package spa

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const indexFile = "index.html"

// Server serves files from a build directory. Paths that match no file fall
// back to index.html so client-side routes work on reload.
type Server struct {
	root string
	log  *slog.Logger

	mu      sync.RWMutex
	index   []byte
	modTime time.Time
}

// New creates a Server for root and loads the index document if present.
func New(root string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{root: root, log: log}
	s.reload()
	return s
}

// HasBuild reports whether an index document is cached.
func (s *Server) HasBuild() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index != nil
}

func (s *Server) reload() {
	full := filepath.Join(s.root, indexFile)
	data, err := os.ReadFile(full)
	var mod time.Time
	if err == nil {
		if info, statErr := os.Stat(full); statErr == nil {
			mod = info.ModTime()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.index != nil {
			s.log.Info("spa: build removed", slog.String("root", s.root))
		}
		s.index, s.modTime = nil, time.Time{}
		return
	}
	s.index, s.modTime = data, mod
	s.log.Info("spa: index loaded", slog.String("root", s.root), slog.Int("bytes", len(data)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ServeHTTP serves /static/* from the build root, any other existing file
// as-is, and index.html for everything else. Without a build, / answers
// with a short JSON banner.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clean := path.Clean("/" + r.URL.Path)

	if clean == "/api" || strings.HasPrefix(clean, "/api/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "API endpoint not found", "error": "Not Found"})
		return
	}

	if rest, ok := strings.CutPrefix(clean, "/static/"); ok {
		if !s.serveFile(w, r, rest) {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found", "error": "Not Found"})
		}
		return
	}

	if clean != "/" && s.serveFile(w, r, strings.TrimPrefix(clean, "/")) {
		return
	}

	s.mu.RLock()
	index, mod := s.index, s.modTime
	s.mu.RUnlock()

	if index == nil {
		if clean == "/" {
			writeJSON(w, http.StatusOK, map[string]string{"message": "ThinkBlock API"})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found", "error": "Not Found"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, indexFile, mod, bytes.NewReader(index))
}

// serveFile writes rel (slash-separated, already cleaned) if it names a
// regular file under root.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, rel string) bool {
	if rel == "" {
		return false
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	f, err := os.Open(full)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}
