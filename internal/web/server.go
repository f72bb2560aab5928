// Package web provides a local JSON API for reading and editing Index files.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/ifarchive/indexadmin/internal/archive"
	"github.com/ifarchive/indexadmin/internal/catalog"
	"github.com/ifarchive/indexadmin/internal/index"
	"github.com/ifarchive/indexadmin/internal/store"
)

// maxFormSize caps POST bodies (1 MB).
const maxFormSize = 1 << 20

// Serve starts the API server on addr and blocks until ctx is done.
func Serve(ctx context.Context, addr string, db *store.DB, arch *archive.Archive, version string) error {
	s := &server{
		db:      db,
		arch:    arch,
		version: version,
		L:       arch.Logger().Named("web"),
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.L.Info("serving", "url", "http://"+listener.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type server struct {
	db      *store.DB
	arch    *archive.Archive
	version string
	L       hclog.Logger
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/index", s.handleIndex)
	mux.HandleFunc("/api/index/text", s.handleIndexText)
	mux.HandleFunc("/api/entry", s.handleEntry)
	mux.HandleFunc("/api/validate", s.handleValidate)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/edits", s.handleEdits)
	return localhostOnly(sameOriginWrites(securityHeaders(mux)))
}

// --- Middleware ---

func isLocalHost(host string) bool {
	if idx := strings.LastIndex(host, ":"); idx >= 0 && !strings.HasSuffix(host, "]") {
		host = host[:idx]
	}
	host = strings.Trim(host, "[]") // strip IPv6 brackets

	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func localhostOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLocalHost(r.Host) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sameOriginWrites rejects browser POSTs from pages not served by localhost.
func sameOriginWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			if origin := r.Header.Get("Origin"); origin != "" {
				u, err := url.Parse(origin)
				if err != nil || !isLocalHost(u.Host) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// --- Handlers ---

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	trash, err := s.arch.ListTrash()
	if err != nil {
		s.L.Warn("list trash", "dir", s.arch.TrashDir, "error", err)
	}
	status := catalog.GetStats(s.db)
	status["version"] = s.version
	status["archive_root"] = s.arch.Root
	status["index_name"] = s.arch.IndexName
	status["trash_files"] = len(trash)
	writeJSON(w, status)
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	d, ok := s.loadDir(w, r)
	if !ok {
		return
	}
	writeJSON(w, d)
}

func (s *server) handleIndexText(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	d, ok := s.loadDir(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := d.WriteTo(w); err != nil {
		s.L.Warn("write index text", "dir", d.Dirname, "error", err)
	}
}

func (s *server) loadDir(w http.ResponseWriter, r *http.Request) (*index.Dir, bool) {
	d, err := s.arch.Load(r.URL.Query().Get("dir"))
	if err != nil {
		s.writeSaveError(w, err)
		return nil, false
	}
	return d, true
}

func (s *server) handleEntry(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	dirname := r.PostForm.Get("dir")
	filename := r.PostForm.Get("filename")
	desc := normalizeNewlines(r.PostForm.Get("description"))
	metadata := normalizeNewlines(r.PostForm.Get("metadata"))
	if filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	res, err := s.arch.SaveEntry(dirname, filename, desc, metadata)
	if err != nil {
		s.writeSaveError(w, err)
		return
	}

	if err := catalog.IndexDir(s.db, s.arch, res.Dirname); err != nil {
		s.L.Warn("recatalog after save", "dir", res.Dirname, "error", err)
	}
	if err := s.db.RecordEdit(&store.EditRecord{
		Dirname:  res.Dirname,
		Filename: res.Filename,
		Source:   "web",
		Backup:   res.Backup,
		Deleted:  res.Deleted,
	}); err != nil {
		s.L.Warn("record edit", "error", err)
	}
	s.L.Info("saved entry", "dir", res.Dirname, "file", res.Filename, "backup", res.Backup)
	writeJSON(w, res)
}

func (s *server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	pairs, err := index.ValidateMetadataBlock(normalizeNewlines(r.PostForm.Get("metadata")))
	if err != nil {
		s.writeSaveError(w, err)
		return
	}
	if pairs == nil {
		pairs = index.Metadata{}
	}
	writeJSON(w, map[string]any{"metadata": pairs})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	limit := queryLimit(q, 50, 500)

	var (
		results []store.EntryRecord
		err     error
	)
	switch {
	case q.Get("key") != "":
		results, err = s.db.FindByMetadata(q.Get("key"), q.Get("value"), limit)
	case strings.TrimSpace(q.Get("q")) != "":
		results, err = s.db.SearchDescriptions(strings.TrimSpace(q.Get("q")), limit)
	default:
		writeError(w, http.StatusBadRequest, "key or q parameter is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		s.L.Error("search", "error", err)
		return
	}
	if results == nil {
		results = []store.EntryRecord{}
	}
	writeJSON(w, results)
}

func (s *server) handleEdits(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	edits, err := s.db.RecentEdits(queryLimit(r.URL.Query(), 20, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read edit log")
		s.L.Error("recent edits", "error", err)
		return
	}
	if edits == nil {
		edits = []store.EditRecord{}
	}
	writeJSON(w, edits)
}

// --- Helpers ---

func (s *server) writeSaveError(w http.ResponseWriter, err error) {
	var verr *index.ValidationError
	switch {
	case errors.As(err, &verr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   "invalid metadata line",
			"line":    verr.Line,
			"line_no": verr.LineNo,
		})
	case errors.Is(err, archive.ErrBadDirname), errors.Is(err, archive.ErrBadFilename),
		errors.Is(err, archive.ErrBadDescription):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.L.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func queryLimit(q url.Values, def, max int) int {
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
