// Package server exposes the repository over a JSON HTTP API.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/charmbracelet/log"
	"github.com/inaciog/reminders-app/internal/auth"
	"github.com/inaciog/reminders-app/internal/backup"
	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/repository"
	"github.com/inaciog/reminders-app/internal/storage"
)

//go:embed web/index.html
var webFS embed.FS

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("server: bad request")

// Persistence is the part of the store the API needs.
type Persistence interface {
	Restore(ctx context.Context, name string) (repository.Snapshot, error)
	LastSaved() time.Time
}

// Backups runs and lists backups.
type Backups interface {
	Run(ctx context.Context, reason string) backup.Result
	List(ctx context.Context) ([]backup.File, error)
}

type Deps struct {
	Repo            *repository.Repository
	Store           Persistence
	Backups         Backups
	Gate            *auth.Gate
	AssistantSecret string
	Logger          *log.Logger
	Now             func() time.Time
}

type Server struct {
	repo    *repository.Repository
	store   Persistence
	backups Backups
	gate    *auth.Gate
	secret  string
	logger  *log.Logger
	now     func() time.Time
	started time.Time
	mux     *http.ServeMux
}

func New(d Deps) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Gate == nil {
		d.Gate = auth.NewGate(auth.Config{}, d.Logger)
	}
	s := &Server{
		repo:    d.Repo,
		store:   d.Store,
		backups: d.Backups,
		gate:    d.Gate,
		secret:  d.AssistantSecret,
		logger:  d.Logger,
		now:     d.Now,
		started: d.Now(),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.recoverer(s.accessLog(s.mux))
}

func (s *Server) routes() {
	api := func(pattern string, h http.HandlerFunc) {
		s.mux.Handle(pattern, s.gate.RequireAPI(h))
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /auth-debug", s.handleAuthDebug)
	s.mux.Handle("GET /{$}", s.gate.RequirePage(http.HandlerFunc(s.handleIndex)))

	api("GET /api/folders", s.handleListFolders)
	api("POST /api/folders", s.handleCreateFolder)
	api("PATCH /api/folders/{id}", s.handleUpdateFolder)
	api("DELETE /api/folders/{id}", s.handleDeleteFolder)

	api("GET /api/reminders", s.handleListReminders)
	api("POST /api/reminders", s.handleCreateReminder)
	api("GET /api/reminders/today", s.handleToday)
	api("GET /api/reminders/{id}", s.handleGetReminder)
	api("PATCH /api/reminders/{id}", s.handleUpdateReminder)
	api("DELETE /api/reminders/{id}", s.handleDeleteReminder)
	api("POST /api/reminders/{id}/subtasks", s.handleAddSubtask)
	api("PATCH /api/reminders/{id}/subtasks/{subId}", s.handleUpdateSubtask)
	api("DELETE /api/reminders/{id}/subtasks/{subId}", s.handleDeleteSubtask)
	api("POST /api/bulk", s.handleBulk)

	api("GET /api/tags", s.handleTags)
	api("GET /api/stats", s.handleStats)

	api("POST /api/backup", s.handleBackup)
	api("GET /api/backups", s.handleListBackups)
	api("POST /api/restore", s.handleRestore)

	s.mux.HandleFunc("POST /api/external/reminder", s.handleExternalCreate)
	s.mux.HandleFunc("GET /api/external/reminders", s.handleExternalList)
	s.mux.HandleFunc("GET /api/external/stats", s.handleExternalStats)
	s.mux.HandleFunc("POST /api/external/bulk", s.handleExternalBulk)
}

// ─── Middleware ─────────────────────────────────────────────────────────────

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

// recoverer turns a panicking handler into a 500 so the process keeps
// serving.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", v, "stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, repository.ErrValidation),
		errors.Is(err, repository.ErrInboxProtected),
		errors.Is(err, model.ErrTitleRequired),
		errors.Is(err, model.ErrInvalidPriority),
		errors.Is(err, model.ErrInvalidRecurrence),
		errors.Is(err, storage.ErrCorruptDocument):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, storage.ErrBackupNotFound),
		errors.Is(err, backup.ErrNoDataFile):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", errBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON: %w", errBadRequest, err)
	}
	return nil
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func millisOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

// ─── Diagnostics ────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	folders, reminders := s.repo.Counts()
	var lastSaved time.Time
	if s.store != nil {
		lastSaved = s.store.LastSaved()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"reminders": reminders,
		"folders":   folders,
		"lastSaved": millisOrNil(lastSaved),
		"uptime":    int64(s.now().Sub(s.started).Seconds()),
	})
}

func (s *Server) handleAuthDebug(w http.ResponseWriter, r *http.Request) {
	token, source := s.gate.TokenFrom(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"authEnabled": s.gate.Enabled(),
		"tokenFound":  token != "",
		"tokenSource": source,
		"hasCookie":   r.Header.Get("Cookie") != "",
		"hasBearer":   source == auth.SourceHeader,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	b, err := webFS.ReadFile("web/index.html")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(b)
}
