// Package server exposes the shell and wizard operations as a JSON API.
//
// Every learner works in a session addressed by a UUID. The session holds a
// shell controller and a narration renderer; narration is returned as WAV
// rather than played. The API is mounted next to the health probes and the
// Prometheus scrape endpoint, and every route runs behind
// [observe.Middleware].
//
//	POST   /v1/sessions                          open or resume a session
//	GET    /v1/sessions/{id}                     session state
//	DELETE /v1/sessions/{id}                     end the session
//	POST   /v1/sessions/{id}/login               {"name": "..."}
//	POST   /v1/sessions/{id}/logout
//	GET    /v1/sessions/{id}/lessons             catalog with completion marks
//	POST   /v1/sessions/{id}/lesson              {"lesson_id": 3}
//	POST   /v1/sessions/{id}/home
//	PUT    /v1/sessions/{id}/inputs/{key}        {"text": "..."}
//	POST   /v1/sessions/{id}/inputs/{key}/dictation {"transcript": "..."}
//	POST   /v1/sessions/{id}/insight
//	POST   /v1/sessions/{id}/continue
//	POST   /v1/sessions/{id}/back
//	POST   /v1/sessions/{id}/complete
//	GET    /v1/sessions/{id}/narration.wav       ?perspective=JOB
//	GET    /v1/lessons                           ?cycle=2
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/wisdomtrail/internal/app"
	"github.com/MrWong99/wisdomtrail/internal/catalog"
	"github.com/MrWong99/wisdomtrail/internal/config"
	"github.com/MrWong99/wisdomtrail/internal/health"
	"github.com/MrWong99/wisdomtrail/internal/identity"
	"github.com/MrWong99/wisdomtrail/internal/narration"
	"github.com/MrWong99/wisdomtrail/internal/observe"
	"github.com/MrWong99/wisdomtrail/internal/shell"
	"github.com/MrWong99/wisdomtrail/internal/wizard"
	"github.com/MrWong99/wisdomtrail/pkg/audio"
)

// maxBody bounds JSON request bodies.
const maxBody = 64 << 10

// errSessionNotFound is returned for ids without a live session.
var errSessionNotFound = errors.New("server: session not found")

// Server serves the learner API.
type Server struct {
	app      *app.App
	sessions *app.SessionManager
	health   *health.Handler
	metrics  http.Handler
	log      *slog.Logger
}

// Option configures a [Server].
type Option func(*Server)

// WithMetricsHandler replaces the Prometheus handler mounted on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New returns a server over sessions. Readiness is probed with the app's
// health checkers.
func New(a *app.App, sessions *app.SessionManager, opts ...Option) *Server {
	s := &Server{
		app:      a,
		sessions: sessions,
		health:   health.New(a.HealthCheckers()),
		metrics:  promhttp.Handler(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.Register(mux)
	mux.Handle("GET /metrics", s.metrics)

	mux.HandleFunc("GET /v1/lessons", s.handleLessons)
	mux.HandleFunc("POST /v1/sessions", s.handleOpen)
	mux.HandleFunc("GET /v1/sessions/{id}", s.withSession(s.handleState))
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleStop)
	mux.HandleFunc("POST /v1/sessions/{id}/login", s.withSession(s.handleLogin))
	mux.HandleFunc("POST /v1/sessions/{id}/logout", s.withSession(s.handleLogout))
	mux.HandleFunc("GET /v1/sessions/{id}/lessons", s.withSession(s.handleSessionLessons))
	mux.HandleFunc("POST /v1/sessions/{id}/lesson", s.withSession(s.handleSelect))
	mux.HandleFunc("POST /v1/sessions/{id}/home", s.withSession(s.handleHome))
	mux.HandleFunc("PUT /v1/sessions/{id}/inputs/{key}", s.withLesson(s.handleSetInput))
	mux.HandleFunc("POST /v1/sessions/{id}/inputs/{key}/dictation", s.withLesson(s.handleDictation))
	mux.HandleFunc("POST /v1/sessions/{id}/insight", s.withLesson(s.handleInsight))
	mux.HandleFunc("POST /v1/sessions/{id}/continue", s.withLesson(s.handleContinue))
	mux.HandleFunc("POST /v1/sessions/{id}/back", s.withLesson(s.handleBack))
	mux.HandleFunc("POST /v1/sessions/{id}/complete", s.withSession(s.handleComplete))
	mux.HandleFunc("GET /v1/sessions/{id}/narration.wav", s.withLesson(s.handleNarration))

	return observe.Middleware(s.app.Metrics())(mux)
}

// ListenAndServe serves on cfg.ListenAddr until ctx is cancelled, then
// drains in-flight requests for up to 10 seconds.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", "addr", cfg.ListenAddr, "tls", cfg.TLS != nil)
		if cfg.TLS != nil {
			errCh <- srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// ─── Middleware ──────────────────────────────────────────────────────────────

type sessionHandler func(w http.ResponseWriter, r *http.Request, ls *app.LearnerSession)

type lessonHandler func(w http.ResponseWriter, r *http.Request, ls *app.LearnerSession, ws *wizard.Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ls, ok := s.sessions.Get(r.PathValue("id"))
		if !ok {
			s.writeError(w, r, errSessionNotFound)
			return
		}
		r = r.WithContext(observe.WithSession(r.Context(), ls.Info().SessionID))
		h(w, r, ls)
	}
}

func (s *Server) withLesson(h lessonHandler) http.HandlerFunc {
	return s.withSession(func(w http.ResponseWriter, r *http.Request, ls *app.LearnerSession) {
		ws, ok := ls.Controller.Session()
		if !ok {
			s.writeError(w, r, shell.ErrNoLesson)
			return
		}
		h(w, r, ls, ws)
	})
}

// ─── Catalog ─────────────────────────────────────────────────────────────────

func (s *Server) handleLessons(w http.ResponseWriter, r *http.Request) {
	cat := s.app.Catalog()
	var cycles []catalog.Cycle
	if v := r.URL.Query().Get("cycle"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, badRequest("cycle must be a number"))
			return
		}
		c, ok := cat.Cycle(id)
		if !ok {
			s.writeError(w, r, fmt.Errorf("%w: cycle %d", shell.ErrUnknownLesson, id))
			return
		}
		cycles = []catalog.Cycle{c}
	} else {
		cycles = cat.Cycles()
	}
	writeJSON(w, http.StatusOK, catalogView(cat, cycles, nil))
}

// ─── Sessions ────────────────────────────────────────────────────────────────

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	ls, err := s.sessions.Open(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(ls))
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request, ls *app.LearnerSession) {
	writeJSON(w, http.StatusOK, stateOf(ls))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Stop(r.PathValue("id")); err != nil {
		s.writeError(w, r, errSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, ls *app.LearnerSession) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := ls.Controller.Login(r.Context(), req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(ls))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, ls *app.LearnerSession) {
	if err := ls.Controller.Logout(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(ls))
}

func (s *Server) handleSessionLessons(w http.ResponseWriter, _ *http.Request, ls *app.LearnerSession) {
	cat := ls.Controller.Catalog()
	writeJSON(w, http.StatusOK, catalogView(cat, cat.Cycles(), ls.Controller.IsCompleted))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, ls *app.LearnerSession) {
	var req struct {
		LessonID int `json:"lesson_id"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := ls.Controller.Select(req.LessonID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(ls))
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request, ls *app.LearnerSession) {
	ls.Controller.Home()
	writeJSON(w, http.StatusOK, stateOf(ls))
}

// ─── Wizard ──────────────────────────────────────────────────────────────────

func (s *Server) handleSetInput(w http.ResponseWriter, r *http.Request, ls *app.LearnerSession, ws *wizard.Session) {
	key, err := wizard.ParseInputKey(r.PathValue("key"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %s", wizard.ErrUnknownInput, r.PathValue("key")))
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := ws.SetInput(key, req.Text); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(ls))
}

func (s *Server) handleDictation(w http.ResponseWriter, r *http.Request, ls *app.LearnerSession, ws *wizard.Session) {
	key, err := wizard.ParseInputKey(r.PathValue("key"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %s", wizard.ErrUnknownInput, r.PathValue("key")))
		return
	}
	var req struct {
		Transcript string `json:"transcript"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := ws.AppendDictation(key, req.Transcript); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(ls))
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request, ls *app.LearnerSession, ws *wizard.Session) {
	if _, err := ws.SeekInsight(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(ls))
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request, ls *app.LearnerSession, ws *wizard.Session) {
	if _, err := ws.Continue(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(ls))
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request, ls *app.LearnerSession, ws *wizard.Session) {
	if _, err := ws.Back(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(ls))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, ls *app.LearnerSession) {
	if _, err := ls.Controller.Complete(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateOf(ls))
}

// handleNarration renders the narration of the current step, or of one
// perspective panel, as a mono 16-bit WAV file.
func (s *Server) handleNarration(w http.ResponseWriter, r *http.Request, ls *app.LearnerSession, ws *wizard.Session) {
	text := ws.NarrationText()
	if v := r.URL.Query().Get("perspective"); v != "" {
		p := catalog.Perspective(v)
		if !p.IsValid() {
			s.writeError(w, r, badRequest("unknown perspective "+strconv.Quote(v)))
			return
		}
		text = ws.PerspectiveNarration(p)
	}

	ls.Narrator.SetText(text)
	buf, err := ls.Narrator.Render(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"lesson-%d-%s.wav\"", ws.Lesson().ID, ws.Step()))
	if err := audio.WriteWAV(w, buf, ls.Narrator.Volume()); err != nil {
		observe.Logger(r.Context()).Warn("server: write narration", "err", err)
	}
}

// ─── Errors ──────────────────────────────────────────────────────────────────

type badRequest string

func (e badRequest) Error() string { return string(e) }

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br), errors.Is(err, app.ErrInvalidSessionID):
		return http.StatusBadRequest
	case errors.Is(err, shell.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, errSessionNotFound),
		errors.Is(err, shell.ErrUnknownLesson),
		errors.Is(err, wizard.ErrUnknownInput):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrDiscarded):
		return http.StatusGone
	case errors.Is(err, identity.ErrNameRequired),
		errors.Is(err, wizard.ErrInvalidChoice),
		errors.Is(err, wizard.ErrInputRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shell.ErrNoLesson),
		errors.Is(err, wizard.ErrInsightRequired),
		errors.Is(err, wizard.ErrInsightPending),
		errors.Is(err, wizard.ErrWrongStep),
		errors.Is(err, wizard.ErrFirstStep),
		errors.Is(err, wizard.ErrLastStep),
		errors.Is(err, wizard.ErrAlreadyComplete):
		return http.StatusConflict
	case errors.Is(err, narration.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("server: request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
