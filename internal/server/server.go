// Package server exposes the context store, matrix builder and exporter over
// an HTTP JSON API.
package server

import (
	gocontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cgast/tracegen/internal/metrics"
	"github.com/cgast/tracegen/internal/sandbox"
	tgctx "github.com/cgast/tracegen/pkg/context"
	"github.com/cgast/tracegen/pkg/events"
	"github.com/cgast/tracegen/pkg/export"
	"github.com/cgast/tracegen/pkg/testcase"
	"github.com/cgast/tracegen/pkg/trace"
)

// maxBodySize bounds request bodies.
const maxBodySize = 16 << 20

// Config holds the server dependencies. Bus, Metrics and Logger are optional.
type Config struct {
	Store          *tgctx.Store
	Exporter       *export.Exporter
	Bus            events.EventBus
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	AllowedOrigins []string
}

// Server is the HTTP API server.
type Server struct {
	store     *tgctx.Store
	exporter  *export.Exporter
	bus       events.EventBus
	metrics   *metrics.Metrics
	log       *slog.Logger
	router    chi.Router
	startTime time.Time
}

// New creates a Server and builds its routes.
func New(cfg Config) *Server {
	s := &Server{
		store:     cfg.Store,
		exporter:  cfg.Exporter,
		bus:       cfg.Bus,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		startTime: time.Now(),
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Route("/contexts", func(r chi.Router) {
			r.Post("/", s.handleCreateContext)
			r.Get("/", s.handleListContexts)
			r.Get("/{id}", s.handleGetContext)
			r.Post("/{id}/updates", s.handleBuildContext)
			r.Post("/{id}/feedback", s.handleFeedback)
		})
		r.Post("/matrix", s.handleMatrix)
		r.Post("/export", s.handleExport)
		r.Get("/formats", s.handleFormats)
		r.Get("/events", s.handleEvents)
		r.Get("/events/stream", s.handleEventStream)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx gocontext.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := gocontext.WithTimeout(gocontext.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type createContextRequest struct {
	RequirementText string         `json:"requirement_text"`
	Domain          string         `json:"domain"`
	Metadata        map[string]any `json:"metadata"`
}

type matrixRequest struct {
	RequirementText string              `json:"requirement_text"`
	TestCases       []testcase.TestCase `json:"test_cases"`
	ContextID       string              `json:"context_id,omitempty"`
}

type exportRequest struct {
	TestCases   []testcase.TestCase `json:"test_cases"`
	Format      string              `json:"format"`
	Destination string              `json:"destination,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleCreateContext(w http.ResponseWriter, r *http.Request) {
	var req createContextRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RequirementText == "" {
		writeError(w, http.StatusBadRequest, "requirement_text is required")
		return
	}
	id, err := s.store.Create(req.RequirementText, req.Domain, req.Metadata)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"context_id": id})
}

func (s *Server) handleListContexts(w http.ResponseWriter, _ *http.Request) {
	summaries, err := s.store.List()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok, err := s.store.Get(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "context not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleBuildContext(w http.ResponseWriter, r *http.Request) {
	var info map[string]any
	if !decode(w, r, &info) {
		return
	}
	rec, err := s.store.Build(chi.URLParam(r, "id"), info)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var feedback map[string]any
	if !decode(w, r, &feedback) {
		return
	}
	rec, err := s.store.AddFeedback(chi.URLParam(r, "id"), feedback)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleMatrix(w http.ResponseWriter, r *http.Request) {
	var req matrixRequest
	if !decode(w, r, &req) {
		return
	}
	m := trace.Build(req.RequirementText, req.TestCases)
	if s.bus != nil {
		sum := m.Summary()
		s.bus.Publish(events.NewEvent(events.EventMatrixBuilt, events.MatrixData{
			Requirements: sum.Requirements,
			Covered:      sum.Covered,
		}))
	}
	if req.ContextID != "" {
		if _, err := s.store.Build(req.ContextID, m.AsInfo()); err != nil {
			s.fail(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := s.exporter.Export(req.TestCases, export.Format(req.Format), req.Destination)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, export.Formats())
}

// handleEvents returns the event history, optionally since an RFC 3339 time.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeJSON(w, http.StatusOK, []events.Event{})
		return
	}
	var since time.Time
	if q := r.URL.Query().Get("since"); q != "" {
		t, err := time.Parse(time.RFC3339, q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since: "+err.Error())
			return
		}
		since = t
	}
	history := s.bus.History(since)
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

// handleEventStream streams history and then live events as Server-Sent Events.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusNotFound, "event bus disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Events published between Subscribe and History arrive on both; the
	// sequence number of the last replayed event filters the repeats.
	var replayed uint64
	for _, ev := range s.bus.History(time.Time{}) {
		writeSSE(w, ev)
		replayed = ev.Seq
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Seq != 0 && ev.Seq <= replayed {
				continue
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// fail maps domain errors to HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tgctx.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, export.ErrUnsupportedFormat):
		status = http.StatusBadRequest
	case errors.Is(err, export.ErrNotImplemented):
		status = http.StatusNotImplemented
	case errors.Is(err, sandbox.ErrPathDenied):
		status = http.StatusForbidden
	case errors.Is(err, sandbox.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
