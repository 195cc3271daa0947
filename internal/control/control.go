// Package control serves an HTTP API for inspecting and adjusting a running
// engine.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/icco/chordglide/internal/engine"
	"github.com/icco/chordglide/internal/host"
)

// SaveDelay is how long parameter changes settle before they are persisted.
const SaveDelay = 500 * time.Millisecond

// Backend is the running engine as seen by the API.
type Backend interface {
	Snapshot() engine.Snapshot
	Reset()
}

// Status is the body of GET /status.
type Status struct {
	RunID    string          `json:"runId"`
	Uptime   string          `json:"uptime"`
	Snapshot engine.Snapshot `json:"engine"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Option configures a Server.
type Option func(*Server)

// WithRunID sets the id reported by /status.
func WithRunID(id uuid.UUID) Option {
	return func(s *Server) { s.runID = id }
}

// WithPersist saves every parameter change through fn once changes have
// settled for delay.
func WithPersist(fn func(engine.Params) error, delay time.Duration) Option {
	return func(s *Server) {
		s.save = fn
		s.debounced = debounce.New(delay)
	}
}

// Server is the control API.
type Server struct {
	log     *slog.Logger
	store   *host.Store
	backend Backend
	runID   uuid.UUID
	started time.Time

	save      func(engine.Params) error
	debounced func(func())
}

// New returns a server editing store and reporting on backend.
func New(log *slog.Logger, store *host.Store, backend Backend, opts ...Option) *Server {
	s := &Server{
		log:     log,
		store:   store,
		backend: backend,
		runID:   uuid.New(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.save != nil {
		store.Subscribe(s.persist)
	}
	return s
}

func (s *Server) persist(p engine.Params) {
	s.debounced(func() {
		if err := s.save(p); err != nil {
			s.log.Warn("control: save failed", "err", err)
			return
		}
		s.log.Debug("control: params saved", "params", p)
	})
}

// Handler returns the API routes with CORS applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/params", s.handleGetParams).Methods(http.MethodGet)
	router.HandleFunc("/params", s.handlePutParams).Methods(http.MethodPut)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(router)
}

// ListenAndServe serves the API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("control: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleGetParams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Get())
}

func (s *Server) handlePutParams(w http.ResponseWriter, r *http.Request) {
	p := s.store.Get()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{"could not decode params: " + err.Error()})
		return
	}
	if err := s.store.Set(p); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{err.Error()})
		return
	}

	s.log.Info("control: params updated", "glide_ms", p.GlideMs, "bend_range", p.BendRange, "strategy", p.Strategy)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Status{
		RunID:    s.runID.String(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Snapshot: s.backend.Snapshot(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.backend.Reset()
	s.log.Info("control: reset requested")
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
