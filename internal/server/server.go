// Package server exposes the skill registry over HTTP so remote-tagged
// skills can run next to their credentials.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/logging"
	"github.com/joss/elf/internal/metrics"
	"github.com/joss/elf/internal/skills"
)

// SkillInfo is one entry of GET /skills.
type SkillInfo struct {
	skills.Descriptor
	Valid bool `json:"valid"`
}

// Server serves skill execution requests.
type Server struct {
	registry *skills.Registry
	executor skills.Executor
	mux      *http.ServeMux
	addr     string
	log      *logging.Logger
	recovery *logging.RecoveryHandler
	metrics  *metrics.Metrics
}

// New builds a server. executor must run skills in-process; pointing it at
// another remote surface would forward requests in a loop.
func New(registry *skills.Registry, executor skills.Executor, addr string) *Server {
	s := &Server{
		registry: registry,
		executor: executor,
		mux:      http.NewServeMux(),
		addr:     addr,
		log:      logging.New("server"),
		recovery: logging.NewRecoveryHandler("server"),
		metrics:  metrics.New(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /skills", s.handleListSkills)
	s.mux.HandleFunc("POST /skills/{name}/execute", s.handleExecute)
}

// Handler returns the routed handler with request IDs attached.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(skills.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(skills.RequestIDHeader, id)
		s.mux.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// Retrieval skills run many completions per request.
		WriteTimeout: 15 * time.Minute,
	}

	errc := make(chan error, 1)
	logging.SafeGo("server", func() {
		s.log.Info("listening", map[string]interface{}{"addr": s.addr})
		errc <- srv.ListenAndServe()
	})

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, skills.ErrorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	descs := s.registry.List()
	out := make([]SkillInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, SkillInfo{Descriptor: d, Valid: s.registry.Valid(d)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	requestID := logging.GetRequestID(r.Context())
	log := s.log.WithRequest(requestID)

	if !s.registry.Has(name) {
		_, err := s.registry.Get(name)
		writeError(w, http.StatusNotFound, err)
		return
	}

	var in skills.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if in.Task.Skill == "" {
		in.Task.Skill = name
	}

	// From here on the response is a stream of events; failures travel as
	// the last event.
	w.Header().Set("Content-Type", skills.StreamContentType)
	w.WriteHeader(http.StatusOK)
	stream := newEventStream(w)
	in.Sink = stream.message

	start := time.Now()
	var out skills.Output
	err := s.recovery.WrapError(func() error {
		var execErr error
		out, execErr = s.executor.Execute(r.Context(), name, in)
		return execErr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.metrics.RecordExecution(name, metrics.OutcomeCancelled, time.Since(start))
			log.Info("execute_cancelled", map[string]interface{}{"skill": name})
			return
		}
		s.metrics.RecordExecution(name, metrics.OutcomeError, time.Since(start))
		log.Error("execute_failed", map[string]interface{}{"skill": name, "task": in.Task.ID}, err)
		stream.send(skills.Event{Error: err.Error()})
		return
	}

	s.metrics.RecordExecution(name, metrics.OutcomeSuccess, time.Since(start))
	log.TimedEvent("execute", start, map[string]interface{}{
		"skill":    name,
		"task":     in.Task.ID,
		"messages": stream.count(),
	})
	stream.send(skills.Event{Result: &out})
}

// eventStream writes one JSON event per line and flushes after each.
type eventStream struct {
	mu   sync.Mutex
	enc  *json.Encoder
	w    http.ResponseWriter
	sent int
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{enc: json.NewEncoder(w), w: w}
}

func (s *eventStream) message(m domain.Message) {
	s.send(skills.Event{Message: &m})
}

func (s *eventStream) send(ev skills.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(ev); err != nil {
		return
	}
	if ev.Message != nil {
		s.sent++
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *eventStream) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}
