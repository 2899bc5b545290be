// Package web provides an HTTP API over a ledger service.
//
// The API reads the current ledger snapshot, runs queries and accepts new
// transactions through the same pipeline as the MCP server. Clients can follow
// ledger changes through server-sent events.
//
// SECURITY WARNING: This server has no authentication and should only be
// bound to localhost (127.0.0.1). Do not expose it to untrusted networks.
// File access is restricted to ledger files below the ledger file's directory.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/robinvdvleuten/beancount-mcp/audit"
	"github.com/robinvdvleuten/beancount-mcp/service"
	"github.com/robinvdvleuten/beancount-mcp/telemetry"
)

// DefaultAddr is the address the server listens on unless configured otherwise.
const DefaultAddr = "127.0.0.1:8080"

// SubmissionStore looks up recorded submissions by confirmation ID.
type SubmissionStore interface {
	Get(ctx context.Context, confirmationID string) (*audit.Submission, error)
}

type Server struct {
	Addr     string
	Version  string
	ReadOnly bool

	svc         *service.Service
	submissions SubmissionStore
	logger      *zap.Logger

	// SSE clients for broadcasting ledger events
	sseClients map[chan string]struct{}
	sseMu      sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithSubmissions enables GET /api/submissions/{id}.
func WithSubmissions(store SubmissionStore) Option {
	return func(s *Server) {
		s.submissions = store
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(svc *service.Service, opts ...Option) *Server {
	s := &Server{
		Addr:       DefaultAddr,
		svc:        svc,
		logger:     zap.NewNop(),
		sseClients: make(map[chan string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start serves the API until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	collector := telemetry.FromContext(ctx)
	timer := collector.Start(fmt.Sprintf("web.start %s", s.Addr))

	setupTimer := timer.Child("web.setup_router")
	router := s.setupRouter()
	setupTimer.End()
	timer.End()

	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("web server listening", zap.String("addr", s.Addr), zap.String("ledger", s.svc.Filename()))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return <-shutdownErr
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		// Event streams are long-lived and get no timeout.
		r.Get("/events", s.handleSSE)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/status", s.handleGetStatus)
			r.Get("/source", s.handleGetSource)
			r.Get("/accounts", s.handleGetAccounts)
			r.Get("/balances", s.handleGetBalances)
			r.Post("/query", s.handleQuery)
			r.Post("/transactions", s.requireWritable(s.handleSubmitTransaction))
			r.Get("/transactions/{id}", s.handleGetTransaction)
			r.Get("/submissions/{id}", s.handleGetSubmission)
		})
	})

	return r
}

// requireWritable is middleware that rejects write requests in read-only mode.
func (s *Server) requireWritable(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.ReadOnly {
			writeJSONError(w, http.StatusForbidden, "read_only", "Server is in read-only mode")
			return
		}
		next(w, r)
	}
}

// logRequests logs every request once it is served.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// StatusResponse is the JSON response structure for the status endpoint.
type StatusResponse struct {
	File     string   `json:"file"`
	Version  uint64   `json:"version"`
	Halted   bool     `json:"halted"`
	ReadOnly bool     `json:"readOnly"`
	Warnings []string `json:"warnings"`
	Problems []string `json:"problems"`
}

// handleGetStatus handles GET requests to /api/status.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	response := &StatusResponse{
		File:     s.svc.Filename(),
		Version:  s.svc.Version(),
		Halted:   s.svc.Halted(),
		ReadOnly: s.ReadOnly,
		Warnings: []string{},
		Problems: []string{},
	}
	for _, w := range s.svc.Warnings() {
		response.Warnings = append(response.Warnings, w.Error())
	}
	if problems := s.svc.Problems(); problems != nil {
		var multi interface{ Unwrap() []error }
		if errors.As(problems, &multi) {
			for _, err := range multi.Unwrap() {
				response.Problems = append(response.Problems, err.Error())
			}
		} else {
			response.Problems = append(response.Problems, problems.Error())
		}
	}
	writeJSONResponse(w, response)
}

// handleSSE handles Server-Sent Events connections for real-time updates.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	clientChan := make(chan string, 10)

	s.sseMu.Lock()
	s.sseClients[clientChan] = struct{}{}
	s.sseMu.Unlock()

	// Cleanup on disconnect
	defer func() {
		s.sseMu.Lock()
		delete(s.sseClients, clientChan)
		s.sseMu.Unlock()
	}()

	_, _ = fmt.Fprintf(w, "data: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-clientChan:
			_, _ = fmt.Fprintf(w, "data: %s\n\n", event)
			flusher.Flush()
		}
	}
}

// Broadcast sends an event to all connected SSE clients. Clients whose buffer is full
// miss the event.
func (s *Server) Broadcast(event string) {
	s.sseMu.Lock()
	defer s.sseMu.Unlock()

	for clientChan := range s.sseClients {
		select {
		case clientChan <- event:
		default:
		}
	}
}
