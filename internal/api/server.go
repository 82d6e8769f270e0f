// Package api serves the HTTP surface: feedback ingestion and the admin retry
// endpoint. Every error is answered as {"error": ..., "code": ...}.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/ports"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second

	maxRequestBodySize = 1 << 20

	// statusWriteTimeout bounds status writes made after the client may be gone.
	statusWriteTimeout = 5 * time.Second
)

const (
	logKeyFeedbackID = "feedback_id"
	logKeyCode       = "code"
)

// Trigger starts analysis of a stored feedback item.
type Trigger interface {
	Trigger(ctx context.Context, feedbackID string) error
}

// Deps are the handlers' collaborators.
type Deps struct {
	Feedback ports.FeedbackRepository
	Evidence ports.EvidenceStore
	Trigger  Trigger
	AdminKey string
	Logger   *zerolog.Logger
}

// NewHandler builds the API router.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		nopLogger := zerolog.Nop()
		deps.Logger = &nopLogger
	}

	h := &handlers{deps: deps, now: time.Now}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "Not found")
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", h.ingest)
		r.With(AdminKey(deps.AdminKey)).Post("/retry/{id}", h.retry)
	})

	return r
}

type handlers struct {
	deps Deps
	now  func() time.Time
}

// Server runs the API on a port until its context is canceled.
type Server struct {
	handler http.Handler
	port    int
	logger  *zerolog.Logger
}

// NewServer creates a server for deps.
func NewServer(deps Deps, port int) *Server {
	logger := deps.Logger
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	return &Server{handler: NewHandler(deps), port: port, logger: logger}
}

// Start blocks serving requests until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		//nolint:errcheck,contextcheck // best-effort shutdown on a fresh context
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.port).Msg("starting api server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}

	return nil
}
