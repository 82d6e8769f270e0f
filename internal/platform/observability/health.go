package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DependencyStatus is the state of one optional dependency.
type DependencyStatus struct {
	Name   string
	OK     bool
	Detail string
}

// StatusReporter lists the state of dependencies the service can run degraded
// without. They are listed on /readyz but never fail it.
type StatusReporter interface {
	DependencyStatuses() []DependencyStatus
}

type Server struct {
	db        Pinger
	reporters []StatusReporter
	port      int
	logger    *zerolog.Logger
}

func NewServer(db Pinger, port int, logger *zerolog.Logger, reporters ...StatusReporter) *Server {
	return &Server{
		db:        db,
		reporters: reporters,
		port:      port,
		logger:    logger,
	}
}

// Handler returns the mux serving /healthz, /readyz and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "DB error: %v", err)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")

		for _, reporter := range s.reporters {
			for _, st := range reporter.DependencyStatuses() {
				_, _ = fmt.Fprintf(w, "\n%s: %s", st.Name, statusLine(st))
			}
		}
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func statusLine(st DependencyStatus) string {
	state := "ok"
	if !st.OK {
		state = "degraded"
	}

	if st.Detail == "" {
		return state
	}

	return state + " (" + st.Detail + ")"
}

func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

		defer cancel()

		//nolint:errcheck,contextcheck // shutdown in signal handler is best-effort, non-inherited context intentional
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.port).Msg("Health check server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}
