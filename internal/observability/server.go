// Package observability serves the dispatcher's Prometheus metrics and
// health probes over HTTP, on a port separate from the control API so
// scrapes and probes keep answering even if the control surface wedges.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mofa-org/stsd/internal/logging"
)

// Server exposes /metrics, /healthz, and /readyz.
type Server struct {
	httpServer *http.Server
}

// NewServer builds the metrics/health server listening on addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", probe("ok"))
	mux.HandleFunc("/readyz", probe("ready"))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func probe(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	log := logging.WithComponent("observability")
	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("metrics server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// Shutdown drains in-flight scrapes before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	log := logging.WithComponent("observability")
	log.Info().Msg("metrics server shutting down")
	return s.httpServer.Shutdown(ctx)
}
