package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/solatis/modmail/internal/telemetry"
)

const readHeaderTimeout = 5 * time.Second

// Checker reports whether the process is healthy. *HealthServer implements it.
type Checker interface {
	Serving(ctx context.Context) bool
}

// Router serves /metrics and /healthz. A nil checker is always healthy.
func Router(checker Checker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer)
	r.Use(telemetry.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if checker != nil && !checker.Serving(req.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not serving"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// HTTPServer serves Router on a TCP address.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates a metrics server for addr.
func NewHTTPServer(addr string, checker Checker) *HTTPServer {
	return &HTTPServer{server: &http.Server{
		Addr:              addr,
		Handler:           Router(checker),
		ReadHeaderTimeout: readHeaderTimeout,
	}}
}

// Serve handles requests on listener until Shutdown.
func (s *HTTPServer) Serve(listener net.Listener) error {
	err := s.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Start binds the configured address and serves until Shutdown.
func (s *HTTPServer) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.server.Addr, err)
	}
	return s.Serve(listener)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
