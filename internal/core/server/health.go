// Package server runs the bot's side listeners: a gRPC health endpoint with
// one service per watched stream, and an HTTP endpoint for metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/solatis/modmail/internal/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 30 * time.Second

// StreamService names the health service for one (subreddit, state) stream,
// e.g. "modmail.stream.askreddit.mod".
func StreamService(subreddit string, state types.MailboxState) string {
	return "modmail.stream." + strings.ToLower(subreddit) + "." + string(state)
}

// HealthServer exposes grpc.health.v1 with an overall status ("") and a
// status per stream.
type HealthServer struct {
	server *grpc.Server
	health *health.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewHealthServer creates a health server reporting SERVING overall.
func NewHealthServer() *HealthServer {
	server := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	return &HealthServer{server: server, health: healthServer}
}

// SetStreamServing records whether the stream for (subreddit, state) is healthy.
func (s *HealthServer) SetStreamServing(subreddit string, state types.MailboxState, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(StreamService(subreddit, state), status)
}

// Serving reports the overall status.
func (s *HealthServer) Serving(ctx context.Context) bool {
	resp, err := s.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	return err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING
}

// Listen binds addr and returns the bound address.
func (s *HealthServer) Listen(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return listener.Addr(), nil
}

// Serve handles gRPC requests on the bound listener until Shutdown.
func (s *HealthServer) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("health server: Serve called before Listen")
	}

	err := s.server.Serve(listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Shutdown marks every service NOT_SERVING and stops the server, forcing
// the stop if ctx ends or draining takes longer than 30 seconds.
func (s *HealthServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(shutdownTimeout):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}
