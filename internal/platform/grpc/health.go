// Package grpc holds the gRPC health plumbing used by the relay admin surface
// and its probe.
package grpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Health tracks the serving status of a fixed set of service names.
// The empty service name (overall status) is always included.
type Health struct {
	mu       sync.Mutex
	server   *health.Server
	services []string
	stopped  bool
}

// NewHealth creates a health reporter that starts NOT_SERVING.
func NewHealth(services ...string) *Health {
	h := &Health{
		server:   health.NewServer(),
		services: append([]string{""}, services...),
	}
	h.set(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to a gRPC server.
func (h *Health) Register(server *gogrpc.Server) {
	grpc_health_v1.RegisterHealthServer(server, h.server)
}

// Serving marks every tracked service SERVING.
func (h *Health) Serving() {
	h.set(grpc_health_v1.HealthCheckResponse_SERVING)
}

// NotServing marks every tracked service NOT_SERVING.
func (h *Health) NotServing() {
	h.set(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// Shutdown marks everything NOT_SERVING and ignores later updates.
func (h *Health) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	h.server.Shutdown()
}

func (h *Health) set(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	for _, service := range h.services {
		h.server.SetServingStatus(service, status)
	}
}

// WaitForHealth blocks until the gRPC health check for service reports SERVING
// or the context ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	healthClient := grpc_health_v1.NewHealthClient(conn)
	backoff := 100 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		response, err := healthClient.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && response.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			if logf != nil {
				logf("health %q is SERVING", service)
			}
			return nil
		}
		if logf != nil {
			if err != nil {
				logf("waiting for health %q: %v", service, err)
			} else {
				logf("waiting for health %q: status %s", service, response.GetStatus().String())
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health: %w", ctx.Err())
		case <-time.After(backoff):
		}

		if backoff < time.Second {
			backoff *= 2
			if backoff > time.Second {
				backoff = time.Second
			}
		}
	}
}
