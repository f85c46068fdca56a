// Package app runs the relay: a TCP control plane that issues room
// memberships and a UDP data plane that routes chat between members.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	platformgrpc "github.com/louisbranch/relaychat/internal/platform/grpc"
	"github.com/louisbranch/relaychat/internal/platform/timeouts"
	"github.com/louisbranch/relaychat/internal/services/relay/notice"
	"github.com/louisbranch/relaychat/internal/services/relay/room"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	gogrpc "google.golang.org/grpc"
)

// HealthService is the gRPC health service name reported by the admin surface.
const HealthService = "relaychat.relay.v1.Relay"

const (
	defaultMaxInflightDatagrams = 256
	defaultMaxControlConns      = 64
)

// Config defines the inputs for the relay server.
type Config struct {
	ControlAddr string
	DataAddr    string
	// AdminAddr enables the gRPC health surface when set.
	AdminAddr            string
	MaxMembers           int
	MaxInflightDatagrams int
	MaxControlConns      int
	Locale               string
	ControlReadTimeout   time.Duration
	ShutdownTimeout      time.Duration
	// MeterProvider receives relay counters; nil uses the global provider.
	MeterProvider metric.MeterProvider
}

// Server hosts both relay planes and the optional admin surface.
type Server struct {
	controlReadTimeout time.Duration
	shutdownTimeout    time.Duration

	registry  *room.Registry
	notices   *notice.Notices
	telemetry *telemetry
	health    *platformgrpc.Health

	controlListener net.Listener
	dataConn        *net.UDPConn
	adminListener   net.Listener
	grpcServer      *gogrpc.Server

	datagramSlots *semaphore.Weighted
	inflight      sync.WaitGroup
	closeOnce     sync.Once
}

// NewServer binds the configured sockets and returns a server ready to serve.
func NewServer(config Config) (*Server, error) {
	controlAddr := strings.TrimSpace(config.ControlAddr)
	if controlAddr == "" {
		return nil, errors.New("control address is required")
	}
	dataAddr := strings.TrimSpace(config.DataAddr)
	if dataAddr == "" {
		return nil, errors.New("data address is required")
	}
	if config.MaxMembers <= 0 {
		config.MaxMembers = room.DefaultMaxMembers
	}
	if config.MaxInflightDatagrams <= 0 {
		config.MaxInflightDatagrams = defaultMaxInflightDatagrams
	}
	if config.MaxControlConns <= 0 {
		config.MaxControlConns = defaultMaxControlConns
	}
	if config.ControlReadTimeout <= 0 {
		config.ControlReadTimeout = timeouts.ControlRead
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	tel, err := newTelemetry(config.MeterProvider)
	if err != nil {
		return nil, err
	}

	s := &Server{
		controlReadTimeout: config.ControlReadTimeout,
		shutdownTimeout:    config.ShutdownTimeout,
		registry:           room.NewRegistry(config.MaxMembers),
		notices:            notice.New(config.Locale),
		telemetry:          tel,
		health:             platformgrpc.NewHealth(HealthService),
		datagramSlots:      semaphore.NewWeighted(int64(config.MaxInflightDatagrams)),
	}

	controlListener, err := net.Listen("tcp", controlAddr)
	if err != nil {
		return nil, fmt.Errorf("listen control on %s: %w", controlAddr, err)
	}
	s.controlListener = netutil.LimitListener(controlListener, config.MaxControlConns)

	udpAddr, err := net.ResolveUDPAddr("udp", dataAddr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("resolve data address %s: %w", dataAddr, err)
	}
	s.dataConn, err = net.ListenUDP("udp", udpAddr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("listen data on %s: %w", dataAddr, err)
	}

	if adminAddr := strings.TrimSpace(config.AdminAddr); adminAddr != "" {
		s.adminListener, err = net.Listen("tcp", adminAddr)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("listen admin on %s: %w", adminAddr, err)
		}
		s.grpcServer = gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
		s.health.Register(s.grpcServer)
	}

	return s, nil
}

// Run creates and serves a relay server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init relay server: %w", err)
	}
	return server.ListenAndServe(ctx)
}

// ControlAddr returns the bound control-plane address.
func (s *Server) ControlAddr() string {
	if s == nil || s.controlListener == nil {
		return ""
	}
	return s.controlListener.Addr().String()
}

// DataAddr returns the bound data-plane address.
func (s *Server) DataAddr() string {
	if s == nil || s.dataConn == nil {
		return ""
	}
	return s.dataConn.LocalAddr().String()
}

// AdminAddr returns the bound admin address, or "" when disabled.
func (s *Server) AdminAddr() string {
	if s == nil || s.adminListener == nil {
		return ""
	}
	return s.adminListener.Addr().String()
}

// Registry exposes live room state.
func (s *Server) Registry() *room.Registry {
	return s.registry
}

// ListenAndServe runs both planes until ctx ends or one of them fails.
// Both sockets are closed before it returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("relay server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	defer s.Close()

	group, groupCtx := errgroup.WithContext(ctx)
	go func() {
		<-groupCtx.Done()
		s.stop()
	}()

	log.Printf("relay: control plane listening on %s", s.ControlAddr())
	group.Go(func() error {
		return s.serveControl(groupCtx)
	})
	log.Printf("relay: data plane listening on %s", s.DataAddr())
	group.Go(func() error {
		return s.serveData(groupCtx)
	})
	if s.grpcServer != nil {
		log.Printf("relay: admin health listening on %s", s.AdminAddr())
		group.Go(func() error {
			err := s.grpcServer.Serve(s.adminListener)
			if err == nil || errors.Is(err, gogrpc.ErrServerStopped) {
				return nil
			}
			return fmt.Errorf("serve admin gRPC: %w", err)
		})
	}
	s.health.Serving()

	err := group.Wait()
	s.drain()
	return err
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.stop()
}

func (s *Server) stop() {
	s.closeOnce.Do(func() {
		s.health.Shutdown()
		if s.grpcServer != nil {
			stopped := make(chan struct{})
			go func() {
				s.grpcServer.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(s.shutdownTimeout):
				s.grpcServer.Stop()
			}
		}
		if s.adminListener != nil {
			_ = s.adminListener.Close()
		}
		if s.controlListener != nil {
			if err := s.controlListener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				log.Printf("relay: close control listener: %v", err)
			}
		}
		if s.dataConn != nil {
			if err := s.dataConn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				log.Printf("relay: close data socket: %v", err)
			}
		}
	})
}

// drain waits for in-flight control connections and datagram workers.
func (s *Server) drain() {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.shutdownTimeout):
		log.Printf("relay: shutdown timed out after %s with work in flight", s.shutdownTimeout)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return 5 * time.Millisecond
	}
	current *= 2
	if current > time.Second {
		current = time.Second
	}
	return current
}
