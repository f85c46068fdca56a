// Package relay parses relay command flags and composes the server entrypoint.
package relay

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/relaychat/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/relaychat/internal/platform/grpc"
	"github.com/louisbranch/relaychat/internal/platform/timeouts"
	server "github.com/louisbranch/relaychat/internal/services/relay/app"
)

// Config holds relay command configuration.
type Config struct {
	ControlAddr          string        `env:"CONTROL_ADDR"           envDefault:"127.0.0.1:9002"`
	DataAddr             string        `env:"DATA_ADDR"              envDefault:"127.0.0.1:9003"`
	AdminAddr            string        `env:"ADMIN_ADDR"`
	MaxMembers           int           `env:"MAX_MEMBERS"            envDefault:"1000"`
	MaxInflightDatagrams int           `env:"MAX_INFLIGHT_DATAGRAMS" envDefault:"256"`
	MaxControlConns      int           `env:"MAX_CONTROL_CONNS"      envDefault:"64"`
	Locale               string        `env:"LOCALE"                 envDefault:"en"`
	ControlReadTimeout   time.Duration `env:"CONTROL_READ_TIMEOUT"   envDefault:"10s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT"       envDefault:"5s"`

	// Probe runs a one-shot health check against AdminAddr instead of serving.
	Probe bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.ControlAddr, "control-addr", cfg.ControlAddr, "control plane TCP listen address")
	fs.StringVar(&cfg.DataAddr, "data-addr", cfg.DataAddr, "data plane UDP listen address")
	fs.StringVar(&cfg.AdminAddr, "admin-addr", cfg.AdminAddr, "admin gRPC health address (empty disables)")
	fs.IntVar(&cfg.MaxMembers, "max-members", cfg.MaxMembers, "maximum memberships per room")
	fs.IntVar(&cfg.MaxInflightDatagrams, "max-inflight-datagrams", cfg.MaxInflightDatagrams, "datagrams processed concurrently")
	fs.IntVar(&cfg.MaxControlConns, "max-control-conns", cfg.MaxControlConns, "control connections served concurrently")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "language for notices and responses")
	fs.DurationVar(&cfg.ControlReadTimeout, "control-read-timeout", cfg.ControlReadTimeout, "time allowed to read a control request")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "time allowed for in-flight work on shutdown")
	fs.BoolVar(&cfg.Probe, "probe", false, "check admin health and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.MaxMembers <= 0 {
		return Config{}, fmt.Errorf("max members must be positive, got %d", cfg.MaxMembers)
	}
	return cfg, nil
}

// Run builds the relay server and serves both planes until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceRelay, entrypoint.RunOptions{
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, func(ctx context.Context) error {
		if err := server.Run(ctx, serverConfig(cfg)); err != nil {
			return fmt.Errorf("serve relay: %w", err)
		}
		return nil
	})
}

// Probe dials the admin surface and waits for the relay to report SERVING.
func Probe(ctx context.Context, cfg Config) error {
	adminAddr := strings.TrimSpace(cfg.AdminAddr)
	if adminAddr == "" {
		return errors.New("admin address is required to probe")
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceRelayProbe, func(ctx context.Context) error {
		logf := func(format string, args ...any) {
			log.Printf("probe %s", fmt.Sprintf(format, args...))
		}
		conn, err := platformgrpc.DialWithHealth(
			ctx,
			nil,
			adminAddr,
			server.HealthService,
			timeouts.GRPCDial,
			logf,
			platformgrpc.DefaultClientDialOptions()...,
		)
		if err != nil {
			return fmt.Errorf("probe relay %s: %w", adminAddr, err)
		}
		return conn.Close()
	})
}

func serverConfig(cfg Config) server.Config {
	return server.Config{
		ControlAddr:          cfg.ControlAddr,
		DataAddr:             cfg.DataAddr,
		AdminAddr:            cfg.AdminAddr,
		MaxMembers:           cfg.MaxMembers,
		MaxInflightDatagrams: cfg.MaxInflightDatagrams,
		MaxControlConns:      cfg.MaxControlConns,
		Locale:               cfg.Locale,
		ControlReadTimeout:   cfg.ControlReadTimeout,
		ShutdownTimeout:      cfg.ShutdownTimeout,
	}
}
