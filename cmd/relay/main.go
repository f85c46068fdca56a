// Package main starts the chat relay and handles termination.
//
// The relay hands out room memberships over TCP and routes chat between
// members over UDP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	relaycmd "github.com/louisbranch/relaychat/internal/cmd/relay"
	entrypoint "github.com/louisbranch/relaychat/internal/platform/cmd"
	"github.com/louisbranch/relaychat/internal/platform/config"
	platformgrpc "github.com/louisbranch/relaychat/internal/platform/grpc"
)

func main() {
	cfg, err := relaycmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Probe {
		log.SetPrefix(entrypoint.LogPrefix(entrypoint.ServiceRelayProbe))
		if err := relaycmd.Probe(ctx, cfg); err != nil {
			config.ExitCodef(probeExitCode(err), "relay is not serving: %v", err)
		}
		return
	}

	log.SetPrefix(entrypoint.LogPrefix(entrypoint.ServiceRelay))
	if err := relaycmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

// probeExitCode returns 2 when the admin endpoint could not be dialed and 1
// for every other failure.
func probeExitCode(err error) int {
	var dialErr *platformgrpc.DialError
	if errors.As(err, &dialErr) && dialErr.Stage == platformgrpc.DialStageConnect {
		return 2
	}
	return 1
}
