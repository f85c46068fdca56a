package app

import (
	"context"
	"testing"
	"time"

	platformgrpc "github.com/louisbranch/relaychat/internal/platform/grpc"
)

func TestAdminHealthServing(t *testing.T) {
	server := startServer(t, Config{AdminAddr: "127.0.0.1:0"})
	if server.AdminAddr() == "" {
		t.Fatal("expected admin address")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := platformgrpc.DialWithHealth(ctx, nil, server.AdminAddr(), HealthService, 2*time.Second, nil, platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		t.Fatalf("dial with health: %v", err)
	}
	_ = conn.Close()
}

func TestAdminDisabledByDefault(t *testing.T) {
	server := startServer(t, Config{})
	if addr := server.AdminAddr(); addr != "" {
		t.Fatalf("admin addr = %q, want empty", addr)
	}
}
