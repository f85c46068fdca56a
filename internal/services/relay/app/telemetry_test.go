package app

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/louisbranch/relaychat/internal/services/relay/wire"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// counterValue sums the data points of the named counter whose attributes
// include match.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string, match ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s has aggregation %T", name, m.Data)
			}
			for _, point := range sum.DataPoints {
				if hasAttributes(point.Attributes, match) {
					total += point.Value
				}
			}
		}
	}
	return total
}

func hasAttributes(set attribute.Set, match []attribute.KeyValue) bool {
	for _, kv := range match {
		value, ok := set.Value(kv.Key)
		if !ok || value != kv.Value {
			return false
		}
	}
	return true
}

func waitForCounter(t *testing.T, reader *sdkmetric.ManualReader, want int64, name string, match ...attribute.KeyValue) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := counterValue(t, reader, name, match...)
		if got == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s%v = %d, want %d", name, match, got, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTelemetryCountsRelayActivity(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	server := startServer(t, Config{MeterProvider: provider})
	alice := openSession(t, server, wire.OpCreateRoom, "lobby", "alice")
	bob := openSession(t, server, wire.OpJoinRoom, "lobby", "bob")
	if _, err := requestRoom(t, server, wire.OpCreateRoom, "lobby", "mallory"); err == nil {
		t.Fatal("expected conflict")
	}

	waitForCounter(t, reader, 1, "relay.rooms.created")
	waitForCounter(t, reader, 2, "relay.control.requests", attribute.String("state", wire.StateComplete.String()))
	waitForCounter(t, reader, 1, "relay.control.requests", attribute.String("state", wire.StateInit.String()))

	dataAddr, err := net.ResolveUDPAddr("udp", server.DataAddr())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	stranger, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer stranger.Close()
	if _, err := stranger.WriteToUDP([]byte{0xFF}, dataAddr); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForCounter(t, reader, 1, "relay.datagrams.dropped", attribute.String("reason", dropMalformed))

	if err := bob.Send("hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := receive(t, alice); got != "bob: hi" {
		t.Fatalf("alice received %q", got)
	}
	if err := alice.Leave(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	receive(t, bob)

	waitForCounter(t, reader, 2, "relay.datagrams.routed")
	waitForCounter(t, reader, 1, "relay.rooms.closed")
}
