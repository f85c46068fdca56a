package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "relaychat/relay"

// Reasons recorded on relay.datagrams.dropped.
const (
	dropMalformed     = "malformed"
	dropUnknownRoom   = "unknown_room"
	dropUnknownMember = "unknown_member"
	dropOversize      = "oversize"
	dropPanic         = "panic"
)

type telemetry struct {
	tracer           trace.Tracer
	roomsCreated     metric.Int64Counter
	roomsClosed      metric.Int64Counter
	datagramsRouted  metric.Int64Counter
	datagramsDropped metric.Int64Counter
	controlRequests  metric.Int64Counter
}

// newTelemetry binds instruments to provider, or to the global meter
// provider installed by platform/otel when provider is nil.
func newTelemetry(provider metric.MeterProvider) (*telemetry, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName)
	t := &telemetry{tracer: otel.Tracer(instrumentationName)}

	var err error
	if t.roomsCreated, err = meter.Int64Counter("relay.rooms.created",
		metric.WithDescription("Rooms created on the control plane.")); err != nil {
		return nil, fmt.Errorf("create rooms.created counter: %w", err)
	}
	if t.roomsClosed, err = meter.Int64Counter("relay.rooms.closed",
		metric.WithDescription("Rooms torn down by their host.")); err != nil {
		return nil, fmt.Errorf("create rooms.closed counter: %w", err)
	}
	if t.datagramsRouted, err = meter.Int64Counter("relay.datagrams.routed",
		metric.WithDescription("Datagrams routed to a room.")); err != nil {
		return nil, fmt.Errorf("create datagrams.routed counter: %w", err)
	}
	if t.datagramsDropped, err = meter.Int64Counter("relay.datagrams.dropped",
		metric.WithDescription("Datagrams dropped before routing.")); err != nil {
		return nil, fmt.Errorf("create datagrams.dropped counter: %w", err)
	}
	if t.controlRequests, err = meter.Int64Counter("relay.control.requests",
		metric.WithDescription("Control requests answered, by response state.")); err != nil {
		return nil, fmt.Errorf("create control.requests counter: %w", err)
	}
	return t, nil
}

func (t *telemetry) dropped(ctx context.Context, reason string) {
	t.datagramsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
