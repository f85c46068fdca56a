package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	apperrors "github.com/louisbranch/relaychat/internal/platform/errors"
	"github.com/louisbranch/relaychat/internal/platform/id"
	"github.com/louisbranch/relaychat/internal/platform/requestctx"
	"github.com/louisbranch/relaychat/internal/platform/timeouts"
	"github.com/louisbranch/relaychat/internal/random"
	"github.com/louisbranch/relaychat/internal/services/relay/room"
	"github.com/louisbranch/relaychat/internal/services/relay/wire"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

func (s *Server) serveControl(ctx context.Context) error {
	var backoff time.Duration
	for {
		conn, err := s.controlListener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			backoff = nextBackoff(backoff)
			log.Printf("relay: control accept failed, retrying in %s: %v", backoff, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.handleControlConn(ctx, conn)
		}()
	}
}

// controlOutcome is the result of one request, ready for response composition.
type controlOutcome struct {
	roomName  string
	operation wire.Operation
	userName  string
	token     string
	err       error
}

// handleControlConn services one request/response exchange and closes conn.
func (s *Server) handleControlConn(ctx context.Context, conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	requestID, err := id.NewRequestID()
	if err != nil {
		log.Printf("relay: control request id: %v", err)
	}
	ctx = requestctx.WithRequestID(ctx, requestID)
	ctx, span := s.telemetry.tracer.Start(ctx, "relay.control", trace.WithAttributes(
		attribute.String("relay.request_id", requestID),
		attribute.String("net.peer.addr", conn.RemoteAddr().String()),
	))
	defer span.End()

	if err := conn.SetReadDeadline(time.Now().Add(s.controlReadTimeout)); err != nil {
		log.Printf("relay: control set read deadline request_id=%s: %v", requestID, err)
	}
	outcome := s.processControl(ctx, conn)

	state, response := s.composeResponse(outcome)
	span.SetAttributes(
		attribute.String("relay.room", outcome.roomName),
		attribute.String("relay.operation", outcome.operation.String()),
		attribute.String("relay.state", state.String()),
	)
	if outcome.err != nil {
		span.RecordError(outcome.err)
		span.SetStatus(codes.Error, outcome.err.Error())
	}
	s.telemetry.controlRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state.String())))

	if err := conn.SetWriteDeadline(time.Now().Add(timeouts.ControlWrite)); err != nil {
		log.Printf("relay: control set write deadline request_id=%s: %v", requestID, err)
	}
	if err := wire.WriteControlFrame(conn, response); err != nil {
		log.Printf("relay: control write response request_id=%s remote=%s: %v", requestID, conn.RemoteAddr(), err)
		return
	}

	if outcome.err != nil {
		log.Printf("relay: control %s rejected request_id=%s room=%q user=%q state=%s: %v",
			outcome.operation, requestID, outcome.roomName, outcome.userName, state, outcome.err)
		return
	}
	log.Printf("relay: control %s completed request_id=%s room=%q user=%q",
		outcome.operation, requestID, outcome.roomName, outcome.userName)
}

// processControl reads one request and dispatches it. Panics are reported as
// internal faults so the connection still receives a response.
func (s *Server) processControl(ctx context.Context, conn net.Conn) (outcome controlOutcome) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("relay: control panic request_id=%s: %v", requestctx.RequestIDFromContext(ctx), recovered)
			outcome.token = ""
			outcome.err = apperrors.New(apperrors.CodeInternal, fmt.Sprintf("control handler panic: %v", recovered))
		}
	}()

	frame, err := wire.ReadControlFrame(conn)
	if err != nil {
		return controlOutcome{err: err}
	}
	outcome.operation = frame.Operation

	// Tokens are issued per attempt, before the outcome is known.
	token, err := random.NewToken()
	if err != nil {
		outcome.err = apperrors.Wrap(apperrors.CodeInternal, "generate token", err)
		return outcome
	}

	roomName, err := wire.NormalizeName("room name", frame.RoomName)
	if err != nil {
		outcome.err = err
		return outcome
	}
	outcome.roomName = roomName

	if frame.Operation != wire.OpCreateRoom && frame.Operation != wire.OpJoinRoom {
		outcome.err = apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("unsupported operation %s", frame.Operation))
		return outcome
	}

	request, err := wire.DecodeJoinRequest(frame.Payload)
	if err != nil {
		outcome.err = err
		return outcome
	}
	outcome.userName = request.UserName

	addr, err := request.UserAddress.UDPAddr()
	if err != nil {
		outcome.err = apperrors.Wrap(apperrors.CodeMalformed, "resolve user address", err)
		return outcome
	}
	member := room.Member{Token: token, UserName: request.UserName, Addr: addr}

	switch frame.Operation {
	case wire.OpCreateRoom:
		outcome.err = s.createRoom(ctx, roomName, member)
	case wire.OpJoinRoom:
		outcome.err = s.joinRoom(roomName, member)
	}
	if outcome.err == nil {
		outcome.token = token
	}
	return outcome
}

func (s *Server) createRoom(ctx context.Context, roomName string, host room.Member) error {
	created, err := s.registry.Create(roomName, host.Token)
	if err != nil {
		return err
	}
	if err := created.AddMember(host); err != nil {
		s.registry.Remove(roomName, created)
		return err
	}
	s.telemetry.roomsCreated.Add(ctx, 1)
	return nil
}

func (s *Server) joinRoom(roomName string, member room.Member) error {
	existing, err := s.registry.Get(roomName)
	if err != nil {
		return err
	}
	return existing.AddMember(member)
}

// composeResponse maps an outcome onto the response frame. Recoverable
// failures answer Init so the caller restarts room selection; anything else
// is a ServerFault.
func (s *Server) composeResponse(outcome controlOutcome) (wire.State, wire.ControlFrame) {
	state := wire.StateComplete
	response := wire.Response{
		Status:  http.StatusAccepted,
		Message: s.notices.Response(outcome.roomName, outcome.err),
		Token:   outcome.token,
	}
	if outcome.err != nil {
		code := apperrors.CodeOf(outcome.err)
		state = wire.StateServerFault
		if code.Retryable() {
			state = wire.StateInit
		}
		response.Status = code.Status()
		response.Token = ""
	}

	payload, err := wire.EncodeResponse(state, response)
	if err != nil {
		log.Printf("relay: encode control response: %v", err)
		state = wire.StateServerFault
		payload, _ = wire.EncodeResponse(state, wire.Response{
			Status:  apperrors.CodeInternal.Status(),
			Message: s.notices.Response(outcome.roomName, apperrors.Wrap(apperrors.CodeInternal, "encode response", err)),
		})
	}
	return state, wire.ControlFrame{
		RoomName:  outcome.roomName,
		Operation: outcome.operation,
		State:     state,
		Payload:   payload,
	}
}
