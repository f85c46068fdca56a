// Package client speaks both relay planes: it requests a room membership over
// the control plane and exchanges chat over the data plane.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/louisbranch/relaychat/internal/platform/timeouts"
	"github.com/louisbranch/relaychat/internal/services/relay/wire"
)

// Request describes one CreateRoom or JoinRoom exchange.
type Request struct {
	Operation   wire.Operation
	RoomName    string
	UserName    string
	UserAddress wire.Address
}

// ResponseError is a control response that did not complete.
type ResponseError struct {
	State   wire.State
	Status  int
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("relay responded %s (status %d): %s", e.State, e.Status, e.Message)
}

// Retryable reports whether the caller should restart room selection.
func (e *ResponseError) Retryable() bool {
	return e.State == wire.StateInit
}

// RequestRoom performs one control exchange against controlAddr and returns
// the issued membership token.
func RequestRoom(ctx context.Context, controlAddr string, req Request) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Operation != wire.OpCreateRoom && req.Operation != wire.OpJoinRoom {
		return "", fmt.Errorf("operation %s is not sent to the relay", req.Operation)
	}
	payload, err := wire.EncodeJoinRequest(wire.JoinRequest{
		UserName:    req.UserName,
		UserAddress: req.UserAddress,
	})
	if err != nil {
		return "", fmt.Errorf("encode join request: %w", err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", controlAddr)
	if err != nil {
		return "", fmt.Errorf("dial control %s: %w", controlAddr, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(timeouts.ControlRead)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("set control deadline: %w", err)
	}

	if err := wire.WriteControlFrame(conn, wire.ControlFrame{
		RoomName:  req.RoomName,
		Operation: req.Operation,
		State:     wire.StateInit,
		Payload:   payload,
	}); err != nil {
		return "", err
	}

	frame, err := wire.ReadControlFrame(conn)
	if err != nil {
		return "", fmt.Errorf("read control response: %w", err)
	}
	response, err := wire.DecodeResponse(frame.State, frame.Payload)
	if err != nil {
		return "", fmt.Errorf("decode control response: %w", err)
	}
	if frame.State != wire.StateComplete {
		return "", &ResponseError{
			State:   frame.State,
			Status:  response.Status,
			Message: response.Message,
		}
	}
	return response.Token, nil
}

// Config defines how a session reaches the relay.
type Config struct {
	ControlAddr string
	DataAddr    string
	// LocalAddr is the UDP address to receive on; defaults to 127.0.0.1:0.
	LocalAddr string
	Operation wire.Operation
	RoomName  string
	UserName  string
}

// Session is one membership bound to a local UDP socket.
type Session struct {
	conn     *net.UDPConn
	server   *net.UDPAddr
	roomName string
	token    string
}

// Open binds a local socket, requests a membership for it, and returns the
// session. The socket is closed when the request fails.
func Open(ctx context.Context, config Config) (*Session, error) {
	localAddr := strings.TrimSpace(config.LocalAddr)
	if localAddr == "" {
		localAddr = "127.0.0.1:0"
	}
	server, err := net.ResolveUDPAddr("udp", config.DataAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve data address %s: %w", config.DataAddr, err)
	}
	local, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve local address %s: %w", localAddr, err)
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", localAddr, err)
	}

	token, err := RequestRoom(ctx, config.ControlAddr, Request{
		Operation:   config.Operation,
		RoomName:    config.RoomName,
		UserName:    config.UserName,
		UserAddress: wire.AddressFrom(conn.LocalAddr().(*net.UDPAddr)),
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Session{
		conn:     conn,
		server:   server,
		roomName: config.RoomName,
		token:    token,
	}, nil
}

// Token returns the membership token.
func (s *Session) Token() string {
	return s.token
}

// RoomName returns the room the session belongs to.
func (s *Session) RoomName() string {
	return s.roomName
}

// LocalAddr returns the address the relay delivers to.
func (s *Session) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Send posts text to the room.
func (s *Session) Send(text string) error {
	packet, err := wire.EncodeDatagram(s.roomName, s.token, []byte(text))
	if err != nil {
		return err
	}
	if _, err := s.conn.WriteToUDP(packet, s.server); err != nil {
		return fmt.Errorf("send datagram: %w", err)
	}
	return nil
}

// Leave sends the leave signal. The socket stays open so the caller can
// observe any final notices; call Close afterwards.
func (s *Session) Leave() error {
	return s.Send(wire.LeaveSignal)
}

// Receive waits for the next text delivered by the relay.
func (s *Session) Receive(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline, _ := ctx.Deadline()
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return "", fmt.Errorf("set read deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, wire.MaxDatagramSize)
	n, _, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", context.DeadlineExceeded
		}
		return "", fmt.Errorf("receive datagram: %w", err)
	}
	return string(buf[:n]), nil
}

// Close releases the local socket.
func (s *Session) Close() error {
	return s.conn.Close()
}
