package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/louisbranch/relaychat/internal/services/relay/wire"
)

// startControlServer answers one control request with the given state and
// response, returning the request it received.
func startControlServer(t *testing.T, state wire.State, response wire.Response) (string, <-chan wire.ControlFrame) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() {
		_ = listener.Close()
	})

	received := make(chan wire.ControlFrame, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		frame, err := wire.ReadControlFrame(conn)
		if err != nil {
			return
		}
		received <- frame
		payload, err := wire.EncodeResponse(state, response)
		if err != nil {
			return
		}
		_ = wire.WriteControlFrame(conn, wire.ControlFrame{
			RoomName:  frame.RoomName,
			Operation: frame.Operation,
			State:     state,
			Payload:   payload,
		})
	}()
	return listener.Addr().String(), received
}

func TestRequestRoomComplete(t *testing.T) {
	addr, received := startControlServer(t, wire.StateComplete, wire.Response{Status: 202, Message: "ok", Token: "tok"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	token, err := RequestRoom(ctx, addr, Request{
		Operation:   wire.OpCreateRoom,
		RoomName:    "lobby",
		UserName:    "alice",
		UserAddress: wire.Address{Host: "127.0.0.1", Port: 4000},
	})
	if err != nil {
		t.Fatalf("request room: %v", err)
	}
	if token != "tok" {
		t.Fatalf("token = %q", token)
	}

	frame := <-received
	if frame.RoomName != "lobby" || frame.Operation != wire.OpCreateRoom || frame.State != wire.StateInit {
		t.Fatalf("request frame = %+v", frame)
	}
	request, err := wire.DecodeJoinRequest(frame.Payload)
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if request.UserName != "alice" || request.UserAddress.Port != 4000 {
		t.Fatalf("request = %+v", request)
	}
}

func TestRequestRoomInitReturnsResponseError(t *testing.T) {
	addr, _ := startControlServer(t, wire.StateInit, wire.Response{Status: 404, Message: "Room lobby does not exist"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := RequestRoom(ctx, addr, Request{
		Operation:   wire.OpJoinRoom,
		RoomName:    "lobby",
		UserName:    "bob",
		UserAddress: wire.Address{Host: "127.0.0.1", Port: 4001},
	})
	var responseErr *ResponseError
	if !errors.As(err, &responseErr) {
		t.Fatalf("expected response error, got %v", err)
	}
	if responseErr.Status != 404 || responseErr.Message != "Room lobby does not exist" || !responseErr.Retryable() {
		t.Fatalf("response error = %+v", responseErr)
	}
}

func TestRequestRoomServerFaultNotRetryable(t *testing.T) {
	addr, _ := startControlServer(t, wire.StateServerFault, wire.Response{Status: 500, Message: "failed"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := RequestRoom(ctx, addr, Request{
		Operation:   wire.OpJoinRoom,
		RoomName:    "lobby",
		UserName:    "bob",
		UserAddress: wire.Address{Host: "127.0.0.1", Port: 4001},
	})
	var responseErr *ResponseError
	if !errors.As(err, &responseErr) {
		t.Fatalf("expected response error, got %v", err)
	}
	if responseErr.Retryable() {
		t.Fatal("server fault must not be retryable")
	}
}

func TestRequestRoomRejectsQuit(t *testing.T) {
	if _, err := RequestRoom(context.Background(), "127.0.0.1:1", Request{Operation: wire.OpQuit}); err == nil {
		t.Fatal("expected error for client-local operation")
	}
}

func TestSessionSendAndReceive(t *testing.T) {
	relay, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen relay: %v", err)
	}
	defer relay.Close()
	local, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen local: %v", err)
	}
	session := &Session{
		conn:     local,
		server:   relay.LocalAddr().(*net.UDPAddr),
		roomName: "lobby",
		token:    "tok",
	}
	defer session.Close()

	if err := session.Send("hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = relay.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, wire.MaxDatagramSize)
	n, from, err := relay.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("relay read: %v", err)
	}
	datagram, err := wire.DecodeDatagram(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if datagram.RoomName != "lobby" || datagram.Token != "tok" || string(datagram.Message) != "hi" {
		t.Fatalf("datagram = %+v", datagram)
	}

	if _, err := relay.WriteToUDP([]byte("bob: hello"), from); err != nil {
		t.Fatalf("relay write: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	text, err := session.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if text != "bob: hello" {
		t.Fatalf("text = %q", text)
	}

	if err := session.Leave(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	n, _, err = relay.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("relay read leave: %v", err)
	}
	leave, _ := wire.DecodeDatagram(buf[:n])
	if !leave.IsLeave() {
		t.Fatalf("expected leave signal, got %q", leave.Message)
	}
}

func TestSessionReceiveHonorsContext(t *testing.T) {
	local, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	session := &Session{conn: local}
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if _, err := session.Receive(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer timeoutCancel()
	if _, err := session.Receive(timeoutCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestOpenClosesSocketOnFailure(t *testing.T) {
	addr, _ := startControlServer(t, wire.StateInit, wire.Response{Status: 409, Message: "Room lobby already exists"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	session, err := Open(ctx, Config{
		ControlAddr: addr,
		DataAddr:    "127.0.0.1:9",
		Operation:   wire.OpCreateRoom,
		RoomName:    "lobby",
		UserName:    "alice",
	})
	if err == nil {
		_ = session.Close()
		t.Fatal("expected open to fail")
	}
	var responseErr *ResponseError
	if !errors.As(err, &responseErr) || responseErr.Status != 409 {
		t.Fatalf("error = %v", err)
	}
}
