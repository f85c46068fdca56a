package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	apperrors "github.com/louisbranch/relaychat/internal/platform/errors"
)

const (
	// ControlHeaderSize is the fixed control-frame header width.
	ControlHeaderSize = 32
	// payloadLengthSize is the width of the big-endian payload length field.
	payloadLengthSize = 29
	// MaxControlBody caps room name plus payload on the control plane.
	MaxControlBody = 4096
)

// Operation identifies what a control request asks for.
type Operation uint8

const (
	OpCreateRoom Operation = 1
	OpJoinRoom   Operation = 2
	// OpQuit is client-local and never sent over the wire.
	OpQuit Operation = 3
)

func (o Operation) String() string {
	switch o {
	case OpCreateRoom:
		return "create_room"
	case OpJoinRoom:
		return "join_room"
	case OpQuit:
		return "quit"
	default:
		return fmt.Sprintf("operation(%d)", uint8(o))
	}
}

// State is the control-frame state code.
type State uint8

const (
	// StateInit answers a request that failed in a way the caller should
	// recover from by restarting room selection.
	StateInit State = 0
	// StateAcknowledged is reserved.
	StateAcknowledged State = 1
	// StateComplete answers a successful request and carries a token.
	StateComplete State = 2
	// StateServerFault answers a request that hit an unexpected fault.
	StateServerFault State = 3
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAcknowledged:
		return "acknowledged"
	case StateComplete:
		return "complete"
	case StateServerFault:
		return "server_fault"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ControlHeader is the decoded fixed-width header of a control frame.
type ControlHeader struct {
	RoomNameLen int
	Operation   Operation
	State       State
	PayloadLen  int
}

// BodyLen is the number of bytes that follow the header.
func (h ControlHeader) BodyLen() int {
	return h.RoomNameLen + h.PayloadLen
}

// ControlFrame is a full control-plane message.
type ControlFrame struct {
	RoomName  string
	Operation Operation
	State     State
	Payload   []byte
}

// EncodeControlFrame renders a control frame. The room name must fit the
// one-byte length field.
func EncodeControlFrame(roomName string, op Operation, state State, payload []byte) ([]byte, error) {
	if len(roomName) > MaxNameBytes {
		return nil, apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("room name is %d bytes, limit %d", len(roomName), MaxNameBytes))
	}
	if body := len(roomName) + len(payload); body > MaxControlBody {
		return nil, apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("control body is %d bytes, limit %d", body, MaxControlBody))
	}
	out := make([]byte, ControlHeaderSize, ControlHeaderSize+len(roomName)+len(payload))
	out[0] = byte(len(roomName))
	out[1] = byte(op)
	out[2] = byte(state)
	// The low 8 bytes of the 29-byte field hold the length; the rest stays zero.
	binary.BigEndian.PutUint64(out[ControlHeaderSize-8:], uint64(len(payload)))
	out = append(out, roomName...)
	out = append(out, payload...)
	return out, nil
}

// DecodeControlHeader parses the fixed 32-byte header.
func DecodeControlHeader(b []byte) (ControlHeader, error) {
	if len(b) < ControlHeaderSize {
		return ControlHeader{}, apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("control header is %d bytes, want %d", len(b), ControlHeaderSize))
	}
	lengthField := b[3:ControlHeaderSize]
	for _, v := range lengthField[:payloadLengthSize-8] {
		if v != 0 {
			return ControlHeader{}, apperrors.New(apperrors.CodeMalformed, "control payload length overflows")
		}
	}
	payloadLen := binary.BigEndian.Uint64(lengthField[payloadLengthSize-8:])
	if payloadLen > MaxControlBody {
		return ControlHeader{}, apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("control payload length %d exceeds %d", payloadLen, MaxControlBody))
	}
	return ControlHeader{
		RoomNameLen: int(b[0]),
		Operation:   Operation(b[1]),
		State:       State(b[2]),
		PayloadLen:  int(payloadLen),
	}, nil
}

// DecodeControlFrame parses a complete control frame held in memory.
// Bytes past the declared body are ignored.
func DecodeControlFrame(b []byte) (ControlFrame, error) {
	header, err := DecodeControlHeader(b)
	if err != nil {
		return ControlFrame{}, err
	}
	body := b[ControlHeaderSize:]
	if header.BodyLen() > len(body) {
		return ControlFrame{}, apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("control body is %d bytes, header declares %d", len(body), header.BodyLen()))
	}
	return frameFromBody(header, body)
}

// ReadControlFrame reads one control frame from a stream. It never reads past
// the declared body, so the stream can carry a response afterwards.
func ReadControlFrame(r io.Reader) (ControlFrame, error) {
	var headerBuf [ControlHeaderSize]byte
	if _, err := io.ReadFull(r, headerBuf[:]); err != nil {
		return ControlFrame{}, apperrors.Wrap(apperrors.CodeMalformed, "read control header", err)
	}
	header, err := DecodeControlHeader(headerBuf[:])
	if err != nil {
		return ControlFrame{}, err
	}
	if header.BodyLen() > MaxControlBody {
		return ControlFrame{}, apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("control body length %d exceeds %d", header.BodyLen(), MaxControlBody))
	}
	body := make([]byte, header.BodyLen())
	if _, err := io.ReadFull(r, body); err != nil {
		return ControlFrame{}, apperrors.Wrap(apperrors.CodeMalformed, "read control body", err)
	}
	return frameFromBody(header, body)
}

// WriteControlFrame encodes and writes one control frame.
func WriteControlFrame(w io.Writer, frame ControlFrame) error {
	encoded, err := EncodeControlFrame(frame.RoomName, frame.Operation, frame.State, frame.Payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("write control frame: %w", err)
	}
	return nil
}

func frameFromBody(header ControlHeader, body []byte) (ControlFrame, error) {
	roomName := body[:header.RoomNameLen]
	payload := make([]byte, header.PayloadLen)
	copy(payload, body[header.RoomNameLen:header.BodyLen()])
	return ControlFrame{
		RoomName:  string(roomName),
		Operation: header.Operation,
		State:     header.State,
		Payload:   payload,
	}, nil
}
