package wire

import (
	"fmt"
	"unicode/utf8"

	apperrors "github.com/louisbranch/relaychat/internal/platform/errors"
)

const (
	// DatagramHeaderSize is the room-name length byte plus the token length byte.
	DatagramHeaderSize = 2
	// MaxDatagramSize is the largest datagram either side reads or writes.
	MaxDatagramSize = 4096
	// LeaveSignal is the message body that ends a membership.
	LeaveSignal = "exit"
)

// Datagram is a decoded data-plane message.
type Datagram struct {
	RoomName string
	Token    string
	Message  []byte
}

// IsLeave reports whether the datagram carries the leave signal.
func (d Datagram) IsLeave() bool {
	return string(d.Message) == LeaveSignal
}

// EncodeDatagram renders a data-plane datagram.
func EncodeDatagram(roomName, token string, message []byte) ([]byte, error) {
	if len(roomName) > MaxNameBytes {
		return nil, apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("room name is %d bytes, limit %d", len(roomName), MaxNameBytes))
	}
	if len(token) > MaxNameBytes {
		return nil, apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("token is %d bytes, limit %d", len(token), MaxNameBytes))
	}
	size := DatagramHeaderSize + len(roomName) + len(token) + len(message)
	if size > MaxDatagramSize {
		return nil, apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("datagram is %d bytes, limit %d", size, MaxDatagramSize))
	}
	out := make([]byte, 0, size)
	out = append(out, byte(len(roomName)), byte(len(token)))
	out = append(out, roomName...)
	out = append(out, token...)
	out = append(out, message...)
	return out, nil
}

// DecodeDatagram parses a data-plane datagram. The returned message aliases b.
func DecodeDatagram(b []byte) (Datagram, error) {
	if len(b) < DatagramHeaderSize {
		return Datagram{}, apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("datagram is %d bytes, header needs %d", len(b), DatagramHeaderSize))
	}
	roomLen, tokenLen := int(b[0]), int(b[1])
	end := DatagramHeaderSize + roomLen + tokenLen
	if end > len(b) {
		return Datagram{}, apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("datagram is %d bytes, header declares %d", len(b), end))
	}
	roomName := b[DatagramHeaderSize : DatagramHeaderSize+roomLen]
	token := b[DatagramHeaderSize+roomLen : end]
	if !utf8.Valid(roomName) || !utf8.Valid(token) {
		return Datagram{}, apperrors.New(apperrors.CodeMalformed, "datagram room name or token is not UTF-8")
	}
	return Datagram{
		RoomName: string(roomName),
		Token:    string(token),
		Message:  b[end:],
	}, nil
}
