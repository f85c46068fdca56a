package wire

import (
	"errors"
	"strings"
	"testing"

	apperrors "github.com/louisbranch/relaychat/internal/platform/errors"
)

func TestDatagramRoundTrip(t *testing.T) {
	encoded, err := EncodeDatagram("lobby", "tok", []byte("hello there"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if encoded[0] != 5 || encoded[1] != 3 {
		t.Fatalf("unexpected header % x", encoded[:2])
	}

	d, err := DecodeDatagram(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.RoomName != "lobby" || d.Token != "tok" || string(d.Message) != "hello there" {
		t.Fatalf("unexpected datagram %+v", d)
	}
	if d.IsLeave() {
		t.Fatal("did not expect leave signal")
	}
}

func TestDatagramEmptyMessage(t *testing.T) {
	encoded, err := EncodeDatagram("lobby", "tok", nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	d, err := DecodeDatagram(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(d.Message) != 0 {
		t.Fatalf("expected empty message, got %q", d.Message)
	}
}

func TestDatagramLeaveSignal(t *testing.T) {
	encoded, err := EncodeDatagram("lobby", "tok", []byte(LeaveSignal))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	d, err := DecodeDatagram(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !d.IsLeave() {
		t.Fatal("expected leave signal")
	}
}

func TestDecodeDatagramMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":          nil,
		"short header":   {3},
		"room overflow":  {10, 0, 'a'},
		"token overflow": {1, 4, 'a', 'b'},
		"invalid utf8":   {1, 1, 0xff, 'x'},
	}
	for name, input := range cases {
		if _, err := DecodeDatagram(input); !errors.Is(err, apperrors.ErrMalformed) {
			t.Fatalf("%s: expected malformed, got %v", name, err)
		}
	}
}

func TestEncodeDatagramLimits(t *testing.T) {
	if _, err := EncodeDatagram(strings.Repeat("r", MaxNameBytes+1), "t", nil); err == nil {
		t.Fatal("expected room name limit error")
	}
	if _, err := EncodeDatagram("r", strings.Repeat("t", MaxNameBytes+1), nil); err == nil {
		t.Fatal("expected token limit error")
	}
	if _, err := EncodeDatagram("r", "t", make([]byte, MaxDatagramSize)); err == nil {
		t.Fatal("expected datagram size error")
	}
}
