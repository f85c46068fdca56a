package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/relaychat/internal/platform/errors"
)

// Address is a member's data-plane endpoint.
//
// On the wire it is a [host, port] pair; a "host:port" string is accepted on input.
type Address struct {
	Host string
	Port int
}

// AddressFrom converts a UDP address into its wire form.
func AddressFrom(addr *net.UDPAddr) Address {
	if addr == nil {
		return Address{}
	}
	return Address{Host: addr.IP.String(), Port: addr.Port}
}

// String renders the address as host:port.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// UDPAddr resolves the address for sending datagrams.
func (a Address) UDPAddr() (*net.UDPAddr, error) {
	if strings.TrimSpace(a.Host) == "" {
		return nil, fmt.Errorf("address host is required")
	}
	if a.Port <= 0 || a.Port > 65535 {
		return nil, fmt.Errorf("address port %d is out of range", a.Port)
	}
	return net.ResolveUDPAddr("udp", a.String())
}

// MarshalJSON encodes the address as a [host, port] pair.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{a.Host, a.Port})
}

// UnmarshalJSON accepts a [host, port] pair or a "host:port" string.
func (a *Address) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var hostPort string
		if err := json.Unmarshal(trimmed, &hostPort); err != nil {
			return err
		}
		host, portText, err := net.SplitHostPort(hostPort)
		if err != nil {
			return fmt.Errorf("parse address %q: %w", hostPort, err)
		}
		port, err := strconv.Atoi(portText)
		if err != nil {
			return fmt.Errorf("parse address port %q: %w", portText, err)
		}
		*a = Address{Host: host, Port: port}
		return nil
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(trimmed, &pair); err != nil {
		return fmt.Errorf("address must be [host, port] or \"host:port\": %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("address pair has %d elements, want 2", len(pair))
	}
	var host string
	if err := json.Unmarshal(pair[0], &host); err != nil {
		return fmt.Errorf("address host: %w", err)
	}
	var port int
	if err := json.Unmarshal(pair[1], &port); err != nil {
		return fmt.Errorf("address port: %w", err)
	}
	*a = Address{Host: host, Port: port}
	return nil
}

// JoinRequest is the payload of CreateRoom and JoinRoom requests.
type JoinRequest struct {
	UserName    string  `json:"user_name"`
	UserAddress Address `json:"user_address"`
}

// DecodeJoinRequest parses and validates a request payload. The user name is
// returned normalized.
func DecodeJoinRequest(payload []byte) (JoinRequest, error) {
	var req JoinRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return JoinRequest{}, apperrors.Wrap(apperrors.CodeMalformed, "decode join request", err)
	}
	userName, err := NormalizeName("user name", req.UserName)
	if err != nil {
		return JoinRequest{}, err
	}
	req.UserName = userName
	if _, err := req.UserAddress.UDPAddr(); err != nil {
		return JoinRequest{}, apperrors.Wrap(apperrors.CodeMalformed, "user address", err)
	}
	return req, nil
}

// EncodeJoinRequest renders a request payload.
func EncodeJoinRequest(req JoinRequest) ([]byte, error) {
	return json.Marshal(req)
}

// Response is the payload of every control-plane response.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

// EncodeResponse renders a response payload after checking it matches state.
func EncodeResponse(state State, resp Response) ([]byte, error) {
	if err := validateResponse(state, resp); err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

// DecodeResponse parses a response payload and checks it against state:
// Complete must carry a token and error states must not.
func DecodeResponse(state State, payload []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Response{}, apperrors.Wrap(apperrors.CodeMalformed, "decode response", err)
	}
	if err := validateResponse(state, resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

func validateResponse(state State, resp Response) error {
	switch state {
	case StateComplete:
		if strings.TrimSpace(resp.Token) == "" {
			return apperrors.New(apperrors.CodeMalformed, "complete response requires a token")
		}
	case StateInit, StateServerFault, StateAcknowledged:
		if resp.Token != "" {
			return apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("%s response must not carry a token", state))
		}
	default:
		return apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("unknown response state %d", uint8(state)))
	}
	return nil
}
