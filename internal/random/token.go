// Package random provides cryptographic membership tokens.
//
// Tokens are the only credential on the data plane, so they come from
// crypto/rand and are never derived from anything a client can observe.
package random

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// TokenBytes is the entropy per token; the hex rendering is twice as long.
const TokenBytes = 32

// TokenLength is the length of a rendered token.
const TokenLength = TokenBytes * 2

// Source reads token entropy. Tests swap it to force failures.
var Source io.Reader = crand.Reader

// NewToken generates a fixed-length lowercase hex token.
func NewToken() (string, error) {
	var b [TokenBytes]byte
	if _, err := io.ReadFull(Source, b[:]); err != nil {
		return "", fmt.Errorf("read token entropy: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
