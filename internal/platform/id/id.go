// Package id generates identifiers for correlating relay activity in logs.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewRequestID returns a random v4 UUID encoded as 26 lowercase base32
// characters without padding.
func NewRequestID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(u[:])), nil
}
