package wire

import (
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/louisbranch/relaychat/internal/platform/errors"
	"golang.org/x/text/unicode/norm"
)

// MaxNameBytes bounds room and user names; it matches the one-byte length fields.
const MaxNameBytes = 255

// NormalizeName returns the NFC form of name and rejects empty, non-UTF-8, or
// oversized names. Canonically equivalent spellings normalize to one room.
func NormalizeName(kind, name string) (string, error) {
	if !utf8.ValidString(name) {
		return "", apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("%s is not valid UTF-8", kind))
	}
	normalized := norm.NFC.String(name)
	if strings.TrimSpace(normalized) == "" {
		return "", apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("%s is required", kind))
	}
	if len(normalized) > MaxNameBytes {
		return "", apperrors.New(apperrors.CodeMalformed, fmt.Sprintf("%s is %d bytes, limit %d", kind, len(normalized), MaxNameBytes))
	}
	return normalized, nil
}
