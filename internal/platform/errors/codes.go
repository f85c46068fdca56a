// Package errors provides the structured error type shared by relay components.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified failure.
	CodeUnknown Code = "UNKNOWN"

	// CodeConflict means a room name is already taken.
	CodeConflict Code = "CONFLICT"
	// CodeNotFound means a room or membership does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodeCapacity means a room is at its member limit.
	CodeCapacity Code = "CAPACITY"
	// CodeMalformed means a frame, datagram, or payload failed to parse.
	CodeMalformed Code = "MALFORMED"
	// CodeInternal means an unexpected server fault.
	CodeInternal Code = "INTERNAL"
)

// Status maps codes to the numeric status carried in control-plane responses.
// The values follow HTTP semantics.
func (c Code) Status() int {
	switch c {
	case CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeCapacity:
		return http.StatusServiceUnavailable
	case CodeMalformed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller should restart room selection rather
// than treat the failure as a server fault.
func (c Code) Retryable() bool {
	switch c {
	case CodeConflict, CodeNotFound, CodeCapacity:
		return true
	default:
		return false
	}
}
