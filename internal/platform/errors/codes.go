// Package errors provides structured error handling for the changelog
// engine and its store service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// List identity errors
	CodeListInvalidOwner Code = "LIST_INVALID_OWNER"
	CodeListInvalidKind  Code = "LIST_INVALID_KIND"
	CodeListInvalidDay   Code = "LIST_INVALID_DAY"

	// Event errors
	CodeEventInvalidOp       Code = "EVENT_INVALID_OP"
	CodeEventMissingEntityID Code = "EVENT_MISSING_ENTITY_ID"
	CodeEventMalformed       Code = "EVENT_MALFORMED_PAYLOAD"

	// Storage errors
	CodeNotFound    Code = "NOT_FOUND"
	CodeUnavailable Code = "STORE_UNAVAILABLE"
)

// HTTPStatus maps the error code to an HTTP response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeListInvalidOwner, CodeListInvalidKind, CodeListInvalidDay,
		CodeEventInvalidOp, CodeEventMissingEntityID, CodeEventMalformed:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
