// Package errors provides the structured failure taxonomy shared by the
// request gateway, the session manager, the domain store and the views.
//
// Failures are classified once at the gateway boundary. Downstream code
// switches on Kind and never inspects transport details.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
)

// Kind is the category of a failure.
type Kind string

const (
	// KindNetwork means no response was received (dial error, timeout, breaker open).
	KindNetwork Kind = "network"
	// KindAuthorization means the backend rejected the credentials after the retry was exhausted.
	KindAuthorization Kind = "authorization"
	// KindValidation means a 4xx with a field-level error body.
	KindValidation Kind = "validation"
	// KindServer means a 5xx response.
	KindServer Kind = "server"
	// KindUnknown is everything else.
	KindUnknown Kind = "unknown"
)

// NonFieldKey collects messages that are not attached to a specific field.
const NonFieldKey = "non_field_errors"

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  map[string][]string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status a local view surface should answer with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		if e.Status >= 400 && e.Status < 500 {
			return e.Status
		}
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusUnauthorized
	case KindNetwork:
		return http.StatusServiceUnavailable
	case KindServer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NetworkFailure creates a failure for a request that got no response.
func NetworkFailure(message string, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Cause: cause}
}

// AuthorizationFailure creates a failure for a rejected credential.
func AuthorizationFailure(message string) *Error {
	return &Error{Kind: KindAuthorization, Status: http.StatusUnauthorized, Message: message}
}

// ValidationFailure creates a failure carrying per-field messages.
func ValidationFailure(status int, fields map[string][]string) *Error {
	if fields == nil {
		fields = make(map[string][]string)
	}
	return &Error{Kind: KindValidation, Status: status, Message: summarize(fields), Fields: fields}
}

// FieldFailure is a ValidationFailure for a single field, used for client-side rejections.
func FieldFailure(field, message string) *Error {
	return ValidationFailure(http.StatusBadRequest, map[string][]string{field: {message}})
}

// ServerFailure creates a failure for a 5xx response.
func ServerFailure(status int, message string) *Error {
	return &Error{Kind: KindServer, Status: status, Message: message}
}

// UnknownFailure creates a failure that fits no other category.
func UnknownFailure(message string, cause error) *Error {
	return &Error{Kind: KindUnknown, Message: message, Cause: cause}
}

// FieldNames returns the failing field names in stable order.
func (e *Error) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func summarize(fields map[string][]string) string {
	if msgs := fields[NonFieldKey]; len(msgs) > 0 {
		return msgs[0]
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	if len(names) == 0 {
		return "invalid request"
	}
	sort.Strings(names)
	if msgs := fields[names[0]]; len(msgs) > 0 {
		return names[0] + ": " + msgs[0]
	}
	return "invalid " + names[0]
}

// ErrorResponse represents the JSON structure sent to local views.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Type   Kind                `json:"type"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:  e.Message,
		Type:   e.Kind,
		Fields: e.Fields,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an unknown failure.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return UnknownFailure("unexpected failure", err)
}

// KindOf returns the Kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return AsStructuredError(err).Kind
}

// Result is the outcome of a session or store command: commands never
// return raw errors, only a flag and, on failure, the classified cause.
type Result struct {
	OK      bool
	Failure *Error
}

// Success is the Result of a completed command.
func Success() Result {
	return Result{OK: true}
}

// Failed converts err into a failed Result.
func Failed(err error) Result {
	return Result{Failure: AsStructuredError(err)}
}
