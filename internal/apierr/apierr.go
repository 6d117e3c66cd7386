// ABOUTME: Error taxonomy shared by auth, tools, and the MCP dispatcher.
// ABOUTME: Maps stable machine codes onto JSON-RPC error codes and HTTP statuses.

package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error class.
type Code string

const (
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeForbidden      Code = "FORBIDDEN"
	CodeInvalidParams  Code = "INVALID_PARAMS"
	CodeMethodNotFound Code = "METHOD_NOT_FOUND"
	CodeInternal       Code = "INTERNAL_ERROR"
	CodeKeyFetch       Code = "KEY_FETCH_ERROR"
)

// Standard JSON-RPC 2.0 error codes.
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// Error is a classified failure carrying a human-readable message.
// The wrapped cause is kept for logging and never serialized.
type Error struct {
	Code    Code
	Message string
	Data    any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, apierr.New(apierr.CodeForbidden, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// JSONRPCCode returns the JSON-RPC error code for this error's class.
func (e *Error) JSONRPCCode() int {
	switch e.Code {
	case CodeUnauthorized, CodeForbidden, CodeKeyFetch:
		return JSONRPCInvalidRequest
	case CodeInvalidParams:
		return JSONRPCInvalidParams
	case CodeMethodNotFound:
		return JSONRPCMethodNotFound
	default:
		return JSONRPCInternalError
	}
}

// HTTPStatus returns the HTTP status for this error's class.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeUnauthorized, CodeKeyFetch:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidParams:
		return http.StatusBadRequest
	case CodeMethodNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that records cause for logs.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Unauthorized is shorthand for New(CodeUnauthorized, message).
func Unauthorized(message string) *Error { return New(CodeUnauthorized, message) }

// Forbidden is shorthand for New(CodeForbidden, message).
func Forbidden(message string) *Error { return New(CodeForbidden, message) }

// InvalidParams is shorthand for New(CodeInvalidParams, message).
func InvalidParams(message string) *Error { return New(CodeInvalidParams, message) }

// InvalidParamsf formats an INVALID_PARAMS message.
func InvalidParamsf(format string, args ...any) *Error {
	return New(CodeInvalidParams, fmt.Sprintf(format, args...))
}

// Internal is shorthand for Wrap(CodeInternal, message, cause).
func Internal(message string, cause error) *Error { return Wrap(CodeInternal, message, cause) }

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain,
// or CodeInternal for unclassified errors.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
