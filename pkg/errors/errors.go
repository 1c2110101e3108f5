// Package errors carries the back office's typed error: a stable Code that
// decides the HTTP status, whether the caller may retry, and how much of the
// message and details leave the process.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeIdempotency         Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit           Code = "RATE_LIMITED"
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeDependency          Code = "DEPENDENCY_ERROR"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
)

// Metadata is the response policy attached to a Code.
type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
	// ExposeMessage lets the error's own message replace PublicMessage.
	ExposeMessage  bool
	DetailsAllowed bool
}

// Client mistakes explain themselves; server-side failures stay generic.
var (
	clientFault = func(status int, public string) Metadata {
		return Metadata{HTTPStatus: status, PublicMessage: public, ExposeMessage: true, DetailsAllowed: true}
	}
	serverFault = func(status int, public string, details bool) Metadata {
		return Metadata{HTTPStatus: status, Retryable: true, PublicMessage: public, DetailsAllowed: details}
	}
)

var policies = map[Code]Metadata{
	CodeValidation:   clientFault(http.StatusBadRequest, "validation failed"),
	CodeUnauthorized: {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", ExposeMessage: true},
	CodeForbidden:    clientFault(http.StatusForbidden, "access denied"),
	CodeNotFound:     {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", ExposeMessage: true},
	// The caller must re-read the current version before retrying.
	CodeConcurrencyConflict: clientFault(http.StatusConflict, "record was modified concurrently"),
	CodeIdempotency:         clientFault(http.StatusConflict, "idempotency key reused"),
	CodeRateLimit: {
		HTTPStatus:     http.StatusTooManyRequests,
		Retryable:      true,
		PublicMessage:  "too many requests",
		ExposeMessage:  true,
		DetailsAllowed: true,
	},
	CodeInternal:            serverFault(http.StatusInternalServerError, "internal server error", false),
	CodeDependency:          serverFault(http.StatusServiceUnavailable, "dependency unavailable", true),
	CodeUpstreamUnavailable: serverFault(http.StatusServiceUnavailable, "identity provider unavailable", false),
}

// MetadataFor returns the policy for code, falling back to CodeInternal's.
func MetadataFor(code Code) Metadata {
	if meta, ok := policies[code]; ok {
		return meta
	}
	return policies[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return string(e.code) + ": " + e.message
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost *Error in err's chain carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether a caller may repeat the operation that produced err.
// Untyped errors count as internal and therefore retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(As(err).Code()).Retryable
}
