// Package errors defines the typed error every service returns and the
// HTTP contract each code maps to.
package errors

import (
	stdErrors "errors"
	"maps"
	"net/http"
)

type Code string

// 4xx
const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	CodeInsufficientPoints Code = "INSUFFICIENT_POINTS"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeIdempotency        Code = "IDEMPOTENCY_KEY_REUSED"
	CodeStateConflict      Code = "STATE_CONFLICT"
	CodeRateLimit          Code = "RATE_LIMIT_EXCEEDED"
)

// 5xx
const (
	CodeInternal   Code = "INTERNAL_ERROR"
	CodeDependency Code = "DEPENDENCY_ERROR"
)

// ReasonKey is the details key carrying a machine-readable sub-reason
// such as sold_out or already_finalized.
const ReasonKey = "reason"

// Metadata is the public face of a code. Details are only rendered to
// clients when DetailsAllowed is set.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func clientFault(status int, msg string, details bool) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg, DetailsAllowed: details}
}

func serverFault(status int, msg string, details bool) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg, DetailsAllowed: details, Retryable: true}
}

var registry = map[Code]Metadata{
	CodeValidation:         clientFault(http.StatusBadRequest, "validation failed", true),
	CodeUnauthorized:       clientFault(http.StatusUnauthorized, "authentication required", true),
	CodeInsufficientFunds:  clientFault(http.StatusPaymentRequired, "insufficient wallet balance", true),
	CodeInsufficientPoints: clientFault(http.StatusPaymentRequired, "insufficient raffle points", true),
	CodeForbidden:          clientFault(http.StatusForbidden, "access denied", false),
	CodeNotFound:           clientFault(http.StatusNotFound, "resource not found", false),
	CodeConflict:           clientFault(http.StatusConflict, "conflict detected", true),
	CodeIdempotency:        clientFault(http.StatusConflict, "idempotency key reused", true),
	CodeStateConflict:      clientFault(http.StatusUnprocessableEntity, "state transition disallowed", true),
	CodeRateLimit:          clientFault(http.StatusTooManyRequests, "rate limit exceeded", false),

	CodeInternal:   serverFault(http.StatusInternalServerError, "internal server error", false),
	CodeDependency: serverFault(http.StatusServiceUnavailable, "dependency unavailable", true),
}

// MetadataFor treats unknown codes as internal errors.
func MetadataFor(code Code) Metadata {
	if meta, ok := registry[code]; ok {
		return meta
	}
	return registry[CodeInternal]
}

type Error struct {
	code    Code
	message string
	reason  string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap keeps err reachable through errors.Is/As. A nil err behaves like New.
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

// Details returns the attached details with the reason folded in. Map
// details are copied before the reason is added; any other shape is
// replaced by a reason-only map.
func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	if e.reason == "" {
		return e.details
	}
	merged := map[string]any{}
	if m, ok := e.details.(map[string]any); ok {
		maps.Copy(merged, m)
	}
	merged[ReasonKey] = e.reason
	return merged
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) WithReason(reason string) *Error {
	if e != nil {
		e.reason = reason
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As finds the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func Reason(err error) string {
	if typed := As(err); typed != nil {
		return typed.reason
	}
	return ""
}

func HasReason(err error, reason string) bool {
	return reason != "" && Reason(err) == reason
}

func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
