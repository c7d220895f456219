// Package apierror provides the typed error kinds propagated by every service and
// the standardized error envelope returned to clients.
// Services never decide HTTP status codes: they return *Error values and the handler
// layer translates the Kind once, at the outer boundary. Internal details (DB errors,
// stack traces) are logged there and never serialized.
package apierror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. Only KindInternal is retryable.
type Kind string

const (
	KindValidation Kind = "VALIDATION_ERROR"
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindInternal   Kind = "INTERNAL"
)

// Retryable reports whether a caller may retry the same request unchanged.
func (k Kind) Retryable() bool { return k == KindInternal }

// Stable error codes exposed to callers.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeLedgerNotFound      = "LEDGER_NOT_FOUND"
	CodePaymentNotFound     = "PAYMENT_NOT_FOUND"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeInvalidRefundAmount = "INVALID_REFUND_AMOUNT"
	CodeCajaAlreadyOpen     = "CAJA_ALREADY_OPEN"
	CodeCajaCannotClose     = "CAJA_CANNOT_CLOSE"
	CodeInternal            = "INTERNAL"
)

// Error is the failure value returned by the service layer.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a VALIDATION_ERROR. fields may be nil.
func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: msg, Fields: fields}
}

// InvalidField is a shorthand for a single-field validation failure.
func InvalidField(field, reason string) *Error {
	return Validation(field+": "+reason, map[string]string{field: reason})
}

func NotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

// Internal wraps an unexpected failure (storage, encoding, timeouts).
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Wrap returns err unchanged when it already carries a Kind, otherwise as INTERNAL.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Internal(err)
}

// KindOf returns the Kind of err; untyped errors are INTERNAL.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// ─── Response envelope ───────────────────────────────────────────────────────

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Code   string            `json:"code"`
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields,omitempty"`
}

func New(code, msg string) *APIError {
	return &APIError{Code: code, Detail: msg}
}

// NewValidation wraps multiple field errors.
func NewValidation(fields map[string]string) *APIError {
	return &APIError{Code: CodeValidation, Detail: "validation error", Fields: fields}
}
