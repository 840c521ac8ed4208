// Package errors defines the coded error used across services and how each
// code is rendered over HTTP.
package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeEmptyCart          Code = "EMPTY_CART"
	CodeProductUnavailable Code = "PRODUCT_UNAVAILABLE"
	CodeInsufficientStock  Code = "INSUFFICIENT_STOCK"
	// CodeGateway is a failed payment initiation. Clients see a 400 since
	// the checkout can simply be retried.
	CodeGateway Code = "PAYMENT_INITIATION_FAILED"
)

// Metadata is how a code is exposed to clients. When DetailsAllowed is
// false the error's own message and details stay in the logs and the client
// gets PublicMessage.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:         {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
	CodeUnauthorized:       {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
	CodeForbidden:          {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
	CodeNotFound:           {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
	CodeConflict:           {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
	CodeStateConflict:      {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
	CodeIdempotency:        {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
	CodeInternal:           {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
	CodeDependency:         {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},
	CodeEmptyCart:          {HTTPStatus: http.StatusBadRequest, PublicMessage: "Cart is empty."},
	CodeProductUnavailable: {HTTPStatus: http.StatusBadRequest, PublicMessage: "product unavailable", DetailsAllowed: true},
	CodeInsufficientStock:  {HTTPStatus: http.StatusBadRequest, PublicMessage: "insufficient stock", DetailsAllowed: true},
	CodeGateway:            {HTTPStatus: http.StatusBadRequest, Retryable: true, PublicMessage: "payment initiation failed"},
}

// MetadataFor returns the rendering for code. Unknown codes render as
// internal errors.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error with an optional cause and client-facing details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err gives the same result as
// New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// WithDetails sets the payload rendered under "details" when the code
// allows it. It mutates and returns e.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
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

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.code) + ": " + e.message
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
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

// IsCode reports whether the outermost *Error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
