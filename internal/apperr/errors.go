package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for callers and for the HTTP boundary
type Kind int

const (
	Internal Kind = iota
	InvalidInput
	NotFound
	OrderNotFound
	EmptyCart
	OutOfStock
	InsufficientStock
	Unauthenticated
	Forbidden
	StoreTimeout
	InvalidNotification
	InvalidSignature
	PaymentLookupFailed
)

var kindNames = map[Kind]string{
	Internal:            "internal",
	InvalidInput:        "invalid_input",
	NotFound:            "not_found",
	OrderNotFound:       "order_not_found",
	EmptyCart:           "empty_cart",
	OutOfStock:          "out_of_stock",
	InsufficientStock:   "insufficient_stock",
	Unauthenticated:     "unauthenticated",
	Forbidden:           "forbidden",
	StoreTimeout:        "store_timeout",
	InvalidNotification: "invalid_notification",
	InvalidSignature:    "invalid_signature",
	PaymentLookupFailed: "payment_lookup_failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a failure tagged with a Kind and a message safe to show callers
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a kinded error with a formatted message
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and a public message to an underlying error
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, Internal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the response status code
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput, EmptyCart, OutOfStock, InsufficientStock, InvalidNotification, PaymentLookupFailed:
		return http.StatusBadRequest
	case NotFound, OrderNotFound:
		return http.StatusNotFound
	case Unauthenticated, InvalidSignature:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text a caller may see. Internal detail is never exposed.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal server error"
	}
	switch e.Kind {
	case Internal:
		return "internal server error"
	case StoreTimeout:
		return "request timed out"
	}
	return e.Msg
}
