// Package apperrors defines the error taxonomy shared by services and HTTP handlers.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindNotFound
	KindConflict
	KindSignature
	KindGateway
)

// Error is a classified application error with a stable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so re-worded sentinels still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e with a different client-facing message.
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg
	return &c
}

// Wrap returns a copy of e that carries cause for logging and errors.Is/As.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

var (
	ErrEmptyCart              = &Error{Kind: KindValidation, Code: "empty_cart", Message: "Cart is empty"}
	ErrProductNotFound        = &Error{Kind: KindNotFound, Code: "product_not_found", Message: "Product not found"}
	ErrItemNotInCart          = &Error{Kind: KindNotFound, Code: "item_not_in_cart", Message: "Item not in cart"}
	ErrOrderNotFound          = &Error{Kind: KindNotFound, Code: "order_not_found", Message: "Order not found"}
	ErrCouponNotFound         = &Error{Kind: KindNotFound, Code: "coupon_not_found", Message: "Invalid coupon code"}
	ErrCouponExpired          = &Error{Kind: KindConflict, Code: "coupon_expired", Message: "Coupon code expired"}
	ErrInvalidStateTransition = &Error{Kind: KindConflict, Code: "invalid_state_transition", Message: "Invalid order status transition"}
	ErrForbidden              = &Error{Kind: KindAuthorization, Code: "forbidden", Message: "Forbidden"}
	ErrSignature              = &Error{Kind: KindSignature, Code: "invalid_signature", Message: "Webhook signature verification failed"}
	ErrGateway                = &Error{Kind: KindGateway, Code: "gateway_error", Message: "Payment gateway unavailable"}
)

// Validation builds a 400-class error.
func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

// KindOf reports the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error onto the status code the API returns for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindSignature:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
