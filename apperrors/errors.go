// Package apperrors classifies cart and checkout failures so transport layers
// can render them without inspecting error strings.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Unauthenticated      Kind = "unauthenticated"
	InvalidInput         Kind = "invalid_input"
	NotFound             Kind = "not_found"
	OutOfStock           Kind = "out_of_stock"
	QuantityExceedsStock Kind = "quantity_exceeds_stock"
	EmptyCart            Kind = "empty_cart"
	StockUnavailable     Kind = "stock_unavailable"
	TotalMismatch        Kind = "total_mismatch"
	Internal             Kind = "internal"
)

// Stages at which a stock shortage can be detected during checkout.
const (
	StagePrecheck = "precheck"
	StageRecheck  = "recheck"
)

// StockIssue describes one cart line that cannot be fulfilled.
type StockIssue struct {
	ProductID int    `json:"productId"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type Error struct {
	Kind    Kind
	Message string
	// Available is the remaining headroom for QuantityExceedsStock.
	Available int
	Issues    []StockIssue
	Stage     string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func ExceedsStock(available int) *Error {
	e := &Error{Kind: QuantityExceedsStock, Available: available}
	if available > 0 {
		e.Message = fmt.Sprintf("Only %d more available", available)
	} else {
		e.Message = "You already have the maximum available quantity in your cart"
	}
	return e
}

func Unavailable(stage string, issues []StockIssue) *Error {
	return &Error{
		Kind:    StockUnavailable,
		Message: "Some items in your cart are no longer available in the requested quantity",
		Issues:  issues,
		Stage:   stage,
	}
}

// KindOf returns Internal for errors that were never classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case InvalidInput, OutOfStock, QuantityExceedsStock, EmptyCart, StockUnavailable, TotalMismatch:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
