package service

import (
	"errors"
	"fmt"

	"github.com/cloud-wave-best-zizon/cart-service/internal/facts"
)

var (
	ErrLookupFailure         = facts.ErrLookupFailure
	ErrOutOfStock            = errors.New("out of stock")
	ErrQuantityExceedsStock  = errors.New("quantity exceeds stock")
	ErrStockLimitReached     = errors.New("stock limit reached")
	ErrMissingRequiredField  = errors.New("missing required customer field")
	ErrItemNotFound          = errors.New("item not in cart")
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrInvalidQuantityChange = errors.New("quantity can only change by 1 or -1")
	ErrEmptyCart             = errors.New("cart is empty")
	ErrCheckoutBlocked       = errors.New("checkout blocked")
)

// StockError reports a stock violation together with how many more units
// could still be added.
type StockError struct {
	Kind      error
	ProductID string
	Available int
}

func (e *StockError) Error() string {
	if errors.Is(e.Kind, ErrOutOfStock) {
		return fmt.Sprintf("product %s is out of stock", e.ProductID)
	}
	return fmt.Sprintf("%s: %d available", e.Kind, e.Available)
}

func (e *StockError) Unwrap() error {
	return e.Kind
}

type MissingRequiredFieldError struct {
	ProductID string
	Label     string
}

func (e *MissingRequiredFieldError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("product %s requires a customer field", e.ProductID)
	}
	return fmt.Sprintf("product %s requires %q", e.ProductID, e.Label)
}

func (e *MissingRequiredFieldError) Unwrap() error {
	return ErrMissingRequiredField
}
