package domain

import "github.com/shopspring/decimal"

// CheckoutPreparation is the outcome of a full reconciliation pass ahead of checkout.
type CheckoutPreparation struct {
	Eligible     bool       `json:"eligible"`
	Cart         *Cart      `json:"cart"`
	RemovedItems []LineItem `json:"removed_items"`
	Missing      []string   `json:"missing"`
}

// CheckoutSubmission is what gets sent to the checkout service.
type CheckoutSubmission struct {
	SessionID      string          `json:"session_id"`
	IdempotencyKey string          `json:"-"`
	Items          []LineItem      `json:"items"`
	Coupon         *Coupon         `json:"coupon,omitempty"`
	Currency       Currency        `json:"currency"`
	Total          decimal.Decimal `json:"total"`
}

// CheckoutResult carries the identifiers needed to continue to the payment gateway.
type CheckoutResult struct {
	OrderID    string `json:"order_id"`
	PaymentKey string `json:"payment_key,omitempty"`
	IframeURL  string `json:"iframe_url,omitempty"`
}

// Requests bound by the HTTP layer.

type AddItemRequest struct {
	ProductID   string           `json:"product_id"  binding:"required"`
	Quantity    int              `json:"quantity"    binding:"required,min=1"`
	PriceHint   *decimal.Decimal `json:"price_hint"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	ImageRef    string           `json:"image_ref"`
}

type ChangeQuantityRequest struct {
	Delta int `json:"delta" binding:"required,oneof=1 -1"`
}

type CustomerFieldRequest struct {
	Label string `json:"label" binding:"required"`
	Value string `json:"value" binding:"required"`
}

type CouponRequest struct {
	Code string `json:"code" binding:"required"`
}

type CurrencyRequest struct {
	Currency string `json:"currency" binding:"required"`
}
