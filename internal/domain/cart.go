package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places every stored amount is rounded to.
const MoneyPlaces = 2

type CustomerField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Coupon struct {
	Code string `json:"code"`
}

type LineItem struct {
	ProductID             string          `json:"product_id"`
	Title                 string          `json:"title"`
	Description           string          `json:"description,omitempty"`
	ImageRef              string          `json:"image_ref,omitempty"`
	Quantity              int             `json:"quantity"`
	UnitPrice             decimal.Decimal `json:"unit_price"`
	SubTotal              decimal.Decimal `json:"sub_total"`
	Currency              Currency        `json:"currency"`
	AvailableStockAtAdd   *int            `json:"available_stock_at_add,omitempty"`
	RequiresCustomerField bool            `json:"requires_customer_field,omitempty"`
	CustomerField         *CustomerField  `json:"customer_field,omitempty"`
}

// Recalculate rounds the unit price and restores SubTotal = UnitPrice * Quantity.
func (li *LineItem) Recalculate() {
	li.UnitPrice = li.UnitPrice.Round(MoneyPlaces)
	li.SubTotal = li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity))).Round(MoneyPlaces)
}

// Cart is the whole client-owned cart of one session.
type Cart struct {
	SessionID string     `json:"session_id"`
	Currency  Currency   `json:"currency"`
	Items     []LineItem `json:"items"`
	Coupon    *Coupon    `json:"coupon,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewCart(sessionID string, currency Currency) *Cart {
	return &Cart{
		SessionID: sessionID,
		Currency:  currency,
		Items:     []LineItem{},
	}
}

// Clone returns a deep copy so reconciliation passes never alias the caller's snapshot.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = make([]LineItem, len(c.Items))
	for i, item := range c.Items {
		out.Items[i] = item.clone()
	}
	if c.Coupon != nil {
		coupon := *c.Coupon
		out.Coupon = &coupon
	}
	return &out
}

func (li LineItem) clone() LineItem {
	if li.AvailableStockAtAdd != nil {
		stock := *li.AvailableStockAtAdd
		li.AvailableStockAtAdd = &stock
	}
	if li.CustomerField != nil {
		field := *li.CustomerField
		li.CustomerField = &field
	}
	return li
}

// Find returns the index of productID in Items, or -1.
func (c *Cart) Find(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Remove drops productID from the cart and reports whether it was present.
func (c *Cart) Remove(productID string) bool {
	idx := c.Find(productID)
	if idx < 0 {
		return false
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return true
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.SubTotal)
	}
	return total
}

// ProductIDs returns the distinct product ids in cart order.
func (c *Cart) ProductIDs() []string {
	seen := make(map[string]struct{}, len(c.Items))
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
