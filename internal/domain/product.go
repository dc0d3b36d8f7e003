package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductFact is the product service's authoritative, read-only view of a product.
type ProductFact struct {
	ProductID            string           `json:"product_id"`
	Title                string           `json:"title,omitempty"`
	Stock                *int             `json:"stock,omitempty"` // nil means unbounded
	Price                decimal.Decimal  `json:"price"`
	DiscountPrice        *decimal.Decimal `json:"discount,omitempty"`
	DiscountEndDate      *time.Time       `json:"discount_end_date,omitempty"`
	PriceBeforeDiscount  *decimal.Decimal `json:"bf_discount,omitempty"`
	RequireCustomerField bool             `json:"require_customer_field"`
	CustomerFieldLabel   string           `json:"customer_field_label,omitempty"`
	Currency             Currency         `json:"currency"`
}

// DiscountExpired is true only strictly after the end date; an item expiring
// exactly at now is still discounted.
func (p *ProductFact) DiscountExpired(now time.Time) bool {
	if p.DiscountEndDate == nil {
		return false
	}
	return now.After(*p.DiscountEndDate)
}

// RegularPrice is the non-discounted price.
func (p *ProductFact) RegularPrice() decimal.Decimal {
	if p.PriceBeforeDiscount != nil && p.PriceBeforeDiscount.IsPositive() {
		return *p.PriceBeforeDiscount
	}
	return p.Price
}

// EffectivePrice is the discount price while the window is open, the regular price otherwise.
func (p *ProductFact) EffectivePrice(now time.Time) decimal.Decimal {
	if p.DiscountPrice != nil && p.DiscountPrice.IsPositive() && !p.DiscountExpired(now) {
		return *p.DiscountPrice
	}
	return p.RegularPrice()
}

// InStock reports whether at least one unit can be sold.
func (p *ProductFact) InStock() bool {
	return p.Stock == nil || *p.Stock > 0
}

// Allows reports whether quantity units fit into the reported stock.
func (p *ProductFact) Allows(quantity int) bool {
	return p.Stock == nil || quantity <= *p.Stock
}
