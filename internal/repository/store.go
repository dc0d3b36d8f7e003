package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
)

var ErrMalformedState = errors.New("malformed persisted cart state")

// CartStore is a dumb durable container for one cart per session.
// Load never fails: missing or malformed state yields an empty cart.
type CartStore interface {
	Load(ctx context.Context, sessionID string) *domain.Cart
	Save(ctx context.Context, sessionID string, cart *domain.Cart) error
	Clear(ctx context.Context, sessionID string) error
}

// SessionLister enumerates sessions that currently have a persisted cart.
type SessionLister interface {
	Sessions(ctx context.Context) ([]string, error)
}

// cartRecord is the persisted layout: the line items as one serialized
// array, the coupon and the per-product customer fields stored apart.
type cartRecord struct {
	Items    []byte
	Coupon   *domain.Coupon
	Fields   map[string]domain.CustomerField
	Currency domain.Currency
}

func encodeCart(cart *domain.Cart) (*cartRecord, error) {
	items := make([]domain.LineItem, len(cart.Items))
	fields := make(map[string]domain.CustomerField)
	for i, item := range cart.Items {
		if item.CustomerField != nil {
			fields[item.ProductID] = *item.CustomerField
		}
		item.CustomerField = nil
		items[i] = item
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal items: %w", err)
	}

	var coupon *domain.Coupon
	if cart.Coupon != nil {
		c := *cart.Coupon
		coupon = &c
	}

	return &cartRecord{
		Items:    raw,
		Coupon:   coupon,
		Fields:   fields,
		Currency: cart.Currency,
	}, nil
}

func decodeCart(sessionID string, rec *cartRecord) (*domain.Cart, error) {
	cart := domain.NewCart(sessionID, rec.Currency)
	if len(rec.Items) > 0 {
		if err := json.Unmarshal(rec.Items, &cart.Items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
		}
	}
	if cart.Items == nil {
		cart.Items = []domain.LineItem{}
	}
	for i := range cart.Items {
		item := &cart.Items[i]
		if item.ProductID == "" || item.Quantity < 1 {
			return nil, fmt.Errorf("%w: invalid line item at %d", ErrMalformedState, i)
		}
		if field, ok := rec.Fields[item.ProductID]; ok {
			f := field
			item.CustomerField = &f
		}
	}
	if rec.Currency != "" && !rec.Currency.Valid() {
		return nil, fmt.Errorf("%w: currency %q", ErrMalformedState, rec.Currency)
	}
	cart.Coupon = rec.Coupon
	return cart, nil
}
