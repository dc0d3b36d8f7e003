package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	"github.com/cloud-wave-best-zizon/cart-service/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutGateway submits a reconciled cart to the checkout service.
type CheckoutGateway interface {
	Submit(ctx context.Context, submission *domain.CheckoutSubmission) (*domain.CheckoutResult, error)
}

type EventPublisher interface {
	PublishItemsRemoved(ctx context.Context, sessionID string, items []domain.LineItem) error
	PublishCheckoutSubmitted(ctx context.Context, submission *domain.CheckoutSubmission, result *domain.CheckoutResult) error
}

type CartService struct {
	store           repository.CartStore
	engine          *Reconciler
	checkout        CheckoutGateway
	events          EventPublisher
	defaultCurrency domain.Currency
	logger          *zap.Logger
	now             func() time.Time
}

func NewCartService(
	store repository.CartStore,
	engine *Reconciler,
	checkout CheckoutGateway,
	events EventPublisher,
	defaultCurrency domain.Currency,
	logger *zap.Logger,
) *CartService {
	return &CartService{
		store:           store,
		engine:          engine,
		checkout:        checkout,
		events:          events,
		defaultCurrency: defaultCurrency,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *CartService) load(ctx context.Context, sessionID string) *domain.Cart {
	cart := s.store.Load(ctx, sessionID)
	if !cart.Currency.Valid() {
		cart.Currency = s.defaultCurrency
	}
	return cart
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart) error {
	cart.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, cart.SessionID, cart); err != nil {
		s.logger.Error("Failed to save cart",
			zap.String("session_id", cart.SessionID),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *CartService) GetCart(ctx context.Context, sessionID string) *domain.Cart {
	return s.load(ctx, sessionID)
}

// Revalidate brings the stored cart back in line with current stock, prices
// and the session currency. It is what opening the cart and the background
// worker both run. The cart is only written when something changed.
func (s *CartService) Revalidate(ctx context.Context, sessionID string) (*domain.Cart, []domain.LineItem, error) {
	cart := s.load(ctx, sessionID)
	if cart.IsEmpty() {
		return cart, nil, nil
	}

	pass := s.engine.Reconcile(ctx, cart, cart.Currency)
	if sameCart(cart, pass.Cart) {
		return pass.Cart, nil, nil
	}

	if err := s.save(ctx, pass.Cart); err != nil {
		return nil, nil, err
	}
	s.publishRemoved(ctx, sessionID, pass.Removed)

	s.logger.Info("Cart revalidated",
		zap.String("session_id", sessionID),
		zap.Int("items", len(pass.Cart.Items)),
		zap.Int("removed", len(pass.Removed)))

	return pass.Cart, pass.Removed, nil
}

func (s *CartService) AddToCart(ctx context.Context, sessionID string, req domain.AddItemRequest) (*domain.Cart, error) {
	cart := s.load(ctx, sessionID)

	updated, err := s.engine.AddItem(ctx, cart, AddItemInput{
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		PriceHint:   req.PriceHint,
		Title:       req.Title,
		Description: req.Description,
		ImageRef:    req.ImageRef,
	})
	if err != nil {
		s.logger.Info("Add to cart rejected",
			zap.String("session_id", sessionID),
			zap.String("product_id", req.ProductID),
			zap.Int("quantity", req.Quantity),
			zap.Error(err))
		return nil, err
	}

	if err := s.save(ctx, updated); err != nil {
		return nil, err
	}

	s.logger.Info("Item added to cart",
		zap.String("session_id", sessionID),
		zap.String("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity))

	return updated, nil
}

func (s *CartService) RemoveFromCart(ctx context.Context, sessionID, productID string) (*domain.Cart, error) {
	cart := s.load(ctx, sessionID)
	if !cart.Remove(productID) {
		return nil, ErrItemNotFound
	}
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// ChangeQuantity moves an item's quantity by exactly one unit.
func (s *CartService) ChangeQuantity(ctx context.Context, sessionID, productID string, delta int) (*domain.Cart, error) {
	cart := s.load(ctx, sessionID)
	if cart.Find(productID) < 0 {
		return nil, ErrItemNotFound
	}

	var (
		updated *domain.Cart
		err     error
	)
	switch delta {
	case 1:
		updated, err = s.engine.IncrementItem(ctx, cart, productID)
	case -1:
		updated = s.engine.DecrementItem(cart, productID)
	default:
		return nil, ErrInvalidQuantityChange
	}
	if err != nil {
		return nil, err
	}

	if err := s.save(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *CartService) SetCustomerField(ctx context.Context, sessionID, productID string, field domain.CustomerField) (*domain.Cart, error) {
	cart := s.load(ctx, sessionID)
	idx := cart.Find(productID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}

	field.Label = strings.TrimSpace(field.Label)
	field.Value = strings.TrimSpace(field.Value)
	cart.Items[idx].CustomerField = &field

	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) ApplyCoupon(ctx context.Context, sessionID, code string) (*domain.Cart, error) {
	cart := s.load(ctx, sessionID)
	cart.Coupon = &domain.Coupon{Code: strings.TrimSpace(code)}
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) RemoveCoupon(ctx context.Context, sessionID string) (*domain.Cart, error) {
	cart := s.load(ctx, sessionID)
	cart.Coupon = nil
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// SetCurrency switches the session currency and converts every item.
func (s *CartService) SetCurrency(ctx context.Context, sessionID string, currency domain.Currency) (*domain.Cart, error) {
	if !currency.Valid() {
		return nil, domain.ErrUnsupportedCurrency
	}

	cart := s.load(ctx, sessionID)
	updated := s.engine.NormalizeCartCurrency(ctx, cart, currency)
	if updated.Currency != currency {
		return nil, fmt.Errorf("%w: exchange rate unavailable", ErrLookupFailure)
	}

	if err := s.save(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *CartService) ClearCart(ctx context.Context, sessionID string) error {
	if err := s.store.Clear(ctx, sessionID); err != nil {
		s.logger.Error("Failed to clear cart",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return err
	}
	return nil
}

// PrepareCheckout runs a full reconciliation pass and stores its result
// once, so the store never holds a partially reconciled cart.
func (s *CartService) PrepareCheckout(ctx context.Context, sessionID string, target domain.Currency) (*domain.CheckoutPreparation, error) {
	if !target.Valid() {
		return nil, domain.ErrUnsupportedCurrency
	}

	cart := s.load(ctx, sessionID)
	pass := s.engine.Reconcile(ctx, cart, target)

	if err := s.save(ctx, pass.Cart); err != nil {
		return nil, err
	}
	s.publishRemoved(ctx, sessionID, pass.Removed)

	removed := pass.Removed
	if removed == nil {
		removed = []domain.LineItem{}
	}
	return &domain.CheckoutPreparation{
		Eligible:     pass.Eligible && len(pass.Removed) == 0,
		Cart:         pass.Cart,
		RemovedItems: removed,
		Missing:      pass.Missing,
	}, nil
}

// SubmitCheckout sends the reconciled cart to the checkout service. Any
// stock or customer-field violation stops it before anything is sent.
func (s *CartService) SubmitCheckout(ctx context.Context, sessionID string, target domain.Currency) (*domain.CheckoutResult, *domain.CheckoutPreparation, error) {
	prep, err := s.PrepareCheckout(ctx, sessionID, target)
	if err != nil {
		return nil, nil, err
	}

	if prep.Cart.IsEmpty() {
		return nil, prep, ErrEmptyCart
	}
	if len(prep.Missing) > 0 {
		first := prep.Missing[0]
		field := &MissingRequiredFieldError{ProductID: first}
		if idx := prep.Cart.Find(first); idx >= 0 && prep.Cart.Items[idx].CustomerField != nil {
			field.Label = prep.Cart.Items[idx].CustomerField.Label
		}
		return nil, prep, fmt.Errorf("%w: %w", ErrCheckoutBlocked, field)
	}
	if len(prep.RemovedItems) > 0 {
		return nil, prep, fmt.Errorf("%w: %d item(s) no longer in stock", ErrCheckoutBlocked, len(prep.RemovedItems))
	}
	if prep.Cart.Currency != target {
		return nil, prep, fmt.Errorf("%w: %w: cart could not be priced in %s", ErrCheckoutBlocked, ErrLookupFailure, target)
	}

	submission := &domain.CheckoutSubmission{
		SessionID:      sessionID,
		IdempotencyKey: uuid.NewString(),
		Items:          prep.Cart.Items,
		Coupon:         prep.Cart.Coupon,
		Currency:       prep.Cart.Currency,
		Total:          prep.Cart.Total(),
	}

	result, err := s.checkout.Submit(ctx, submission)
	if err != nil {
		s.logger.Error("Checkout submission failed",
			zap.String("session_id", sessionID),
			zap.String("idempotency_key", submission.IdempotencyKey),
			zap.Error(err))
		return nil, prep, err
	}

	if err := s.ClearCart(ctx, sessionID); err != nil {
		// the order exists; a stale cart is the lesser problem
		s.logger.Warn("Cart not cleared after checkout",
			zap.String("session_id", sessionID),
			zap.String("order_id", result.OrderID))
	}

	if err := s.events.PublishCheckoutSubmitted(ctx, submission, result); err != nil {
		s.logger.Error("Failed to publish checkout event",
			zap.String("order_id", result.OrderID),
			zap.Error(err))
	}

	s.logger.Info("Checkout submitted",
		zap.String("session_id", sessionID),
		zap.String("order_id", result.OrderID),
		zap.String("total", submission.Total.String()),
		zap.String("currency", submission.Currency.String()))

	return result, prep, nil
}

func (s *CartService) publishRemoved(ctx context.Context, sessionID string, removed []domain.LineItem) {
	if len(removed) == 0 {
		return
	}
	if err := s.events.PublishItemsRemoved(ctx, sessionID, removed); err != nil {
		s.logger.Error("Failed to publish removed items",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

func sameCart(a, b *domain.Cart) bool {
	left, errA := json.Marshal(a.Items)
	right, errB := json.Marshal(b.Items)
	if err := errors.Join(errA, errB); err != nil {
		return false
	}
	return string(left) == string(right) && a.Currency == b.Currency
}
