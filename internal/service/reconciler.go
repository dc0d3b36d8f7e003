package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProductFactSource looks up the authoritative facts of one product.
type ProductFactSource interface {
	GetProductFact(ctx context.Context, productID string) (*domain.ProductFact, error)
}

// ExchangeRateSource returns units of the other currency per unit of base.
type ExchangeRateSource interface {
	ExchangeRate(ctx context.Context, base domain.Currency) (decimal.Decimal, error)
}

type conversion func(amount, rate decimal.Decimal) decimal.Decimal

// rateBase is the currency every rate lookup is quoted against: the rate
// is EG per one US.
const rateBase = domain.CurrencyUS

var conversions = map[[2]domain.Currency]conversion{
	{domain.CurrencyEG, domain.CurrencyUS}: func(amount, rate decimal.Decimal) decimal.Decimal { return amount.Div(rate) },
	{domain.CurrencyUS, domain.CurrencyEG}: func(amount, rate decimal.Decimal) decimal.Decimal { return amount.Mul(rate) },
}

type Reconciler struct {
	products    ProductFactSource
	rates       ExchangeRateSource
	concurrency int
	now         func() time.Time
	logger      *zap.Logger
}

func NewReconciler(products ProductFactSource, rates ExchangeRateSource, concurrency int, logger *zap.Logger) *Reconciler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reconciler{
		products:    products,
		rates:       rates,
		concurrency: concurrency,
		now:         time.Now,
		logger:      logger,
	}
}

// Pass is the result of one full reconciliation pass.
type Pass struct {
	Cart     *domain.Cart
	Removed  []domain.LineItem
	Eligible bool
	Missing  []string
}

// Reconcile runs stock, discount, currency and customer-field checks in that
// order, each feeding the next, with one fact lookup per distinct product.
func (r *Reconciler) Reconcile(ctx context.Context, cart *domain.Cart, target domain.Currency) *Pass {
	facts := r.fetchFacts(ctx, cart.ProductIDs())
	rate := r.newRateSnapshot()

	out, removed := r.applyStock(cart.Clone(), facts)
	out = r.applyDiscounts(ctx, out, facts, rate)
	out = r.applyCurrency(ctx, out, target, rate)
	eligible, missing := r.fieldGate(out, facts)

	return &Pass{
		Cart:     out,
		Removed:  removed,
		Eligible: eligible,
		Missing:  missing,
	}
}

// RevalidateStock removes every item whose quantity no longer fits the
// reported stock. Items whose lookup fails are left alone.
func (r *Reconciler) RevalidateStock(ctx context.Context, cart *domain.Cart) (*domain.Cart, []domain.LineItem) {
	facts := r.fetchFacts(ctx, cart.ProductIDs())
	return r.applyStock(cart.Clone(), facts)
}

func (r *Reconciler) applyStock(cart *domain.Cart, facts map[string]*domain.ProductFact) (*domain.Cart, []domain.LineItem) {
	var removed []domain.LineItem
	kept := make([]domain.LineItem, 0, len(cart.Items))

	for _, item := range cart.Items {
		fact, ok := facts[item.ProductID]
		if !ok {
			kept = append(kept, item)
			continue
		}
		if !fact.InStock() || !fact.Allows(item.Quantity) {
			r.logger.Info("Removing item beyond stock",
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Int("stock", *fact.Stock))
			removed = append(removed, item)
			continue
		}
		item.AvailableStockAtAdd = copyStock(fact.Stock)
		item.RequiresCustomerField = fact.RequireCustomerField
		kept = append(kept, item)
	}

	cart.Items = kept
	return cart, removed
}

// RevalidateDiscounts reprices items whose discount window has closed.
func (r *Reconciler) RevalidateDiscounts(ctx context.Context, cart *domain.Cart) *domain.Cart {
	facts := r.fetchFacts(ctx, cart.ProductIDs())
	return r.applyDiscounts(ctx, cart.Clone(), facts, r.newRateSnapshot())
}

func (r *Reconciler) applyDiscounts(ctx context.Context, cart *domain.Cart, facts map[string]*domain.ProductFact, rate *rateSnapshot) *domain.Cart {
	now := r.now()
	for i := range cart.Items {
		item := &cart.Items[i]
		fact, ok := facts[item.ProductID]
		if !ok || !fact.DiscountExpired(now) {
			continue
		}

		regular := fact.RegularPrice()
		if !regular.IsPositive() {
			r.logger.Warn("Keeping expired discount price, product has no regular price",
				zap.String("product_id", item.ProductID),
				zap.String("regular_price", regular.String()))
			continue
		}

		price, err := r.convertWith(ctx, rate, regular, pricedIn(fact, item.Currency), item.Currency)
		if err != nil {
			r.logger.Warn("Keeping expired discount price, no exchange rate",
				zap.String("product_id", item.ProductID),
				zap.Error(err))
			continue
		}

		item.UnitPrice = price
		item.Recalculate()
	}
	return cart
}

// ConvertCurrency converts amount between the two supported currencies. If
// the rate cannot be fetched the amount comes back unchanged.
func (r *Reconciler) ConvertCurrency(ctx context.Context, amount decimal.Decimal, from, to domain.Currency) decimal.Decimal {
	converted, err := r.convertWith(ctx, r.newRateSnapshot(), amount, from, to)
	if err != nil {
		r.logger.Warn("Currency conversion skipped",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
			zap.Error(err))
		return amount
	}
	return converted
}

func (r *Reconciler) convertWith(ctx context.Context, rate *rateSnapshot, amount decimal.Decimal, from, to domain.Currency) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	convert, ok := conversions[[2]domain.Currency{from, to}]
	if !ok {
		return amount, fmt.Errorf("%w: %s to %s", domain.ErrUnsupportedCurrency, from, to)
	}
	value, err := rate.get(ctx)
	if err != nil {
		return amount, err
	}
	return convert(amount, value), nil
}

// NormalizeCartCurrency converts every item into target using one rate
// snapshot for the whole cart. On rate failure the cart is left as it was.
func (r *Reconciler) NormalizeCartCurrency(ctx context.Context, cart *domain.Cart, target domain.Currency) *domain.Cart {
	return r.applyCurrency(ctx, cart.Clone(), target, r.newRateSnapshot())
}

func (r *Reconciler) applyCurrency(ctx context.Context, cart *domain.Cart, target domain.Currency, rate *rateSnapshot) *domain.Cart {
	if !target.Valid() {
		return cart
	}

	converted := make([]domain.LineItem, len(cart.Items))
	for i, item := range cart.Items {
		if item.Currency != target {
			price, err := r.convertWith(ctx, rate, item.UnitPrice, item.Currency, target)
			if err != nil {
				r.logger.Warn("Cart currency left unchanged",
					zap.String("session_id", cart.SessionID),
					zap.String("target", target.String()),
					zap.Error(err))
				return cart
			}
			item.UnitPrice = price
			item.Currency = target
			item.Recalculate()
		}
		converted[i] = item
	}

	cart.Items = converted
	cart.Currency = target
	return cart
}

// EnforceCustomerFieldRequirement lists, in cart order, the products that
// need a customer field and do not have one yet.
func (r *Reconciler) EnforceCustomerFieldRequirement(ctx context.Context, cart *domain.Cart) (bool, []string) {
	facts := r.fetchFacts(ctx, cart.ProductIDs())
	return r.fieldGate(cart, facts)
}

func (r *Reconciler) fieldGate(cart *domain.Cart, facts map[string]*domain.ProductFact) (bool, []string) {
	missing := []string{}
	for _, item := range cart.Items {
		required := item.RequiresCustomerField
		if fact, ok := facts[item.ProductID]; ok {
			required = fact.RequireCustomerField
		}
		if !required {
			continue
		}
		if item.CustomerField == nil || strings.TrimSpace(item.CustomerField.Value) == "" {
			missing = append(missing, item.ProductID)
		}
	}
	return len(missing) == 0, missing
}

type AddItemInput struct {
	ProductID   string
	Quantity    int
	PriceHint   *decimal.Decimal
	Title       string
	Description string
	ImageRef    string
}

// AddItem checks the request against fresh stock and prices it from the
// product facts; a client price hint is only used when the facts carry none.
func (r *Reconciler) AddItem(ctx context.Context, cart *domain.Cart, in AddItemInput) (*domain.Cart, error) {
	if in.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	fact, err := r.products.GetProductFact(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("%w: product %s: %v", ErrLookupFailure, in.ProductID, err)
	}

	out := cart.Clone()
	if !out.Currency.Valid() {
		out.Currency = pricedIn(fact, domain.CurrencyEG)
	}

	existing := 0
	idx := out.Find(in.ProductID)
	if idx >= 0 {
		existing = out.Items[idx].Quantity
	}

	if !fact.InStock() {
		return nil, &StockError{Kind: ErrOutOfStock, ProductID: in.ProductID}
	}
	if !fact.Allows(existing + in.Quantity) {
		return nil, &StockError{
			Kind:      ErrQuantityExceedsStock,
			ProductID: in.ProductID,
			Available: max(*fact.Stock-existing, 0),
		}
	}

	price, err := r.priceFor(ctx, fact, in.PriceHint, out.Currency)
	if err != nil {
		return nil, err
	}

	if idx >= 0 {
		item := &out.Items[idx]
		item.Quantity += in.Quantity
		item.UnitPrice = price
		item.Currency = out.Currency
		item.AvailableStockAtAdd = copyStock(fact.Stock)
		item.RequiresCustomerField = fact.RequireCustomerField
		item.Recalculate()
		return out, nil
	}

	title := in.Title
	if title == "" {
		title = fact.Title
	}
	item := domain.LineItem{
		ProductID:             in.ProductID,
		Title:                 title,
		Description:           in.Description,
		ImageRef:              in.ImageRef,
		Quantity:              in.Quantity,
		UnitPrice:             price,
		Currency:              out.Currency,
		AvailableStockAtAdd:   copyStock(fact.Stock),
		RequiresCustomerField: fact.RequireCustomerField,
	}
	item.Recalculate()
	out.Items = append(out.Items, item)
	return out, nil
}

func (r *Reconciler) priceFor(ctx context.Context, fact *domain.ProductFact, hint *decimal.Decimal, currency domain.Currency) (decimal.Decimal, error) {
	price := fact.EffectivePrice(r.now())
	if !price.IsPositive() && hint != nil {
		// hint is already in the cart currency
		return *hint, nil
	}

	converted, err := r.convertWith(ctx, r.newRateSnapshot(), price, pricedIn(fact, currency), currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: pricing %s: %v", ErrLookupFailure, fact.ProductID, err)
	}
	return converted, nil
}

// IncrementItem adds one unit after re-checking stock. A failed lookup
// leaves the cart unchanged without reporting an error.
func (r *Reconciler) IncrementItem(ctx context.Context, cart *domain.Cart, productID string) (*domain.Cart, error) {
	out := cart.Clone()
	idx := out.Find(productID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}

	fact, err := r.products.GetProductFact(ctx, productID)
	if err != nil {
		r.logger.Warn("Increment skipped, product lookup failed",
			zap.String("product_id", productID),
			zap.Error(err))
		return out, nil
	}

	item := &out.Items[idx]
	if !fact.Allows(item.Quantity + 1) {
		return nil, &StockError{
			Kind:      ErrStockLimitReached,
			ProductID: productID,
			Available: max(*fact.Stock-item.Quantity, 0),
		}
	}

	item.Quantity++
	item.AvailableStockAtAdd = copyStock(fact.Stock)
	item.Recalculate()
	return out, nil
}

// DecrementItem removes one unit, dropping the item when none are left.
func (r *Reconciler) DecrementItem(cart *domain.Cart, productID string) *domain.Cart {
	out := cart.Clone()
	idx := out.Find(productID)
	if idx < 0 {
		return out
	}

	item := &out.Items[idx]
	item.Quantity--
	if item.Quantity <= 0 {
		out.Remove(productID)
		return out
	}
	item.Recalculate()
	return out
}

// fetchFacts looks up every id concurrently. Failed lookups are simply
// absent from the result; results are merged on the calling goroutine.
func (r *Reconciler) fetchFacts(ctx context.Context, ids []string) map[string]*domain.ProductFact {
	results := make([]*domain.ProductFact, len(ids))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			fact, err := r.products.GetProductFact(ctx, id)
			if err != nil {
				r.logger.Warn("Product lookup failed, item left as is",
					zap.String("product_id", id),
					zap.Error(err))
				return nil
			}
			results[i] = fact
			return nil
		})
	}
	_ = g.Wait()

	facts := make(map[string]*domain.ProductFact, len(ids))
	for i, id := range ids {
		if results[i] != nil {
			facts[id] = results[i]
		}
	}
	return facts
}

// rateSnapshot fetches the exchange rate at most once per pass so every
// item converts with the same value.
type rateSnapshot struct {
	source  ExchangeRateSource
	fetched bool
	rate    decimal.Decimal
	err     error
}

func (r *Reconciler) newRateSnapshot() *rateSnapshot {
	return &rateSnapshot{source: r.rates}
}

func (s *rateSnapshot) get(ctx context.Context) (decimal.Decimal, error) {
	if !s.fetched {
		s.rate, s.err = s.source.ExchangeRate(ctx, rateBase)
		if s.err == nil && !s.rate.IsPositive() {
			s.err = fmt.Errorf("%w: non-positive exchange rate %s", ErrLookupFailure, s.rate)
		}
		s.fetched = true
	}
	return s.rate, s.err
}

// pricedIn is the currency the fact's prices are quoted in, fallback when
// the product service did not say.
func pricedIn(fact *domain.ProductFact, fallback domain.Currency) domain.Currency {
	if fact.Currency.Valid() {
		return fact.Currency
	}
	return fallback
}

func copyStock(stock *int) *int {
	if stock == nil {
		return nil
	}
	v := *stock
	return &v
}
