package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	"github.com/cloud-wave-best-zizon/cart-service/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("product service unavailable")

type fakeProducts struct {
	mu    sync.Mutex
	facts map[string]*domain.ProductFact
	fail  map[string]bool
	calls map[string]int
}

func newFakeProducts(facts ...*domain.ProductFact) *fakeProducts {
	f := &fakeProducts{
		facts: make(map[string]*domain.ProductFact),
		fail:  make(map[string]bool),
		calls: make(map[string]int),
	}
	for _, fact := range facts {
		f.facts[fact.ProductID] = fact
	}
	return f
}

func (f *fakeProducts) GetProductFact(_ context.Context, productID string) (*domain.ProductFact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[productID]++
	if f.fail[productID] {
		return nil, errUnavailable
	}
	fact, ok := f.facts[productID]
	if !ok {
		return nil, errUnavailable
	}
	out := *fact
	return &out, nil
}

func (f *fakeProducts) set(fact *domain.ProductFact) {
	f.mu.Lock()
	f.facts[fact.ProductID] = fact
	f.mu.Unlock()
}

func (f *fakeProducts) setFail(productID string, fail bool) {
	f.mu.Lock()
	f.fail[productID] = fail
	f.mu.Unlock()
}

func (f *fakeProducts) callsFor(productID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[productID]
}

type fakeRates struct {
	mu    sync.Mutex
	rate  decimal.Decimal
	err   error
	calls int
}

func (f *fakeRates) ExchangeRate(context.Context, domain.Currency) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.rate, nil
}

func (f *fakeRates) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCheckout struct {
	mu          sync.Mutex
	submissions []*domain.CheckoutSubmission
	result      *domain.CheckoutResult
	err         error
}

func (f *fakeCheckout) Submit(_ context.Context, sub *domain.CheckoutSubmission) (*domain.CheckoutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, sub)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeEvents struct {
	mu        sync.Mutex
	removed   map[string][]domain.LineItem
	submitted []string
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{removed: make(map[string][]domain.LineItem)}
}

func (f *fakeEvents) PublishItemsRemoved(_ context.Context, sessionID string, items []domain.LineItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed[sessionID] = append(f.removed[sessionID], items...)
	return nil
}

func (f *fakeEvents) PublishCheckoutSubmitted(_ context.Context, sub *domain.CheckoutSubmission, _ *domain.CheckoutResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, sub.SessionID)
	return nil
}

// countingStore records how often the service writes a cart.
type countingStore struct {
	*repository.MemoryStore
	mu    sync.Mutex
	saves int
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: repository.NewMemoryStore()}
}

func (s *countingStore) Save(ctx context.Context, sessionID string, cart *domain.Cart) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.MemoryStore.Save(ctx, sessionID, cart)
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *countingStore) resetSaves() {
	s.mu.Lock()
	s.saves = 0
	s.mu.Unlock()
}

func intPtr(v int) *int { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func timePtr(t time.Time) *time.Time { return &t }

func item(productID string, quantity int, price string, currency domain.Currency) domain.LineItem {
	li := domain.LineItem{
		ProductID: productID,
		Title:     productID,
		Quantity:  quantity,
		UnitPrice: dec(price),
		Currency:  currency,
	}
	li.Recalculate()
	return li
}

func cartOf(currency domain.Currency, items ...domain.LineItem) *domain.Cart {
	cart := domain.NewCart("s1", currency)
	cart.Items = append(cart.Items, items...)
	return cart
}

// assertSameCart compares carts by their serialized form so equal amounts
// with different internal representations still match.
func assertSameCart(t *testing.T, want, got *domain.Cart) {
	t.Helper()
	wantJSON, err := json.Marshal(want)
	require.NoError(t, err)
	gotJSON, err := json.Marshal(got)
	require.NoError(t, err)
	require.JSONEq(t, string(wantJSON), string(gotJSON))
}
