package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newTestReconciler(products *fakeProducts, rates *fakeRates) *Reconciler {
	r := NewReconciler(products, rates, 4, zap.NewNop())
	r.now = func() time.Time { return fixedNow }
	return r
}

func TestRevalidateStock_RemovesItemsBeyondStock(t *testing.T) {
	products := newFakeProducts(
		&domain.ProductFact{ProductID: "p1", Stock: intPtr(2), Price: dec("100"), Currency: domain.CurrencyEG},
	)
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("p1", 3, "100", domain.CurrencyEG))

	out, removed := r.RevalidateStock(context.Background(), cart)

	assert.Empty(t, out.Items)
	require.Len(t, removed, 1)
	assert.Equal(t, "p1", removed[0].ProductID)
	assert.Len(t, cart.Items, 1, "input cart is not mutated")
}

func TestRevalidateStock_Bounds(t *testing.T) {
	products := newFakeProducts(
		&domain.ProductFact{ProductID: "zero", Stock: intPtr(0), Price: dec("1")},
		&domain.ProductFact{ProductID: "neg", Stock: intPtr(-3), Price: dec("1")},
		&domain.ProductFact{ProductID: "exact", Stock: intPtr(2), Price: dec("1")},
		&domain.ProductFact{ProductID: "plenty", Stock: intPtr(10), Price: dec("1")},
		&domain.ProductFact{ProductID: "unbounded", Price: dec("1")},
	)
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG,
		item("zero", 1, "1", domain.CurrencyEG),
		item("neg", 1, "1", domain.CurrencyEG),
		item("exact", 2, "1", domain.CurrencyEG),
		item("plenty", 4, "1", domain.CurrencyEG),
		item("unbounded", 500, "1", domain.CurrencyEG),
	)

	out, removed := r.RevalidateStock(context.Background(), cart)

	assert.Equal(t, []string{"exact", "plenty", "unbounded"}, out.ProductIDs())
	assert.Len(t, removed, 2)
	for _, li := range out.Items {
		fact := products.facts[li.ProductID]
		assert.True(t, fact.Allows(li.Quantity), li.ProductID)
	}
	require.NotNil(t, out.Items[1].AvailableStockAtAdd)
	assert.Equal(t, 10, *out.Items[1].AvailableStockAtAdd)
	assert.Nil(t, out.Items[2].AvailableStockAtAdd)
}

func TestRevalidateStock_LookupFailureLeavesItem(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{ProductID: "p1", Stock: intPtr(0)})
	products.setFail("p1", true)
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("p1", 3, "100", domain.CurrencyEG))

	out, removed := r.RevalidateStock(context.Background(), cart)

	assert.Empty(t, removed)
	require.Len(t, out.Items, 1)
	assert.Equal(t, 3, out.Items[0].Quantity)
}

func TestRevalidateStock_Idempotent(t *testing.T) {
	products := newFakeProducts(
		&domain.ProductFact{ProductID: "a", Stock: intPtr(1), Price: dec("5")},
		&domain.ProductFact{ProductID: "b", Stock: intPtr(9), Price: dec("5")},
	)
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("a", 2, "5", domain.CurrencyEG), item("b", 2, "5", domain.CurrencyEG))

	once, _ := r.RevalidateStock(context.Background(), cart)
	twice, removed := r.RevalidateStock(context.Background(), once)

	assertSameCart(t, once, twice)
	assert.Empty(t, removed)
}

func TestRevalidateStock_RefetchesEveryPass(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{ProductID: "p1", Stock: intPtr(10)})
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("p1", 1, "1", domain.CurrencyEG))

	r.RevalidateStock(context.Background(), cart)
	r.RevalidateStock(context.Background(), cart)

	assert.Equal(t, 2, products.callsFor("p1"), "facts are re-fetched on every pass")
}

func TestRevalidateDiscounts_ExpiredDiscountRestoresPrice(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{
		ProductID:       "p2",
		Price:           dec("80"),
		DiscountPrice:   decPtr("50"),
		DiscountEndDate: timePtr(fixedNow.Add(-time.Hour)),
		Currency:        domain.CurrencyEG,
	})
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("p2", 1, "50", domain.CurrencyEG))

	out := r.RevalidateDiscounts(context.Background(), cart)

	require.Len(t, out.Items, 1)
	assert.True(t, out.Items[0].UnitPrice.Equal(dec("80")))
	assert.True(t, out.Items[0].SubTotal.Equal(dec("80")))
}

func TestRevalidateDiscounts_NoRegularPriceKeepsItem(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{
		ProductID:       "p2",
		DiscountEndDate: timePtr(fixedNow.Add(-time.Hour)),
		Currency:        domain.CurrencyEG,
	})
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("p2", 2, "50", domain.CurrencyEG))

	out := r.RevalidateDiscounts(context.Background(), cart)

	require.Len(t, out.Items, 1)
	assert.True(t, out.Items[0].UnitPrice.Equal(dec("50")), "a missing price never makes the item free")
	assert.True(t, out.Items[0].SubTotal.Equal(dec("100")))
}

func TestRevalidateDiscounts_PrefersPriceBeforeDiscount(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{
		ProductID:           "p2",
		Price:               dec("50"),
		PriceBeforeDiscount: decPtr("75.50"),
		DiscountEndDate:     timePtr(fixedNow.Add(-time.Minute)),
		Currency:            domain.CurrencyEG,
	})
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("p2", 2, "50", domain.CurrencyEG))

	out := r.RevalidateDiscounts(context.Background(), cart)

	assert.True(t, out.Items[0].UnitPrice.Equal(dec("75.5")))
	assert.True(t, out.Items[0].SubTotal.Equal(dec("151")))
}

func TestRevalidateDiscounts_ExpiringNowIsStillValid(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{
		ProductID:       "p2",
		Price:           dec("80"),
		DiscountEndDate: timePtr(fixedNow),
	})
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("p2", 1, "50", domain.CurrencyEG))

	out := r.RevalidateDiscounts(context.Background(), cart)

	assert.True(t, out.Items[0].UnitPrice.Equal(dec("50")))
}

func TestRevalidateDiscounts_ConvertsIntoItemCurrency(t *testing.T) {
	products := newFakeProducts(
		&domain.ProductFact{ProductID: "a", Price: dec("500"), DiscountEndDate: timePtr(fixedNow.Add(-time.Hour)), Currency: domain.CurrencyEG},
		&domain.ProductFact{ProductID: "b", Price: dec("1000"), DiscountEndDate: timePtr(fixedNow.Add(-time.Hour)), Currency: domain.CurrencyEG},
	)
	rates := &fakeRates{rate: dec("50")}
	r := newTestReconciler(products, rates)
	cart := cartOf(domain.CurrencyUS, item("a", 1, "5", domain.CurrencyUS), item("b", 1, "10", domain.CurrencyUS))

	out := r.RevalidateDiscounts(context.Background(), cart)

	assert.True(t, out.Items[0].UnitPrice.Equal(dec("10")))
	assert.True(t, out.Items[1].UnitPrice.Equal(dec("20")))
	assert.Equal(t, 1, rates.callCount())
}

func TestRevalidateDiscounts_Idempotent(t *testing.T) {
	products := newFakeProducts(
		&domain.ProductFact{ProductID: "p2", Price: dec("80"), DiscountEndDate: timePtr(fixedNow.Add(-time.Hour))},
		&domain.ProductFact{ProductID: "p3", Price: dec("30"), DiscountPrice: decPtr("20"), DiscountEndDate: timePtr(fixedNow.Add(time.Hour))},
	)
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("p2", 1, "50", domain.CurrencyEG), item("p3", 2, "20", domain.CurrencyEG))

	once := r.RevalidateDiscounts(context.Background(), cart)
	twice := r.RevalidateDiscounts(context.Background(), once)

	assertSameCart(t, once, twice)
	assert.True(t, once.Items[1].UnitPrice.Equal(dec("20")), "open discount is kept")
}

func TestConvertCurrency(t *testing.T) {
	rates := &fakeRates{rate: dec("50")}
	r := newTestReconciler(newFakeProducts(), rates)
	ctx := context.Background()

	assert.True(t, r.ConvertCurrency(ctx, dec("500"), domain.CurrencyEG, domain.CurrencyUS).Equal(dec("10")))
	assert.True(t, r.ConvertCurrency(ctx, dec("10"), domain.CurrencyUS, domain.CurrencyEG).Equal(dec("500")))
	assert.True(t, r.ConvertCurrency(ctx, dec("7"), domain.CurrencyUS, domain.CurrencyUS).Equal(dec("7")))
	assert.Equal(t, 2, rates.callCount(), "identity does not fetch a rate")
}

func TestConvertCurrency_RoundTrip(t *testing.T) {
	r := newTestReconciler(newFakeProducts(), &fakeRates{rate: dec("48.37")})
	ctx := context.Background()

	for _, s := range []string{"0.01", "1", "99.99", "1234.56", "100000"} {
		x := dec(s)
		back := r.ConvertCurrency(ctx, r.ConvertCurrency(ctx, x, domain.CurrencyEG, domain.CurrencyUS), domain.CurrencyUS, domain.CurrencyEG)
		assert.True(t, back.Round(domain.MoneyPlaces).Equal(x), "%s came back as %s", s, back)
	}
}

func TestConvertCurrency_RateFailureReturnsAmount(t *testing.T) {
	r := newTestReconciler(newFakeProducts(), &fakeRates{err: errors.New("timeout")})

	got := r.ConvertCurrency(context.Background(), dec("123.45"), domain.CurrencyEG, domain.CurrencyUS)
	assert.True(t, got.Equal(dec("123.45")))
}

func TestNormalizeCartCurrency_MixedCart(t *testing.T) {
	rates := &fakeRates{rate: dec("50")}
	r := newTestReconciler(newFakeProducts(), rates)
	cart := cartOf(domain.CurrencyEG,
		item("eg", 2, "500", domain.CurrencyEG),
		item("us", 1, "12.34", domain.CurrencyUS),
	)

	out := r.NormalizeCartCurrency(context.Background(), cart, domain.CurrencyUS)

	assert.Equal(t, domain.CurrencyUS, out.Currency)
	assert.Equal(t, domain.CurrencyUS, out.Items[0].Currency)
	assert.True(t, out.Items[0].UnitPrice.Equal(dec("10")))
	assert.True(t, out.Items[0].SubTotal.Equal(dec("20")))
	assert.Equal(t, domain.CurrencyUS, out.Items[1].Currency)
	assert.True(t, out.Items[1].UnitPrice.Equal(dec("12.34")))
	assert.Equal(t, 1, rates.callCount())
}

func TestNormalizeCartCurrency_SingleRateFetchPerPass(t *testing.T) {
	rates := &fakeRates{rate: dec("50")}
	r := newTestReconciler(newFakeProducts(), rates)
	cart := cartOf(domain.CurrencyEG,
		item("a", 1, "100", domain.CurrencyEG),
		item("b", 1, "200", domain.CurrencyEG),
		item("c", 1, "300", domain.CurrencyEG),
	)

	r.NormalizeCartCurrency(context.Background(), cart, domain.CurrencyUS)
	assert.Equal(t, 1, rates.callCount())
}

func TestNormalizeCartCurrency_NoOp(t *testing.T) {
	rates := &fakeRates{rate: dec("50")}
	r := newTestReconciler(newFakeProducts(), rates)

	empty := r.NormalizeCartCurrency(context.Background(), cartOf(domain.CurrencyEG), domain.CurrencyUS)
	assert.Empty(t, empty.Items)

	cart := cartOf(domain.CurrencyUS, item("a", 1, "3", domain.CurrencyUS))
	out := r.NormalizeCartCurrency(context.Background(), cart, domain.CurrencyUS)
	assertSameCart(t, cart, out)
	assert.Zero(t, rates.callCount())
}

func TestNormalizeCartCurrency_RateFailureLeavesCart(t *testing.T) {
	r := newTestReconciler(newFakeProducts(), &fakeRates{err: errors.New("down")})
	cart := cartOf(domain.CurrencyEG, item("a", 1, "100", domain.CurrencyEG))

	out := r.NormalizeCartCurrency(context.Background(), cart, domain.CurrencyUS)

	assertSameCart(t, cart, out)
}

func TestEnforceCustomerFieldRequirement(t *testing.T) {
	products := newFakeProducts(
		&domain.ProductFact{ProductID: "needs", RequireCustomerField: true},
		&domain.ProductFact{ProductID: "plain"},
	)
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("plain", 1, "1", domain.CurrencyEG), item("needs", 1, "1", domain.CurrencyEG))

	eligible, missing := r.EnforceCustomerFieldRequirement(context.Background(), cart)
	assert.False(t, eligible)
	assert.Equal(t, []string{"needs"}, missing)

	cart.Items[1].CustomerField = &domain.CustomerField{Label: "Player ID", Value: "77"}
	eligible, missing = r.EnforceCustomerFieldRequirement(context.Background(), cart)
	assert.True(t, eligible)
	assert.Empty(t, missing)
}

func TestEnforceCustomerFieldRequirement_FallsBackToSnapshot(t *testing.T) {
	products := newFakeProducts()
	products.setFail("needs", true)
	r := newTestReconciler(products, &fakeRates{})
	li := item("needs", 1, "1", domain.CurrencyEG)
	li.RequiresCustomerField = true

	eligible, missing := r.EnforceCustomerFieldRequirement(context.Background(), cartOf(domain.CurrencyEG, li))
	assert.False(t, eligible)
	assert.Equal(t, []string{"needs"}, missing)
}

func TestAddItem_QuantityExceedsStock(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{ProductID: "p1", Stock: intPtr(3), Price: dec("10")})
	r := newTestReconciler(products, &fakeRates{})

	_, err := r.AddItem(context.Background(), cartOf(domain.CurrencyEG), AddItemInput{ProductID: "p1", Quantity: 5})

	require.ErrorIs(t, err, ErrQuantityExceedsStock)
	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 3, stockErr.Available)
	assert.Contains(t, err.Error(), "3 available")
}

func TestAddItem_AllowanceAccountsForExistingQuantity(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{ProductID: "p1", Stock: intPtr(3), Price: dec("10")})
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("p1", 2, "10", domain.CurrencyEG))

	_, err := r.AddItem(context.Background(), cart, AddItemInput{ProductID: "p1", Quantity: 2})
	assert.Contains(t, err.Error(), "1 available")
}

func TestAddItem_OutOfStock(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{ProductID: "p1", Stock: intPtr(0), Price: dec("10")})
	r := newTestReconciler(products, &fakeRates{})

	_, err := r.AddItem(context.Background(), cartOf(domain.CurrencyEG), AddItemInput{ProductID: "p1", Quantity: 1})
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestAddItem_MergesAndRecomputes(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{ProductID: "p1", Stock: intPtr(10), Price: dec("12.5")})
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("p1", 2, "12.5", domain.CurrencyEG))

	out, err := r.AddItem(context.Background(), cart, AddItemInput{ProductID: "p1", Quantity: 3})
	require.NoError(t, err)

	require.Len(t, out.Items, 1)
	assert.Equal(t, 5, out.Items[0].Quantity)
	assert.True(t, out.Items[0].SubTotal.Equal(dec("62.5")))
}

func TestAddItem_MergeRelabelsStaleItemCurrency(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{ProductID: "p1", Stock: intPtr(10), Price: dec("500"), Currency: domain.CurrencyEG})
	r := newTestReconciler(products, &fakeRates{rate: dec("50")})
	cart := cartOf(domain.CurrencyUS, item("p1", 1, "500", domain.CurrencyEG))

	out, err := r.AddItem(context.Background(), cart, AddItemInput{ProductID: "p1", Quantity: 1})
	require.NoError(t, err)

	require.Len(t, out.Items, 1)
	assert.Equal(t, domain.CurrencyUS, out.Items[0].Currency)
	assert.True(t, out.Items[0].UnitPrice.Equal(dec("10")))
	assert.True(t, out.Items[0].SubTotal.Equal(dec("20")))
}

func TestAddItem_ServerPriceOverridesHint(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{
		ProductID:       "p1",
		Price:           dec("80"),
		DiscountPrice:   decPtr("40"),
		DiscountEndDate: timePtr(fixedNow.Add(-time.Hour)),
	})
	r := newTestReconciler(products, &fakeRates{})

	out, err := r.AddItem(context.Background(), cartOf(domain.CurrencyEG), AddItemInput{
		ProductID: "p1",
		Quantity:  1,
		PriceHint: decPtr("40"),
	})
	require.NoError(t, err)
	assert.True(t, out.Items[0].UnitPrice.Equal(dec("80")))
}

func TestAddItem_OpenDiscountAndConversion(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{
		ProductID:       "p1",
		Price:           dec("100"),
		DiscountPrice:   decPtr("75"),
		DiscountEndDate: timePtr(fixedNow.Add(time.Hour)),
		Currency:        domain.CurrencyEG,
	})
	r := newTestReconciler(products, &fakeRates{rate: dec("50")})

	out, err := r.AddItem(context.Background(), cartOf(domain.CurrencyUS), AddItemInput{ProductID: "p1", Quantity: 2})
	require.NoError(t, err)
	assert.True(t, out.Items[0].UnitPrice.Equal(dec("1.5")))
	assert.True(t, out.Items[0].SubTotal.Equal(dec("3")))
	assert.Equal(t, domain.CurrencyUS, out.Items[0].Currency)
}

func TestAddItem_LookupFailure(t *testing.T) {
	products := newFakeProducts()
	products.setFail("p1", true)
	r := newTestReconciler(products, &fakeRates{})

	_, err := r.AddItem(context.Background(), cartOf(domain.CurrencyEG), AddItemInput{ProductID: "p1", Quantity: 1})
	assert.ErrorIs(t, err, ErrLookupFailure)
}

func TestIncrementItem(t *testing.T) {
	products := newFakeProducts(&domain.ProductFact{ProductID: "p1", Stock: intPtr(2), Price: dec("5")})
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("p1", 1, "5", domain.CurrencyEG))

	out, err := r.IncrementItem(context.Background(), cart, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Items[0].Quantity)
	assert.True(t, out.Items[0].SubTotal.Equal(dec("10")))

	_, err = r.IncrementItem(context.Background(), out, "p1")
	require.ErrorIs(t, err, ErrStockLimitReached)
	assert.Contains(t, err.Error(), "0 available")
}

func TestIncrementItem_LookupFailureLeavesQuantity(t *testing.T) {
	products := newFakeProducts()
	products.setFail("p1", true)
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("p1", 1, "5", domain.CurrencyEG))

	out, err := r.IncrementItem(context.Background(), cart, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Items[0].Quantity)
}

func TestIncrementItem_NotInCart(t *testing.T) {
	r := newTestReconciler(newFakeProducts(), &fakeRates{})
	_, err := r.IncrementItem(context.Background(), cartOf(domain.CurrencyEG), "p1")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestDecrementItem(t *testing.T) {
	r := newTestReconciler(newFakeProducts(), &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("p1", 2, "5", domain.CurrencyEG))

	out := r.DecrementItem(cart, "p1")
	require.Len(t, out.Items, 1)
	assert.Equal(t, 1, out.Items[0].Quantity)
	assert.True(t, out.Items[0].SubTotal.Equal(dec("5")))

	out = r.DecrementItem(out, "p1")
	assert.Empty(t, out.Items)
}

func TestReconcile_SubTotalMatchesUnitPriceTimesQuantity(t *testing.T) {
	products := newFakeProducts(
		&domain.ProductFact{ProductID: "a", Stock: intPtr(9), Price: dec("19.99"), DiscountEndDate: timePtr(fixedNow.Add(-time.Hour))},
		&domain.ProductFact{ProductID: "b", Stock: intPtr(9), Price: dec("3.33")},
	)
	r := newTestReconciler(products, &fakeRates{rate: dec("49.13")})
	cart := cartOf(domain.CurrencyEG,
		item("a", 3, "9.99", domain.CurrencyEG),
		item("b", 7, "0.07", domain.CurrencyUS),
	)

	pass := r.Reconcile(context.Background(), cart, domain.CurrencyUS)

	for _, li := range pass.Cart.Items {
		want := li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity))).Round(domain.MoneyPlaces)
		assert.True(t, li.SubTotal.Equal(want), "%s: %s != %s", li.ProductID, li.SubTotal, want)
		assert.Equal(t, domain.CurrencyUS, li.Currency)
		assert.GreaterOrEqual(t, li.UnitPrice.Exponent(), int32(-domain.MoneyPlaces))
	}
	assert.Equal(t, 1, products.callsFor("a"))
}

func TestReconcile_FieldGateUsesReconciledCart(t *testing.T) {
	products := newFakeProducts(
		&domain.ProductFact{ProductID: "gone", Stock: intPtr(0), RequireCustomerField: true},
		&domain.ProductFact{ProductID: "kept", Stock: intPtr(5), RequireCustomerField: true},
	)
	r := newTestReconciler(products, &fakeRates{})
	cart := cartOf(domain.CurrencyEG, item("gone", 1, "1", domain.CurrencyEG), item("kept", 1, "1", domain.CurrencyEG))

	pass := r.Reconcile(context.Background(), cart, domain.CurrencyEG)

	assert.False(t, pass.Eligible)
	assert.Equal(t, []string{"kept"}, pass.Missing)
	require.Len(t, pass.Removed, 1)
	assert.Equal(t, "gone", pass.Removed[0].ProductID)
}
