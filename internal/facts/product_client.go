package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// productFactResponse is the product service payload. Older deployments
// send the discount end as endDate instead of discountEndDate.
type productFactResponse struct {
	Title                string           `json:"title"`
	Stock                *int             `json:"stock"`
	Price                decimal.Decimal  `json:"price"`
	Discount             *decimal.Decimal `json:"discount"`
	DiscountEndDate      *time.Time       `json:"discountEndDate"`
	EndDate              *time.Time       `json:"endDate"`
	BfDiscount           *decimal.Decimal `json:"bfDiscount"`
	RequireCustomerField bool             `json:"requireCustomerField"`
	CustomerFieldLabel   string           `json:"customerFieldLabel"`
	Currency             string           `json:"currency"`
}

type ProductClient struct {
	baseURL         string
	httpClient      *http.Client
	policy          Policy
	defaultCurrency domain.Currency
	inflight        singleflight.Group
	logger          *zap.Logger
}

func NewProductClient(baseURL string, httpClient *http.Client, policy Policy, defaultCurrency domain.Currency, logger *zap.Logger) *ProductClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ProductClient{
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      httpClient,
		policy:          policy,
		defaultCurrency: defaultCurrency,
		logger:          logger,
	}
}

// GetProductFact always goes to the product service; concurrent calls for
// the same id share one in-flight request but nothing is cached afterwards.
func (c *ProductClient) GetProductFact(ctx context.Context, productID string) (*domain.ProductFact, error) {
	v, err, shared := c.inflight.Do(productID, func() (interface{}, error) {
		var fact *domain.ProductFact
		err := c.policy.Do(ctx, func(ctx context.Context) error {
			var err error
			fact, err = c.fetch(ctx, productID)
			return err
		})
		return fact, err
	})
	if err != nil {
		c.logger.Warn("Product fact lookup failed",
			zap.String("product_id", productID),
			zap.Error(err))
		return nil, err
	}
	if shared {
		c.logger.Debug("Product fact lookup shared", zap.String("product_id", productID))
	}

	// callers may mutate what they get back
	fact := *v.(*domain.ProductFact)
	return &fact, nil
}

func (c *ProductClient) fetch(ctx context.Context, productID string) (*domain.ProductFact, error) {
	endpoint := fmt.Sprintf("%s/api/v1/products/%s", c.baseURL, url.PathEscape(productID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("product service returned %d", resp.StatusCode)
		if resp.StatusCode < http.StatusInternalServerError {
			return nil, permanent(err)
		}
		return nil, err
	}

	var body productFactResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, permanent(fmt.Errorf("failed to decode product: %w", err))
	}

	return body.toFact(productID, c.defaultCurrency)
}

func (r productFactResponse) toFact(productID string, defaultCurrency domain.Currency) (*domain.ProductFact, error) {
	currency := defaultCurrency
	if r.Currency != "" {
		parsed, err := domain.ParseCurrency(r.Currency)
		if err != nil {
			return nil, permanent(fmt.Errorf("product %s: %w", productID, err))
		}
		currency = parsed
	}

	endDate := r.DiscountEndDate
	if endDate == nil {
		endDate = r.EndDate
	}

	return &domain.ProductFact{
		ProductID:            productID,
		Title:                r.Title,
		Stock:                r.Stock,
		Price:                r.Price,
		DiscountPrice:        r.Discount,
		DiscountEndDate:      endDate,
		PriceBeforeDiscount:  r.BfDiscount,
		RequireCustomerField: r.RequireCustomerField,
		CustomerFieldLabel:   r.CustomerFieldLabel,
		Currency:             currency,
	}, nil
}
