package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type exchangeRateResponse struct {
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
}

type RateClient struct {
	baseURL    string
	httpClient *http.Client
	policy     Policy
	logger     *zap.Logger
}

func NewRateClient(baseURL string, httpClient *http.Client, policy Policy, logger *zap.Logger) *RateClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RateClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		policy:     policy,
		logger:     logger,
	}
}

// ExchangeRate returns how many units of the other currency one unit of base buys.
func (c *RateClient) ExchangeRate(ctx context.Context, base domain.Currency) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		rate, err = c.fetch(ctx, base)
		return err
	})
	if err != nil {
		c.logger.Warn("Exchange rate lookup failed",
			zap.String("base", base.String()),
			zap.Error(err))
		return decimal.Zero, err
	}
	return rate, nil
}

func (c *RateClient) fetch(ctx context.Context, base domain.Currency) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/api/v1/exchange-rate/%s", c.baseURL, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get exchange rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("exchange rate service returned %d", resp.StatusCode)
		if resp.StatusCode < http.StatusInternalServerError {
			return decimal.Zero, permanent(err)
		}
		return decimal.Zero, err
	}

	var body exchangeRateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, permanent(fmt.Errorf("failed to decode exchange rate: %w", err))
	}
	if !body.ExchangeRate.IsPositive() {
		return decimal.Zero, permanent(fmt.Errorf("invalid exchange rate %s", body.ExchangeRate))
	}
	return body.ExchangeRate, nil
}
