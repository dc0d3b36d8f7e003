package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrCheckoutRejected    = errors.New("checkout rejected")
	ErrCheckoutUnavailable = errors.New("checkout service unavailable")
)

type submitResponse struct {
	Success    bool   `json:"success"`
	OrderID    string `json:"orderId"`
	PaymentKey string `json:"paymentKey"`
	IframeURL  string `json:"iframeUrl"`
	Message    string `json:"message"`
}

// Client posts reconciled carts to the checkout service. A submission is
// sent once per call; the idempotency key lets the caller retry safely.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
	}
}

func (c *Client) Submit(ctx context.Context, submission *domain.CheckoutSubmission) (*domain.CheckoutResult, error) {
	payload, err := json.Marshal(submission)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/checkout", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", submission.IdempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrCheckoutUnavailable, resp.StatusCode)
	}

	var body submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: undecodable response (status %d): %v", ErrCheckoutRejected, resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !body.Success || body.OrderID == "" {
		c.logger.Warn("Checkout rejected",
			zap.String("session_id", submission.SessionID),
			zap.Int("status", resp.StatusCode),
			zap.String("message", body.Message))
		if body.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrCheckoutRejected, body.Message)
		}
		return nil, ErrCheckoutRejected
	}

	c.logger.Info("Checkout accepted",
		zap.String("session_id", submission.SessionID),
		zap.String("order_id", body.OrderID))

	return &domain.CheckoutResult{
		OrderID:    body.OrderID,
		PaymentKey: body.PaymentKey,
		IframeURL:  body.IframeURL,
	}, nil
}
