package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"checkout-svc/circuitbreaker"
	"checkout-svc/models"

	"go.uber.org/zap"
)

// LineItem is one purchasable row in a checkout session. UnitAmount is in
// minor currency units.
type LineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int    `json:"quantity"`
}

// Transfer routes one seller's share of the settled funds to its payout
// account. The session carries one transfer per seller in the cart.
type Transfer struct {
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
}

type CheckoutSessionRequest struct {
	Reference      string     `json:"reference"`
	SuccessURL     string     `json:"success_url"`
	CancelURL      string     `json:"cancel_url"`
	LineItems      []LineItem `json:"line_items"`
	DiscountID     string     `json:"discount_id,omitempty"`
	ApplicationFee int64      `json:"application_fee"`
	TransferGroup  string     `json:"transfer_group"`
	Transfers      []Transfer `json:"transfers"`
}

type CheckoutSession struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type DiscountRequest struct {
	Code  string  `json:"code"`
	Type  string  `json:"type"` // "percentage" or "fixed"
	Value float64 `json:"value"`
}

type discountResponse struct {
	ID string `json:"id"`
}

// Client talks to the external payment gateway over HTTP. Calls are bounded
// by the client timeout and guarded by a circuit breaker.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(logger *zap.Logger) *Client {
	return &Client{
		baseURL:    getEnv("GATEWAY_URL", "http://localhost:9090"),
		apiKey:     getEnv("GATEWAY_API_KEY", "sk_test_local"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    circuitbreaker.New(5, 30*time.Second),
		logger:     logger,
	}
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	var session CheckoutSession
	err := c.breaker.Execute(ctx, func() error {
		return c.post(ctx, "/v1/checkout/sessions", req, &session)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	c.logger.Info("Gateway checkout session created",
		zap.String("session_id", session.ID),
		zap.String("reference", req.Reference),
	)
	return &session, nil
}

// CreateDiscount registers a gateway-native discount object for a coupon. The
// returned id is cached on the coupon row so it is created at most once.
func (c *Client) CreateDiscount(ctx context.Context, coupon *models.Coupon) (string, error) {
	req := DiscountRequest{Code: coupon.Code, Value: coupon.Value}
	switch coupon.DiscountType {
	case models.DiscountTypePercentage:
		req.Type = "percentage"
	case models.DiscountTypeFixed:
		req.Type = "fixed"
	default:
		return "", fmt.Errorf("unknown discount type %q", coupon.DiscountType)
	}

	var resp discountResponse
	err := c.breaker.Execute(ctx, func() error {
		return c.post(ctx, "/v1/discounts", req, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create discount: %w", err)
	}
	return resp.ID, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
