package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultRazorpayBaseURL = "https://api.razorpay.com/v1"

// APIError is a non-2xx response from Razorpay.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("razorpay: %d %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("razorpay: unexpected status %d", e.StatusCode)
}

type razorpayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// RazorpayConfig holds API credentials.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

// RazorpayClient talks to the Razorpay Orders API.
type RazorpayClient struct {
	http   *resty.Client
	secret string
}

var _ Gateway = (*RazorpayClient)(nil)

// NewRazorpayClient validates credentials and builds the REST client.
func NewRazorpayClient(cfg RazorpayConfig) (*RazorpayClient, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	secret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || secret == "" {
		return nil, ErrNotConfigured
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(keyID, secret).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	return &RazorpayClient{http: client, secret: secret}, nil
}

// Enabled reports true; a constructed client always carries credentials.
func (c *RazorpayClient) Enabled() bool { return true }

// CreateIntent opens a gateway order for the amount in paise.
func (c *RazorpayClient) CreateIntent(ctx context.Context, req IntentRequest) (GatewayOrder, error) {
	if req.AmountMinor <= 0 {
		return GatewayOrder{}, errors.New("razorpay: amount must be positive")
	}
	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = "INR"
	}
	body := map[string]any{
		"amount":   req.AmountMinor,
		"currency": currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}

	var out GatewayOrder
	var apiErr razorpayErrorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/orders")
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: create order: %w", err)
	}
	if resp.IsError() {
		return GatewayOrder{}, toAPIError(resp.StatusCode(), apiErr)
	}
	return out, nil
}

// FetchOrder loads a gateway order, whose receipt carries the local order id.
func (c *RazorpayClient) FetchOrder(ctx context.Context, gatewayOrderID string) (GatewayOrder, error) {
	id := strings.TrimSpace(gatewayOrderID)
	if id == "" {
		return GatewayOrder{}, errors.New("razorpay: order id is required")
	}
	var out GatewayOrder
	var apiErr razorpayErrorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get("/orders/" + url.PathEscape(id))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: fetch order: %w", err)
	}
	if resp.IsError() {
		return GatewayOrder{}, toAPIError(resp.StatusCode(), apiErr)
	}
	return out, nil
}

// VerifySignature checks the checkout callback signature with the key secret.
func (c *RazorpayClient) VerifySignature(gatewayOrderID, paymentID, signature string) bool {
	return VerifySignature(c.secret, gatewayOrderID, paymentID, signature)
}

func toAPIError(status int, body razorpayErrorBody) error {
	return &APIError{StatusCode: status, Code: body.Error.Code, Description: body.Error.Description}
}
