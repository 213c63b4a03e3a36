// Package payments integrates the storefront with its payment gateway.
package payments

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by gateways whose credentials are absent.
var ErrNotConfigured = errors.New("payments: gateway not configured")

// IntentRequest describes a gateway order to open for a local order.
type IntentRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// GatewayOrder mirrors the order entity returned by the gateway. Its shape is returned
// verbatim to clients so the checkout widget can be opened with it.
type GatewayOrder struct {
	ID         string            `json:"id"`
	Entity     string            `json:"entity"`
	Amount     int64             `json:"amount"`
	AmountPaid int64             `json:"amount_paid"`
	AmountDue  int64             `json:"amount_due"`
	Currency   string            `json:"currency"`
	Receipt    string            `json:"receipt"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	Notes      map[string]string `json:"notes,omitempty"`
	CreatedAt  int64             `json:"created_at"`
}

// Gateway is the payment provider used for online checkout.
type Gateway interface {
	Enabled() bool
	CreateIntent(ctx context.Context, req IntentRequest) (GatewayOrder, error)
	FetchOrder(ctx context.Context, gatewayOrderID string) (GatewayOrder, error)
	VerifySignature(gatewayOrderID, paymentID, signature string) bool
}

// Disabled is the gateway used when no credentials are configured.
type Disabled struct{}

var _ Gateway = Disabled{}

func (Disabled) Enabled() bool { return false }

func (Disabled) CreateIntent(context.Context, IntentRequest) (GatewayOrder, error) {
	return GatewayOrder{}, ErrNotConfigured
}

func (Disabled) FetchOrder(context.Context, string) (GatewayOrder, error) {
	return GatewayOrder{}, ErrNotConfigured
}

func (Disabled) VerifySignature(string, string, string) bool { return false }
