// Package payment talks to the hosted payment providers. Exactly one provider
// is configured per deployment and callers only see the Gateway interface.
package payment

import (
	"context"
	"errors"
)

const (
	ProviderRazorpay = "razorpay"
	ProviderCashfree = "cashfree"
)

var (
	// ErrGatewayUnavailable covers network failures, timeouts, 5xx and 429.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected is returned when the provider refuses a request (4xx).
	ErrGatewayRejected = errors.New("payment gateway rejected request")
	// ErrInvalidSignature means a webhook or redirect payload failed HMAC checks.
	ErrInvalidSignature = errors.New("invalid payment signature")
	// ErrNotConfigured is returned when credentials are missing.
	ErrNotConfigured = errors.New("payment gateway not configured")
)

// EventKind is the provider-neutral meaning of a webhook delivery.
type EventKind string

const (
	EventPaymentConfirmed  EventKind = "payment_confirmed"
	EventRenewalCharged    EventKind = "renewal_charged"
	EventPaymentFailed     EventKind = "payment_failed"
	EventProviderCancelled EventKind = "provider_cancelled"
	EventProviderCompleted EventKind = "provider_completed"
	EventProviderPaused    EventKind = "provider_paused"
	EventProviderResumed   EventKind = "provider_resumed"
	EventIgnored           EventKind = "ignored"
)

// PaymentState is the outcome reported by VerifyPayment.
type PaymentState string

const (
	PaymentPaid    PaymentState = "paid"
	PaymentFailed  PaymentState = "failed"
	PaymentPending PaymentState = "pending"
)

// Headers is satisfied by http.Header and by small adapters around framework
// request contexts.
type Headers interface {
	Get(key string) string
}

// OrderRequest starts a checkout. Amount is in minor units (paise).
type OrderRequest struct {
	UserID   uint
	Name     string
	Email    string
	Phone    string
	Amount   int64
	Currency string
}

// Order is what the client needs to open the provider checkout.
type Order struct {
	ExternalOrderID string `json:"external_order_id"`
	RedirectURL     string `json:"redirect_url,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	KeyID           string `json:"key_id,omitempty"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// VerifyRequest carries the redirect parameters returned by the checkout.
type VerifyRequest struct {
	ExternalOrderID string
	PaymentID       string
	Signature       string
}

type PaymentStatus struct {
	ExternalOrderID string
	PaymentID       string
	Status          PaymentState
	Amount          int64
	Currency        string
}

// WebhookEvent is a verified and normalized provider notification.
type WebhookEvent struct {
	Provider    string
	EventID     string
	Type        string
	Kind        EventKind
	ExternalRef string
	PaymentID   string
	Amount      int64
	Currency    string
	// Renewal is set for charges and failures on an already running plan.
	Renewal bool
}

type RefundRequest struct {
	ExternalOrderID string
	PaymentID       string
	Amount          int64
	Note            string
}

// Gateway is implemented once per provider.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	VerifyPayment(ctx context.Context, req VerifyRequest) (*PaymentStatus, error)
	// ParseWebhook checks the signature before looking at the payload.
	ParseWebhook(headers Headers, body []byte) (*WebhookEvent, error)
	Refund(ctx context.Context, req RefundRequest) error
	CancelSubscription(ctx context.Context, externalRef string) error
}
