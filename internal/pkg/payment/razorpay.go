package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultRazorpayBaseURL = "https://api.razorpay.com/v1"

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	PlanID        string
	BaseURL       string
	Timeout       time.Duration
	// TotalCount is the number of billing cycles requested for a new plan.
	TotalCount int
}

// Razorpay drives recurring plans: CreateOrder opens a subscription and
// renewals arrive as subscription.charged webhooks.
type Razorpay struct {
	cfg    RazorpayConfig
	client *apiClient
}

func NewRazorpay(cfg RazorpayConfig) *Razorpay {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultRazorpayBaseURL
	}
	if cfg.TotalCount <= 0 {
		cfg.TotalCount = 12
	}
	keyID, secret := cfg.KeyID, cfg.KeySecret
	return &Razorpay{
		cfg: cfg,
		client: newAPIClient(ProviderRazorpay, cfg.BaseURL, cfg.Timeout, func(req *http.Request) {
			req.SetBasicAuth(keyID, secret)
		}),
	}
}

func (r *Razorpay) Name() string { return ProviderRazorpay }

func (r *Razorpay) configured() error {
	if r.cfg.KeyID == "" || r.cfg.KeySecret == "" {
		return fmt.Errorf("%w: RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET missing", ErrNotConfigured)
	}
	return nil
}

func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := r.configured(); err != nil {
		return nil, err
	}
	if r.cfg.PlanID == "" {
		return nil, fmt.Errorf("%w: RAZORPAY_PLAN_ID missing", ErrNotConfigured)
	}

	payload := map[string]any{
		"plan_id":         r.cfg.PlanID,
		"customer_notify": 1,
		"total_count":     r.cfg.TotalCount,
		"quantity":        1,
		"notes": map[string]string{
			"user_id": strconv.FormatUint(uint64(req.UserID), 10),
			"email":   req.Email,
		},
	}
	var out struct {
		ID       string `json:"id"`
		ShortURL string `json:"short_url"`
		Status   string `json:"status"`
	}
	if err := r.client.do(ctx, http.MethodPost, "/subscriptions", payload, &out, nil); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: razorpay returned empty subscription id", ErrGatewayRejected)
	}
	return &Order{
		ExternalOrderID: out.ID,
		RedirectURL:     out.ShortURL,
		KeyID:           r.cfg.KeyID,
		Amount:          req.Amount,
		Currency:        req.Currency,
	}, nil
}

type razorpayPayment struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	OrderID        string `json:"order_id"`
	InvoiceID      string `json:"invoice_id"`
	SubscriptionID string `json:"subscription_id"`
}

func razorpayState(status string) PaymentState {
	switch status {
	case "captured", "authorized":
		return PaymentPaid
	case "failed", "refunded":
		return PaymentFailed
	default:
		return PaymentPending
	}
}

// VerifyPayment checks the checkout signature locally, then fetches the payment
// to learn the captured amount.
func (r *Razorpay) VerifyPayment(ctx context.Context, req VerifyRequest) (*PaymentStatus, error) {
	if err := r.configured(); err != nil {
		return nil, err
	}
	if !VerifyRazorpaySubscriptionSignature(req.ExternalOrderID, req.PaymentID, req.Signature, r.cfg.KeySecret) {
		return nil, ErrInvalidSignature
	}

	var p razorpayPayment
	if err := r.client.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(req.PaymentID), nil, &p, nil); err != nil {
		return nil, err
	}
	return &PaymentStatus{
		ExternalOrderID: req.ExternalOrderID,
		PaymentID:       p.ID,
		Status:          razorpayState(p.Status),
		Amount:          p.Amount,
		Currency:        p.Currency,
	}, nil
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Subscription *struct {
			Entity struct {
				ID         string `json:"id"`
				Status     string `json:"status"`
				PaidCount  int    `json:"paid_count"`
				ChargeAt   int64  `json:"charge_at"`
				CurrentEnd int64  `json:"current_end"`
			} `json:"entity"`
		} `json:"subscription"`
		Payment *struct {
			Entity razorpayPayment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

func (r *Razorpay) ParseWebhook(headers Headers, body []byte) (*WebhookEvent, error) {
	if r.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: RAZORPAY_WEBHOOK_SECRET missing", ErrNotConfigured)
	}
	if !VerifyRazorpayWebhookSignature(body, headers.Get("X-Razorpay-Signature"), r.cfg.WebhookSecret) {
		return nil, ErrInvalidSignature
	}

	var raw razorpayWebhook
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode razorpay webhook: %w", err)
	}

	ev := &WebhookEvent{
		Provider: ProviderRazorpay,
		EventID:  strings.TrimSpace(headers.Get("X-Razorpay-Event-Id")),
		Type:     raw.Event,
	}
	paidCount := 0
	if s := raw.Payload.Subscription; s != nil {
		ev.ExternalRef = s.Entity.ID
		paidCount = s.Entity.PaidCount
	}
	if p := raw.Payload.Payment; p != nil {
		ev.PaymentID = p.Entity.ID
		ev.Amount = p.Entity.Amount
		ev.Currency = p.Entity.Currency
		if ev.ExternalRef == "" {
			ev.ExternalRef = p.Entity.SubscriptionID
		}
		if ev.ExternalRef == "" {
			ev.ExternalRef = p.Entity.OrderID
		}
	}

	switch raw.Event {
	case "subscription.charged":
		// The first charge of a plan pays for the subscription itself.
		if paidCount > 1 {
			ev.Kind = EventRenewalCharged
			ev.Renewal = true
		} else {
			ev.Kind = EventPaymentConfirmed
		}
	case "subscription.cancelled":
		ev.Kind = EventProviderCancelled
	case "subscription.completed", "subscription.halted":
		ev.Kind = EventProviderCompleted
	case "subscription.paused":
		ev.Kind = EventProviderPaused
	case "subscription.resumed":
		ev.Kind = EventProviderResumed
	case "subscription.pending":
		ev.Kind = EventPaymentFailed
		ev.Renewal = true
	case "payment.failed":
		ev.Kind = EventPaymentFailed
		ev.Renewal = paidCount > 0
	default:
		ev.Kind = EventIgnored
	}

	if ev.Kind != EventIgnored && ev.ExternalRef == "" {
		return nil, fmt.Errorf("razorpay webhook %s carries no subscription reference", raw.Event)
	}
	return ev, nil
}

func (r *Razorpay) Refund(ctx context.Context, req RefundRequest) error {
	if err := r.configured(); err != nil {
		return err
	}
	if req.PaymentID == "" {
		return fmt.Errorf("%w: payment id required for refund", ErrGatewayRejected)
	}
	payload := map[string]any{
		"notes": map[string]string{"reason": req.Note},
	}
	if req.Amount > 0 {
		payload["amount"] = req.Amount
	}
	return r.client.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(req.PaymentID)+"/refund", payload, nil, nil)
}

func (r *Razorpay) CancelSubscription(ctx context.Context, externalRef string) error {
	if err := r.configured(); err != nil {
		return err
	}
	if externalRef == "" {
		return nil
	}
	payload := map[string]any{"cancel_at_cycle_end": 0}
	return r.client.do(ctx, http.MethodPost, "/subscriptions/"+url.PathEscape(externalRef)+"/cancel", payload, nil, nil)
}
