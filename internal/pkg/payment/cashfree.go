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

	"github.com/google/uuid"
)

const (
	defaultCashfreeBaseURL = "https://sandbox.cashfree.com/pg"
	cashfreeAPIVersion     = "2023-08-01"
)

type CashfreeConfig struct {
	AppID     string
	SecretKey string
	BaseURL   string
	ReturnURL string
	NotifyURL string
	Timeout   time.Duration
}

// Cashfree sells one-off orders. Each paid order extends the subscription by
// one period; there is no provider-side recurring plan to cancel.
type Cashfree struct {
	cfg    CashfreeConfig
	client *apiClient
	newID  func() string
}

func NewCashfree(cfg CashfreeConfig) *Cashfree {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCashfreeBaseURL
	}
	appID, secret := cfg.AppID, cfg.SecretKey
	return &Cashfree{
		cfg: cfg,
		client: newAPIClient(ProviderCashfree, cfg.BaseURL, cfg.Timeout, func(req *http.Request) {
			req.Header.Set("x-client-id", appID)
			req.Header.Set("x-client-secret", secret)
			req.Header.Set("x-api-version", cashfreeAPIVersion)
		}),
		newID: func() string { return uuid.NewString() },
	}
}

func (c *Cashfree) Name() string { return ProviderCashfree }

func (c *Cashfree) configured() error {
	if c.cfg.AppID == "" || c.cfg.SecretKey == "" {
		return fmt.Errorf("%w: CASHFREE_APP_ID/CASHFREE_SECRET_KEY missing", ErrNotConfigured)
	}
	return nil
}

func (c *Cashfree) idempotency() map[string]string {
	return map[string]string{"x-idempotency-key": c.newID()}
}

func (c *Cashfree) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	orderID := "order_" + strings.ReplaceAll(c.newID(), "-", "")

	meta := map[string]string{}
	if c.cfg.ReturnURL != "" {
		meta["return_url"] = c.cfg.ReturnURL + "?order_id={order_id}"
	}
	if c.cfg.NotifyURL != "" {
		meta["notify_url"] = c.cfg.NotifyURL
	}
	payload := map[string]any{
		"order_id":       orderID,
		"order_amount":   json.Number(formatMajor(req.Amount)),
		"order_currency": req.Currency,
		"customer_details": map[string]string{
			"customer_id":    "user_" + strconv.FormatUint(uint64(req.UserID), 10),
			"customer_name":  req.Name,
			"customer_email": req.Email,
			"customer_phone": req.Phone,
		},
		"order_meta": meta,
		"order_tags": map[string]string{"subscription_type": "monthly"},
	}

	var out struct {
		CfOrderID        json.Number `json:"cf_order_id"`
		OrderID          string      `json:"order_id"`
		PaymentSessionID string      `json:"payment_session_id"`
		PaymentLink      string      `json:"payment_link"`
	}
	if err := c.client.do(ctx, http.MethodPost, "/orders", payload, &out, c.idempotency()); err != nil {
		return nil, err
	}
	if out.OrderID == "" {
		out.OrderID = orderID
	}
	return &Order{
		ExternalOrderID: out.OrderID,
		RedirectURL:     out.PaymentLink,
		SessionID:       out.PaymentSessionID,
		Amount:          req.Amount,
		Currency:        req.Currency,
	}, nil
}

type cashfreeOrder struct {
	OrderID       string      `json:"order_id"`
	OrderAmount   json.Number `json:"order_amount"`
	OrderCurrency string      `json:"order_currency"`
	OrderStatus   string      `json:"order_status"`
}

type cashfreePayment struct {
	CfPaymentID   json.Number `json:"cf_payment_id"`
	PaymentStatus string      `json:"payment_status"`
	PaymentAmount json.Number `json:"payment_amount"`
}

// VerifyPayment asks Cashfree for the order state. The redirect carries no
// signature, so the server-side lookup is the only source of truth.
func (c *Cashfree) VerifyPayment(ctx context.Context, req VerifyRequest) (*PaymentStatus, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	if req.ExternalOrderID == "" {
		return nil, fmt.Errorf("%w: order id required", ErrGatewayRejected)
	}

	path := "/orders/" + url.PathEscape(req.ExternalOrderID)
	var order cashfreeOrder
	if err := c.client.do(ctx, http.MethodGet, path, nil, &order, nil); err != nil {
		return nil, err
	}
	amount, err := parseMajor(order.OrderAmount.String())
	if err != nil {
		return nil, err
	}
	status := &PaymentStatus{
		ExternalOrderID: req.ExternalOrderID,
		Status:          PaymentPending,
		Amount:          amount,
		Currency:        order.OrderCurrency,
	}
	switch order.OrderStatus {
	case "PAID":
		status.Status = PaymentPaid
	case "EXPIRED", "TERMINATED":
		status.Status = PaymentFailed
		return status, nil
	default:
		return status, nil
	}

	var payments []cashfreePayment
	if err := c.client.do(ctx, http.MethodGet, path+"/payments", nil, &payments, nil); err != nil {
		return nil, err
	}
	for _, p := range payments {
		if p.PaymentStatus == "SUCCESS" {
			status.PaymentID = p.CfPaymentID.String()
			break
		}
	}
	return status, nil
}

type cashfreeWebhook struct {
	Type      string `json:"type"`
	EventTime string `json:"event_time"`
	Data      struct {
		Order struct {
			OrderID       string          `json:"order_id"`
			OrderAmount   json.RawMessage `json:"order_amount"`
			OrderCurrency string          `json:"order_currency"`
		} `json:"order"`
		Payment struct {
			CfPaymentID   json.Number `json:"cf_payment_id"`
			PaymentStatus string      `json:"payment_status"`
		} `json:"payment"`
	} `json:"data"`
}

func (c *Cashfree) ParseWebhook(headers Headers, body []byte) (*WebhookEvent, error) {
	if c.cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: CASHFREE_SECRET_KEY missing", ErrNotConfigured)
	}

	var raw cashfreeWebhook
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, ErrInvalidSignature
	}
	order := raw.Data.Order
	amountText := strings.Trim(strings.TrimSpace(string(order.OrderAmount)), `"`)
	if !VerifyCashfreeSignature(order.OrderID, amountText, order.OrderCurrency, headers.Get("X-Webhook-Signature"), c.cfg.SecretKey) {
		return nil, ErrInvalidSignature
	}

	amount, err := parseMajor(amountText)
	if err != nil {
		return nil, err
	}
	paymentID := raw.Data.Payment.CfPaymentID.String()
	ev := &WebhookEvent{
		Provider:    ProviderCashfree,
		EventID:     strings.Join([]string{order.OrderID, raw.Type, paymentID}, ":"),
		Type:        raw.Type,
		ExternalRef: order.OrderID,
		PaymentID:   paymentID,
		Amount:      amount,
		Currency:    order.OrderCurrency,
	}
	switch raw.Type {
	case "PAYMENT_SUCCESS_WEBHOOK":
		ev.Kind = EventPaymentConfirmed
	case "PAYMENT_FAILED_WEBHOOK", "PAYMENT_USER_DROPPED_WEBHOOK":
		ev.Kind = EventPaymentFailed
	default:
		ev.Kind = EventIgnored
	}
	return ev, nil
}

func (c *Cashfree) Refund(ctx context.Context, req RefundRequest) error {
	if err := c.configured(); err != nil {
		return err
	}
	if req.ExternalOrderID == "" {
		return fmt.Errorf("%w: order id required for refund", ErrGatewayRejected)
	}
	payload := map[string]any{
		"refund_amount": json.Number(formatMajor(req.Amount)),
		"refund_id":     "refund_" + strings.ReplaceAll(c.newID(), "-", ""),
		"refund_note":   req.Note,
	}
	return c.client.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(req.ExternalOrderID)+"/refunds", payload, nil, c.idempotency())
}

// CancelSubscription is a no-op: Cashfree orders do not recur.
func (c *Cashfree) CancelSubscription(context.Context, string) error {
	return nil
}
