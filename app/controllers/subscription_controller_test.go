package controllers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/internal/pkg/apperror"
	"github.com/ManuelReschke/Marketly/internal/pkg/payment"
	"github.com/ManuelReschke/Marketly/internal/pkg/subscription"
)

type stubSubscriptions struct {
	err        error
	gotUser    uint
	gotVerify  payment.VerifyRequest
	gotHeader  string
	gotBody    []byte
	status     *subscription.Status
	createdFor uint
}

func (s *stubSubscriptions) Create(_ context.Context, userID uint) (*payment.Order, error) {
	s.createdFor = userID
	if s.err != nil {
		return nil, s.err
	}
	return &payment.Order{ExternalOrderID: "order_1", Amount: 9900, Currency: "INR"}, nil
}

func (s *stubSubscriptions) Verify(_ context.Context, userID uint, req payment.VerifyRequest) (*subscription.Status, error) {
	s.gotUser, s.gotVerify = userID, req
	return s.status, s.err
}

func (s *stubSubscriptions) Cancel(_ context.Context, userID uint) (*subscription.Status, error) {
	s.gotUser = userID
	return s.status, s.err
}

func (s *stubSubscriptions) Check(_ context.Context, userID uint) (*subscription.Status, error) {
	s.gotUser = userID
	return s.status, s.err
}

func (s *stubSubscriptions) HandleWebhook(_ context.Context, headers payment.Headers, body []byte) error {
	s.gotHeader = headers.Get("X-Razorpay-Signature")
	s.gotBody = body
	return s.err
}

func newSubscriptionApp(svc *stubSubscriptions, txs *memTransactions) *fiber.App {
	ctrl := NewSubscriptionController(svc, txs)
	app := fiber.New()
	app.Post("/webhook", ctrl.HandleWebhook)
	app.Use(asUser(testUser(7, models.ROLE_USER)))
	app.Post("/create", ctrl.HandleCreate)
	app.Post("/verify", ctrl.HandleVerify)
	app.Post("/cancel", ctrl.HandleCancel)
	app.Get("/check", ctrl.HandleCheck)
	app.Get("/transactions", ctrl.HandleTransactions)
	return app
}

func TestSubscriptionCreate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusCreated},
		{"gateway down", fmt.Errorf("create order: %w", payment.ErrGatewayUnavailable), http.StatusServiceUnavailable},
		{"gateway rejected", payment.ErrGatewayRejected, http.StatusBadGateway},
		{"not configured", payment.ErrNotConfigured, http.StatusServiceUnavailable},
		{"already active", apperror.StateConflict("subscription already active"), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubSubscriptions{err: tt.err}
			resp := doJSON(t, newSubscriptionApp(svc, &memTransactions{}), http.MethodPost, "/create", nil)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, uint(7), svc.createdFor)
		})
	}
}

func TestSubscriptionVerify(t *testing.T) {
	svc := &stubSubscriptions{status: &subscription.Status{SubscriptionStatus: models.SubscriptionActive, HasActiveSubscription: true, CanList: true}}
	app := newSubscriptionApp(svc, &memTransactions{})

	resp := doJSON(t, app, http.MethodPost, "/verify", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/verify", map[string]string{
		"external_order_id": "order_1",
		"payment_id":        "pay_1",
		"signature":         "sig",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pay_1", svc.gotVerify.PaymentID)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["has_active_subscription"])
	assert.Equal(t, true, body["can_list"])

	svc.err = payment.ErrInvalidSignature
	resp = doJSON(t, app, http.MethodPost, "/verify", map[string]string{"external_order_id": "order_1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubscriptionCheckAndCancel(t *testing.T) {
	svc := &stubSubscriptions{status: &subscription.Status{SubscriptionStatus: models.SubscriptionCancelled}}
	app := newSubscriptionApp(svc, &memTransactions{})

	resp := doJSON(t, app, http.MethodGet, "/check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, models.SubscriptionCancelled, body["subscription_status"])
	assert.Contains(t, body, "subscription_end_date")

	resp = doJSON(t, app, http.MethodPost, "/cancel", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint(7), svc.gotUser)
}

func TestSubscriptionTransactions(t *testing.T) {
	txs := &memTransactions{rows: []models.Transaction{
		{ID: 1, UserID: 7, Amount: 9900, Status: models.TransactionStatusSuccess},
		{ID: 2, UserID: 8, Amount: 9900, Status: models.TransactionStatusSuccess},
	}}
	resp := doJSON(t, newSubscriptionApp(&stubSubscriptions{}, txs), http.MethodGet, "/transactions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody(t, resp)["transactions"], 1)
}

func TestSubscriptionWebhook(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"processed", nil, http.StatusOK},
		{"unknown reference acknowledged", apperror.StateConflict("no user for ref"), http.StatusOK},
		{"bad signature", payment.ErrInvalidSignature, http.StatusUnauthorized},
		{"storage failure retried", fmt.Errorf("record webhook event: %w", assert.AnError), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubSubscriptions{err: tt.err}
			app := newSubscriptionApp(svc, &memTransactions{})

			req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{"event":"payment.captured"}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Razorpay-Signature", "abc123")
			resp, err := app.Test(req, -1)
			require.NoError(t, err)

			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, "abc123", svc.gotHeader)
			assert.JSONEq(t, `{"event":"payment.captured"}`, string(svc.gotBody))
		})
	}
}
