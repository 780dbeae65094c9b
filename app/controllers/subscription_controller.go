package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/app/repository"
	"github.com/ManuelReschke/Marketly/internal/pkg/apperror"
	"github.com/ManuelReschke/Marketly/internal/pkg/payment"
	"github.com/ManuelReschke/Marketly/internal/pkg/subscription"
	"github.com/ManuelReschke/Marketly/internal/pkg/usercontext"
)

const transactionHistoryLimit = 50

// SubscriptionService is the part of subscription.Service the API needs.
type SubscriptionService interface {
	Create(ctx context.Context, userID uint) (*payment.Order, error)
	Verify(ctx context.Context, userID uint, req payment.VerifyRequest) (*subscription.Status, error)
	Cancel(ctx context.Context, userID uint) (*subscription.Status, error)
	Check(ctx context.Context, userID uint) (*subscription.Status, error)
	HandleWebhook(ctx context.Context, headers payment.Headers, body []byte) error
}

type SubscriptionController struct {
	service      SubscriptionService
	transactions repository.TransactionRepository
}

func NewSubscriptionController(service SubscriptionService, transactions repository.TransactionRepository) *SubscriptionController {
	return &SubscriptionController{service: service, transactions: transactions}
}

type verifyRequest struct {
	ExternalOrderID string `json:"external_order_id" validate:"required"`
	PaymentID       string `json:"payment_id"`
	Signature       string `json:"signature"`
}

// fiberHeaders exposes request headers to the payment package.
type fiberHeaders struct {
	c *fiber.Ctx
}

func (h fiberHeaders) Get(key string) string {
	return h.c.Get(key)
}

// HandleCreate opens a checkout for the current user.
func (sc *SubscriptionController) HandleCreate(c *fiber.Ctx) error {
	order, err := sc.service.Create(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"order": order})
}

// HandleVerify confirms the checkout redirect parameters with the provider.
func (sc *SubscriptionController) HandleVerify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	status, err := sc.service.Verify(c.UserContext(), usercontext.GetUserID(c), payment.VerifyRequest{
		ExternalOrderID: req.ExternalOrderID,
		PaymentID:       req.PaymentID,
		Signature:       req.Signature,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

func (sc *SubscriptionController) HandleCheck(c *fiber.Ctx) error {
	status, err := sc.service.Check(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

func (sc *SubscriptionController) HandleCancel(c *fiber.Ctx) error {
	status, err := sc.service.Cancel(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

func (sc *SubscriptionController) HandleTransactions(c *fiber.Ctx) error {
	txs, err := sc.transactions.ListByUser(usercontext.GetUserID(c), transactionHistoryLimit)
	if err != nil {
		return respondError(c, err)
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	return c.JSON(fiber.Map{"transactions": txs})
}

// HandleWebhook receives provider notifications. Deliveries for unknown or
// already settled subscriptions are acknowledged so the provider stops
// retrying; transient failures return 500 so it retries.
func (sc *SubscriptionController) HandleWebhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	err := sc.service.HandleWebhook(c.UserContext(), fiberHeaders{c: c}, body)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"received": true})
	case errors.Is(err, payment.ErrInvalidSignature):
		log.Warnf("[Webhook] Rejected delivery from %s: %v", c.IP(), err)
		return jsonError(c, fiber.StatusUnauthorized, "invalid_signature", "Invalid webhook signature")
	case errors.Is(err, apperror.ErrStateConflict), errors.Is(err, apperror.ErrNotFound):
		log.Warnf("[Webhook] Acknowledged without effect: %v", err)
		return c.JSON(fiber.Map{"received": true})
	case errors.Is(err, payment.ErrNotConfigured):
		return jsonError(c, fiber.StatusServiceUnavailable, "payments_disabled", "Payments are not configured")
	}
	log.Errorf("[Webhook] Processing failed: %v", err)
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Webhook processing failed")
}
