package controllers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/internal/pkg/apperror"
	"github.com/ManuelReschke/Marketly/internal/pkg/payment"
)

var validate = validator.New()

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// respondError maps service errors to HTTP responses. Unknown errors are
// logged and hidden behind a generic 500.
func respondError(c *fiber.Ctx, err error) error {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return jsonError(c, fiber.StatusBadRequest, "validation_error", validationMessage(verrs))
	case errors.Is(err, apperror.ErrValidation):
		return jsonError(c, fiber.StatusBadRequest, "validation_error", apperror.Message(err))
	case errors.Is(err, apperror.ErrUnauthorized):
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", apperror.Message(err))
	case errors.Is(err, apperror.ErrForbidden):
		return jsonError(c, fiber.StatusForbidden, "forbidden", apperror.Message(err))
	case errors.Is(err, apperror.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", apperror.Message(err))
	case errors.Is(err, apperror.ErrConflict), errors.Is(err, apperror.ErrStateConflict):
		return jsonError(c, fiber.StatusConflict, "conflict", apperror.Message(err))
	case errors.Is(err, payment.ErrInvalidSignature):
		return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "Payment signature could not be verified")
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return jsonError(c, fiber.StatusServiceUnavailable, "gateway_unavailable", "Payment provider is unavailable, please try again")
	case errors.Is(err, payment.ErrGatewayRejected):
		return jsonError(c, fiber.StatusBadGateway, "gateway_rejected", "Payment provider rejected the request")
	case errors.Is(err, payment.ErrNotConfigured):
		return jsonError(c, fiber.StatusServiceUnavailable, "payments_disabled", "Payments are not configured")
	}
	log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Something went wrong")
}

// validationMessage turns validator errors into one readable sentence.
func validationMessage(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "email":
			parts = append(parts, field+" must be a valid email")
		case "min":
			parts = append(parts, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "len":
			parts = append(parts, fmt.Sprintf("%s must have length %s", field, fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of %s", field, fe.Param()))
		default:
			parts = append(parts, field+" is invalid")
		}
	}
	return strings.Join(parts, ", ")
}

func bindJSON(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperror.Validation("invalid request body")
	}
	return validate.Struct(out)
}

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, apperror.Validation("invalid id")
	}
	return uint(id), nil
}
