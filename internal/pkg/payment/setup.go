package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/Marketly/internal/pkg/env"
)

// NewGatewayFromEnv builds the gateway selected by PAYMENT_PROVIDER.
func NewGatewayFromEnv() (Gateway, error) {
	timeout := time.Duration(env.GetEnvInt("PAYMENT_HTTP_TIMEOUT_SECONDS", 10)) * time.Second
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")

	switch provider := strings.ToLower(strings.TrimSpace(env.GetEnv("PAYMENT_PROVIDER", ProviderRazorpay))); provider {
	case ProviderRazorpay:
		return NewRazorpay(RazorpayConfig{
			KeyID:         strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_ID", "")),
			KeySecret:     strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_SECRET", "")),
			WebhookSecret: strings.TrimSpace(env.GetEnv("RAZORPAY_WEBHOOK_SECRET", "")),
			PlanID:        strings.TrimSpace(env.GetEnv("RAZORPAY_PLAN_ID", "")),
			BaseURL:       strings.TrimSpace(env.GetEnv("RAZORPAY_API_BASE_URL", defaultRazorpayBaseURL)),
			Timeout:       timeout,
			TotalCount:    env.GetEnvInt("RAZORPAY_TOTAL_COUNT", 12),
		}), nil
	case ProviderCashfree:
		cfg := CashfreeConfig{
			AppID:     strings.TrimSpace(env.GetEnv("CASHFREE_APP_ID", "")),
			SecretKey: strings.TrimSpace(env.GetEnv("CASHFREE_SECRET_KEY", "")),
			BaseURL:   strings.TrimSpace(env.GetEnv("CASHFREE_API_BASE_URL", defaultCashfreeBaseURL)),
			Timeout:   timeout,
		}
		if base != "" {
			cfg.ReturnURL = base + "/subscription/verify"
			cfg.NotifyURL = base + "/api/subscription/webhook"
		}
		return NewCashfree(cfg), nil
	default:
		return nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", provider)
	}
}
