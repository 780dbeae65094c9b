package subscription

import (
	"strings"
	"time"

	"github.com/ManuelReschke/Marketly/internal/pkg/env"
)

// Listing modes. In free mode nobody needs a subscription to list.
const (
	ModeFree = "free"
	ModePaid = "paid"
)

type Config struct {
	Mode         string
	Provider     string
	Price        int64
	Currency     string
	PeriodMonths int
	Grace        time.Duration
	ReminderLead time.Duration
}

func DefaultConfig() Config {
	return Config{
		Mode:         ModePaid,
		Price:        9900,
		Currency:     "INR",
		PeriodMonths: 1,
		Grace:        3 * 24 * time.Hour,
		ReminderLead: 3 * 24 * time.Hour,
	}
}

// ConfigFromEnv reads LISTING_MODE and the SUBSCRIPTION_* keys.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if strings.EqualFold(strings.TrimSpace(env.GetEnv("LISTING_MODE", ModePaid)), ModeFree) {
		cfg.Mode = ModeFree
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(env.GetEnv("PAYMENT_PROVIDER", "razorpay")))
	cfg.Price = int64(env.GetEnvInt("SUBSCRIPTION_PRICE_PAISE", int(cfg.Price)))
	cfg.Currency = strings.ToUpper(strings.TrimSpace(env.GetEnv("SUBSCRIPTION_CURRENCY", cfg.Currency)))
	if months := env.GetEnvInt("SUBSCRIPTION_PERIOD_MONTHS", cfg.PeriodMonths); months > 0 {
		cfg.PeriodMonths = months
	}
	if days := env.GetEnvInt("SUBSCRIPTION_GRACE_DAYS", 3); days >= 0 {
		cfg.Grace = time.Duration(days) * 24 * time.Hour
	}
	if days := env.GetEnvInt("SUBSCRIPTION_REMINDER_DAYS", 3); days > 0 {
		cfg.ReminderLead = time.Duration(days) * 24 * time.Hour
	}
	return cfg
}

// PeriodEnd returns the end of a period starting at from.
func (c Config) PeriodEnd(from time.Time) time.Time {
	months := c.PeriodMonths
	if months <= 0 {
		months = 1
	}
	return from.AddDate(0, months, 0)
}
