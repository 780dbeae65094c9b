package otp

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Marketly/internal/pkg/cache"
	"github.com/ManuelReschke/Marketly/internal/pkg/env"
)

// NewRegistryFromEnv selects the store via OTP_STORE (memory|redis) and the
// lifetime via OTP_TTL_MINUTES.
func NewRegistryFromEnv() *Registry {
	ttl := time.Duration(env.GetEnvInt("OTP_TTL_MINUTES", 5)) * time.Minute

	var store Store
	switch strings.ToLower(strings.TrimSpace(env.GetEnv("OTP_STORE", "memory"))) {
	case "redis":
		store = NewRedisStore(cache.GetClient())
		log.Info("[OTP] Using redis store")
	default:
		mem := NewMemoryStore()
		mem.StartJanitor(time.Minute)
		store = mem
		log.Info("[OTP] Using in-memory store")
	}
	return NewRegistry(store, ttl)
}
