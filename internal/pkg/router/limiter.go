package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/Marketly/internal/pkg/cache"
	"github.com/ManuelReschke/Marketly/internal/pkg/env"
)

const (
	defaultAuthRateLimit = 10
	authRateWindow       = time.Minute
)

// NewLimiterStorage returns Redis storage for rate limit counters, pointed at
// the same server as the cache but on database 1.
func NewLimiterStorage() fiber.Storage {
	// Get Redis client configuration from existing cache setup
	cacheClient := cache.GetClient()
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnvInt("CACHE_PORT", 6379)
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		// Prefer password from the underlying client if present
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1, // cache uses DB 0
		Reset:    false,
	})
}

// newAuthLimiter throttles OTP, signup, login and password endpoints per IP.
func newAuthLimiter(storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        env.GetEnvInt("AUTH_RATE_LIMIT", defaultAuthRateLimit),
		Expiration: authRateWindow,
		Storage:    storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "auth:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many attempts, please try again later",
			})
		},
	})
}
