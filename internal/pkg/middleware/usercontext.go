package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/app/repository"
	"github.com/ManuelReschke/Marketly/internal/pkg/security"
	"github.com/ManuelReschke/Marketly/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the auth-token cookie (or a Bearer header)
// to a user and stores it on the request. Requests without a valid token pass
// through anonymously; RequireAPIAuth decides whether that is allowed.
func UserContextMiddleware(users repository.UserRepository, secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractToken(c)
		if token == "" {
			return c.Next()
		}

		claims, err := security.VerifyAuthToken(token, secret)
		if err != nil {
			log.Debugf("[Auth] Rejected token: %v", err)
			return c.Next()
		}

		// Reload so role changes and deletions apply immediately
		user, err := users.GetByID(claims.UserID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Errorf("[Auth] Failed to load user %d: %v", claims.UserID, err)
			}
			return c.Next()
		}

		usercontext.Set(c, user)
		return c.Next()
	}
}

func extractToken(c *fiber.Ctx) string {
	if cookie := c.Cookies(security.AuthCookieName); cookie != "" {
		return cookie
	}
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
