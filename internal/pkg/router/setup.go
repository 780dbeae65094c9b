package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/Marketly/app/controllers"
	"github.com/ManuelReschke/Marketly/app/repository"
	"github.com/ManuelReschke/Marketly/internal/pkg/imagestore"
	"github.com/ManuelReschke/Marketly/internal/pkg/mail"
	"github.com/ManuelReschke/Marketly/internal/pkg/otp"
	"github.com/ManuelReschke/Marketly/internal/pkg/sms"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps carries the services the route handlers are built from.
type Deps struct {
	Repos         *repository.Repositories
	Subscriptions controllers.SubscriptionService
	ListingGate   controllers.ListingGate
	OTP           *otp.Registry
	SMS           sms.Sender
	Mail          mail.Sender
	Images        imagestore.Store
	Queue         controllers.QueueInspector
	Captcha       controllers.CaptchaVerifier
	// LimiterStorage backs the auth rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	JWTSecret      string
	PublicURL      string
	SecureCookie   bool
}

func InstallRouter(app *fiber.App, deps Deps) {
	// HttpRouter installs the user context middleware the API routes rely on.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
