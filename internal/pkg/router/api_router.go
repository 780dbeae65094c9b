package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/Marketly/app/controllers"
	"github.com/ManuelReschke/Marketly/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	d := h.deps
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	authLimit := newAuthLimiter(d.LimiterStorage)
	auth := controllers.NewAuthController(d.Repos.User, d.OTP, d.SMS, d.Mail, controllers.AuthConfig{
		JWTSecret:    d.JWTSecret,
		PublicURL:    d.PublicURL,
		SecureCookie: d.SecureCookie,
		Captcha:      d.Captcha,
	})
	authGroup := api.Group("/auth")
	authGroup.Post("/send-otp", authLimit, auth.HandleSendOTP)
	authGroup.Post("/signup", authLimit, auth.HandleSignup)
	authGroup.Post("/login", authLimit, auth.HandleLogin)
	authGroup.Post("/logout", auth.HandleLogout)
	authGroup.Get("/me", middleware.RequireAPIAuth, auth.HandleMe)
	authGroup.Post("/forgot-password", authLimit, auth.HandleForgotPassword)
	authGroup.Post("/reset-password", authLimit, auth.HandleResetPassword)

	categories := controllers.NewCategoryController(d.Repos.Category)
	api.Get("/categories", categories.HandleTree)
	api.Post("/categories", middleware.RequireAdmin, categories.HandleCreate)

	products := controllers.NewProductController(d.Repos, d.ListingGate)
	api.Get("/products", products.HandleList)
	api.Post("/products", middleware.RequireAPIAuth, products.HandleCreate)
	api.Get("/products/:id", products.HandleGet)
	api.Post("/products/:id/contact", middleware.RequireAPIAuth, products.HandleContact)
	api.Put("/products/:id", middleware.RequireAPIAuth, products.HandleUpdate)
	api.Patch("/products/:id/status", middleware.RequireAPIAuth, products.HandleUpdateStatus)
	api.Delete("/products/:id", middleware.RequireAPIAuth, products.HandleDelete)
	api.Get("/my/products", middleware.RequireAPIAuth, products.HandleMyProducts)

	uploads := controllers.NewUploadController(d.Images, d.PublicURL)
	api.Post("/uploads/images", middleware.RequireAPIAuth, uploads.HandleUploadImage)

	subs := controllers.NewSubscriptionController(d.Subscriptions, d.Repos.Transaction)
	subGroup := api.Group("/subscription")
	// Provider callbacks carry no session; the signature is checked instead.
	subGroup.Post("/webhook", subs.HandleWebhook)
	subGroup.Post("/create", middleware.RequireAPIAuth, subs.HandleCreate)
	subGroup.Post("/verify", middleware.RequireAPIAuth, subs.HandleVerify)
	subGroup.Post("/cancel", middleware.RequireAPIAuth, subs.HandleCancel)
	subGroup.Get("/check", middleware.RequireAPIAuth, subs.HandleCheck)
	subGroup.Get("/transactions", middleware.RequireAPIAuth, subs.HandleTransactions)

	admin := controllers.NewAdminController(d.Repos, d.Queue)
	adminGroup := api.Group("/admin", middleware.RequireAdmin)
	adminGroup.Get("/stats", admin.HandleStats)
	adminGroup.Get("/stats/daily", admin.HandleDailyStats)
	adminGroup.Get("/users", admin.HandleUsers)
	adminGroup.Patch("/users/:id/role", admin.HandleUpdateRole)
	adminGroup.Get("/products", admin.HandleProducts)
	adminGroup.Patch("/products/:id/status", admin.HandleModerateProduct)
	adminGroup.Get("/queue", admin.HandleQueueStats)
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}
