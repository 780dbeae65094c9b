package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/Marketly/app/controllers"
	"github.com/ManuelReschke/Marketly/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Deps
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware(h.deps.Repos.User, h.deps.JWTSecret))

	seo := controllers.NewSEOController(h.deps.Repos.Product, h.deps.Repos.Category, h.deps.PublicURL)
	app.Get("/sitemap.xml", seo.HandleSitemap)
	app.Get("/robots.txt", seo.HandleRobots)
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter(deps Deps) *HttpRouter {
	return &HttpRouter{deps: deps}
}
