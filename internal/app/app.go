package app

import (
	"covergen/internal/handlers"
	"covergen/internal/store"
	u "covergen/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"
)

// SetupApp creates and configures a new Fiber app instance
func SetupApp(cfg u.Config, redis *redis.Client, images *store.Store) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}

			u.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

			return c.Status(code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    code,
					"message": msg,
				},
			})
		},
	})

	RegisterMiddleware(app, cfg)
	RegisterRoutes(app, cfg, redis, images)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, cfg u.Config, redis *redis.Client, images *store.Store) {
	v1 := app.Group("/v1")

	// One shared service instance so both playlist endpoints share the same
	// renderer pool and image store.
	svc := handlers.NewCoverService(cfg, redis, images)

	v1.Post("/playlist/monthly", svc.HandleMonthly)
	v1.Post("/playlist/weekly", svc.HandleWeekly)
	v1.Get("/covers/:filename", svc.HandleCoverDownload)
	v1.Get("/render/stats", svc.HandleRenderStats)

	v1.Get("/monitor", monitor.New())
}
