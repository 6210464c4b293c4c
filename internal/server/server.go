// Package server assembles the Fiber application.
package server

import (
	"errors"
	"time"

	"ecofinds/internal/handlers"
	"ecofinds/internal/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// Options tunes the application.
type Options struct {
	BodyLimit        int
	CORSAllowOrigins string
	// DisableRequestLog turns off the per-request access log, mainly for tests.
	DisableRequestLog bool
}

// Handlers groups the route owners mounted on the app.
type Handlers struct {
	Auth    *handlers.AuthHandler
	Product *handlers.ProductHandler
	Upload  *handlers.UploadHandler
}

// NewApp builds the Fiber app with middleware, routes and a JSON error handler.
func NewApp(h Handlers, opts Options, log *logger.Logger) *fiber.App {
	if opts.CORSAllowOrigins == "" {
		opts.CORSAllowOrigins = "*"
	}

	app := fiber.New(fiber.Config{
		AppName:   "EcoFinds API",
		BodyLimit: opts.BodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
				msg = fiberErr.Message
			} else {
				log.Error("unhandled error", "error", err, "path", c.Path())
			}

			return c.Status(code).JSON(fiber.Map{
				"message": msg,
				"error":   msg,
			})
		},
	})

	app.Use(requestid.New())
	if !opts.DisableRequestLog {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format:     "[${time}] ${locals:requestid} ${status} - ${method} ${path} - ${ip} - ${latency}\n",
			TimeFormat: time.RFC3339,
			TimeZone:   "UTC",
		}))
	}
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		// Images are embedded by storefront pages served from other origins.
		CrossOriginResourcePolicy: "cross-origin",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  opts.CORSAllowOrigins,
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization",
		ExposeHeaders: "X-Request-ID",
		MaxAge:        86400,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	h.Auth.RegisterRoutes(app)
	h.Product.RegisterRoutes(app)
	h.Upload.RegisterRoutes(app)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Not Found",
			"error":   "the requested resource was not found",
		})
	})

	return app
}
