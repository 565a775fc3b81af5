// Package api exposes the verification pipeline, the moderation queue and
// case reporting over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/segmentio/encoding/json"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/blocklist"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/metrics"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/moderation"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/ratelimit"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/report"
)

// Verifier is the pipeline surface the API drives.
type Verifier interface {
	Submit(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	GetPendingModeration(ctx context.Context, limit int) ([]moderation.Pending, error)
	Resolve(ctx context.Context, verificationID string, r moderation.Resolution) (*pipeline.Result, error)
}

// Reporter files citizen case reports.
type Reporter interface {
	FileReport(ctx context.Context, f report.Filing) (*report.CaseReport, error)
}

// Snapshotter reads the system counters.
type Snapshotter interface {
	Snapshot(ctx context.Context) (metrics.SystemMetrics, error)
}

// Throttle limits requests per identifier.
type Throttle interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) time.Duration
}

// Blocker manages blocked senders.
type Blocker interface {
	Check(ctx context.Context, sender string) (blocklist.Status, error)
	Block(ctx context.Context, sender string, duration time.Duration, reason string) error
	Unblock(ctx context.Context, sender string) error
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps are the services behind the routes. Throttle, Blocks and Checks may
// be nil.
type Deps struct {
	Verifier Verifier
	Reports  Reporter
	Counters Snapshotter
	Throttle Throttle
	Blocks   Blocker
	Checks   map[string]HealthCheck
}

// Config tunes the HTTP surface.
type Config struct {
	JWTSecret string
	BodyLimit int
	Sentry    bool // install the Sentry middleware
}

// New builds the Fiber app with every route registered.
func New(deps Deps, cfg Config, logger *slog.Logger) *fiber.App {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 1 * 1024 * 1024
	}
	logger = logger.With("component", "api")

	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})

	if cfg.Sentry {
		app.Use(sentryfiber.New(sentryfiber.Options{
			Repanic:         true,
			WaitForDelivery: false,
		}))
	}
	app.Use(recover.New())
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		return c.Next()
	})

	h := &handlers{deps: deps, logger: logger}
	setupRoutes(app, cfg, h)
	return app
}

func setupRoutes(app *fiber.App, cfg Config, h *handlers) {
	app.Get("/health", h.health)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := app.Group("/api/v1")
	v1.Post("/verifications", h.submit)
	v1.Post("/reports", h.fileReport)
	v1.Get("/metrics/system", h.systemMetrics)

	mod := v1.Group("/moderation", jwtProtected(cfg.JWTSecret))
	mod.Get("/pending", h.pending)
	mod.Get("/blocks/:sender", h.blockStatus)
	mod.Put("/blocks/:sender", h.block)
	mod.Delete("/blocks/:sender", h.unblock)
	mod.Post("/:id/resolve", h.resolve)
}

func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal server error"
		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
			message = e.Message
		}

		// Only expose error details for client errors (4xx), not server errors (5xx)
		if code >= 500 {
			logger.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err)
			message = "Internal server error"
		}

		return c.Status(code).JSON(ErrorResponse{Error: true, Message: message})
	}
}
