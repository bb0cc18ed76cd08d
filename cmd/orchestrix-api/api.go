// Package main provides the Orchestrix API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/orchestrix/orchestrix/pkg/eventbus"
	"github.com/orchestrix/orchestrix/pkg/persistence"
	"github.com/orchestrix/orchestrix/pkg/tracker"
	"github.com/orchestrix/orchestrix/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	trk := tracker.NewTracker(a.persistence.ExecutionRepository(), a.logger)
	handlers := web.NewAPIHandlers(a.persistence, trk, a.eventBus, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Orchestrix API")
	})

	e := app.Group("/executions")
	e.Post("/", handlers.SubmitExecution)
	e.Get("/", handlers.ListExecutions)
	e.Get("/stats", handlers.GetStats)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Post("/:id/retry", handlers.RetryExecution)

	app.Post("/node-executions/:id/retry", handlers.RetryNodeExecution)
	app.Get("/metrics", handlers.GetMetrics)

	app.Get("/health", handlers.HealthCheck(a.persistence))

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
