package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Queues         *handlers.QueuesHandler
	Admin          *handlers.QueueAdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	queues := api.Group("/queues")
	queues.Post("/", cfg.Admin.CreateQueue)
	queues.Get("/", cfg.Admin.ListQueues)
	queues.Get("/:id", cfg.Admin.GetQueue)
	queues.Patch("/:id", cfg.Admin.UpdateQueue)
	queues.Delete("/:id", cfg.Admin.DeleteQueue)

	queues.Post("/:id/join", cfg.Queues.Join)
	queues.Post("/:id/leave", cfg.Queues.Leave)
	queues.Post("/:id/rejoin", cfg.Queues.Rejoin)
	queues.Get("/:id/status", cfg.Queues.Status)

	queues.Get("/:id/tickets", cfg.Admin.ListTickets)
	queues.Get("/:id/events", cfg.Admin.ListEvents)
	queues.Post("/:id/tickets/:pid/late", cfg.Admin.MarkLate)
	queues.Post("/:id/tickets/:pid/complete", cfg.Admin.MarkComplete)
	queues.Post("/:id/tickets/:pid/arrived", cfg.Admin.MarkArrived)
	queues.Delete("/:id/tickets/:pid", cfg.Admin.Remove)

	api.Get("/me/tickets", cfg.Queues.MyTickets)
}
