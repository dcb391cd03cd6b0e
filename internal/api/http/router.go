package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Contacts       *handlers.ContactsHandler
	Tickets        *handlers.TicketsHandler
	Documents      *handlers.DocumentsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	protected.Get("/auth/me", cfg.Users.Me)

	protected.Post("/contacts", cfg.Contacts.CreateContact)
	protected.Get("/contacts/:id", cfg.Contacts.GetContact)

	tickets := protected.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	// Batch first: /tickets/batch/close would otherwise match /tickets/:id/close.
	tickets.Post("/batch/:action", cfg.Tickets.BatchTransition)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/start", cfg.Tickets.Transition(service.TransitionStart))
	tickets.Post("/:id/waiting", cfg.Tickets.Transition(service.TransitionWaiting))
	tickets.Post("/:id/solve", cfg.Tickets.Transition(service.TransitionSolve))
	tickets.Post("/:id/close", cfg.Tickets.Transition(service.TransitionClose))
	tickets.Post("/:id/reset", cfg.Tickets.Transition(service.TransitionReset))
	tickets.Post("/:id/assign", cfg.Tickets.AssignTicket)
	tickets.Post("/:id/priority", cfg.Tickets.UpdatePriority)
	tickets.Post("/:id/notify-assignee", cfg.Tickets.NotifyAssignee)
	tickets.Post("/:id/print", cfg.Tickets.PrintTicket)

	protected.Get("/documents/:handle", cfg.Documents.GetDocument)

	admin := protected.Group("/admin")
	admin.Post("/sweep", cfg.Admin.RunSweep)
	admin.Get("/metrics", cfg.Admin.Metrics)
}
