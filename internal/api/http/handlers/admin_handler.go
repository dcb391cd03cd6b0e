package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// Sweeper runs the unresolved-ticket reminder sweep.
type Sweeper interface {
	Run(ctx context.Context) (service.SweepResult, error)
}

// AdminHandler exposes operational endpoints.
type AdminHandler struct {
	sweeper Sweeper
	metrics *observability.Metrics
}

// NewAdminHandler constructs handler.
func NewAdminHandler(sweeper Sweeper, metrics *observability.Metrics) *AdminHandler {
	return &AdminHandler{sweeper: sweeper, metrics: metrics}
}

// RunSweep POST /admin/sweep triggers a reminder sweep immediately.
func (h *AdminHandler) RunSweep(c *fiber.Ctx) error {
	result, err := h.sweeper.Run(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Metrics GET /admin/metrics.
func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
