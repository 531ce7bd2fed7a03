package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// QueuesHandler manages participant endpoints.
type QueuesHandler struct {
	queues *service.QueueService
}

// NewQueuesHandler constructs handler.
func NewQueuesHandler(queues *service.QueueService) *QueuesHandler {
	return &QueuesHandler{queues: queues}
}

// Join POST /queues/:id/join.
func (h *QueuesHandler) Join(c *fiber.Ctx) error {
	principal, err := currentUser(c)
	if err != nil {
		return err
	}
	result, err := h.queues.Join(c.UserContext(), c.Params("id"), principal.UserID)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if result.Created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": result})
}

// Leave POST /queues/:id/leave.
func (h *QueuesHandler) Leave(c *fiber.Ctx) error {
	principal, err := currentUser(c)
	if err != nil {
		return err
	}
	result, err := h.queues.Leave(c.UserContext(), c.Params("id"), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Rejoin POST /queues/:id/rejoin.
func (h *QueuesHandler) Rejoin(c *fiber.Ctx) error {
	principal, err := currentUser(c)
	if err != nil {
		return err
	}
	result, err := h.queues.Rejoin(c.UserContext(), c.Params("id"), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Status GET /queues/:id/status.
func (h *QueuesHandler) Status(c *fiber.Ctx) error {
	principal, err := currentUser(c)
	if err != nil {
		return err
	}
	view, err := h.queues.GetStatus(c.UserContext(), c.Params("id"), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": view})
}

// MyTickets GET /me/tickets.
func (h *QueuesHandler) MyTickets(c *fiber.Ctx) error {
	principal, err := currentUser(c)
	if err != nil {
		return err
	}
	tickets, err := h.queues.ListMyTickets(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func currentUser(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.UserID == "" {
		return nil, apperrors.NewUnauthorized("user required")
	}
	return principal, nil
}

func pageParam(c *fiber.Ctx) (int, error) {
	var q dto.PageQuery
	if err := c.QueryParser(&q); err != nil {
		return 0, apperrors.NewValidationError("invalid page", nil)
	}
	if q.Page == 0 {
		return 1, nil
	}
	if q.Page < 0 {
		return 0, apperrors.NewValidationError("page must be positive", map[string]any{"page": q.Page})
	}
	return q.Page, nil
}
