package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// QueueAdminHandler handles endpoints for queue owners.
type QueueAdminHandler struct {
	queues *service.QueueService
}

// NewQueueAdminHandler constructs handler.
func NewQueueAdminHandler(queues *service.QueueService) *QueueAdminHandler {
	return &QueueAdminHandler{queues: queues}
}

// CreateQueue POST /queues.
func (h *QueueAdminHandler) CreateQueue(c *fiber.Ctx) error {
	principal, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.CreateQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	queue, err := h.queues.CreateQueue(c.UserContext(), principal.UserID, service.QueueInput{
		Name:         req.Name,
		ServiceSlots: req.ServiceSlots,
		MaxSize:      req.MaxSize,
		GraceMinutes: req.GraceMinutes,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewQueueResponse(queue)})
}

// ListQueues GET /queues.
func (h *QueueAdminHandler) ListQueues(c *fiber.Ctx) error {
	principal, err := currentUser(c)
	if err != nil {
		return err
	}
	queues, err := h.queues.ListOwnedQueues(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	items := make([]dto.QueueResponse, 0, len(queues))
	for i := range queues {
		items = append(items, dto.NewQueueSummaryResponse(&queues[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetQueue GET /queues/:id.
func (h *QueueAdminHandler) GetQueue(c *fiber.Ctx) error {
	principal, err := currentUser(c)
	if err != nil {
		return err
	}
	summary, err := h.queues.GetQueue(c.UserContext(), principal.UserID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewQueueSummaryResponse(summary)})
}

// UpdateQueue PATCH /queues/:id.
func (h *QueueAdminHandler) UpdateQueue(c *fiber.Ctx) error {
	principal, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.UpdateQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	queue, err := h.queues.UpdateQueue(c.UserContext(), principal.UserID, c.Params("id"), service.QueueUpdate{
		Name:         req.Name,
		ServiceSlots: req.ServiceSlots,
		MaxSize:      req.MaxSize,
		GraceMinutes: req.GraceMinutes,
		ClearMaxSize: req.ClearMaxSize,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewQueueResponse(queue)})
}

// DeleteQueue DELETE /queues/:id.
func (h *QueueAdminHandler) DeleteQueue(c *fiber.Ctx) error {
	principal, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.queues.DeleteQueue(c.UserContext(), principal.UserID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListTickets GET /queues/:id/tickets.
func (h *QueueAdminHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := currentUser(c)
	if err != nil {
		return err
	}
	page, err := pageParam(c)
	if err != nil {
		return err
	}
	result, err := h.queues.ListActive(c.UserContext(), principal.UserID, c.Params("id"), page)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// ListEvents GET /queues/:id/events.
func (h *QueueAdminHandler) ListEvents(c *fiber.Ctx) error {
	principal, err := currentUser(c)
	if err != nil {
		return err
	}
	page, err := pageParam(c)
	if err != nil {
		return err
	}
	list, err := h.queues.ListEvents(c.UserContext(), principal.UserID, c.Params("id"), page)
	if err != nil {
		return err
	}
	items := make([]dto.EventResponse, 0, len(list))
	for i := range list {
		items = append(items, dto.NewEventResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// MarkLate POST /queues/:id/tickets/:pid/late.
func (h *QueueAdminHandler) MarkLate(c *fiber.Ctx) error {
	return h.transition(c, h.queues.MarkLate)
}

// MarkComplete POST /queues/:id/tickets/:pid/complete.
func (h *QueueAdminHandler) MarkComplete(c *fiber.Ctx) error {
	return h.transition(c, h.queues.MarkComplete)
}

// MarkArrived POST /queues/:id/tickets/:pid/arrived.
func (h *QueueAdminHandler) MarkArrived(c *fiber.Ctx) error {
	return h.transition(c, h.queues.MarkArrived)
}

// Remove DELETE /queues/:id/tickets/:pid.
func (h *QueueAdminHandler) Remove(c *fiber.Ctx) error {
	return h.transition(c, h.queues.Remove)
}

type adminTransition func(ctx context.Context, ownerID, queueID, participantID string) (*service.TransitionResult, error)

func (h *QueueAdminHandler) transition(c *fiber.Ctx, op adminTransition) error {
	principal, err := currentUser(c)
	if err != nil {
		return err
	}
	result, err := op(c.UserContext(), principal.UserID, c.Params("id"), c.Params("pid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}
