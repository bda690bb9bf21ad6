package autoapply

import (
	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	cycle *Service
}

func NewHandler(cycle *Service) *Handler { return &Handler{cycle: cycle} }

type startRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) HandleStart(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "user_id required"})
	}
	if err := h.cycle.Start(req.UserID); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "status": h.cycle.Status()})
}

func (h *Handler) HandleStop(c *fiber.Ctx) error {
	stopped := h.cycle.Stop()
	if !stopped {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "error": "no cycle running"})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	return c.JSON(h.cycle.Status())
}
