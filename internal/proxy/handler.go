package proxy

import (
	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	pool *Service
}

func NewHandler(pool *Service) *Handler { return &Handler{pool: pool} }

func (h *Handler) HandleStats(c *fiber.Ctx) error {
	return c.JSON(h.pool.Stats())
}

func (h *Handler) HandleRefresh(c *fiber.Ctx) error {
	added, err := h.pool.Refresh(c.Context())
	resp := fiber.Map{"success": err == nil, "added": added, "stats": h.pool.Stats()}
	if err != nil {
		resp["error"] = err.Error()
	}
	return c.JSON(resp)
}
