package cache

import (
	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	cache *Service
}

func NewHandler(cache *Service) *Handler { return &Handler{cache: cache} }

func (h *Handler) HandleStats(c *fiber.Ctx) error {
	return c.JSON(h.cache.Stats())
}

type policyRequest struct {
	Policy string `json:"policy"`
}

// HandleSetPolicy swaps the eviction strategy at runtime; entries and
// their metadata survive the swap.
func (h *Handler) HandleSetPolicy(c *fiber.Ctx) error {
	var req policyRequest
	if err := c.BodyParser(&req); err != nil || req.Policy == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "policy required"})
	}
	h.cache.SetPolicy(NewPolicy(req.Policy))
	return c.JSON(fiber.Map{"success": true, "stats": h.cache.Stats()})
}

// HandleInvalidate drops entries by platform (and optionally operation);
// without a platform it clears everything.
func (h *Handler) HandleInvalidate(c *fiber.Ctx) error {
	platform := c.Query("platform")
	if platform == "" {
		h.cache.Clear()
		return c.JSON(fiber.Map{"success": true, "cleared": "all"})
	}
	removed := h.cache.Invalidate(platform, c.Query("operation"))
	return c.JSON(fiber.Map{"success": true, "removed": removed})
}
