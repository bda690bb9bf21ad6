package tierscraper

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"autoapply/internal/core/jobs"
	"autoapply/internal/ratelimit"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

type searchRequest struct {
	UserID string            `json:"user_id"`
	Tier   string            `json:"tier"`
	Params jobs.SearchParams `json:"params"`
}

type searchResponse struct {
	Success bool             `json:"success"`
	Cached  bool             `json:"cached"`
	Count   int              `json:"count"`
	Jobs    []jobs.ScrapedJob `json:"jobs"`
}

func (h *Handler) HandleSearch(c *fiber.Ctx) error {
	platform := jobs.Platform(c.Params("platform"))
	var req searchRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "user_id required"})
	}

	found, cached, err := h.svc.Search(c.Context(), req.UserID, ratelimit.ParseTier(req.Tier), platform, req.Params)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"success": false, "error": "tier quota exceeded"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(searchResponse{Success: true, Cached: cached, Count: len(found), Jobs: found})
}

type jobDetailsRequest struct {
	UserID string `json:"user_id"`
	Tier   string `json:"tier"`
	JobURL string `json:"job_url"`
}

func (h *Handler) HandleJobDetails(c *fiber.Ctx) error {
	platform := jobs.Platform(c.Params("platform"))
	var req jobDetailsRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" || req.JobURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "user_id and job_url required"})
	}

	job, cached, err := h.svc.JobDetails(c.Context(), req.UserID, ratelimit.ParseTier(req.Tier), platform, req.JobURL)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"success": false, "error": "tier quota exceeded"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "cached": cached, "job": job})
}

func (h *Handler) HandleUsage(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "user_id required"})
	}
	stats, err := h.svc.Usage(c.Context(), userID, ratelimit.ParseTier(c.Query("tier")))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(stats)
}
