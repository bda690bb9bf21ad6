package queue

import (
	"github.com/gofiber/fiber/v2"

	"autoapply/internal/core/jobs"
)

type Handler struct {
	queue *Service
}

func NewHandler(queue *Service) *Handler { return &Handler{queue: queue} }

type enqueueResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
	Status  Status `json:"status"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func parsePlatform(c *fiber.Ctx) (jobs.Platform, bool) {
	p := jobs.Platform(c.Params("platform"))
	for _, known := range jobs.KnownPlatforms() {
		if p == known {
			return p, true
		}
	}
	return p, false
}

func (h *Handler) HandleSearch(c *fiber.Ctx) error {
	platform, ok := parsePlatform(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "unknown platform"})
	}
	var params jobs.SearchParams
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid body"})
	}

	task, err := h.queue.Enqueue(c.Context(), platform, OpSearch, TaskParams{Search: &params})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}
	return c.JSON(enqueueResponse{Success: true, TaskID: task.ID, Status: task.Status})
}

type applyRequest struct {
	Job         *jobs.ScrapedJob `json:"job,omitempty"`
	JobURL      string           `json:"job_url,omitempty"`
	Credentials jobs.Credentials `json:"credentials"`
}

func (h *Handler) HandleApply(c *fiber.Ctx) error {
	platform, ok := parsePlatform(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "unknown platform"})
	}
	var req applyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid body"})
	}
	if req.Job == nil && req.JobURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "job or job_url required"})
	}

	task, err := h.queue.Enqueue(c.Context(), platform, OpApply, TaskParams{
		Job:         req.Job,
		JobURL:      req.JobURL,
		Credentials: &req.Credentials,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}
	return c.JSON(enqueueResponse{Success: true, TaskID: task.ID, Status: task.Status})
}

func (h *Handler) HandleGetTask(c *fiber.Ctx) error {
	task, err := h.queue.Status(c.Context(), c.Params("taskId"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "not_found"})
	}
	return c.JSON(task)
}
