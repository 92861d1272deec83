package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/postpilot/publisher/internal/repository"
	"github.com/postpilot/publisher/internal/service"
)

type SchedulerHandler struct {
	pr service.ProcessorService
	al repository.AttemptLogRepository
}

func NewSchedulerHandler(pr service.ProcessorService, al repository.AttemptLogRepository) *SchedulerHandler {
	return &SchedulerHandler{pr: pr, al: al}
}

func (h *SchedulerHandler) ProcessPending(c *fiber.Ctx) error {
	summary := h.pr.ProcessPendingPosts(c.Context())
	return c.JSON(summary)
}

func (h *SchedulerHandler) ProcessRetries(c *fiber.Ctx) error {
	summary := h.pr.ProcessRetries(c.Context())
	return c.JSON(summary)
}

func (h *SchedulerHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.pr.GetStats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to compute publishing stats",
		})
	}
	return c.JSON(stats)
}

func (h *SchedulerHandler) ListAttempts(c *fiber.Ctx) error {
	postID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	logs, err := h.al.ListByPostID(c.Context(), postID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list attempts",
		})
	}
	return c.JSON(logs)
}
