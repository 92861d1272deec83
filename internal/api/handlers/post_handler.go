package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/postpilot/publisher/internal/queue"
	"github.com/postpilot/publisher/internal/service"
	"github.com/postpilot/publisher/internal/transfer"
)

type PostHandler struct {
	s      service.PostService
	client *asynq.Client
}

func NewPostHandler(service service.PostService, client *asynq.Client) *PostHandler {
	return &PostHandler{s: service, client: client}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	postID, delay, err := h.s.Schedule(c.Context(), &pc)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := queue.EnqueuePost(h.client, queue.PublishPostPayload{PostID: postID}, delay); err != nil {
		// the cron batch picks the post up anyway
		return c.JSON(fiber.Map{"post_id": postID, "queued": false})
	}

	return c.JSON(fiber.Map{"post_id": postID, "queued": true})
}

func (h *PostHandler) CancelPost(c *fiber.Ctx) error {
	postID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	if err := h.s.Cancel(c.Context(), postID); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	postID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	post, err := h.s.Get(c.Context(), postID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to load post",
		})
	}
	if post == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Post not found",
		})
	}

	return c.JSON(post)
}
