package queue

import (
	"github.com/postpilot/publisher/internal/service"
)

type Queue struct {
	pr service.ProcessorService
}

func NewQueue(pr service.ProcessorService) *Queue {
	return &Queue{pr: pr}
}

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	PostID int64 `json:"post_id"`
}
