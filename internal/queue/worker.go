package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/postpilot/publisher/internal/transfer"
)

func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	result, err := q.pr.ProcessPost(ctx, payload.PostID)
	if err != nil {
		slog.Error("publish task failed", "post_id", payload.PostID, "error", err)
		return err
	}

	if result.Status == transfer.PostResultSkipped {
		slog.Info("publish task skipped", "post_id", payload.PostID, "reason", result.Reason)
	}

	// failed outcomes are final for the task: retries are owned by the
	// batch processor's backoff schedule, not by asynq redelivery
	return nil
}
