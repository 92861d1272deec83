package models

import (
	"encoding/json"
	"time"
)

const (
	AttemptStatusStarted          = "started"
	AttemptStatusContainerCreated = "container_created"
	AttemptStatusProcessing       = "processing"
	AttemptStatusSuccess          = "success"
	AttemptStatusError            = "error"
	AttemptStatusRetry            = "retry"
)

const (
	AttemptStepCreateContainer = "create_container"
	AttemptStepCheckStatus     = "check_status"
	AttemptStepPublish         = "publish"
)

// AttemptLog is one row per publish attempt per post. Rows are append-only:
// once completed_at is set only the terminal status may still change (error →
// retry when a retry gets scheduled). The access token is never stored here.
type AttemptLog struct {
	ID            int64           `db:"id" json:"id"`
	PostID        int64           `db:"post_id" json:"post_id"`
	AttemptNumber int             `db:"attempt_number" json:"attempt_number"`
	Status        string          `db:"status" json:"status"`
	Step          string          `db:"step" json:"step"`
	Endpoint      string          `db:"api_endpoint" json:"api_endpoint"`
	RequestData   json.RawMessage `db:"request_data" json:"request_data"`
	ResponseData  json.RawMessage `db:"response_data" json:"response_data"`
	ErrorCode     string          `db:"error_code" json:"error_code"`
	ErrorMessage  string          `db:"error_message" json:"error_message"`
	ErrorDetails  json.RawMessage `db:"error_details" json:"error_details"`
	StartedAt     time.Time       `db:"started_at" json:"started_at"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completed_at"`
	DurationMS    int64           `db:"duration_ms" json:"duration_ms"`
}
