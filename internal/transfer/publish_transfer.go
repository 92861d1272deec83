package transfer

import (
	"encoding/json"

	"github.com/golang-jwt/jwt/v5"
)

// PublishResult is the outcome of one full protocol run for a post.
type PublishResult struct {
	Success      bool   `json:"success"`
	ContainerID  string `json:"container_id,omitempty"`
	MediaID      string `json:"media_id,omitempty"`
	Permalink    string `json:"permalink,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

const (
	PostResultSuccess = "success"
	PostResultFailed  = "failed"
	PostResultSkipped = "skipped"
)

type PostResult struct {
	PostID     int64  `json:"post_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	MediaID    string `json:"media_id,omitempty"`
	Permalink  string `json:"permalink,omitempty"`
	RetryCount int    `json:"retry_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ProcessingResult summarizes one batch run.
type ProcessingResult struct {
	RunID          string       `json:"run_id"`
	TotalProcessed int          `json:"total_processed"`
	Successful     int          `json:"successful"`
	Failed         int          `json:"failed"`
	Skipped        int          `json:"skipped"`
	Results        []PostResult `json:"results"`
}

type PublishingStats struct {
	PendingNow      int `json:"pending_now"`
	ScheduledFuture int `json:"scheduled_future"`
	PublishedToday  int `json:"published_today"`
	FailedToday     int `json:"failed_today"`
	AwaitingRetry   int `json:"awaiting_retry"`
}

// GraphError is the error object the Graph API embeds in response bodies.
// Its presence means failure regardless of the HTTP status code.
type GraphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	IsTransient  bool   `json:"is_transient"`
	FbtraceID    string `json:"fbtrace_id"`
}

type GraphMediaResponse struct {
	ID         string      `json:"id,omitempty"`
	StatusCode string      `json:"status_code,omitempty"`
	Status     string      `json:"status,omitempty"`
	Permalink  string      `json:"permalink,omitempty"`
	Error      *GraphError `json:"error,omitempty"`
}

func (e *GraphError) Details() json.RawMessage {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return raw
}

// PostCreation is the scheduling request handed over by the authoring flow.
type PostCreation struct {
	AccountID    int64    `json:"account_id"`
	Caption      string   `json:"caption"`
	MediaType    string   `json:"media_type"`
	MediaURLs    []string `json:"media_urls"`
	ScheduledFor string   `json:"scheduled_for"`
	Timezone     string   `json:"timezone"`
}

// SchedulerClaims authenticate calls to the internal scheduler endpoints.
type SchedulerClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}
