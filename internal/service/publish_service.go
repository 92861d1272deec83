package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	config "github.com/postpilot/publisher/configs"
	"github.com/postpilot/publisher/internal/models"
	"github.com/postpilot/publisher/internal/repository"
	"github.com/postpilot/publisher/internal/transfer"
)

// PublishService runs the three-step Graph API content publishing flow for a
// single claimed post: create a media container, wait for the platform to
// finish processing it, then publish the container. Every step is recorded in
// the attempt log.
//
// Rate limits on the platform side are low (roughly 200 API calls and 25
// posts per day per account), which is why carousel children are created with
// a fixed delay and processing is polled on a fixed interval.
type PublishService interface {
	PublishPost(ctx context.Context, post *models.ScheduledPost, account *models.Account) *transfer.PublishResult
}

type publishService struct {
	sp repository.ScheduledPostRepository
	al repository.AttemptLogRepository

	apiBase             string
	httpClient          *http.Client
	maxProcessingChecks int
	processingInterval  time.Duration
	carouselItemDelay   time.Duration
	retryBaseDelay      time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

func NewPublishService(
	cfg config.Config,
	sp repository.ScheduledPostRepository,
	al repository.AttemptLogRepository) PublishService {
	return &publishService{
		sp:                  sp,
		al:                  al,
		apiBase:             fmt.Sprintf("%s/%s", cfg.GraphAPIBaseURL, cfg.GraphAPIVersion),
		httpClient:          &http.Client{Timeout: 60 * time.Second},
		maxProcessingChecks: cfg.Publishing.ProcessingChecks,
		processingInterval:  time.Duration(cfg.Publishing.ProcessingIntervalMS) * time.Millisecond,
		carouselItemDelay:   time.Duration(cfg.Publishing.CarouselItemDelayMS) * time.Millisecond,
		retryBaseDelay:      time.Duration(cfg.Publishing.RetryBaseDelayMin) * time.Minute,
		now:                 time.Now,
		sleep:               time.Sleep,
	}
}

func (s *publishService) PublishPost(ctx context.Context, post *models.ScheduledPost, account *models.Account) *transfer.PublishResult {
	attempt := &models.AttemptLog{
		PostID:        post.ID,
		AttemptNumber: post.RetryCount + 1,
		Status:        models.AttemptStatusStarted,
		Step:          models.AttemptStepCreateContainer,
		StartedAt:     s.now(),
	}
	attemptID, err := s.al.Create(ctx, attempt)
	if err != nil {
		slog.Error("failed to open attempt log", "post_id", post.ID, "error", err)
	}

	if !account.IsCredentialValid(s.now()) {
		return s.handleError(ctx, post, attemptID,
			newPublishError(ErrCodeTokenExpired, "Token expirado ou inválido"))
	}

	accessToken := account.AccessToken

	// Step 1: create media container
	containerID, err := s.createContainer(ctx, post, account, accessToken, attemptID)
	if err != nil {
		return s.handleError(ctx, post, attemptID, asPublishError(err))
	}

	post.ContainerID = containerID
	if err := s.sp.SetContainerID(ctx, post.ID, containerID); err != nil {
		slog.Error("failed to store container id", "post_id", post.ID, "error", err)
	}
	if err := s.al.SetStatus(ctx, attemptID, models.AttemptStatusContainerCreated); err != nil {
		slog.Info(err.Error())
	}
	if err := s.al.SetStep(ctx, attemptID, models.AttemptStepCheckStatus, models.AttemptStatusProcessing); err != nil {
		slog.Info(err.Error())
	}

	// Step 2: wait for the platform to process the media
	if err := s.waitForProcessing(ctx, containerID, accessToken); err != nil {
		return s.handleError(ctx, post, attemptID, asPublishError(err))
	}

	// Step 3: publish the container
	if err := s.al.SetStep(ctx, attemptID, models.AttemptStepPublish, models.AttemptStatusProcessing); err != nil {
		slog.Info(err.Error())
	}
	mediaID, err := s.publishContainer(ctx, account.AccountID, containerID, accessToken, attemptID)
	if err != nil {
		return s.handleError(ctx, post, attemptID, asPublishError(err))
	}

	// Best effort; the post is already live at this point.
	permalink := s.getPermalink(ctx, mediaID, accessToken)

	publishedAt := s.now()
	post.MediaID = mediaID
	post.Permalink = permalink
	post.PublishedAt = &publishedAt
	post.Status = models.PostStatusPublished
	if err := s.sp.MarkPublished(ctx, post.ID, containerID, mediaID, permalink, publishedAt); err != nil {
		slog.Error("failed to mark post published", "post_id", post.ID, "error", err)
	}

	response, _ := json.Marshal(map[string]string{"media_id": mediaID, "permalink": permalink})
	if err := s.al.Complete(ctx, attemptID, models.AttemptStatusSuccess, response, "", "", nil); err != nil {
		slog.Info(err.Error())
	}

	slog.Info("post published", "post_id", post.ID, "media_id", mediaID, "account", account.Username)

	return &transfer.PublishResult{
		Success:     true,
		ContainerID: containerID,
		MediaID:     mediaID,
		Permalink:   permalink,
	}
}

func (s *publishService) createContainer(ctx context.Context, post *models.ScheduledPost, account *models.Account, accessToken string, attemptID int64) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/media", s.apiBase, account.AccountID)

	payload := map[string]any{
		"access_token": accessToken,
		"caption":      post.Caption,
	}

	switch post.MediaType {
	case models.MediaTypeImage:
		payload["image_url"] = post.MediaURLs[0]
	case models.MediaTypeVideo:
		payload["media_type"] = "VIDEO"
		payload["video_url"] = post.MediaURLs[0]
	case models.MediaTypeReel:
		payload["media_type"] = "REELS"
		payload["video_url"] = post.MediaURLs[0]
	case models.MediaTypeStory:
		payload["media_type"] = "STORIES"
		if isVideoURL(post.MediaURLs[0]) {
			payload["video_url"] = post.MediaURLs[0]
		} else {
			payload["image_url"] = post.MediaURLs[0]
		}
	case models.MediaTypeCarousel:
		childIDs, err := s.createCarouselChildren(ctx, account.AccountID, post.MediaURLs, accessToken)
		if err != nil {
			return "", err
		}
		payload["media_type"] = "CAROUSEL"
		payload["children"] = strings.Join(childIDs, ",")
	default:
		payload["image_url"] = post.MediaURLs[0]
	}

	if err := s.al.SetRequest(ctx, attemptID, endpoint, sanitizePayload(payload)); err != nil {
		slog.Info(err.Error())
	}

	resp, err := s.graphPost(ctx, endpoint, payload, "Erro ao criar container")
	if err != nil {
		return "", err
	}

	if resp.ID == "" {
		return "", newPublishError(ErrCodeMissingContainerID, "Container ID não retornado pela API")
	}
	return resp.ID, nil
}

func (s *publishService) createCarouselChildren(ctx context.Context, accountID string, mediaURLs []string, accessToken string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/%s/media", s.apiBase, accountID)

	urls := mediaURLs
	if len(urls) > models.CarouselMaxItems {
		urls = urls[:models.CarouselMaxItems]
	}

	childIDs := make([]string, 0, len(urls))
	for i, mediaURL := range urls {
		payload := map[string]any{
			"access_token":     accessToken,
			"is_carousel_item": true,
		}
		if isVideoURL(mediaURL) {
			payload["media_type"] = "VIDEO"
			payload["video_url"] = mediaURL
		} else {
			payload["image_url"] = mediaURL
		}

		resp, err := s.graphPost(ctx, endpoint, payload, "Erro ao criar item do carrossel")
		if err != nil {
			return nil, err
		}
		if resp.ID == "" {
			return nil, newPublishError(ErrCodeMissingContainerID, "Container ID não retornado pela API")
		}
		childIDs = append(childIDs, resp.ID)

		// keep child creations spaced out for the per-account rate limit
		if i < len(urls)-1 {
			s.sleep(s.carouselItemDelay)
		}
	}

	return childIDs, nil
}

// waitForProcessing polls the container on a fixed interval until it reaches a
// terminal state or the check limit runs out, bounding wall-clock time per
// attempt.
func (s *publishService) waitForProcessing(ctx context.Context, containerID, accessToken string) error {
	endpoint := fmt.Sprintf("%s/%s?fields=status_code,status&access_token=%s", s.apiBase, containerID, url.QueryEscape(accessToken))

	for attempt := 0; attempt < s.maxProcessingChecks; attempt++ {
		if err := ctx.Err(); err != nil {
			return newPublishError(ErrCodeConnectionError, "Erro de conexão: "+err.Error())
		}

		resp, err := s.graphGet(ctx, endpoint, "Erro ao verificar status")
		if err != nil {
			return err
		}

		switch resp.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR":
			status := resp.Status
			if status == "" {
				status = "Unknown error"
			}
			return newPublishError(ErrCodeProcessingError, "Erro no processamento: "+status)
		case "EXPIRED":
			return newPublishError(ErrCodeContainerExpired, "Container expirou durante processamento")
		case "IN_PROGRESS":
			s.sleep(s.processingInterval)
		default:
			slog.Warn("unknown container status", "container_id", containerID, "status_code", resp.StatusCode)
			s.sleep(s.processingInterval)
		}
	}

	return newPublishError(ErrCodeProcessingTimeout, "Timeout aguardando processamento")
}

func (s *publishService) publishContainer(ctx context.Context, accountID, containerID, accessToken string, attemptID int64) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/media_publish", s.apiBase, accountID)
	payload := map[string]any{
		"creation_id":  containerID,
		"access_token": accessToken,
	}

	if err := s.al.SetRequest(ctx, attemptID, endpoint, sanitizePayload(payload)); err != nil {
		slog.Info(err.Error())
	}

	resp, err := s.graphPost(ctx, endpoint, payload, "Erro ao publicar")
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", newPublishError(ErrCodeMissingMediaID, "Media ID não retornado pela API")
	}
	return resp.ID, nil
}

// getPermalink is best effort: a failure here never fails the publish.
func (s *publishService) getPermalink(ctx context.Context, mediaID, accessToken string) string {
	endpoint := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s", s.apiBase, mediaID, url.QueryEscape(accessToken))

	resp, err := s.graphGet(ctx, endpoint, "Erro ao obter permalink")
	if err != nil {
		slog.Warn("failed to fetch permalink", "media_id", mediaID, "error", err)
		return ""
	}
	return resp.Permalink
}

func (s *publishService) graphPost(ctx context.Context, endpoint string, payload map[string]any, errPrefix string) (*transfer.GraphMediaResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newPublishError(ErrCodeUnknownError, "Erro inesperado: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, newPublishError(ErrCodeUnknownError, "Erro inesperado: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	return s.doGraph(req, errPrefix)
}

func (s *publishService) graphGet(ctx context.Context, endpoint, errPrefix string) (*transfer.GraphMediaResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, newPublishError(ErrCodeUnknownError, "Erro inesperado: "+err.Error())
	}
	return s.doGraph(req, errPrefix)
}

func (s *publishService) doGraph(req *http.Request, errPrefix string) (*transfer.GraphMediaResponse, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, newPublishError(ErrCodeConnectionError, "Erro de conexão: "+err.Error())
	}
	defer resp.Body.Close()

	var result transfer.GraphMediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, newPublishError(ErrCodeUnknownError, "Erro inesperado: "+err.Error())
	}

	// the Graph API reports failures in the body, not the HTTP status
	if result.Error != nil {
		return nil, graphError(errPrefix, result.Error)
	}
	return &result, nil
}

func (s *publishService) handleError(ctx context.Context, post *models.ScheduledPost, attemptID int64, perr *PublishError) *transfer.PublishResult {
	if err := s.al.Complete(ctx, attemptID, models.AttemptStatusError, nil, perr.Code, perr.Message, perr.Details); err != nil {
		slog.Info(err.Error())
	}

	post.Status = models.PostStatusFailed
	post.LastError = perr.Message
	if err := s.sp.MarkFailed(ctx, post.ID, perr.Message); err != nil {
		slog.Error("failed to mark post failed", "post_id", post.ID, "error", err)
	}

	if post.CanRetry() {
		post.ScheduleRetry(s.now(), s.retryBaseDelay)
		if err := s.sp.SetRetry(ctx, post.ID, post.RetryCount, *post.NextRetryAt); err != nil {
			slog.Error("failed to schedule retry", "post_id", post.ID, "error", err)
		}
		if err := s.al.SetStatus(ctx, attemptID, models.AttemptStatusRetry); err != nil {
			slog.Info(err.Error())
		}
		slog.Info("retry scheduled", "post_id", post.ID, "retry_count", post.RetryCount, "next_retry_at", post.NextRetryAt)
	}

	slog.Error("failed to publish post", "post_id", post.ID, "code", perr.Code, "error", perr.Message)

	return &transfer.PublishResult{
		Success:      false,
		ErrorCode:    perr.Code,
		ErrorMessage: perr.Message,
	}
}

// sanitizePayload drops the credential before a payload is written to the
// attempt log.
func sanitizePayload(payload map[string]any) []byte {
	sanitized := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "access_token" {
			continue
		}
		sanitized[k] = v
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return nil
	}
	return raw
}

// isVideoURL decides video versus image by file extension; carousel children
// and stories do not carry an explicit kind per item.
func isVideoURL(mediaURL string) bool {
	ext := ""
	if u, err := url.Parse(mediaURL); err == nil {
		ext = path.Ext(u.Path)
	} else {
		ext = path.Ext(mediaURL)
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return false
	}

	t := filetype.GetType(ext)
	if t == types.Unknown {
		return false
	}
	return t.MIME.Type == "video"
}
