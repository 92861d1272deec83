package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/postpilot/publisher/internal/models"
	"github.com/postpilot/publisher/internal/repository"
	"github.com/postpilot/publisher/internal/transfer"
)

// PostService validates and registers posts for publishing. Authoring UIs sit
// elsewhere; this is the boundary they hand a composed post to.
type PostService interface {
	Schedule(ctx context.Context, pc *transfer.PostCreation) (int64, time.Duration, error)
	Cancel(ctx context.Context, postID int64) error
	Get(ctx context.Context, postID int64) (*models.ScheduledPost, error)
}

type postService struct {
	sp repository.ScheduledPostRepository
	ar repository.AccountRepository
}

func NewPostService(sp repository.ScheduledPostRepository, ar repository.AccountRepository) PostService {
	return &postService{sp: sp, ar: ar}
}

func (s *postService) Schedule(ctx context.Context, pc *transfer.PostCreation) (int64, time.Duration, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return 0, 0, err
	}

	account, err := s.ar.GetByID(ctx, pc.AccountID)
	if err != nil {
		return 0, 0, fmt.Errorf("error checking account %d: %w", pc.AccountID, err)
	}
	if account == nil {
		err := fmt.Errorf("account %d does not exist", pc.AccountID)
		slog.Info(err.Error())
		return 0, 0, err
	}

	timezone := pc.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		err = fmt.Errorf("invalid timezone %q: %w", timezone, err)
		slog.Info(err.Error())
		return 0, 0, err
	}

	scheduledFor, err := time.ParseInLocation("2006-01-02T15:04", pc.ScheduledFor, loc)
	if err != nil {
		err = fmt.Errorf("invalid scheduled time format: %w", err)
		slog.Info(err.Error())
		return 0, 0, err
	}

	post := models.ScheduledPost{
		AccountID:    pc.AccountID,
		Caption:      pc.Caption,
		MediaType:    pc.MediaType,
		MediaURLs:    pc.MediaURLs,
		ScheduledFor: scheduledFor,
		Timezone:     timezone,
		Status:       models.PostStatusScheduled,
		MaxRetries:   models.DefaultMaxRetries,
	}

	if err := post.ValidateMedia(); err != nil {
		slog.Info(err.Error())
		return 0, 0, err
	}
	if err := post.ValidateCaption(); err != nil {
		slog.Info(err.Error())
		return 0, 0, err
	}

	postID, err := s.sp.Create(ctx, nil, &post)
	if err != nil {
		return 0, 0, fmt.Errorf("error creating scheduled post: %w", err)
	}

	delay := time.Until(scheduledFor)
	if delay < 0 {
		delay = 0
	}

	return postID, delay, nil
}

func (s *postService) Cancel(ctx context.Context, postID int64) error {
	cancelled, err := s.sp.Cancel(ctx, postID)
	if err != nil {
		return err
	}
	if !cancelled {
		return errors.New("post cannot be cancelled in its current state")
	}
	return nil
}

func (s *postService) Get(ctx context.Context, postID int64) (*models.ScheduledPost, error) {
	return s.sp.GetByID(ctx, postID)
}
