package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
	PostStatusCancelled  = "cancelled"
)

const (
	MediaTypeImage    = "image"
	MediaTypeVideo    = "video"
	MediaTypeCarousel = "carousel"
	MediaTypeReel     = "reel"
	MediaTypeStory    = "story"
)

const (
	// CaptionMaxLength is the platform limit for captions.
	CaptionMaxLength = 2200

	CarouselMinItems = 2
	CarouselMaxItems = 10

	// RetryBaseDelay is the first retry backoff; each further retry doubles it.
	RetryBaseDelay = 15 * time.Minute

	DefaultMaxRetries = 3
)

type ScheduledPost struct {
	ID           int64          `db:"id" json:"id"`
	AccountID    int64          `db:"account_id" json:"account_id"`
	Caption      string         `db:"caption" json:"caption"`
	MediaType    string         `db:"media_type" json:"media_type"`
	MediaURLs    pq.StringArray `db:"media_urls" json:"media_urls"`
	ScheduledFor time.Time      `db:"scheduled_for" json:"scheduled_for"`
	Timezone     string         `db:"timezone" json:"timezone"`
	Status       string         `db:"status" json:"status"`
	ContainerID  string         `db:"container_id" json:"container_id"`
	MediaID      string         `db:"media_id" json:"media_id"`
	Permalink    string         `db:"permalink" json:"permalink"`
	PublishedAt  *time.Time     `db:"published_at" json:"published_at"`
	RetryCount   int            `db:"retry_count" json:"retry_count"`
	MaxRetries   int            `db:"max_retries" json:"max_retries"`
	NextRetryAt  *time.Time     `db:"next_retry_at" json:"next_retry_at"`
	LastError    string         `db:"last_error" json:"last_error"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// ValidateMedia enforces the per-kind media URL bounds: carousels carry 2 to 10
// items, every other kind exactly one.
func (p *ScheduledPost) ValidateMedia() error {
	n := len(p.MediaURLs)
	if p.MediaType == MediaTypeCarousel {
		if n < CarouselMinItems || n > CarouselMaxItems {
			return fmt.Errorf("carousel requires %d to %d media urls, got %d", CarouselMinItems, CarouselMaxItems, n)
		}
		return nil
	}
	if n != 1 {
		return fmt.Errorf("media type %s requires exactly 1 media url, got %d", p.MediaType, n)
	}
	return nil
}

func (p *ScheduledPost) ValidateCaption() error {
	if len([]rune(p.Caption)) > CaptionMaxLength {
		return errors.New("caption exceeds platform limit")
	}
	return nil
}

func (p *ScheduledPost) CanRetry() bool {
	return p.RetryCount < p.MaxRetries
}

// ScheduleRetry computes the exponential backoff for the next attempt and
// advances the retry counter. Callers must check CanRetry first; once the
// counter reaches max_retries the post stays failed and next_retry_at is
// never set again.
func (p *ScheduledPost) ScheduleRetry(now time.Time, baseDelay time.Duration) {
	if !p.CanRetry() {
		return
	}
	backoff := baseDelay * (1 << p.RetryCount)
	next := now.Add(backoff)
	p.NextRetryAt = &next
	p.RetryCount++
}

// IsReadyToPublish is advisory, for diagnostics and listings. The batch
// processor runs its own precondition check before claiming a post.
func (p *ScheduledPost) IsReadyToPublish(account *Account, now time.Time) bool {
	if p.Status != PostStatusScheduled {
		return false
	}
	if p.ScheduledFor.After(now) {
		return false
	}
	if account == nil || !account.IsCredentialValid(now) {
		return false
	}
	return len(p.MediaURLs) > 0
}

// CanCancel reports whether the post may still be cancelled. Once publishing
// has started the protocol runs to completion.
func (p *ScheduledPost) CanCancel() bool {
	switch p.Status {
	case PostStatusDraft, PostStatusScheduled, PostStatusFailed:
		return true
	}
	return false
}
