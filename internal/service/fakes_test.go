package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/postpilot/publisher/internal/models"
	"github.com/postpilot/publisher/internal/transfer"
)

// in-memory repositories with the same semantics as the SQL ones, so the
// services can be exercised without a database

type fakePostRepo struct {
	mu    sync.Mutex
	seq   int64
	posts map[int64]*models.ScheduledPost

	due      []*models.ScheduledPost
	retryDue []*models.ScheduledPost

	claimAttempts int
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{posts: map[int64]*models.ScheduledPost{}}
}

func (f *fakePostRepo) add(post *models.ScheduledPost) *models.ScheduledPost {
	f.mu.Lock()
	defer f.mu.Unlock()
	if post.ID == 0 {
		f.seq++
		post.ID = f.seq
	}
	f.posts[post.ID] = post
	return post
}

func (f *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error) {
	if post.Status == "" {
		post.Status = models.PostStatusScheduled
	}
	if post.MaxRetries == 0 {
		post.MaxRetries = models.DefaultMaxRetries
	}
	return f.add(post).ID, nil
}

func (f *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts[id], nil
}

func (f *fakePostRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	if len(f.due) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakePostRepo) ListRetryDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	if len(f.retryDue) > limit {
		return f.retryDue[:limit], nil
	}
	return f.retryDue, nil
}

func (f *fakePostRepo) ClaimForPublishing(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimAttempts++
	p := f.posts[id]
	if p == nil || p.Status != models.PostStatusScheduled {
		return false, nil
	}
	p.Status = models.PostStatusPublishing
	return true, nil
}

func (f *fakePostRepo) ResetToScheduled(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.posts[id]; p != nil && p.Status == models.PostStatusFailed {
		p.Status = models.PostStatusScheduled
	}
	return nil
}

func (f *fakePostRepo) MarkPublished(ctx context.Context, id int64, containerID, mediaID, permalink string, publishedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.posts[id]; p != nil {
		p.Status = models.PostStatusPublished
		p.ContainerID = containerID
		p.MediaID = mediaID
		p.Permalink = permalink
		p.PublishedAt = &publishedAt
		p.LastError = ""
	}
	return nil
}

func (f *fakePostRepo) MarkFailed(ctx context.Context, id int64, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.posts[id]; p != nil {
		p.Status = models.PostStatusFailed
		p.LastError = lastError
	}
	return nil
}

func (f *fakePostRepo) SetContainerID(ctx context.Context, id int64, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.posts[id]; p != nil {
		p.ContainerID = containerID
	}
	return nil
}

func (f *fakePostRepo) SetRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.posts[id]; p != nil {
		p.RetryCount = retryCount
		p.NextRetryAt = &nextRetryAt
	}
	return nil
}

func (f *fakePostRepo) SetLastError(ctx context.Context, id int64, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.posts[id]; p != nil {
		p.LastError = lastError
	}
	return nil
}

func (f *fakePostRepo) Cancel(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.posts[id]
	if p == nil || !p.CanCancel() {
		return false, nil
	}
	p.Status = models.PostStatusCancelled
	return true, nil
}

func (f *fakePostRepo) Stats(ctx context.Context, now time.Time) (*transfer.PublishingStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats transfer.PublishingStats
	for _, p := range f.posts {
		switch p.Status {
		case models.PostStatusScheduled:
			if p.ScheduledFor.After(now) {
				stats.ScheduledFuture++
			} else {
				stats.PendingNow++
			}
		case models.PostStatusPublished:
			stats.PublishedToday++
		case models.PostStatusFailed:
			if p.NextRetryAt != nil && p.RetryCount < p.MaxRetries {
				stats.AwaitingRetry++
			}
			stats.FailedToday++
		}
	}
	return &stats, nil
}

type fakeAttemptLogRepo struct {
	mu   sync.Mutex
	seq  int64
	logs map[int64]*models.AttemptLog
}

func newFakeAttemptLogRepo() *fakeAttemptLogRepo {
	return &fakeAttemptLogRepo{logs: map[int64]*models.AttemptLog{}}
}

func (f *fakeAttemptLogRepo) Create(ctx context.Context, log *models.AttemptLog) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	log.ID = f.seq
	f.logs[log.ID] = log
	return log.ID, nil
}

func (f *fakeAttemptLogRepo) SetStep(ctx context.Context, id int64, step, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l := f.logs[id]; l != nil && l.CompletedAt == nil {
		l.Step = step
		l.Status = status
	}
	return nil
}

func (f *fakeAttemptLogRepo) SetRequest(ctx context.Context, id int64, endpoint string, requestData []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l := f.logs[id]; l != nil && l.CompletedAt == nil {
		l.Endpoint = endpoint
		l.RequestData = requestData
	}
	return nil
}

func (f *fakeAttemptLogRepo) SetStatus(ctx context.Context, id int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l := f.logs[id]; l != nil {
		l.Status = status
	}
	return nil
}

func (f *fakeAttemptLogRepo) Complete(ctx context.Context, id int64, status string, responseData []byte, errorCode, errorMessage string, errorDetails []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.logs[id]
	if l == nil || l.CompletedAt != nil {
		return nil
	}
	now := time.Now()
	l.Status = status
	if responseData != nil {
		l.ResponseData = responseData
	}
	l.ErrorCode = errorCode
	l.ErrorMessage = errorMessage
	if errorDetails != nil {
		l.ErrorDetails = errorDetails
	}
	l.CompletedAt = &now
	l.DurationMS = now.Sub(l.StartedAt).Milliseconds()
	return nil
}

func (f *fakeAttemptLogRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.AttemptLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AttemptLog
	for _, l := range f.logs {
		if l.PostID == postID {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: map[int64]*models.Account{}}
}

func (f *fakeAccountRepo) add(account *models.Account) *models.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[account.ID] = account
	return account
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[id], nil
}

func (f *fakeAccountRepo) ListExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Account
	for _, a := range f.accounts {
		if a.Status == models.AccountStatusConnected &&
			a.TokenExpiresAt.After(now) && a.TokenExpiresAt.Before(now.Add(window)) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) SetStatus(ctx context.Context, id int64, status, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a := f.accounts[id]; a != nil {
		a.Status = status
		a.LastError = lastError
	}
	return nil
}

func (f *fakeAccountRepo) TouchSynced(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a := f.accounts[id]; a != nil {
		now := time.Now()
		a.LastSyncedAt = &now
	}
	return nil
}

type fakePublisher struct {
	calls   []int64
	results map[int64]*transfer.PublishResult
	repo    *fakePostRepo
}

func (f *fakePublisher) PublishPost(ctx context.Context, post *models.ScheduledPost, account *models.Account) *transfer.PublishResult {
	f.calls = append(f.calls, post.ID)
	if result, ok := f.results[post.ID]; ok {
		if f.repo != nil && !result.Success {
			_ = f.repo.MarkFailed(ctx, post.ID, result.ErrorMessage)
			post.Status = models.PostStatusFailed
		}
		return result
	}
	if f.repo != nil {
		_ = f.repo.MarkPublished(ctx, post.ID, "c1", "m1", "https://example.com/p/1", time.Now())
		post.Status = models.PostStatusPublished
	}
	return &transfer.PublishResult{Success: true, ContainerID: "c1", MediaID: "m1", Permalink: "https://example.com/p/1"}
}

type fakeNotifier struct {
	expired  []int64
	expiring []int64
}

func (f *fakeNotifier) NotifyCredentialExpired(ctx context.Context, account *models.Account) {
	f.expired = append(f.expired, account.ID)
}

func (f *fakeNotifier) NotifyCredentialExpiring(ctx context.Context, account *models.Account, daysLeft int) {
	f.expiring = append(f.expiring, account.ID)
}

type fakeVerifier struct {
	missing map[string]bool
}

func (f *fakeVerifier) VerifyMediaURL(ctx context.Context, mediaURL string) bool {
	return !f.missing[mediaURL]
}
