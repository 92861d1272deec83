package service

import (
	"context"
	"testing"
	"time"

	"github.com/postpilot/publisher/internal/models"
	"github.com/postpilot/publisher/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processorFixture struct {
	repo      *fakePostRepo
	accounts  *fakeAccountRepo
	publisher *fakePublisher
	notifier  *fakeNotifier
	verifier  *fakeVerifier
	processor *processorService
}

func newProcessorFixture() *processorFixture {
	repo := newFakePostRepo()
	accounts := newFakeAccountRepo()
	publisher := &fakePublisher{repo: repo, results: map[int64]*transfer.PublishResult{}}
	notifier := &fakeNotifier{}
	verifier := &fakeVerifier{missing: map[string]bool{}}

	processor := &processorService{
		batchSize: 10,
		sp:        repo,
		ac:        NewAccountService(accounts),
		pub:       publisher,
		nt:        notifier,
		mv:        verifier,
		now:       time.Now,
	}

	return &processorFixture{
		repo:      repo,
		accounts:  accounts,
		publisher: publisher,
		notifier:  notifier,
		verifier:  verifier,
		processor: processor,
	}
}

func (f *processorFixture) addAccount(status string, expiresIn time.Duration) *models.Account {
	account := &models.Account{
		ID:             int64(len(f.accounts.accounts) + 1),
		AccountID:      "17890000000000001",
		Username:       "creator",
		AccessToken:    "token",
		TokenExpiresAt: time.Now().Add(expiresIn),
		Status:         status,
	}
	f.accounts.accounts[account.ID] = account
	return account
}

func (f *processorFixture) addDuePost(accountID int64, urls ...string) *models.ScheduledPost {
	post := f.repo.add(&models.ScheduledPost{
		AccountID:    accountID,
		Caption:      "caption",
		MediaType:    models.MediaTypeImage,
		MediaURLs:    urls,
		ScheduledFor: time.Now().Add(-time.Minute),
		Status:       models.PostStatusScheduled,
		MaxRetries:   models.DefaultMaxRetries,
	})
	f.repo.due = append(f.repo.due, post)
	return post
}

func TestProcessPendingPosts(t *testing.T) {
	assert := assert.New(t)

	f := newProcessorFixture()
	account := f.addAccount(models.AccountStatusConnected, 60*24*time.Hour)
	ok := f.addDuePost(account.ID, "https://cdn.example.com/a.jpg")
	bad := f.addDuePost(account.ID, "https://cdn.example.com/b.jpg")
	f.publisher.results[bad.ID] = &transfer.PublishResult{Success: false, ErrorCode: ErrCodeProcessingError, ErrorMessage: "Erro no processamento"}

	summary := f.processor.ProcessPendingPosts(context.Background())

	assert.Equal(2, summary.TotalProcessed)
	assert.Equal(1, summary.Successful)
	assert.Equal(1, summary.Failed)
	assert.Equal(0, summary.Skipped)
	assert.NotEmpty(summary.RunID)
	require.Len(t, summary.Results, 2)

	assert.Equal(models.PostStatusPublished, f.repo.posts[ok.ID].Status)
	assert.Equal(models.PostStatusFailed, f.repo.posts[bad.ID].Status)
	assert.NotNil(account.LastSyncedAt)
}

func TestExpiredCredentialSkipsAndDowngrades(t *testing.T) {
	assert := assert.New(t)

	f := newProcessorFixture()
	// expires inside the safety buffer: still in the future, but unusable
	account := f.addAccount(models.AccountStatusConnected, 6*time.Hour)
	post := f.addDuePost(account.ID, "https://cdn.example.com/a.jpg")

	summary := f.processor.ProcessPendingPosts(context.Background())

	assert.Equal(1, summary.Skipped)
	assert.Equal(0, summary.Failed)
	require.Len(t, summary.Results, 1)
	assert.Equal(transfer.PostResultSkipped, summary.Results[0].Status)
	assert.Equal(SkipReasonTokenExpired, summary.Results[0].Reason)

	assert.Equal(models.AccountStatusCredentialExpired, account.Status)
	assert.Equal([]int64{account.ID}, f.notifier.expired)
	assert.Empty(f.publisher.calls)
	assert.Equal("Ignorado: Token expirado", f.repo.posts[post.ID].LastError)
}

func TestDisconnectedAccountSkips(t *testing.T) {
	assert := assert.New(t)

	f := newProcessorFixture()
	account := f.addAccount(models.AccountStatusDisconnected, 60*24*time.Hour)
	f.addDuePost(account.ID, "https://cdn.example.com/a.jpg")

	summary := f.processor.ProcessPendingPosts(context.Background())

	assert.Equal(1, summary.Skipped)
	assert.Equal(SkipReasonAccountNotConnected, summary.Results[0].Reason)
	// downgrade only happens for expired credentials
	assert.Equal(models.AccountStatusDisconnected, account.Status)
	assert.Empty(f.notifier.expired)
}

func TestMissingMediaSkips(t *testing.T) {
	assert := assert.New(t)

	f := newProcessorFixture()
	account := f.addAccount(models.AccountStatusConnected, 60*24*time.Hour)
	f.addDuePost(account.ID)

	summary := f.processor.ProcessPendingPosts(context.Background())

	assert.Equal(1, summary.Skipped)
	assert.Equal(SkipReasonNoMedia, summary.Results[0].Reason)
	assert.Empty(f.publisher.calls)
}

func TestUnverifiableMediaSkips(t *testing.T) {
	assert := assert.New(t)

	f := newProcessorFixture()
	account := f.addAccount(models.AccountStatusConnected, 60*24*time.Hour)
	f.addDuePost(account.ID, "https://cdn.example.com/gone.jpg")
	f.verifier.missing["https://cdn.example.com/gone.jpg"] = true

	summary := f.processor.ProcessPendingPosts(context.Background())

	assert.Equal(1, summary.Skipped)
	assert.Equal(SkipReasonMediaMissing, summary.Results[0].Reason)
}

func TestClaimIsExclusive(t *testing.T) {
	assert := assert.New(t)

	f := newProcessorFixture()
	account := f.addAccount(models.AccountStatusConnected, 60*24*time.Hour)
	post := f.addDuePost(account.ID, "https://cdn.example.com/a.jpg")

	claimed, err := f.repo.ClaimForPublishing(context.Background(), post.ID)
	assert.NoError(err)
	assert.True(claimed)

	// the losing claimant backs off without touching the protocol
	summary := f.processor.ProcessPendingPosts(context.Background())

	assert.Equal(1, summary.Skipped)
	assert.Equal(SkipReasonAlreadyClaimed, summary.Results[0].Reason)
	assert.Empty(f.publisher.calls)
}

func TestProcessRetriesReschedulesThroughSamePath(t *testing.T) {
	assert := assert.New(t)

	f := newProcessorFixture()
	account := f.addAccount(models.AccountStatusConnected, 60*24*time.Hour)

	nextRetry := time.Now().Add(-time.Minute)
	post := f.repo.add(&models.ScheduledPost{
		AccountID:    account.ID,
		Caption:      "retry me",
		MediaType:    models.MediaTypeImage,
		MediaURLs:    []string{"https://cdn.example.com/a.jpg"},
		ScheduledFor: time.Now().Add(-2 * time.Hour),
		Status:       models.PostStatusFailed,
		RetryCount:   1,
		MaxRetries:   models.DefaultMaxRetries,
		NextRetryAt:  &nextRetry,
		LastError:    "Erro no processamento",
	})
	f.repo.retryDue = append(f.repo.retryDue, post)

	summary := f.processor.ProcessRetries(context.Background())

	assert.Equal(1, summary.Successful)
	assert.Equal([]int64{post.ID}, f.publisher.calls)
	assert.Equal(models.PostStatusPublished, f.repo.posts[post.ID].Status)
}

func TestCheckAndDowngradeIsStableForValidAccounts(t *testing.T) {
	assert := assert.New(t)

	f := newProcessorFixture()
	account := f.addAccount(models.AccountStatusConnected, 60*24*time.Hour)
	post := f.addDuePost(account.ID, "https://cdn.example.com/a.jpg")

	ok1, reason1 := f.processor.checkAndDowngradeIfExpired(context.Background(), post, account)
	ok2, reason2 := f.processor.checkAndDowngradeIfExpired(context.Background(), post, account)

	assert.True(ok1)
	assert.True(ok2)
	assert.Equal(reason1, reason2)
	assert.Empty(f.notifier.expired)
}

func TestBatchSizeCapsRun(t *testing.T) {
	assert := assert.New(t)

	f := newProcessorFixture()
	f.processor.batchSize = 2
	account := f.addAccount(models.AccountStatusConnected, 60*24*time.Hour)
	for i := 0; i < 5; i++ {
		f.addDuePost(account.ID, "https://cdn.example.com/a.jpg")
	}

	summary := f.processor.ProcessPendingPosts(context.Background())

	assert.Equal(2, summary.TotalProcessed)
	assert.Len(f.publisher.calls, 2)
}

func TestGetStats(t *testing.T) {
	assert := assert.New(t)

	f := newProcessorFixture()
	account := f.addAccount(models.AccountStatusConnected, 60*24*time.Hour)
	f.addDuePost(account.ID, "https://cdn.example.com/a.jpg")
	f.repo.add(&models.ScheduledPost{
		AccountID:    account.ID,
		MediaType:    models.MediaTypeImage,
		MediaURLs:    []string{"https://cdn.example.com/b.jpg"},
		ScheduledFor: time.Now().Add(time.Hour),
		Status:       models.PostStatusScheduled,
	})

	stats, err := f.processor.GetStats(context.Background())

	assert.NoError(err)
	assert.Equal(1, stats.PendingNow)
	assert.Equal(1, stats.ScheduledFuture)
}
