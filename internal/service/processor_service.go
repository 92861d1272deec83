package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	config "github.com/postpilot/publisher/configs"
	"github.com/postpilot/publisher/internal/models"
	"github.com/postpilot/publisher/internal/repository"
	"github.com/postpilot/publisher/internal/transfer"
)

// skip reasons surfaced to users, kept in the product language
const (
	SkipReasonAccountNotConnected = "Conta não conectada"
	SkipReasonTokenExpired        = "Token expirado"
	SkipReasonNoMedia             = "Sem mídia para publicar"
	SkipReasonMediaMissing        = "Mídia não encontrada no armazenamento"
	SkipReasonAlreadyClaimed      = "Post já reivindicado por outra execução"
	SkipReasonNotDue              = "Post ainda não chegou ao horário agendado"
)

// MediaVerifier confirms a media URL is still retrievable before an attempt
// is spent on it.
type MediaVerifier interface {
	VerifyMediaURL(ctx context.Context, mediaURL string) bool
}

// ProcessorService finds due work, enforces the per-run batch cap and drives
// each post through the publish protocol sequentially. The protocol is serial
// per post anyway (create, poll, publish), and a sequential batch keeps the
// rate-limit exposure per run predictable.
type ProcessorService interface {
	ProcessPendingPosts(ctx context.Context) *transfer.ProcessingResult
	ProcessRetries(ctx context.Context) *transfer.ProcessingResult
	ProcessPost(ctx context.Context, postID int64) (*transfer.PostResult, error)
	GetStats(ctx context.Context) (*transfer.PublishingStats, error)
}

type processorService struct {
	batchSize int
	sp        repository.ScheduledPostRepository
	ac        AccountService
	pub       PublishService
	nt        Notifier
	mv        MediaVerifier
	now       func() time.Time
}

func NewProcessorService(
	cfg config.Config,
	sp repository.ScheduledPostRepository,
	ac AccountService,
	pub PublishService,
	nt Notifier,
	mv MediaVerifier) ProcessorService {
	return &processorService{
		batchSize: cfg.Publishing.BatchSize,
		sp:        sp,
		ac:        ac,
		pub:       pub,
		nt:        nt,
		mv:        mv,
		now:       time.Now,
	}
}

func (s *processorService) ProcessPendingPosts(ctx context.Context) *transfer.ProcessingResult {
	summary := newSummary()
	slog.Info("processing scheduled posts", "run_id", summary.RunID)

	posts, err := s.sp.ListDue(ctx, s.now(), s.batchSize)
	if err != nil {
		slog.Error("failed to select due posts", "run_id", summary.RunID, "error", err)
		return summary
	}
	slog.Info("due posts selected", "run_id", summary.RunID, "count", len(posts))

	for _, post := range posts {
		s.processItem(ctx, post, summary, false)
	}

	summary.TotalProcessed = summary.Successful + summary.Failed + summary.Skipped
	slog.Info("run finished", "run_id", summary.RunID,
		"successful", summary.Successful, "failed", summary.Failed, "skipped", summary.Skipped)
	return summary
}

func (s *processorService) ProcessRetries(ctx context.Context) *transfer.ProcessingResult {
	summary := newSummary()
	slog.Info("processing retries", "run_id", summary.RunID)

	posts, err := s.sp.ListRetryDue(ctx, s.now(), s.batchSize)
	if err != nil {
		slog.Error("failed to select retry posts", "run_id", summary.RunID, "error", err)
		return summary
	}
	slog.Info("retry posts selected", "run_id", summary.RunID, "count", len(posts))

	for _, post := range posts {
		s.processItem(ctx, post, summary, true)
	}

	summary.TotalProcessed = summary.Successful + summary.Failed + summary.Skipped
	slog.Info("retry run finished", "run_id", summary.RunID,
		"successful", summary.Successful, "failed", summary.Failed, "skipped", summary.Skipped)
	return summary
}

// ProcessPost drives a single post through the same path as a batch run. It
// backs the delayed-task worker; the claim below keeps the two entry points
// from double-publishing.
func (s *processorService) ProcessPost(ctx context.Context, postID int64) (*transfer.PostResult, error) {
	post, err := s.sp.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("post %d not found", postID)
	}
	if post.Status != models.PostStatusScheduled {
		return &transfer.PostResult{PostID: postID, Status: transfer.PostResultSkipped, Reason: SkipReasonAlreadyClaimed}, nil
	}
	if post.ScheduledFor.After(s.now()) {
		return &transfer.PostResult{PostID: postID, Status: transfer.PostResultSkipped, Reason: SkipReasonNotDue}, nil
	}

	summary := newSummary()
	s.processItem(ctx, post, summary, false)
	result := summary.Results[len(summary.Results)-1]
	return &result, nil
}

func (s *processorService) GetStats(ctx context.Context) (*transfer.PublishingStats, error) {
	return s.sp.Stats(ctx, s.now())
}

// processItem contains failures per post: whatever happens to one item, the
// batch carries on with the next.
func (s *processorService) processItem(ctx context.Context, post *models.ScheduledPost, summary *transfer.ProcessingResult, isRetry bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing post", "post_id", post.ID, "panic", r)
			summary.Failed++
			summary.Results = append(summary.Results, transfer.PostResult{
				PostID: post.ID,
				Status: transfer.PostResultFailed,
				Error:  fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	account, err := s.ac.GetByID(ctx, post.AccountID)
	if err != nil {
		slog.Error("failed to load account", "post_id", post.ID, "account_id", post.AccountID, "error", err)
		summary.Failed++
		summary.Results = append(summary.Results, transfer.PostResult{
			PostID: post.ID,
			Status: transfer.PostResultFailed,
			Error:  err.Error(),
		})
		return
	}

	if ok, reason := s.checkAndDowngradeIfExpired(ctx, post, account); !ok {
		summary.Skipped++
		summary.Results = append(summary.Results, transfer.PostResult{
			PostID: post.ID,
			Status: transfer.PostResultSkipped,
			Reason: reason,
		})
		return
	}

	if isRetry {
		if err := s.sp.ResetToScheduled(ctx, post.ID); err != nil {
			slog.Error("failed to reset post for retry", "post_id", post.ID, "error", err)
			summary.Failed++
			summary.Results = append(summary.Results, transfer.PostResult{
				PostID: post.ID,
				Status: transfer.PostResultFailed,
				Error:  err.Error(),
			})
			return
		}
		post.Status = models.PostStatusScheduled
	}

	claimed, err := s.sp.ClaimForPublishing(ctx, post.ID)
	if err != nil {
		slog.Error("failed to claim post", "post_id", post.ID, "error", err)
		summary.Failed++
		summary.Results = append(summary.Results, transfer.PostResult{
			PostID: post.ID,
			Status: transfer.PostResultFailed,
			Error:  err.Error(),
		})
		return
	}
	if !claimed {
		// someone else won the claim; back off without touching the protocol
		summary.Skipped++
		summary.Results = append(summary.Results, transfer.PostResult{
			PostID: post.ID,
			Status: transfer.PostResultSkipped,
			Reason: SkipReasonAlreadyClaimed,
		})
		return
	}
	post.Status = models.PostStatusPublishing

	slog.Info("publishing post", "post_id", post.ID, "account", account.Username, "retry_count", post.RetryCount)
	result := s.pub.PublishPost(ctx, post, account)

	if result.Success {
		summary.Successful++
		summary.Results = append(summary.Results, transfer.PostResult{
			PostID:     post.ID,
			Status:     transfer.PostResultSuccess,
			MediaID:    result.MediaID,
			Permalink:  result.Permalink,
			RetryCount: post.RetryCount,
		})
		if err := s.ac.MarkSynced(ctx, account.ID); err != nil {
			slog.Info(err.Error())
		}
		return
	}

	summary.Failed++
	summary.Results = append(summary.Results, transfer.PostResult{
		PostID:     post.ID,
		Status:     transfer.PostResultFailed,
		RetryCount: post.RetryCount,
		Error:      result.ErrorMessage,
	})
}

// checkAndDowngradeIfExpired is the precondition gate. The name makes the
// side effect explicit: an invalid credential downgrades the account to
// credential_expired and notifies the user, so every other due post on that
// account degrades to a skip instead of burning publish attempts.
func (s *processorService) checkAndDowngradeIfExpired(ctx context.Context, post *models.ScheduledPost, account *models.Account) (bool, string) {
	if account == nil || account.Status != models.AccountStatusConnected {
		s.markSkipped(ctx, post, SkipReasonAccountNotConnected)
		return false, SkipReasonAccountNotConnected
	}

	if !s.ac.IsCredentialValid(account) {
		slog.Warn("credential expired", "account", account.Username, "account_id", account.ID)
		s.markSkipped(ctx, post, SkipReasonTokenExpired)
		if err := s.ac.MarkCredentialExpired(ctx, account.ID); err != nil {
			slog.Info(err.Error())
		}
		s.nt.NotifyCredentialExpired(ctx, account)
		return false, SkipReasonTokenExpired
	}

	if len(post.MediaURLs) == 0 {
		s.markSkipped(ctx, post, SkipReasonNoMedia)
		return false, SkipReasonNoMedia
	}

	if s.mv != nil {
		for _, mediaURL := range post.MediaURLs {
			if !s.mv.VerifyMediaURL(ctx, mediaURL) {
				s.markSkipped(ctx, post, SkipReasonMediaMissing)
				return false, SkipReasonMediaMissing
			}
		}
	}

	return true, ""
}

func (s *processorService) markSkipped(ctx context.Context, post *models.ScheduledPost, reason string) {
	if err := s.sp.SetLastError(ctx, post.ID, "Ignorado: "+reason); err != nil {
		slog.Info(err.Error())
	}
}

func newSummary() *transfer.ProcessingResult {
	runID, err := gonanoid.New()
	if err != nil {
		runID = "unknown"
	}
	return &transfer.ProcessingResult{RunID: runID}
}
