package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/postpilot/publisher/internal/repository"
	"github.com/postpilot/publisher/internal/service"
)

// PublishJob adapts the batch processor to the cron scheduler: RunPending and
// RunRetries are the only two entry points the external schedule invokes.
type PublishJob struct {
	pr service.ProcessorService
}

func NewPublishJob(pr service.ProcessorService) *PublishJob {
	return &PublishJob{pr: pr}
}

func (j *PublishJob) RunPending() {
	summary := j.pr.ProcessPendingPosts(context.Background())
	slog.Info("pending run summary", "run_id", summary.RunID, "total", summary.TotalProcessed,
		"successful", summary.Successful, "failed", summary.Failed, "skipped", summary.Skipped)
}

func (j *PublishJob) RunRetries() {
	summary := j.pr.ProcessRetries(context.Background())
	slog.Info("retry run summary", "run_id", summary.RunID, "total", summary.TotalProcessed,
		"successful", summary.Successful, "failed", summary.Failed, "skipped", summary.Skipped)
}

// CredentialWatchJob warns users whose account tokens lapse soon, before the
// pipeline starts skipping their posts.
type CredentialWatchJob struct {
	ar repository.AccountRepository
	ac service.AccountService
	nt service.Notifier
}

func NewCredentialWatchJob(ar repository.AccountRepository, ac service.AccountService, nt service.Notifier) *CredentialWatchJob {
	return &CredentialWatchJob{ar: ar, ac: ac, nt: nt}
}

func (j *CredentialWatchJob) WarnExpiring() {
	ctx := context.Background()

	accounts, err := j.ar.ListExpiringWithin(ctx, time.Now(), 7*24*time.Hour)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	for _, acc := range accounts {
		j.nt.NotifyCredentialExpiring(ctx, acc, j.ac.DaysUntilExpiration(acc))
	}
}
