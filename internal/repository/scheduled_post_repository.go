package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/postpilot/publisher/internal/models"
	"github.com/postpilot/publisher/internal/transfer"
)

type ScheduledPostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error)
	ListRetryDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error)
	ClaimForPublishing(ctx context.Context, id int64) (bool, error)
	ResetToScheduled(ctx context.Context, id int64) error
	MarkPublished(ctx context.Context, id int64, containerID, mediaID, permalink string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id int64, lastError string) error
	SetContainerID(ctx context.Context, id int64, containerID string) error
	SetRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time) error
	SetLastError(ctx context.Context, id int64, lastError string) error
	Cancel(ctx context.Context, id int64) (bool, error)
	Stats(ctx context.Context, now time.Time) (*transfer.PublishingStats, error)
}

type scheduledPostRepository struct {
	db *sql.DB
}

func NewScheduledPostRepository(db *sql.DB) ScheduledPostRepository {
	return &scheduledPostRepository{db: db}
}

const postColumns = `id, account_id, caption, media_type, media_urls, scheduled_for, timezone,
		status, container_id, media_id, permalink, published_at, retry_count, max_retries,
		next_retry_at, last_error, created_at, updated_at`

func scanPost(row interface{ Scan(...any) error }) (*models.ScheduledPost, error) {
	var p models.ScheduledPost
	err := row.Scan(&p.ID, &p.AccountID, &p.Caption, &p.MediaType, &p.MediaURLs, &p.ScheduledFor,
		&p.Timezone, &p.Status, &p.ContainerID, &p.MediaID, &p.Permalink, &p.PublishedAt,
		&p.RetryCount, &p.MaxRetries, &p.NextRetryAt, &p.LastError, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *scheduledPostRepository) Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error) {
	query := `
		INSERT INTO scheduled_posts (account_id, caption, media_type, media_urls, scheduled_for, timezone, status, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	maxRetries := post.MaxRetries
	if maxRetries == 0 {
		maxRetries = models.DefaultMaxRetries
	}
	status := post.Status
	if status == "" {
		status = models.PostStatusScheduled
	}

	var id int64
	var err error

	args := []any{post.AccountID, post.Caption, post.MediaType, pq.Array([]string(post.MediaURLs)),
		post.ScheduledFor, post.Timezone, status, maxRetries}

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *scheduledPostRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

// ListDue returns scheduled posts whose publish time has passed, oldest first,
// restricted to connected accounts and capped at limit.
func (r *scheduledPostRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	query := `
		SELECT ` + prefixedPostColumns("p") + `
		FROM scheduled_posts p
		JOIN accounts a ON a.id = p.account_id
		WHERE p.status = $1
			AND p.scheduled_for <= $2
			AND a.status = $3
		ORDER BY p.scheduled_for
		LIMIT $4
	`
	return r.listPosts(ctx, query, models.PostStatusScheduled, now, models.AccountStatusConnected, limit)
}

// ListRetryDue returns failed posts whose backoff has elapsed and that still
// have retries left, ordered by next_retry_at.
func (r *scheduledPostRepository) ListRetryDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	query := `
		SELECT ` + prefixedPostColumns("p") + `
		FROM scheduled_posts p
		JOIN accounts a ON a.id = p.account_id
		WHERE p.status = $1
			AND p.next_retry_at IS NOT NULL
			AND p.next_retry_at <= $2
			AND p.retry_count < p.max_retries
			AND a.status = $3
		ORDER BY p.next_retry_at
		LIMIT $4
	`
	return r.listPosts(ctx, query, models.PostStatusFailed, now, models.AccountStatusConnected, limit)
}

func (r *scheduledPostRepository) listPosts(ctx context.Context, query string, args ...any) ([]*models.ScheduledPost, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

// ClaimForPublishing is the single concurrency-control point of the pipeline:
// a conditional update that moves exactly one runner's post from scheduled to
// publishing. A concurrent claim sees zero rows affected and must back off.
func (r *scheduledPostRepository) ClaimForPublishing(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusPublishing, time.Now(), id, models.PostStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *scheduledPostRepository) ResetToScheduled(ctx context.Context, id int64) error {
	query := `
		UPDATE scheduled_posts
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusScheduled, time.Now(), id, models.PostStatusFailed)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) MarkPublished(ctx context.Context, id int64, containerID, mediaID, permalink string, publishedAt time.Time) error {
	query := `
		UPDATE scheduled_posts
		SET status = $1,
			container_id = $2,
			media_id = $3,
			permalink = $4,
			published_at = $5,
			last_error = '',
			updated_at = $6
		WHERE id = $7
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusPublished, containerID, mediaID, permalink, publishedAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) MarkFailed(ctx context.Context, id int64, lastError string) error {
	query := `
		UPDATE scheduled_posts
		SET status = $1,
			last_error = $2,
			updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, lastError, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) SetContainerID(ctx context.Context, id int64, containerID string) error {
	query := `UPDATE scheduled_posts SET container_id = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, containerID, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) SetRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time) error {
	query := `
		UPDATE scheduled_posts
		SET retry_count = $1,
			next_retry_at = $2,
			updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, retryCount, nextRetryAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) SetLastError(ctx context.Context, id int64, lastError string) error {
	query := `UPDATE scheduled_posts SET last_error = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, lastError, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Cancel only succeeds while the post is still in a cancellable state; a post
// that has entered publishing cannot be cancelled.
func (r *scheduledPostRepository) Cancel(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5, $6)
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusCancelled, time.Now(), id,
		models.PostStatusDraft, models.PostStatusScheduled, models.PostStatusFailed)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *scheduledPostRepository) Stats(ctx context.Context, now time.Time) (*transfer.PublishingStats, error) {
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $1 AND scheduled_for <= $2),
			COUNT(*) FILTER (WHERE status = $1 AND scheduled_for > $2),
			COUNT(*) FILTER (WHERE status = $3 AND published_at >= $4),
			COUNT(*) FILTER (WHERE status = $5 AND updated_at >= $4),
			COUNT(*) FILTER (WHERE status = $5 AND next_retry_at IS NOT NULL AND retry_count < max_retries)
		FROM scheduled_posts
	`

	var stats transfer.PublishingStats
	err := r.db.QueryRowContext(ctx, query,
		models.PostStatusScheduled, now,
		models.PostStatusPublished, todayStart,
		models.PostStatusFailed,
	).Scan(&stats.PendingNow, &stats.ScheduledFuture, &stats.PublishedToday, &stats.FailedToday, &stats.AwaitingRetry)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &stats, nil
}

func prefixedPostColumns(alias string) string {
	return alias + `.id, ` + alias + `.account_id, ` + alias + `.caption, ` + alias + `.media_type, ` +
		alias + `.media_urls, ` + alias + `.scheduled_for, ` + alias + `.timezone, ` + alias + `.status, ` +
		alias + `.container_id, ` + alias + `.media_id, ` + alias + `.permalink, ` + alias + `.published_at, ` +
		alias + `.retry_count, ` + alias + `.max_retries, ` + alias + `.next_retry_at, ` + alias + `.last_error, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}
