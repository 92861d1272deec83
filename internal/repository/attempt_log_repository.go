package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilot/publisher/internal/models"
)

type AttemptLogRepository interface {
	Create(ctx context.Context, log *models.AttemptLog) (int64, error)
	SetStep(ctx context.Context, id int64, step, status string) error
	SetRequest(ctx context.Context, id int64, endpoint string, requestData []byte) error
	SetStatus(ctx context.Context, id int64, status string) error
	Complete(ctx context.Context, id int64, status string, responseData []byte, errorCode, errorMessage string, errorDetails []byte) error
	ListByPostID(ctx context.Context, postID int64) ([]*models.AttemptLog, error)
}

type attemptLogRepository struct {
	db *sql.DB
}

func NewAttemptLogRepository(db *sql.DB) AttemptLogRepository {
	return &attemptLogRepository{db: db}
}

func (r *attemptLogRepository) Create(ctx context.Context, log *models.AttemptLog) (int64, error) {
	query := `
		INSERT INTO attempt_logs (post_id, attempt_number, status, step, started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	startedAt := log.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query, log.PostID, log.AttemptNumber, log.Status, log.Step, startedAt).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *attemptLogRepository) SetStep(ctx context.Context, id int64, step, status string) error {
	query := `UPDATE attempt_logs SET step = $1, status = $2 WHERE id = $3 AND completed_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, step, status, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *attemptLogRepository) SetRequest(ctx context.Context, id int64, endpoint string, requestData []byte) error {
	query := `UPDATE attempt_logs SET api_endpoint = $1, request_data = $2 WHERE id = $3 AND completed_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, endpoint, requestData, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// SetStatus flips the terminal status only. It is the one mutation allowed
// after completion (error → retry when a retry gets scheduled).
func (r *attemptLogRepository) SetStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE attempt_logs SET status = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Complete closes the attempt exactly once; the completed_at guard makes a
// second call a no-op.
func (r *attemptLogRepository) Complete(ctx context.Context, id int64, status string, responseData []byte, errorCode, errorMessage string, errorDetails []byte) error {
	query := `
		UPDATE attempt_logs
		SET status = $1,
			response_data = COALESCE($2, response_data),
			error_code = $3,
			error_message = $4,
			error_details = COALESCE($5, error_details),
			completed_at = $6,
			duration_ms = (EXTRACT(EPOCH FROM ($6::timestamptz - started_at)) * 1000)::bigint
		WHERE id = $7 AND completed_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, status, responseData, errorCode, errorMessage, errorDetails, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *attemptLogRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.AttemptLog, error) {
	query := `
		SELECT id, post_id, attempt_number, status, step, api_endpoint, request_data,
			response_data, error_code, error_message, error_details, started_at, completed_at, duration_ms
		FROM attempt_logs
		WHERE post_id = $1
		ORDER BY attempt_number, started_at
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var logs []*models.AttemptLog
	for rows.Next() {
		var l models.AttemptLog
		err := rows.Scan(&l.ID, &l.PostID, &l.AttemptNumber, &l.Status, &l.Step, &l.Endpoint,
			&l.RequestData, &l.ResponseData, &l.ErrorCode, &l.ErrorMessage, &l.ErrorDetails,
			&l.StartedAt, &l.CompletedAt, &l.DurationMS)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return logs, nil
}
