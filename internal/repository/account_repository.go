package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilot/publisher/internal/models"
)

type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	ListExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]*models.Account, error)
	SetStatus(ctx context.Context, id int64, status, lastError string) error
	TouchSynced(ctx context.Context, id int64) error
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, user_id, account_id, account_username, page_id, access_token,
		token_expires_at, status, last_error, last_synced_at, created_at, updated_at`

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var a models.Account
	err := row.Scan(&a.ID, &a.UserID, &a.AccountID, &a.Username, &a.PageID, &a.AccessToken,
		&a.TokenExpiresAt, &a.Status, &a.LastError, &a.LastSyncedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &a, nil
}

func (r *accountRepository) ListExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE status = $1 AND token_expires_at BETWEEN $2 AND $3
		ORDER BY token_expires_at`

	rows, err := r.db.QueryContext(ctx, query, models.AccountStatusConnected, now, now.Add(window))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var a models.Account
		err := rows.Scan(&a.ID, &a.UserID, &a.AccountID, &a.Username, &a.PageID, &a.AccessToken,
			&a.TokenExpiresAt, &a.Status, &a.LastError, &a.LastSyncedAt, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, &a)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) SetStatus(ctx context.Context, id int64, status, lastError string) error {
	query := `
		UPDATE accounts
		SET status = $1,
			last_error = $2,
			updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, status, lastError, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) TouchSynced(ctx context.Context, id int64) error {
	query := `UPDATE accounts SET last_synced_at = $1, updated_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
