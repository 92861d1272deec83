package service

import (
	"context"
	"time"

	"github.com/postpilot/publisher/internal/models"
	"github.com/postpilot/publisher/internal/repository"
)

// AccountService is the registry for connected publishing accounts. It owns
// the credential-validity rules and the (idempotent) downgrade transitions;
// nothing else mutates account status.
type AccountService interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	IsCredentialValid(account *models.Account) bool
	DaysUntilExpiration(account *models.Account) int
	MarkCredentialExpired(ctx context.Context, id int64) error
	MarkError(ctx context.Context, id int64, message string) error
	MarkSynced(ctx context.Context, id int64) error
}

type accountService struct {
	ar  repository.AccountRepository
	now func() time.Time
}

func NewAccountService(ar repository.AccountRepository) AccountService {
	return &accountService{ar: ar, now: time.Now}
}

func (s *accountService) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return s.ar.GetByID(ctx, id)
}

func (s *accountService) IsCredentialValid(account *models.Account) bool {
	if account == nil {
		return false
	}
	return account.IsCredentialValid(s.now())
}

func (s *accountService) DaysUntilExpiration(account *models.Account) int {
	if account == nil {
		return 0
	}
	return account.DaysUntilExpiration(s.now())
}

func (s *accountService) MarkCredentialExpired(ctx context.Context, id int64) error {
	return s.ar.SetStatus(ctx, id, models.AccountStatusCredentialExpired, "Token expirado")
}

func (s *accountService) MarkError(ctx context.Context, id int64, message string) error {
	return s.ar.SetStatus(ctx, id, models.AccountStatusError, message)
}

func (s *accountService) MarkSynced(ctx context.Context, id int64) error {
	return s.ar.TouchSynced(ctx, id)
}
