package models

import "time"

// CredentialExpiryBuffer is subtracted from the token expiry before the
// credential is treated as usable, so posts are never attempted with a token
// about to lapse mid-protocol.
const CredentialExpiryBuffer = 24 * time.Hour

const (
	AccountStatusConnected         = "connected"
	AccountStatusDisconnected      = "disconnected"
	AccountStatusCredentialExpired = "credential_expired"
	AccountStatusError             = "error"
)

type Account struct {
	ID             int64      `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	AccountID      string     `db:"account_id" json:"account_id"`
	Username       string     `db:"account_username" json:"account_username"`
	PageID         string     `db:"page_id" json:"page_id"`
	AccessToken    string     `db:"access_token" json:"-"`
	TokenExpiresAt time.Time  `db:"token_expires_at" json:"token_expires_at"`
	Status         string     `db:"status" json:"status"`
	LastError      string     `db:"last_error" json:"last_error"`
	LastSyncedAt   *time.Time `db:"last_synced_at" json:"last_synced_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// IsCredentialValid reports whether the account can be published to right now.
// The expiry is checked with the safety buffer applied.
func (a *Account) IsCredentialValid(now time.Time) bool {
	if a.Status == AccountStatusDisconnected || a.Status == AccountStatusError {
		return false
	}
	if a.TokenExpiresAt.IsZero() {
		return false
	}
	return a.TokenExpiresAt.Add(-CredentialExpiryBuffer).After(now)
}

func (a *Account) DaysUntilExpiration(now time.Time) int {
	if a.TokenExpiresAt.IsZero() {
		return 0
	}
	days := int(a.TokenExpiresAt.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// IsCredentialExpiringSoon reports whether the token lapses within the given
// number of days. Used to warn users ahead of the hard expiry.
func (a *Account) IsCredentialExpiringSoon(now time.Time, days int) bool {
	if a.TokenExpiresAt.IsZero() {
		return false
	}
	return a.TokenExpiresAt.Sub(now) < time.Duration(days)*24*time.Hour
}
