package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	config "github.com/postpilot/publisher/configs"
	"github.com/postpilot/publisher/internal/models"
)

const (
	NotificationCredentialExpired  = "credential_expired"
	NotificationCredentialExpiring = "credential_expiring"
)

// Notifier delivers user-facing notices about account credential problems.
// Delivery is fire and forget: a failed notification is logged and dropped,
// it never fails the publishing work that triggered it.
type Notifier interface {
	NotifyCredentialExpired(ctx context.Context, account *models.Account)
	NotifyCredentialExpiring(ctx context.Context, account *models.Account, daysLeft int)
}

type webhookNotifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewWebhookNotifier(cfg config.Config) Notifier {
	return &webhookNotifier{
		webhookURL: cfg.NotificationWebhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *webhookNotifier) NotifyCredentialExpired(ctx context.Context, account *models.Account) {
	message := fmt.Sprintf("🔒 A conexão com @%s foi perdida. Reconecte sua conta para continuar.", account.Username)
	n.send(ctx, account, NotificationCredentialExpired, message)
}

func (n *webhookNotifier) NotifyCredentialExpiring(ctx context.Context, account *models.Account, daysLeft int) {
	message := fmt.Sprintf("⚠️ A conexão com @%s expira em %d dias. Reconecte para continuar publicando.", account.Username, daysLeft)
	n.send(ctx, account, NotificationCredentialExpiring, message)
}

func (n *webhookNotifier) send(ctx context.Context, account *models.Account, reason, message string) {
	if n.webhookURL == "" {
		slog.Info("notification webhook not configured", "reason", reason, "account", account.Username)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"user_id":    account.UserID,
		"account_id": account.ID,
		"username":   account.Username,
		"reason":     reason,
		"message":    message,
	})
	if err != nil {
		slog.Info(err.Error())
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		slog.Info(err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		slog.Warn("failed to deliver notification", "reason", reason, "account", account.Username, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Warn("notification webhook rejected", "reason", reason, "status", resp.StatusCode)
	}
}
