package domain

import (
	"time"

	"github.com/google/uuid"
)

// App represents a merchant application registered to receive webhooks.
type App struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	WebhookURL       *string   `json:"webhook_url,omitempty"` // nil = notifications disabled
	WebhookSecretEnc string    `json:"-"`                     // AES-256-GCM encrypted, never expose
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasWebhook returns true if the app has a delivery endpoint configured.
func (a *App) HasWebhook() bool {
	return a.WebhookURL != nil && *a.WebhookURL != ""
}
