package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEventType enumerates the notification kinds sent to merchant apps.
type WebhookEventType string

const (
	EventPaymentSuccess WebhookEventType = "payment.success"
	EventPaymentFailed  WebhookEventType = "payment.failed"
)

// WebhookStatus represents the delivery state of a webhook event.
type WebhookStatus string

const (
	WebhookStatusPending WebhookStatus = "PENDING"
	WebhookStatusSent    WebhookStatus = "SENT"
	WebhookStatusFailed  WebhookStatus = "FAILED"
)

// WebhookEvent is the unit of work for the delivery engine. Payload,
// signature and the URL snapshot are fixed at enqueue time and stay
// identical across every delivery attempt.
type WebhookEvent struct {
	ID           uuid.UUID        `json:"id"`
	PaymentID    uuid.UUID        `json:"payment_id"`
	AppID        uuid.UUID        `json:"app_id"`
	EventType    WebhookEventType `json:"event_type"`
	WebhookURL   string           `json:"webhook_url"`
	Payload      string           `json:"payload"`   // JSON string
	Signature    string           `json:"signature"` // hex HMAC-SHA256 of Payload
	Status       WebhookStatus    `json:"status"`
	RetryCount   int              `json:"retry_count"`
	MaxRetries   int              `json:"max_retries"`
	NextRetryAt  time.Time        `json:"next_retry_at"`
	HTTPStatus   *int             `json:"http_status"`   // 0 = network failure, nil = never attempted
	ResponseBody *string          `json:"response_body"` // endpoint response or error message
	SentAt       *time.Time       `json:"sent_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// IsTerminal returns true once the event can never be attempted again.
func (e *WebhookEvent) IsTerminal() bool {
	return e.Status == WebhookStatusSent || e.Status == WebhookStatusFailed
}

// BuildEnqueueKey builds the dedupe key guarding against a payment trigger
// being delivered to this subsystem more than once.
func BuildEnqueueKey(paymentID uuid.UUID, eventType WebhookEventType) string {
	return paymentID.String() + ":" + string(eventType)
}
