package dto

import "github.com/shopspring/decimal"

// PaymentNotificationRequest is the request body the payment component
// posts when a payment reaches a terminal state.
type PaymentNotificationRequest struct {
	PaymentID     string          `json:"payment_id" binding:"required,uuid"`
	AppID         string          `json:"app_id" binding:"required,uuid"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	Currency      string          `json:"currency" binding:"required,len=3"`
	Reference     string          `json:"reference" binding:"required,max=100"`
	FailureReason *string         `json:"failure_reason,omitempty"`
}

// PaymentNotificationResponse acknowledges an accepted notification.
type PaymentNotificationResponse struct {
	PaymentID string `json:"payment_id"`
	Accepted  bool   `json:"accepted"`
}

// WebhookEventResponse is the read model for a webhook event.
type WebhookEventResponse struct {
	ID           string  `json:"id"`
	PaymentID    string  `json:"payment_id"`
	AppID        string  `json:"app_id"`
	EventType    string  `json:"event_type"`
	WebhookURL   string  `json:"webhook_url"`
	Payload      string  `json:"payload"`
	Signature    string  `json:"signature"`
	Status       string  `json:"status"`
	RetryCount   int     `json:"retry_count"`
	MaxRetries   int     `json:"max_retries"`
	NextRetryAt  string  `json:"next_retry_at"`
	HTTPStatus   *int    `json:"http_status,omitempty"`
	ResponseBody *string `json:"response_body,omitempty"`
	SentAt       *string `json:"sent_at,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// WebhookEventListResponse wraps a payment's webhook events.
type WebhookEventListResponse struct {
	Events []WebhookEventResponse `json:"events"`
	Total  int                    `json:"total"`
}
