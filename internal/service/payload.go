package service

import (
	"encoding/json"
	"time"

	"payment-webhook-engine/internal/core/domain"
)

// WebhookPayload is the JSON structure sent to the app's webhook_url.
// Field order is fixed so the serialized form is deterministic and the
// signature computed at enqueue time stays valid across retries.
type WebhookPayload struct {
	Event         string      `json:"event"`
	PaymentID     string      `json:"payment_id"`
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"currency"`
	Reference     string      `json:"reference"`
	Status        string      `json:"status"`
	FailureReason *string     `json:"failure_reason,omitempty"`
	Timestamp     string      `json:"timestamp"`
}

// BuildSuccessPayload serializes a successful payment into the
// payment.success webhook body.
func BuildSuccessPayload(payment *domain.Payment, at time.Time) (string, error) {
	return buildPayload(payment, domain.EventPaymentSuccess, at)
}

// BuildFailurePayload serializes a failed payment into the payment.failed
// webhook body, carrying the failure reason when the payment has one.
func BuildFailurePayload(payment *domain.Payment, at time.Time) (string, error) {
	return buildPayload(payment, domain.EventPaymentFailed, at)
}

// Amount is emitted as a raw JSON number to preserve decimal precision.
// Timestamp is RFC3339 in UTC.
func buildPayload(payment *domain.Payment, eventType domain.WebhookEventType, at time.Time) (string, error) {
	p := WebhookPayload{
		Event:     string(eventType),
		PaymentID: payment.ID.String(),
		Amount:    json.Number(payment.Amount.String()),
		Currency:  payment.Currency,
		Reference: payment.Reference,
		Status:    string(domain.PaymentStatusSuccess),
		Timestamp: at.UTC().Format(time.RFC3339),
	}
	// The status literal follows the event kind, not the payment record,
	// so the two can never disagree on the wire.
	if eventType == domain.EventPaymentFailed {
		p.Status = string(domain.PaymentStatusFailed)
		p.FailureReason = payment.FailureReason
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
