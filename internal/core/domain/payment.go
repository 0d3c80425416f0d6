package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the outcome reported by the payment component.
type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// Payment is the payment record consumed from the payment component.
// This subsystem never mutates or persists it; it only reads the fields
// needed to build a notification payload.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	AppID         uuid.UUID       `json:"app_id"`
	Amount        decimal.Decimal `json:"amount"` // fixed-point, never float
	Currency      string          `json:"currency"`
	Reference     string          `json:"reference"`
	Status        PaymentStatus   `json:"status"`
	FailureReason *string         `json:"failure_reason,omitempty"`
}
