package ports

import (
	"context"
	"time"

	"payment-webhook-engine/internal/core/domain"

	"github.com/google/uuid"
)

// WebhookEventRepository defines persistence operations for webhook events.
//
// The Mark* transitions are conditional writes: they apply only while the
// row is still PENDING and report whether the transition won. This is the
// sole coordination mechanism between concurrent delivery attempts.
type WebhookEventRepository interface {
	Create(ctx context.Context, event *domain.WebhookEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error)
	// GetPendingByID fetches the event only while its status is still PENDING.
	// Returns nil for terminal or unknown events.
	GetPendingByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID, httpStatus int, responseBody string) (bool, error)
	MarkRetryScheduled(ctx context.Context, id uuid.UUID, retryCount int, httpStatus int, responseBody string, nextRetryAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, httpStatus int, responseBody string) (bool, error)
	// FindDueRetries returns ids of PENDING events whose next_retry_at has
	// passed, oldest first, capped at limit.
	FindDueRetries(ctx context.Context, limit int) ([]uuid.UUID, error)
	ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.WebhookEvent, error)
}

// AppRepository defines persistence operations for merchant apps.
type AppRepository interface {
	Create(ctx context.Context, app *domain.App) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.App, error)
}
