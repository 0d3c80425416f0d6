package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-webhook-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const webhookEventColumns = `id, payment_id, app_id, event_type, webhook_url, payload, signature,
		status, retry_count, max_retries, next_retry_at, http_status, response_body,
		sent_at, created_at, updated_at`

// WebhookEventRepo implements ports.WebhookEventRepository.
//
// All state transitions are conditional UPDATEs guarded by status='PENDING'.
// When the immediate delivery attempt and a scheduler sweep race on the same
// event, exactly one UPDATE reports a row affected and the loser becomes a
// no-op.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// Create inserts a new webhook event in PENDING state.
func (r *WebhookEventRepo) Create(ctx context.Context, e *domain.WebhookEvent) error {
	query := `INSERT INTO webhook_events (id, payment_id, app_id, event_type, webhook_url, payload, signature,
			status, retry_count, max_retries, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.PaymentID, e.AppID, e.EventType, e.WebhookURL,
		e.Payload, e.Signature, e.Status, e.RetryCount, e.MaxRetries, e.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// GetByID fetches a webhook event by its UUID regardless of status.
func (r *WebhookEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE id = $1`

	e, err := r.scanOne(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get webhook event by id: %w", err)
	}
	return e, nil
}

// GetPendingByID fetches a webhook event only if it is still PENDING.
// Returns nil without error when the event is absent or already terminal.
func (r *WebhookEventRepo) GetPendingByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE id = $1 AND status = 'PENDING'`

	e, err := r.scanOne(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get pending webhook event: %w", err)
	}
	return e, nil
}

// MarkSent transitions a PENDING event to SENT. Returns false when the event
// was not PENDING anymore.
func (r *WebhookEventRepo) MarkSent(ctx context.Context, id uuid.UUID, httpStatus int, responseBody string) (bool, error) {
	query := `UPDATE webhook_events
		SET status = 'SENT', http_status = $2, response_body = $3, sent_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	tag, err := r.pool.Exec(ctx, query, id, httpStatus, responseBody)
	if err != nil {
		return false, fmt.Errorf("mark webhook event sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRetryScheduled records a failed attempt and schedules the next one.
// The event stays PENDING. Returns false when the event was not PENDING.
func (r *WebhookEventRepo) MarkRetryScheduled(ctx context.Context, id uuid.UUID, retryCount int, httpStatus int, responseBody string, nextRetryAt time.Time) (bool, error) {
	query := `UPDATE webhook_events
		SET retry_count = $2, http_status = $3, response_body = $4, next_retry_at = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	tag, err := r.pool.Exec(ctx, query, id, retryCount, httpStatus, responseBody, nextRetryAt)
	if err != nil {
		return false, fmt.Errorf("mark webhook event retry scheduled: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed transitions a PENDING event to FAILED after the retry budget is
// spent. Returns false when the event was not PENDING anymore.
func (r *WebhookEventRepo) MarkFailed(ctx context.Context, id uuid.UUID, httpStatus int, responseBody string) (bool, error) {
	query := `UPDATE webhook_events
		SET status = 'FAILED', retry_count = retry_count + 1, http_status = $2, response_body = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	tag, err := r.pool.Exec(ctx, query, id, httpStatus, responseBody)
	if err != nil {
		return false, fmt.Errorf("mark webhook event failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindDueRetries returns ids of PENDING events whose next attempt is due,
// oldest first, capped at limit.
func (r *WebhookEventRepo) FindDueRetries(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `SELECT id FROM webhook_events
		WHERE status = 'PENDING' AND next_retry_at <= NOW() AND retry_count <= max_retries
		ORDER BY next_retry_at ASC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("find due retries: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan due retry id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due retries: %w", err)
	}
	return ids, nil
}

// ListByPaymentID returns all webhook events for a payment, oldest first.
func (r *WebhookEventRepo) ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events
		WHERE payment_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list webhook events by payment: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		var e domain.WebhookEvent
		if err := rows.Scan(
			&e.ID, &e.PaymentID, &e.AppID, &e.EventType, &e.WebhookURL,
			&e.Payload, &e.Signature, &e.Status, &e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.HTTPStatus, &e.ResponseBody,
			&e.SentAt, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook events: %w", err)
	}
	return events, nil
}

func (r *WebhookEventRepo) scanOne(row pgx.Row) (*domain.WebhookEvent, error) {
	e := &domain.WebhookEvent{}
	err := row.Scan(
		&e.ID, &e.PaymentID, &e.AppID, &e.EventType, &e.WebhookURL,
		&e.Payload, &e.Signature, &e.Status, &e.RetryCount, &e.MaxRetries,
		&e.NextRetryAt, &e.HTTPStatus, &e.ResponseBody,
		&e.SentAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}
