package integration

import (
	"context"
	"sort"
	"sync"
	"time"

	"payment-webhook-engine/internal/core/domain"

	"github.com/google/uuid"
)

// --- In-Memory App Repo ---

type inMemoryAppRepo struct {
	mu   sync.RWMutex
	apps map[uuid.UUID]*domain.App
}

func newInMemoryAppRepo() *inMemoryAppRepo {
	return &inMemoryAppRepo{apps: make(map[uuid.UUID]*domain.App)}
}

func (r *inMemoryAppRepo) Create(ctx context.Context, a *domain.App) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *a
	r.apps[a.ID] = &clone
	return nil
}

func (r *inMemoryAppRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.apps[id]
	if !ok {
		return nil, nil
	}
	clone := *a
	return &clone, nil
}

// --- In-Memory Webhook Event Repo ---

// inMemoryWebhookEventRepo mirrors the conditional-transition semantics of
// the postgres implementation: Mark* methods succeed only while the event
// is PENDING, and report whether a row was affected. sentCount and
// failedCount record how many transitions actually happened, which the
// concurrency tests assert on.
type inMemoryWebhookEventRepo struct {
	mu          sync.Mutex
	events      map[uuid.UUID]*domain.WebhookEvent
	sentCount   int
	failedCount int
}

func newInMemoryWebhookEventRepo() *inMemoryWebhookEventRepo {
	return &inMemoryWebhookEventRepo{events: make(map[uuid.UUID]*domain.WebhookEvent)}
}

func (r *inMemoryWebhookEventRepo) Create(ctx context.Context, e *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *e
	now := time.Now()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	r.events[e.ID] = &clone
	return nil
}

func (r *inMemoryWebhookEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	clone := *e
	return &clone, nil
}

func (r *inMemoryWebhookEventRepo) GetPendingByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok || e.Status != domain.WebhookStatusPending {
		return nil, nil
	}
	clone := *e
	return &clone, nil
}

func (r *inMemoryWebhookEventRepo) MarkSent(ctx context.Context, id uuid.UUID, httpStatus int, responseBody string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok || e.Status != domain.WebhookStatusPending {
		return false, nil
	}
	now := time.Now()
	e.Status = domain.WebhookStatusSent
	e.HTTPStatus = &httpStatus
	e.ResponseBody = &responseBody
	e.SentAt = &now
	e.UpdatedAt = now
	r.sentCount++
	return true, nil
}

func (r *inMemoryWebhookEventRepo) MarkRetryScheduled(ctx context.Context, id uuid.UUID, retryCount int, httpStatus int, responseBody string, nextRetryAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok || e.Status != domain.WebhookStatusPending {
		return false, nil
	}
	e.RetryCount = retryCount
	e.HTTPStatus = &httpStatus
	e.ResponseBody = &responseBody
	e.NextRetryAt = nextRetryAt
	e.UpdatedAt = time.Now()
	return true, nil
}

func (r *inMemoryWebhookEventRepo) MarkFailed(ctx context.Context, id uuid.UUID, httpStatus int, responseBody string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok || e.Status != domain.WebhookStatusPending {
		return false, nil
	}
	e.Status = domain.WebhookStatusFailed
	e.RetryCount++
	e.HTTPStatus = &httpStatus
	e.ResponseBody = &responseBody
	e.UpdatedAt = time.Now()
	r.failedCount++
	return true, nil
}

func (r *inMemoryWebhookEventRepo) FindDueRetries(ctx context.Context, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()

	var due []*domain.WebhookEvent
	for _, e := range r.events {
		if e.Status == domain.WebhookStatusPending && !e.NextRetryAt.After(now) && e.RetryCount <= e.MaxRetries {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })

	ids := make([]uuid.UUID, 0, len(due))
	for _, e := range due {
		if len(ids) >= limit {
			break
		}
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (r *inMemoryWebhookEventRepo) ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var events []domain.WebhookEvent
	for _, e := range r.events {
		if e.PaymentID == paymentID {
			events = append(events, *e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

func (r *inMemoryWebhookEventRepo) transitions() (sent, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sentCount, r.failedCount
}

func (r *inMemoryWebhookEventRepo) eventsForPayment(paymentID uuid.UUID) []domain.WebhookEvent {
	events, _ := r.ListByPaymentID(context.Background(), paymentID)
	return events
}
