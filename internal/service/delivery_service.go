package service

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"payment-webhook-engine/internal/core/domain"
	"payment-webhook-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// retryBackoff defines the wait before the nth retry. Attempts past the
// table length reuse the last interval.
var retryBackoff = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
}

// backoffFor returns the delay before retry number attempt (1-based).
func backoffFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(retryBackoff) {
		idx = len(retryBackoff) - 1
	}
	return retryBackoff[idx]
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// deliveryService implements ports.DeliveryService.
type deliveryService struct {
	eventRepo  ports.WebhookEventRepository
	httpClient HTTPClient
	timeout    time.Duration
	bodyLimit  int64
	log        zerolog.Logger
}

// NewDeliveryService creates a new webhook delivery service.
// timeout bounds each outbound HTTP attempt; bodyLimit caps how much of the
// endpoint's response is recorded.
func NewDeliveryService(
	eventRepo ports.WebhookEventRepository,
	httpClient HTTPClient,
	timeout time.Duration,
	bodyLimit int64,
	log zerolog.Logger,
) ports.DeliveryService {
	return &deliveryService{
		eventRepo:  eventRepo,
		httpClient: httpClient,
		timeout:    timeout,
		bodyLimit:  bodyLimit,
		log:        log,
	}
}

// AttemptDelivery performs one delivery attempt for the event and records
// the outcome. Events no longer in PENDING are skipped, which makes
// concurrent attempts for the same id collapse into a single state change.
func (s *deliveryService) AttemptDelivery(ctx context.Context, id uuid.UUID) error {
	event, err := s.eventRepo.GetPendingByID(ctx, id)
	if err != nil {
		s.log.Error().Err(err).Str("event_id", id.String()).Msg("delivery: failed to load event")
		return err
	}
	if event == nil {
		s.log.Debug().Str("event_id", id.String()).Msg("delivery: event not pending, skipping")
		return nil
	}

	httpStatus, responseBody := s.post(ctx, event)

	if httpStatus >= 200 && httpStatus < 300 {
		updated, err := s.eventRepo.MarkSent(ctx, event.ID, httpStatus, responseBody)
		if err != nil {
			return err
		}
		if !updated {
			s.log.Debug().Str("event_id", id.String()).Msg("delivery: lost race, another attempt finished first")
			return nil
		}
		s.log.Info().
			Str("event_id", id.String()).
			Str("event_type", string(event.EventType)).
			Int("attempt", event.RetryCount+1).
			Int("status", httpStatus).
			Msg("delivery: webhook sent")
		return nil
	}

	newCount := event.RetryCount + 1
	if newCount > event.MaxRetries {
		updated, err := s.eventRepo.MarkFailed(ctx, event.ID, httpStatus, responseBody)
		if err != nil {
			return err
		}
		if updated {
			s.log.Error().
				Str("event_id", id.String()).
				Str("event_type", string(event.EventType)).
				Int("attempts", newCount).
				Int("status", httpStatus).
				Msg("delivery: retries exhausted, webhook failed")
		}
		return nil
	}

	nextRetryAt := time.Now().Add(backoffFor(newCount))
	updated, err := s.eventRepo.MarkRetryScheduled(ctx, event.ID, newCount, httpStatus, responseBody, nextRetryAt)
	if err != nil {
		return err
	}
	if updated {
		s.log.Warn().
			Str("event_id", id.String()).
			Int("attempt", newCount).
			Int("status", httpStatus).
			Time("next_retry_at", nextRetryAt).
			Msg("delivery: attempt failed, retry scheduled")
	}
	return nil
}

// post sends the signed payload to the event's URL snapshot. A transport
// error is recorded as status 0 with the error message as the body.
func (s *deliveryService) post(ctx context.Context, event *domain.WebhookEvent) (int, string) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, event.WebhookURL, strings.NewReader(event.Payload))
	if err != nil {
		return 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", event.Signature)
	req.Header.Set("X-Event-Type", string(event.EventType))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err.Error()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.bodyLimit))
	if err != nil {
		return resp.StatusCode, err.Error()
	}
	return resp.StatusCode, string(body)
}
