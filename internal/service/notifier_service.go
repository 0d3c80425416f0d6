package service

import (
	"context"
	"time"

	"payment-webhook-engine/internal/core/domain"
	"payment-webhook-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// notifierService implements ports.PaymentNotifier. Every error on the
// enqueue path is absorbed and logged so the payment flow that triggered
// the notification is never affected.
type notifierService struct {
	appRepo    ports.AppRepository
	eventRepo  ports.WebhookEventRepository
	encSvc     ports.EncryptionService
	sigSvc     ports.SignatureService
	guard      ports.EnqueueGuard
	delivery   ports.DeliveryService
	maxRetries int
	guardTTL   time.Duration
	log        zerolog.Logger
}

// NewPaymentNotifier creates a new payment notifier.
func NewPaymentNotifier(
	appRepo ports.AppRepository,
	eventRepo ports.WebhookEventRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	guard ports.EnqueueGuard,
	delivery ports.DeliveryService,
	maxRetries int,
	guardTTL time.Duration,
	log zerolog.Logger,
) ports.PaymentNotifier {
	return &notifierService{
		appRepo:    appRepo,
		eventRepo:  eventRepo,
		encSvc:     encSvc,
		sigSvc:     sigSvc,
		guard:      guard,
		delivery:   delivery,
		maxRetries: maxRetries,
		guardTTL:   guardTTL,
		log:        log,
	}
}

// PaymentSucceeded enqueues a payment.success webhook for the payment's app.
func (s *notifierService) PaymentSucceeded(ctx context.Context, payment *domain.Payment) {
	s.enqueue(ctx, payment, domain.EventPaymentSuccess)
}

// PaymentFailed enqueues a payment.failed webhook for the payment's app.
func (s *notifierService) PaymentFailed(ctx context.Context, payment *domain.Payment) {
	s.enqueue(ctx, payment, domain.EventPaymentFailed)
}

func (s *notifierService) enqueue(ctx context.Context, payment *domain.Payment, eventType domain.WebhookEventType) {
	log := s.log.With().
		Str("payment_id", payment.ID.String()).
		Str("event_type", string(eventType)).
		Logger()

	// Dedupe redelivered triggers. The guard is advisory: if it is
	// unreachable we enqueue anyway rather than drop the notification.
	key := domain.BuildEnqueueKey(payment.ID, eventType)
	fresh, err := s.guard.CheckAndSet(ctx, key, s.guardTTL)
	if err != nil {
		log.Warn().Err(err).Msg("notifier: enqueue guard unavailable, continuing")
	} else if !fresh {
		log.Debug().Msg("notifier: duplicate trigger, skipping")
		return
	}

	app, err := s.appRepo.GetByID(ctx, payment.AppID)
	if err != nil {
		log.Error().Err(err).Str("app_id", payment.AppID.String()).Msg("notifier: failed to fetch app")
		return
	}
	if app == nil {
		log.Warn().Str("app_id", payment.AppID.String()).Msg("notifier: app not found, skipping")
		return
	}
	if !app.HasWebhook() {
		log.Debug().Str("app_id", app.ID.String()).Msg("notifier: no webhook URL configured, skipping")
		return
	}

	secretKey, err := s.encSvc.Decrypt(app.WebhookSecretEnc)
	if err != nil {
		log.Error().Err(err).Str("app_id", app.ID.String()).Msg("notifier: failed to decrypt webhook secret")
		return
	}

	build := BuildSuccessPayload
	if eventType == domain.EventPaymentFailed {
		build = BuildFailurePayload
	}
	payload, err := build(payment, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("notifier: failed to build payload")
		return
	}

	now := time.Now()
	event := &domain.WebhookEvent{
		ID:          uuid.New(),
		PaymentID:   payment.ID,
		AppID:       app.ID,
		EventType:   eventType,
		WebhookURL:  *app.WebhookURL,
		Payload:     payload,
		Signature:   s.sigSvc.Sign(secretKey, payload),
		Status:      domain.WebhookStatusPending,
		RetryCount:  0,
		MaxRetries:  s.maxRetries,
		NextRetryAt: now,
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		log.Error().Err(err).Msg("notifier: failed to persist webhook event")
		return
	}

	log.Info().Str("event_id", event.ID.String()).Msg("notifier: webhook event enqueued")

	// First attempt fires immediately; the scheduler picks the event up
	// later if this attempt fails or the process dies before it runs.
	go func() {
		if err := s.delivery.AttemptDelivery(context.Background(), event.ID); err != nil {
			s.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("notifier: immediate delivery attempt errored")
		}
	}()
}
