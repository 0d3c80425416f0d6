package service

import (
	"context"
	"sync"
	"time"

	"payment-webhook-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RetryScheduler periodically sweeps for PENDING events whose next_retry_at
// has passed and re-runs delivery for each. It is the durable fallback
// behind the immediate attempt: an event enqueued right before a crash is
// picked up here on the next sweep.
type RetryScheduler struct {
	eventRepo ports.WebhookEventRepository
	delivery  ports.DeliveryService
	interval  time.Duration
	batchSize int
	log       zerolog.Logger

	stop chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewRetryScheduler creates a new retry scheduler.
func NewRetryScheduler(
	eventRepo ports.WebhookEventRepository,
	delivery ports.DeliveryService,
	interval time.Duration,
	batchSize int,
	log zerolog.Logger,
) *RetryScheduler {
	return &RetryScheduler{
		eventRepo: eventRepo,
		delivery:  delivery,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Stop to shut it down.
func (s *RetryScheduler) Start() {
	go s.run()
}

func (s *RetryScheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().
		Dur("interval", s.interval).
		Int("batch_size", s.batchSize).
		Msg("scheduler: started")

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(context.Background())
		}
	}
}

// sweep finds due events and dispatches a delivery attempt for each.
// Attempts run concurrently; the repository's conditional transitions keep
// an overlap with the immediate-attempt path harmless.
func (s *RetryScheduler) sweep(ctx context.Context) {
	ids, err := s.eventRepo.FindDueRetries(ctx, s.batchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduler: failed to find due retries")
		return
	}
	if len(ids) == 0 {
		return
	}

	s.log.Debug().Int("count", len(ids)).Msg("scheduler: dispatching due retries")

	for _, id := range ids {
		s.wg.Add(1)
		go func(id uuid.UUID) {
			defer s.wg.Done()
			if err := s.delivery.AttemptDelivery(ctx, id); err != nil {
				s.log.Error().Err(err).Str("event_id", id.String()).Msg("scheduler: delivery attempt errored")
			}
		}(id)
	}
}

// Stop halts the sweep loop and waits for in-flight delivery attempts,
// bounded by ctx.
func (s *RetryScheduler) Stop(ctx context.Context) error {
	close(s.stop)
	<-s.done

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.log.Info().Msg("scheduler: stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler: stopped with delivery attempts still in flight")
		return ctx.Err()
	}
}
