package integration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"payment-webhook-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentDeliveryAttempts verifies that concurrent attempts for the
// same event collapse into exactly one terminal state transition. The
// endpoint may see more than one POST when attempts race past the pending
// check side by side, but only one attempt gets to record the outcome.
func TestConcurrentDeliveryAttempts(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	receiver := newWebhookReceiver(200)
	defer receiver.close()

	appID := app.createApp(t, &receiver.server.URL, "whsec_concurrent")
	paymentID := uuid.New()

	resp := app.postNotification(t, "/api/v1/notifications/payment-succeeded", notification(paymentID, appID))
	resp.Body.Close()

	waitFor(t, 2*time.Second, func() bool {
		return len(app.eventRepo.eventsForPayment(paymentID)) == 1
	})
	event := app.eventRepo.eventsForPayment(paymentID)[0]

	// Hammer the same event from many goroutines, simulating the intake
	// goroutine and several scheduler sweeps firing at once.
	concurrency := 20
	var wg sync.WaitGroup
	var errCount atomic.Int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.delivery.AttemptDelivery(context.Background(), event.ID); err != nil {
				errCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, errCount.Load(), "losing an update race is not an error")

	final := app.eventRepo.eventsForPayment(paymentID)[0]
	assert.Equal(t, domain.WebhookStatusSent, final.Status)

	sent, failed := app.eventRepo.transitions()
	assert.Equal(t, 1, sent, "exactly one attempt records the SENT transition")
	assert.Zero(t, failed)

	t.Logf("endpoint saw %d POSTs for %d concurrent attempts, %d state transitions recorded",
		receiver.count(), concurrency, sent)
}

// TestConcurrentEnqueueDedupe fires the same payment notification from many
// goroutines and verifies the Redis SETNX guard admits exactly one event.
func TestConcurrentEnqueueDedupe(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	receiver := newWebhookReceiver(200)
	defer receiver.close()

	appID := app.createApp(t, &receiver.server.URL, "whsec_dedupe")
	paymentID := uuid.New()

	concurrency := 10
	var wg sync.WaitGroup
	var accepted atomic.Int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := app.postNotification(t, "/api/v1/notifications/payment-succeeded", notification(paymentID, appID))
			defer resp.Body.Close()
			if resp.StatusCode == 202 {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	// Intake always accepts; dedupe happens behind it.
	assert.Equal(t, int64(concurrency), accepted.Load())

	waitFor(t, 2*time.Second, func() bool {
		events := app.eventRepo.eventsForPayment(paymentID)
		return len(events) == 1 && events[0].Status == domain.WebhookStatusSent
	})
	assert.Len(t, app.eventRepo.eventsForPayment(paymentID), 1, "guard admits exactly one event per payment and type")

	// A different event type for the same payment is not deduped against it.
	failBody := notification(paymentID, appID)
	failBody["failure_reason"] = "late_refund_reversal"
	resp := app.postNotification(t, "/api/v1/notifications/payment-failed", failBody)
	resp.Body.Close()

	waitFor(t, 2*time.Second, func() bool {
		return len(app.eventRepo.eventsForPayment(paymentID)) == 2
	})
}

// TestConcurrentDistinctPayments checks that unrelated payments never
// contend with each other end to end.
func TestConcurrentDistinctPayments(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	receiver := newWebhookReceiver(200)
	defer receiver.close()

	appID := app.createApp(t, &receiver.server.URL, "whsec_many")

	concurrency := 25
	paymentIDs := make([]uuid.UUID, concurrency)
	for i := range paymentIDs {
		paymentIDs[i] = uuid.New()
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			resp := app.postNotification(t, "/api/v1/notifications/payment-succeeded", notification(paymentIDs[idx], appID))
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	waitFor(t, 5*time.Second, func() bool {
		delivered := 0
		for _, id := range paymentIDs {
			events := app.eventRepo.eventsForPayment(id)
			if len(events) == 1 && events[0].Status == domain.WebhookStatusSent {
				delivered++
			}
		}
		return delivered == concurrency
	})

	sent, failed := app.eventRepo.transitions()
	require.Equal(t, concurrency, sent)
	assert.Zero(t, failed)
	assert.Equal(t, concurrency, receiver.count())
}
