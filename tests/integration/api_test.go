package integration

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	httpHandler "payment-webhook-engine/internal/adapter/http/handler"
	redisStorage "payment-webhook-engine/internal/adapter/storage/redis"
	"payment-webhook-engine/internal/core/domain"
	"payment-webhook-engine/internal/core/ports"
	"payment-webhook-engine/internal/service"
	"payment-webhook-engine/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp builds the full delivery stack: real HTTP layer, middleware,
// services and Redis enqueue guard (miniredis), with in-memory repos in
// place of postgres. Outbound webhooks go to real httptest receivers.

type testApp struct {
	server    *httptest.Server
	redis     *miniredis.Miniredis
	appRepo   *inMemoryAppRepo
	eventRepo *inMemoryWebhookEventRepo
	encSvc    *service.AESEncryptionService
	sigSvc    *service.HMACSignatureService
	tokenSvc  *service.JWTTokenService
	delivery  ports.DeliveryService
	notifier  ports.PaymentNotifier
}

func newTestApp(t *testing.T, maxRetries int) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	enqueueGuard := redisStorage.NewEnqueueGuard(rdb)

	aesKey := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	encSvc, err := service.NewAESEncryptionService(aesKey)
	require.NoError(t, err)
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", 24*time.Hour, "test-issuer")

	appRepo := newInMemoryAppRepo()
	eventRepo := newInMemoryWebhookEventRepo()

	log := logger.New("error", false)
	deliverySvc := service.NewDeliveryService(eventRepo, &http.Client{Timeout: 5 * time.Second}, 5*time.Second, 65536, log)
	notifier := service.NewPaymentNotifier(appRepo, eventRepo, encSvc, sigSvc, enqueueGuard, deliverySvc, maxRetries, 24*time.Hour, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Notifier:       notifier,
		EventRepo:      eventRepo,
		TokenSvc:       tokenSvc,
		HealthCheckers: []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
		Logger:         log,
	})

	server := httptest.NewServer(router)

	return &testApp{
		server:    server,
		redis:     mr,
		appRepo:   appRepo,
		eventRepo: eventRepo,
		encSvc:    encSvc,
		sigSvc:    sigSvc,
		tokenSvc:  tokenSvc,
		delivery:  deliverySvc,
		notifier:  notifier,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.redis.Close()
}

func (a *testApp) token(t *testing.T) string {
	t.Helper()
	token, _, err := a.tokenSvc.Generate("payment-core")
	require.NoError(t, err)
	return token
}

// createApp registers an app with an encrypted webhook secret.
func (a *testApp) createApp(t *testing.T, webhookURL *string, secret string) uuid.UUID {
	t.Helper()
	enc, err := a.encSvc.Encrypt(secret)
	require.NoError(t, err)
	app := &domain.App{
		ID:               uuid.New(),
		Name:             "Integration Test App",
		WebhookURL:       webhookURL,
		WebhookSecretEnc: enc,
	}
	require.NoError(t, a.appRepo.Create(context.Background(), app))
	return app.ID
}

func (a *testApp) postNotification(t *testing.T, path string, body map[string]any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token(t))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func notification(paymentID, appID uuid.UUID) map[string]any {
	return map[string]any{
		"payment_id": paymentID.String(),
		"app_id":     appID.String(),
		"amount":     "49.99",
		"currency":   "USD",
		"reference":  "order-1042",
	}
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// receivedRequest is a webhook delivery captured by a test receiver.
type receivedRequest struct {
	body      []byte
	signature string
	eventType string
	contype   string
}

// webhookReceiver is an httptest endpoint that records deliveries and
// answers with a scripted status per attempt (last status repeats).
type webhookReceiver struct {
	mu       sync.Mutex
	requests []receivedRequest
	statuses []int
	server   *httptest.Server
}

func newWebhookReceiver(statuses ...int) *webhookReceiver {
	r := &webhookReceiver{statuses: statuses}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.requests = append(r.requests, receivedRequest{
			body:      body,
			signature: req.Header.Get("X-Signature"),
			eventType: req.Header.Get("X-Event-Type"),
			contype:   req.Header.Get("Content-Type"),
		})
		idx := len(r.requests) - 1
		if idx >= len(r.statuses) {
			idx = len(r.statuses) - 1
		}
		status := r.statuses[idx]
		r.mu.Unlock()
		w.WriteHeader(status)
		fmt.Fprint(w, `{"received":true}`)
	}))
	return r
}

func (r *webhookReceiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func (r *webhookReceiver) request(i int) receivedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[i]
}

func (r *webhookReceiver) close() { r.server.Close() }

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_AuthRequired(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	raw, _ := json.Marshal(notification(uuid.New(), uuid.New()))
	resp, err := http.Post(app.server.URL+"/api/v1/notifications/payment-succeeded", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_SuccessfulDelivery(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	receiver := newWebhookReceiver(200)
	defer receiver.close()

	secret := "whsec_integration"
	appID := app.createApp(t, &receiver.server.URL, secret)
	paymentID := uuid.New()

	resp := app.postNotification(t, "/api/v1/notifications/payment-succeeded", notification(paymentID, appID))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitFor(t, 2*time.Second, func() bool {
		events := app.eventRepo.eventsForPayment(paymentID)
		return len(events) == 1 && events[0].Status == domain.WebhookStatusSent
	})

	events := app.eventRepo.eventsForPayment(paymentID)
	event := events[0]
	assert.Equal(t, 0, event.RetryCount, "first attempt succeeded, no retries recorded")
	require.NotNil(t, event.HTTPStatus)
	assert.Equal(t, 200, *event.HTTPStatus)
	require.NotNil(t, event.SentAt)

	require.Equal(t, 1, receiver.count())
	got := receiver.request(0)
	assert.Equal(t, "application/json", got.contype)
	assert.Equal(t, "payment.success", got.eventType)
	assert.True(t, app.sigSvc.Verify(secret, string(got.body), got.signature),
		"signature must verify against the exact delivered body")
	assert.Equal(t, event.Payload, string(got.body), "delivered body is the stored payload")

	var payload map[string]any
	require.NoError(t, json.Unmarshal(got.body, &payload))
	assert.Equal(t, "payment.success", payload["event"])
	assert.Equal(t, paymentID.String(), payload["payment_id"])
	assert.Equal(t, 49.99, payload["amount"])
	assert.Equal(t, "SUCCESS", payload["status"])
}

func TestIntegration_FailedPaymentNotification(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	receiver := newWebhookReceiver(200)
	defer receiver.close()

	appID := app.createApp(t, &receiver.server.URL, "whsec_x")
	paymentID := uuid.New()

	body := notification(paymentID, appID)
	body["failure_reason"] = "card_declined"
	resp := app.postNotification(t, "/api/v1/notifications/payment-failed", body)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitFor(t, 2*time.Second, func() bool { return receiver.count() == 1 })

	got := receiver.request(0)
	assert.Equal(t, "payment.failed", got.eventType)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(got.body, &payload))
	assert.Equal(t, "payment.failed", payload["event"])
	assert.Equal(t, "card_declined", payload["failure_reason"])
}

func TestIntegration_NoWebhookURLSkips(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	appID := app.createApp(t, nil, "whsec_x")
	paymentID := uuid.New()

	resp := app.postNotification(t, "/api/v1/notifications/payment-succeeded", notification(paymentID, appID))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode, "intake accepts even when no webhook is configured")

	// Give any stray delivery goroutine a moment, then confirm nothing was enqueued.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, app.eventRepo.eventsForPayment(paymentID))
}

func TestIntegration_DuplicateTriggerDeduped(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	receiver := newWebhookReceiver(200)
	defer receiver.close()

	appID := app.createApp(t, &receiver.server.URL, "whsec_x")
	paymentID := uuid.New()

	for i := 0; i < 3; i++ {
		resp := app.postNotification(t, "/api/v1/notifications/payment-succeeded", notification(paymentID, appID))
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		resp.Body.Close()
	}

	waitFor(t, 2*time.Second, func() bool {
		events := app.eventRepo.eventsForPayment(paymentID)
		return len(events) == 1 && events[0].Status == domain.WebhookStatusSent
	})

	assert.Len(t, app.eventRepo.eventsForPayment(paymentID), 1, "redelivered trigger must not enqueue twice")
}

func TestIntegration_FailedAttemptSchedulesRetry(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	receiver := newWebhookReceiver(500)
	defer receiver.close()

	appID := app.createApp(t, &receiver.server.URL, "whsec_x")
	paymentID := uuid.New()

	before := time.Now()
	resp := app.postNotification(t, "/api/v1/notifications/payment-succeeded", notification(paymentID, appID))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitFor(t, 2*time.Second, func() bool {
		events := app.eventRepo.eventsForPayment(paymentID)
		return len(events) == 1 && events[0].RetryCount == 1
	})

	event := app.eventRepo.eventsForPayment(paymentID)[0]
	assert.Equal(t, domain.WebhookStatusPending, event.Status, "event stays PENDING while retries remain")
	require.NotNil(t, event.HTTPStatus)
	assert.Equal(t, 500, *event.HTTPStatus)
	assert.True(t, event.NextRetryAt.After(before.Add(29*time.Second)), "first retry backs off 30s")
}

func TestIntegration_SignatureStableAcrossRetries(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	receiver := newWebhookReceiver(500, 200)
	defer receiver.close()

	appID := app.createApp(t, &receiver.server.URL, "whsec_x")
	paymentID := uuid.New()

	resp := app.postNotification(t, "/api/v1/notifications/payment-succeeded", notification(paymentID, appID))
	defer resp.Body.Close()

	waitFor(t, 2*time.Second, func() bool {
		events := app.eventRepo.eventsForPayment(paymentID)
		return len(events) == 1 && events[0].RetryCount == 1
	})
	event := app.eventRepo.eventsForPayment(paymentID)[0]

	// Drive the retry directly instead of waiting out the backoff.
	require.NoError(t, app.delivery.AttemptDelivery(context.Background(), event.ID))

	waitFor(t, 2*time.Second, func() bool {
		events := app.eventRepo.eventsForPayment(paymentID)
		return events[0].Status == domain.WebhookStatusSent
	})

	require.Equal(t, 2, receiver.count())
	first := receiver.request(0)
	second := receiver.request(1)
	assert.Equal(t, first.body, second.body, "payload bytes identical across attempts")
	assert.Equal(t, first.signature, second.signature, "signature identical across attempts")
}

func TestIntegration_RecoveryAfterThreeFailures(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	receiver := newWebhookReceiver(500, 500, 500, 200)
	defer receiver.close()

	appID := app.createApp(t, &receiver.server.URL, "whsec_x")
	paymentID := uuid.New()

	resp := app.postNotification(t, "/api/v1/notifications/payment-succeeded", notification(paymentID, appID))
	defer resp.Body.Close()

	waitFor(t, 2*time.Second, func() bool {
		events := app.eventRepo.eventsForPayment(paymentID)
		return len(events) == 1 && events[0].RetryCount == 1
	})
	event := app.eventRepo.eventsForPayment(paymentID)[0]

	// Drive attempts 2 and 3 directly instead of waiting out the backoff.
	require.NoError(t, app.delivery.AttemptDelivery(context.Background(), event.ID))
	require.NoError(t, app.delivery.AttemptDelivery(context.Background(), event.ID))

	afterThird := app.eventRepo.eventsForPayment(paymentID)[0]
	assert.Equal(t, domain.WebhookStatusPending, afterThird.Status)
	assert.Equal(t, 3, afterThird.RetryCount)

	// Attempt 4 succeeds; the retry count keeps the three failures on record.
	require.NoError(t, app.delivery.AttemptDelivery(context.Background(), event.ID))

	final := app.eventRepo.eventsForPayment(paymentID)[0]
	assert.Equal(t, domain.WebhookStatusSent, final.Status)
	assert.Equal(t, 3, final.RetryCount)
	require.NotNil(t, final.HTTPStatus)
	assert.Equal(t, 200, *final.HTTPStatus)

	require.Equal(t, 4, receiver.count())
	first := receiver.request(0)
	for i := 1; i < 4; i++ {
		assert.Equal(t, first.body, receiver.request(i).body)
		assert.Equal(t, first.signature, receiver.request(i).signature)
	}
}

func TestIntegration_RetriesExhausted(t *testing.T) {
	app := newTestApp(t, 2)
	defer app.close()

	receiver := newWebhookReceiver(503)
	defer receiver.close()

	appID := app.createApp(t, &receiver.server.URL, "whsec_x")
	paymentID := uuid.New()

	resp := app.postNotification(t, "/api/v1/notifications/payment-succeeded", notification(paymentID, appID))
	defer resp.Body.Close()

	waitFor(t, 2*time.Second, func() bool {
		events := app.eventRepo.eventsForPayment(paymentID)
		return len(events) == 1 && events[0].RetryCount == 1
	})
	event := app.eventRepo.eventsForPayment(paymentID)[0]

	// Drive the remaining attempts directly.
	require.NoError(t, app.delivery.AttemptDelivery(context.Background(), event.ID))
	require.NoError(t, app.delivery.AttemptDelivery(context.Background(), event.ID))

	final := app.eventRepo.eventsForPayment(paymentID)[0]
	assert.Equal(t, domain.WebhookStatusFailed, final.Status)
	assert.Equal(t, 3, final.RetryCount, "max_retries=2 means three attempts total")
	require.NotNil(t, final.HTTPStatus)
	assert.Equal(t, 503, *final.HTTPStatus)

	// Further attempts are no-ops on a terminal event.
	require.NoError(t, app.delivery.AttemptDelivery(context.Background(), event.ID))
	assert.Equal(t, 3, receiver.count())
}

func TestIntegration_NetworkFailureRecorded(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	// A receiver that is already closed produces a connection error.
	receiver := newWebhookReceiver(200)
	url := receiver.server.URL
	receiver.close()

	appID := app.createApp(t, &url, "whsec_x")
	paymentID := uuid.New()

	resp := app.postNotification(t, "/api/v1/notifications/payment-succeeded", notification(paymentID, appID))
	defer resp.Body.Close()

	waitFor(t, 2*time.Second, func() bool {
		events := app.eventRepo.eventsForPayment(paymentID)
		return len(events) == 1 && events[0].RetryCount == 1
	})

	event := app.eventRepo.eventsForPayment(paymentID)[0]
	assert.Equal(t, domain.WebhookStatusPending, event.Status)
	require.NotNil(t, event.HTTPStatus)
	assert.Equal(t, 0, *event.HTTPStatus, "network failure is recorded as status 0")
	require.NotNil(t, event.ResponseBody)
	assert.NotEmpty(t, *event.ResponseBody, "error message stored in place of a response body")
}

func TestIntegration_QueryWebhookEvents(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	receiver := newWebhookReceiver(200)
	defer receiver.close()

	appID := app.createApp(t, &receiver.server.URL, "whsec_x")
	paymentID := uuid.New()

	resp := app.postNotification(t, "/api/v1/notifications/payment-succeeded", notification(paymentID, appID))
	resp.Body.Close()

	waitFor(t, 2*time.Second, func() bool {
		events := app.eventRepo.eventsForPayment(paymentID)
		return len(events) == 1 && events[0].Status == domain.WebhookStatusSent
	})
	event := app.eventRepo.eventsForPayment(paymentID)[0]

	// GET by id
	req, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/webhook-events/"+event.ID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+app.token(t))
	getResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)

	var body struct {
		Data struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			EventType string `json:"event_type"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&body))
	assert.Equal(t, event.ID.String(), body.Data.ID)
	assert.Equal(t, "SENT", body.Data.Status)
	assert.Equal(t, "payment.success", body.Data.EventType)

	// List by payment
	listReq, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/webhook-events?payment_id="+paymentID.String(), nil)
	listReq.Header.Set("Authorization", "Bearer "+app.token(t))
	listResp, err := http.DefaultClient.Do(listReq)
	require.NoError(t, err)
	defer listResp.Body.Close()
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	var listBody struct {
		Data struct {
			Total int `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listBody))
	assert.Equal(t, 1, listBody.Data.Total)

	// Unknown id
	missingReq, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/webhook-events/"+uuid.New().String(), nil)
	missingReq.Header.Set("Authorization", "Bearer "+app.token(t))
	missingResp, err := http.DefaultClient.Do(missingReq)
	require.NoError(t, err)
	defer missingResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, missingResp.StatusCode)
}

func TestIntegration_SchedulerPicksUpDueEvent(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	receiver := newWebhookReceiver(200)
	defer receiver.close()

	appID := app.createApp(t, &receiver.server.URL, "whsec_x")
	paymentID := uuid.New()

	// Simulate an event persisted by a process that died before attempting
	// delivery: PENDING, due now, never tried.
	event := &domain.WebhookEvent{
		ID:          uuid.New(),
		PaymentID:   paymentID,
		AppID:       appID,
		EventType:   domain.EventPaymentSuccess,
		WebhookURL:  receiver.server.URL,
		Payload:     `{"event":"payment.success"}`,
		Signature:   app.sigSvc.Sign("whsec_x", `{"event":"payment.success"}`),
		Status:      domain.WebhookStatusPending,
		MaxRetries:  5,
		NextRetryAt: time.Now().Add(-time.Second),
	}
	require.NoError(t, app.eventRepo.Create(context.Background(), event))

	sched := service.NewRetryScheduler(app.eventRepo, app.delivery, 20*time.Millisecond, 10, logger.New("error", false))
	sched.Start()
	defer sched.Stop(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		events := app.eventRepo.eventsForPayment(paymentID)
		return len(events) == 1 && events[0].Status == domain.WebhookStatusSent
	})
	assert.Equal(t, 1, receiver.count())
}

func TestIntegration_SchedulerWaitsForRetryTime(t *testing.T) {
	app := newTestApp(t, 5)
	defer app.close()

	receiver := newWebhookReceiver(200)
	defer receiver.close()

	appID := app.createApp(t, &receiver.server.URL, "whsec_x")
	paymentID := uuid.New()

	// A PENDING event whose retry time has not arrived yet.
	due := time.Now().Add(400 * time.Millisecond)
	event := &domain.WebhookEvent{
		ID:          uuid.New(),
		PaymentID:   paymentID,
		AppID:       appID,
		EventType:   domain.EventPaymentSuccess,
		WebhookURL:  receiver.server.URL,
		Payload:     `{"event":"payment.success"}`,
		Signature:   app.sigSvc.Sign("whsec_x", `{"event":"payment.success"}`),
		Status:      domain.WebhookStatusPending,
		RetryCount:  1,
		MaxRetries:  5,
		NextRetryAt: due,
	}
	require.NoError(t, app.eventRepo.Create(context.Background(), event))

	sched := service.NewRetryScheduler(app.eventRepo, app.delivery, 20*time.Millisecond, 10, logger.New("error", false))
	sched.Start()
	defer sched.Stop(context.Background())

	// Let the scheduler sweep many times while the event is not yet due.
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, receiver.count(), "event must stay invisible to sweeps until next_retry_at passes")
	assert.Equal(t, domain.WebhookStatusPending, app.eventRepo.eventsForPayment(paymentID)[0].Status)

	// Once the retry time passes, the same event is picked up and delivered.
	waitFor(t, 2*time.Second, func() bool {
		return app.eventRepo.eventsForPayment(paymentID)[0].Status == domain.WebhookStatusSent
	})
	assert.Equal(t, 1, receiver.count())
	assert.False(t, time.Now().Before(due), "delivery happened only after the retry time")
}
