package handler

import (
	"time"

	"payment-webhook-engine/internal/adapter/http/dto"
	"payment-webhook-engine/internal/core/domain"
	"payment-webhook-engine/internal/core/ports"
	"payment-webhook-engine/pkg/apperror"
	"payment-webhook-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookEventHandler exposes read access to delivery state.
type WebhookEventHandler struct {
	eventRepo ports.WebhookEventRepository
}

// NewWebhookEventHandler creates a new WebhookEventHandler.
func NewWebhookEventHandler(eventRepo ports.WebhookEventRepository) *WebhookEventHandler {
	return &WebhookEventHandler{eventRepo: eventRepo}
}

// GetByID handles GET /api/v1/webhook-events/:id.
func (h *WebhookEventHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid event id"))
		return
	}

	event, err := h.eventRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}
	if event == nil {
		response.Error(c, apperror.ErrWebhookEventNotFound())
		return
	}

	response.OK(c, toWebhookEventResponse(event))
}

// ListByPayment handles GET /api/v1/webhook-events?payment_id=...
func (h *WebhookEventHandler) ListByPayment(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Query("payment_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid or missing payment_id"))
		return
	}

	events, err := h.eventRepo.ListByPaymentID(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	resp := dto.WebhookEventListResponse{
		Events: make([]dto.WebhookEventResponse, 0, len(events)),
		Total:  len(events),
	}
	for i := range events {
		resp.Events = append(resp.Events, toWebhookEventResponse(&events[i]))
	}

	response.OK(c, resp)
}

// toWebhookEventResponse converts domain.WebhookEvent to DTO.
func toWebhookEventResponse(e *domain.WebhookEvent) dto.WebhookEventResponse {
	resp := dto.WebhookEventResponse{
		ID:           e.ID.String(),
		PaymentID:    e.PaymentID.String(),
		AppID:        e.AppID.String(),
		EventType:    string(e.EventType),
		WebhookURL:   e.WebhookURL,
		Payload:      e.Payload,
		Signature:    e.Signature,
		Status:       string(e.Status),
		RetryCount:   e.RetryCount,
		MaxRetries:   e.MaxRetries,
		NextRetryAt:  e.NextRetryAt.Format(time.RFC3339),
		HTTPStatus:   e.HTTPStatus,
		ResponseBody: e.ResponseBody,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    e.UpdatedAt.Format(time.RFC3339),
	}
	if e.SentAt != nil {
		s := e.SentAt.Format(time.RFC3339)
		resp.SentAt = &s
	}
	return resp
}
