package handler

import (
	"payment-webhook-engine/internal/adapter/http/dto"
	"payment-webhook-engine/internal/core/domain"
	"payment-webhook-engine/internal/core/ports"
	"payment-webhook-engine/pkg/apperror"
	"payment-webhook-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// NotificationHandler receives payment outcome notifications from the
// payment component.
type NotificationHandler struct {
	notifier ports.PaymentNotifier
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notifier ports.PaymentNotifier) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

// PaymentSucceeded handles POST /api/v1/notifications/payment-succeeded.
func (h *NotificationHandler) PaymentSucceeded(c *gin.Context) {
	h.accept(c, domain.PaymentStatusSuccess)
}

// PaymentFailed handles POST /api/v1/notifications/payment-failed.
func (h *NotificationHandler) PaymentFailed(c *gin.Context) {
	h.accept(c, domain.PaymentStatusFailed)
}

func (h *NotificationHandler) accept(c *gin.Context, status domain.PaymentStatus) {
	var req dto.PaymentNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	// uuid format is enforced by the binding tags
	paymentID := uuid.MustParse(req.PaymentID)
	appID := uuid.MustParse(req.AppID)

	payment := &domain.Payment{
		ID:            paymentID,
		AppID:         appID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Reference:     req.Reference,
		Status:        status,
		FailureReason: req.FailureReason,
	}

	if status == domain.PaymentStatusSuccess {
		h.notifier.PaymentSucceeded(c.Request.Context(), payment)
	} else {
		h.notifier.PaymentFailed(c.Request.Context(), payment)
	}

	response.Accepted(c, dto.PaymentNotificationResponse{
		PaymentID: payment.ID.String(),
		Accepted:  true,
	})
}
