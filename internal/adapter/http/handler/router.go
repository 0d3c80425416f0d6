package handler

import (
	"payment-webhook-engine/internal/adapter/http/middleware"
	"payment-webhook-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Notifier       ports.PaymentNotifier
	EventRepo      ports.WebhookEventRepository
	TokenSvc       ports.TokenService
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// API v1 routes. The API is internal: every route requires a service
	// token issued to the payment component or to operators.
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	v1 := r.Group("/api/v1", jwtAuth)

	notificationHandler := NewNotificationHandler(deps.Notifier)
	notifications := v1.Group("/notifications")
	{
		notifications.POST("/payment-succeeded", notificationHandler.PaymentSucceeded)
		notifications.POST("/payment-failed", notificationHandler.PaymentFailed)
	}

	eventHandler := NewWebhookEventHandler(deps.EventRepo)
	events := v1.Group("/webhook-events")
	{
		events.GET("", eventHandler.ListByPayment)
		events.GET("/:id", eventHandler.GetByID)
	}

	return r
}
