package ports

import (
	"context"
	"time"

	"payment-webhook-engine/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption of webhook
// secrets at rest.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification of webhook
// payloads.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService handles bearer tokens for the HTTP surface.
type TokenService interface {
	Generate(service string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Service string
}

// EnqueueGuard deduplicates enqueue requests when the payment component
// redelivers the same trigger.
type EnqueueGuard interface {
	// CheckAndSet atomically checks if key exists, sets it if not.
	// Returns true if the key is new (first trigger), false if already seen.
	CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// DeliveryService performs a single webhook delivery attempt and transitions
// the event's state. Safe to invoke concurrently for the same id.
type DeliveryService interface {
	AttemptDelivery(ctx context.Context, id uuid.UUID) error
}

// PaymentNotifier is the inbound surface consumed by the payment component.
// Both methods are fire-and-forget: every failure is absorbed and logged,
// nothing propagates back into the payment path.
type PaymentNotifier interface {
	PaymentSucceeded(ctx context.Context, payment *domain.Payment)
	PaymentFailed(ctx context.Context, payment *domain.Payment)
}
