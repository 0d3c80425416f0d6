package postgres

import (
	"context"
	"errors"
	"fmt"

	"payment-webhook-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AppRepo implements ports.AppRepository.
type AppRepo struct {
	pool Pool
}

// NewAppRepo creates a new AppRepo.
func NewAppRepo(pool Pool) *AppRepo {
	return &AppRepo{pool: pool}
}

// Create inserts a new app into the database.
func (r *AppRepo) Create(ctx context.Context, a *domain.App) error {
	query := `INSERT INTO apps (id, name, webhook_url, webhook_secret_enc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())`

	_, err := r.pool.Exec(ctx, query, a.ID, a.Name, a.WebhookURL, a.WebhookSecretEnc)
	if err != nil {
		return fmt.Errorf("insert app: %w", err)
	}
	return nil
}

// GetByID fetches an app by its UUID. Returns nil without error when the
// app does not exist.
func (r *AppRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.App, error) {
	query := `SELECT id, name, webhook_url, webhook_secret_enc, created_at, updated_at
		FROM apps WHERE id = $1`

	a := &domain.App{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.WebhookURL, &a.WebhookSecretEnc,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get app by id: %w", err)
	}
	return a, nil
}
