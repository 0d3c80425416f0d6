package postgres

import (
	"context"
	"testing"
	"time"

	"payment-webhook-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestApp() *domain.App {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.App{
		ID:               uuid.New(),
		Name:             "Test Store",
		WebhookURL:       strPtr("https://store.example.com/hooks/payments"),
		WebhookSecretEnc: "encrypted_webhook_secret",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func appColumns() []string {
	return []string{"id", "name", "webhook_url", "webhook_secret_enc", "created_at", "updated_at"}
}

func TestAppRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAppRepo(mock)
	a := newTestApp()

	mock.ExpectExec("INSERT INTO apps").
		WithArgs(a.ID, a.Name, a.WebhookURL, a.WebhookSecretEnc).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), a)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAppRepo(mock)
	a := newTestApp()

	mock.ExpectQuery("SELECT .+ FROM apps WHERE id").
		WithArgs(a.ID).
		WillReturnRows(pgxmock.NewRows(appColumns()).AddRow(
			a.ID, a.Name, a.WebhookURL, a.WebhookSecretEnc, a.CreatedAt, a.UpdatedAt,
		))

	result, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.ID, result.ID)
	assert.Equal(t, *a.WebhookURL, *result.WebhookURL)
	assert.True(t, result.HasWebhook())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAppRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM apps WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(appColumns()))

	result, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppRepo_GetByID_NoWebhookURL(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAppRepo(mock)
	a := newTestApp()
	a.WebhookURL = nil

	mock.ExpectQuery("SELECT .+ FROM apps WHERE id").
		WithArgs(a.ID).
		WillReturnRows(pgxmock.NewRows(appColumns()).AddRow(
			a.ID, a.Name, a.WebhookURL, a.WebhookSecretEnc, a.CreatedAt, a.UpdatedAt,
		))

	result, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.HasWebhook())
	assert.NoError(t, mock.ExpectationsWereMet())
}
