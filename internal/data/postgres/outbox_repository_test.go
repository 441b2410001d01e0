package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stipend-escrow-ledger/internal/domain/outbox"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var outboxRowColumns = []string{"id", "escrow_hold_id", "kind", "payload", "status", "attempts", "created_at", "last_attempt_at"}

func TestOutboxRepository_WithTx(t *testing.T) {
	repo := &OutboxRepository{querier: nil, logger: slog.Default()}

	mockTx := pgx.Tx(nil)
	txRepo := repo.WithTx(mockTx)

	outboxRepo, ok := txRepo.(*OutboxRepository)
	require.True(t, ok)
	assert.Equal(t, mockTx, outboxRepo.querier)
}

func TestOutboxRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger()}
	msg, err := outbox.NewMessage(uuid.New(), shared.EffectNotification, outbox.NotificationPayload{Template: "hold_released", Recipient: "payer-1"})
	require.NoError(t, err)
	query := regexp.QuoteMeta("INSERT INTO escrow_outbox")

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(msg.HoldID, msg.Kind, msg.Payload, msg.Status, msg.Attempts, msg.CreatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

		require.NoError(t, repo.Create(ctx, msg))
		assert.Equal(t, int64(42), msg.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		dbErr := errors.New("insert failed")
		mock.ExpectQuery(query).
			WithArgs(msg.HoldID, msg.Kind, msg.Payload, msg.Status, msg.Attempts, msg.CreatedAt).
			WillReturnError(dbErr)

		err := repo.Create(ctx, msg)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOutboxRepository_GetPending(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger()}
	holdID := uuid.New()
	payload := json.RawMessage(`{"reference":"trf_1"}`)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM escrow_outbox")).
		WithArgs(shared.OutboxStatusPending, 10).
		WillReturnRows(pgxmock.NewRows(outboxRowColumns).
			AddRow(int64(1), holdID, shared.EffectMerchantTransfer, payload, shared.OutboxStatusPending, 0, now, (*time.Time)(nil)))

	messages, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, shared.EffectMerchantTransfer, messages[0].Kind)
	assert.Equal(t, holdID, messages[0].HoldID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger()}
	query := regexp.QuoteMeta("SET status = $1, last_attempt_at = $2")

	mock.ExpectExec(query).
		WithArgs(shared.OutboxStatusProcessed, pgxmock.AnyArg(), int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.UpdateStatus(ctx, 7, shared.OutboxStatusProcessed))

	mock.ExpectExec(query).
		WithArgs(shared.OutboxStatusProcessed, pgxmock.AnyArg(), int64(8)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = repo.UpdateStatus(ctx, 8, shared.OutboxStatusProcessed)
	assert.Equal(t, outbox.ErrMessageNotFound{ID: 8}, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_IncrementAttempts(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger()}

	mock.ExpectExec(regexp.QuoteMeta("SET attempts = attempts + 1")).
		WithArgs(pgxmock.AnyArg(), int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.IncrementAttempts(ctx, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_ListByHold(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger()}
	holdID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE escrow_hold_id = $1")).WithArgs(holdID).
		WillReturnRows(pgxmock.NewRows(outboxRowColumns).
			AddRow(int64(1), holdID, shared.EffectMerchantTransfer, json.RawMessage(`{}`), shared.OutboxStatusProcessed, 1, now, &now).
			AddRow(int64(2), holdID, shared.EffectNotification, json.RawMessage(`{}`), shared.OutboxStatusPending, 0, now, (*time.Time)(nil)))

	messages, err := repo.ListByHold(ctx, holdID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, shared.EffectNotification, messages[1].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
