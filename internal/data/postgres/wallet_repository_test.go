package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/domain/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var walletRowColumns = []string{"id", "user_id", "balance", "currency", "version", "created_at", "updated_at"}

func TestWalletRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletRepository{querier: mock, logger: newTestLogger()}
	w := &wallet.Wallet{ID: uuid.New(), UserID: "user-1", Balance: 500000, Currency: "NGN", Version: 1, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	query := regexp.QuoteMeta("INSERT INTO wallets")

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(w.ID, w.UserID, w.Balance, w.Currency, w.Version, w.CreatedAt, w.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, repo.Create(ctx, w))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectExec(query).
			WithArgs(w.ID, w.UserID, w.Balance, w.Currency, w.Version, w.CreatedAt, w.UpdatedAt).
			WillReturnError(expectedErr)

		err := repo.Create(ctx, w)
		assert.ErrorIs(t, err, expectedErr)
		assert.Contains(t, err.Error(), "failed to create wallet")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletRepository_LockByUserID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletRepository{querier: mock, logger: newTestLogger()}
	now := time.Now()
	expected := &wallet.Wallet{ID: uuid.New(), UserID: "user-1", Balance: 500000, Currency: "NGN", Version: 4, CreatedAt: now, UpdatedAt: now}
	query := regexp.QuoteMeta("WHERE user_id = $1")

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("user-1").
			WillReturnRows(pgxmock.NewRows(walletRowColumns).
				AddRow(expected.ID, expected.UserID, expected.Balance, expected.Currency, expected.Version, expected.CreatedAt, expected.UpdatedAt))

		got, err := repo.LockByUserID(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, expected, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("ghost").WillReturnError(pgx.ErrNoRows)

		got, err := repo.LockByUserID(ctx, "ghost")
		assert.Nil(t, got)
		var notFound wallet.ErrWalletNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "ghost", notFound.UserID)
		assert.Equal(t, shared.KindWalletNotFound, shared.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("some db error")
		mock.ExpectQuery(query).WithArgs("user-1").WillReturnError(dbErr)

		got, err := repo.LockByUserID(ctx, "user-1")
		assert.Nil(t, got)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to lock wallet by user")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletRepository{querier: mock, logger: newTestLogger()}
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByID(ctx, id)
	var notFound wallet.ErrWalletNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, id, notFound.WalletID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_UpdateBalance(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletRepository{querier: mock, logger: newTestLogger()}
	id := uuid.New()
	query := regexp.QuoteMeta("UPDATE wallets")

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(int64(300000), id, 4).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.UpdateBalance(ctx, id, 300000, 4))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent modification", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(int64(300000), id, 4).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdateBalance(ctx, id, 300000, 4)
		var conflict shared.ErrStorageConflict
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "wallet", conflict.Entity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
