package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDB_Pool(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	var nilPool *pgxpool.Pool
	db := &PostgresDB{
		pool:   nilPool,
		logger: logger,
	}
	assert.Equal(t, nilPool, db.Pool())
}

func TestClassifyError(t *testing.T) {
	t.Run("SerializationFailure", func(t *testing.T) {
		err := fmt.Errorf("update wallet: %w", &pgconn.PgError{Code: "40001", TableName: "wallets"})
		classified := ClassifyError(err)
		assert.Equal(t, shared.KindStorageConflict, shared.KindOf(classified))
	})

	t.Run("Deadlock", func(t *testing.T) {
		classified := ClassifyError(&pgconn.PgError{Code: "40P01"})
		assert.True(t, shared.IsKind(classified, shared.KindStorageConflict))
	})

	t.Run("OtherPgErrorUntouched", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "23503"}
		assert.Same(t, pgErr, ClassifyError(pgErr))
	})

	t.Run("AlreadyConflict", func(t *testing.T) {
		conflict := shared.ErrStorageConflict{Entity: "escrow_hold", ID: "h"}
		assert.Equal(t, conflict, ClassifyError(conflict))
	})

	t.Run("Nil", func(t *testing.T) {
		assert.NoError(t, ClassifyError(nil))
	})
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "transactions_reference_key"})
	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "transactions_reference_key"))
	assert.False(t, IsUniqueViolation(err, "other_key"))
	assert.False(t, IsUniqueViolation(errors.New("plain"), ""))
}

func TestRunInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("CommitsOnSuccess", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectBegin()
		mockPool.ExpectCommit()
		tx, err := mockPool.Begin(ctx)
		require.NoError(t, err)

		err = runInTx(ctx, tx, func(tx pgx.Tx) error { return nil })
		assert.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("RollsBackAndClassifies", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectBegin()
		mockPool.ExpectRollback()
		tx, err := mockPool.Begin(ctx)
		require.NoError(t, err)

		err = runInTx(ctx, tx, func(tx pgx.Tx) error {
			return &pgconn.PgError{Code: "40001"}
		})
		assert.Equal(t, shared.KindStorageConflict, shared.KindOf(err))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("RollsBackOnPanic", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectBegin()
		mockPool.ExpectRollback()
		tx, err := mockPool.Begin(ctx)
		require.NoError(t, err)

		assert.Panics(t, func() {
			_ = runInTx(ctx, tx, func(tx pgx.Tx) error { panic("boom") })
		})
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
