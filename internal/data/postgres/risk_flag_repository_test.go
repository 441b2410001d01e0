package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stipend-escrow-ledger/internal/domain/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskFlagRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &RiskFlagRepository{querier: mock, logger: newTestLogger()}
	flag := &risk.UserRiskFlag{UserID: "payer-1", DisputeRate: 0.2, DisputeCount: 2, TransactionCount: 10, FlaggedAt: time.Now()}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id) DO UPDATE")).
		WithArgs(flag.UserID, flag.DisputeRate, flag.DisputeCount, flag.TransactionCount, flag.FlaggedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Upsert(ctx, flag))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRiskFlagRepository_GetByUser(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &RiskFlagRepository{querier: mock, logger: newTestLogger()}
	query := regexp.QuoteMeta("FROM user_risk_flags")
	columns := []string{"user_id", "dispute_rate", "dispute_count", "transaction_count", "flagged_at"}

	t.Run("found", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(query).WithArgs("payer-1").
			WillReturnRows(pgxmock.NewRows(columns).AddRow("payer-1", 0.25, int64(1), int64(4), now))

		flag, err := repo.GetByUser(ctx, "payer-1")
		require.NoError(t, err)
		assert.Equal(t, 0.25, flag.DisputeRate)
		assert.Equal(t, int64(4), flag.TransactionCount)
	})

	t.Run("never flagged", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("payer-2").WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByUser(ctx, "payer-2")
		assert.Equal(t, risk.ErrFlagNotFound{UserID: "payer-2"}, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
