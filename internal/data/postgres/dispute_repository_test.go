package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stipend-escrow-ledger/internal/domain/dispute"
	"github.com/stipend-escrow-ledger/internal/domain/risk"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisputeRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DisputeRepository{querier: mock, logger: newTestLogger()}
	d, err := dispute.New(uuid.New(), "payer-1", "item not received", time.Now())
	require.NoError(t, err)
	query := regexp.QuoteMeta("INSERT INTO disputes")

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(d.ID, d.HoldID, d.RaisedBy, d.Description, d.Status, d.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, repo.Create(ctx, d))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second open dispute", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(d.ID, d.HoldID, d.RaisedBy, d.Description, d.Status, d.CreatedAt).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_disputes_one_open_per_hold"})

		err := repo.Create(ctx, d)
		assert.Equal(t, shared.KindStorageConflict, shared.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDisputeRepository_GetOpenByHold(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DisputeRepository{querier: mock, logger: newTestLogger()}
	holdID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM disputes")).WithArgs(holdID, dispute.StatusOpen).WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetOpenByHold(ctx, holdID)
	var notFound dispute.ErrOpenDisputeNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, holdID, notFound.HoldID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisputeRepository_Resolve(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DisputeRepository{querier: mock, logger: newTestLogger()}
	d, err := dispute.New(uuid.New(), "payer-1", "damaged", time.Now())
	require.NoError(t, err)
	d.Resolve(dispute.OutcomeRefund, "admin-1", "confirmed", time.Now())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE disputes")).
		WithArgs(d.Status, d.ResolutionNote, d.ResolvedBy, d.ResolvedAt, d.ID, dispute.StatusOpen).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.Resolve(ctx, d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisputeRepository_CountByUser(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DisputeRepository{querier: mock, logger: newTestLogger()}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE raised_by = $1")).WithArgs("payer-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

	count, err := repo.CountByUser(ctx, "payer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRiskFlagRepository(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &RiskFlagRepository{querier: mock, logger: newTestLogger()}
	flag := &risk.UserRiskFlag{UserID: "payer-1", DisputeRate: 0.2, DisputeCount: 2, TransactionCount: 10, FlaggedAt: time.Now()}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id) DO UPDATE")).
		WithArgs(flag.UserID, flag.DisputeRate, flag.DisputeCount, flag.TransactionCount, flag.FlaggedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, repo.Upsert(ctx, flag))

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_risk_flags")).WithArgs("clean-user").WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByUser(ctx, "clean-user")
	assert.ErrorIs(t, err, risk.ErrFlagNotFound{UserID: "clean-user"})

	assert.NoError(t, mock.ExpectationsWereMet())
}
