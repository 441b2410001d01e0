package mongo

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/stipend-escrow-ledger/internal/domain/settlement"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

func recordDoc(t *testing.T, r *settlement.Record) bson.D {
	t.Helper()
	raw, err := bson.Marshal(r)
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func newRecordFixture() *settlement.Record {
	processed := time.Now().UTC().Truncate(time.Millisecond)
	return &settlement.Record{
		Reference:          "trf_" + uuid.NewString(),
		HoldID:             uuid.New(),
		TransactionID:      uuid.New(),
		MerchantID:         "merchant-1",
		Kind:               shared.EffectMerchantTransfer,
		Amount:             150000,
		Currency:           "NGN",
		Status:             settlement.StatusSucceeded,
		ProcessorReference: "TRF_abc",
		CreatedAt:          processed,
		ProcessedAt:        &processed,
	}
}

func TestSettlementRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	logger := slog.Default()
	ns := "stipend_escrow." + SettlementCollectionName

	mt.Run("upsert", func(mt *mtest.T) {
		repo := NewSettlementRepository(logger, mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
		))

		err := repo.Upsert(context.Background(), newRecordFixture())
		assert.NoError(mt, err)
	})

	mt.Run("upsert failure", func(mt *mtest.T) {
		repo := NewSettlementRepository(logger, mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))

		err := repo.Upsert(context.Background(), newRecordFixture())
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "failed to upsert settlement record")
	})

	mt.Run("get by reference", func(mt *mtest.T) {
		repo := NewSettlementRepository(logger, mt.DB)
		expected := newRecordFixture()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, recordDoc(mt.T, expected)))

		got, err := repo.GetByReference(context.Background(), expected.Reference)
		require.NoError(mt, err)
		assert.Equal(mt, expected.Reference, got.Reference)
		assert.Equal(mt, expected.HoldID, got.HoldID)
		assert.Equal(mt, expected.Amount, got.Amount)
		assert.Equal(mt, shared.EffectMerchantTransfer, got.Kind)
	})

	mt.Run("get by reference not found", func(mt *mtest.T) {
		repo := NewSettlementRepository(logger, mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		got, err := repo.GetByReference(context.Background(), "missing")
		assert.Nil(mt, got)
		assert.ErrorIs(mt, err, settlement.ErrRecordNotFound{})
	})

	mt.Run("list by hold", func(mt *mtest.T) {
		repo := NewSettlementRepository(logger, mt.DB)
		holdID := uuid.New()
		transfer := newRecordFixture()
		transfer.HoldID = holdID
		refund := newRecordFixture()
		refund.HoldID = holdID
		refund.Kind = shared.EffectCardRefund

		mt.AddMockResponses(
			mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, recordDoc(mt.T, transfer), recordDoc(mt.T, refund)),
			mtest.CreateCursorResponse(0, ns, mtest.NextBatch),
		)

		records, err := repo.ListByHold(context.Background(), holdID)
		require.NoError(mt, err)
		require.Len(mt, records, 2)
		assert.Equal(mt, shared.EffectCardRefund, records[1].Kind)
	})

	mt.Run("list by merchant empty", func(mt *mtest.T) {
		repo := NewSettlementRepository(logger, mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		records, err := repo.ListByMerchant(context.Background(), "merchant-1", 20, 0)
		require.NoError(mt, err)
		assert.Empty(mt, records)
	})
}
