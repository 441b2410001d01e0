package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stipend-escrow-ledger/internal/domain/settlement"
)

const (
	// SettlementCollectionName is the name of the settlement collection in MongoDB
	SettlementCollectionName = "settlement_records"
)

// SettlementRepository implements the settlement.Repository interface for MongoDB
type SettlementRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewSettlementRepository creates a new MongoDB settlement repository
func NewSettlementRepository(logger *slog.Logger, db *mongo.Database) *SettlementRepository {
	return &SettlementRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the unique reference index and the lookup indexes
func (r *SettlementRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(SettlementCollectionName)
	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "reference", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "escrow_hold_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "merchant_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create settlement indexes: %w", err)
	}
	return nil
}

// Upsert writes the record keyed by reference. created_at is only set on the
// first write so retries keep the original timestamp.
func (r *SettlementRepository) Upsert(ctx context.Context, record *settlement.Record) error {
	collection := r.db.Collection(SettlementCollectionName)

	filter := bson.M{"reference": record.Reference}
	update := bson.M{
		"$set": bson.M{
			"escrow_hold_id":      record.HoldID,
			"transaction_id":      record.TransactionID,
			"merchant_id":         record.MerchantID,
			"kind":                record.Kind,
			"amount":              record.Amount,
			"currency":            record.Currency,
			"status":              record.Status,
			"processor_reference": record.ProcessorReference,
			"failure_reason":      record.FailureReason,
			"processed_at":        record.ProcessedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": record.CreatedAt,
		},
	}

	_, err := collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		r.logger.Error("Failed to upsert settlement record",
			"reference", record.Reference,
			"hold_id", record.HoldID.String(),
			"error", err)
		return fmt.Errorf("failed to upsert settlement record: %w", err)
	}

	return nil
}

// GetByReference retrieves a record by its movement reference
func (r *SettlementRepository) GetByReference(ctx context.Context, reference string) (*settlement.Record, error) {
	collection := r.db.Collection(SettlementCollectionName)

	var record settlement.Record
	err := collection.FindOne(ctx, bson.M{"reference": reference}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, settlement.ErrRecordNotFound{Reference: reference}
		}
		r.logger.Error("Failed to get settlement record", "reference", reference, "error", err)
		return nil, fmt.Errorf("failed to get settlement record: %w", err)
	}

	return &record, nil
}

// ListByHold returns every movement executed for a hold, oldest first
func (r *SettlementRepository) ListByHold(ctx context.Context, holdID uuid.UUID) ([]*settlement.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.find(ctx, bson.M{"escrow_hold_id": holdID}, opts, "hold_id", holdID.String())
}

// ListByMerchant returns a merchant's payouts and refunds, newest first
func (r *SettlementRepository) ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*settlement.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return r.find(ctx, bson.M{"merchant_id": merchantID}, opts, "merchant_id", merchantID)
}

func (r *SettlementRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions, logKey, logValue string) ([]*settlement.Record, error) {
	collection := r.db.Collection(SettlementCollectionName)

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to find settlement records", logKey, logValue, "error", err)
		return nil, fmt.Errorf("failed to find settlement records: %w", err)
	}
	defer cursor.Close(ctx)

	records := []*settlement.Record{}
	if err := cursor.All(ctx, &records); err != nil {
		r.logger.Error("Failed to decode settlement records", logKey, logValue, "error", err)
		return nil, fmt.Errorf("failed to decode settlement records: %w", err)
	}

	return records, nil
}

var _ settlement.Repository = (*SettlementRepository)(nil)
