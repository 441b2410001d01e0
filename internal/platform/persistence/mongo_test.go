package persistence

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stipend-escrow-ledger/internal/config"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMongoDB_Collection(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	// mongo.Connect does not dial until first use
	client, _ := mongo.Connect(context.TODO(), options.Client().ApplyURI("mongodb://localhost:27017"))
	database := client.Database("stipend_escrow_test")

	mdb := &MongoDB{
		logger:   logger,
		client:   client,
		database: database,
	}
	assert.Equal(t, database, mdb.Database())
	assert.Equal(t, "settlements", mdb.Collection("settlements").Name())
	assert.Equal(t, "stipend_escrow_test", mdb.Collection("settlements").Database().Name())
}

func TestNewMongoDB_UnreachableServer(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	_, err := NewMongoDB(context.Background(), logger, &config.MongoDBConfig{
		URI:         "mongodb://127.0.0.1:1",
		Database:    "stipend_escrow_test",
		Timeout:     200 * time.Millisecond,
		MaxPoolSize: 1,
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping MongoDB")
}
