package producers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

func TestPaymentEventProducer_PublishEvent(t *testing.T) {
	ctx := context.Background()
	event := &shared.PaymentEvent{
		Event:      shared.PaymentEventChargeSuccess,
		Reference:  "chg_42",
		Amount:     300000,
		Currency:   "NGN",
		Metadata:   shared.PaymentEventMetadata{UserID: "employee-1", MerchantID: "merchant-1"},
		ReceivedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	t.Run("KeyedByReference", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &PaymentEventProducer{logger: testLogger(), writer: mockWriter, topic: "escrow_payment_events"}

		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			var got shared.PaymentEvent
			return len(msgs) == 1 &&
				string(msgs[0].Key) == "chg_42" &&
				json.Unmarshal(msgs[0].Value, &got) == nil &&
				got.Amount == 300000 && got.Metadata.MerchantID == "merchant-1"
		})).Return(nil).Once()

		require.NoError(t, producer.PublishEvent(ctx, event))
		mockWriter.AssertExpectations(t)
	})

	t.Run("WriterError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &PaymentEventProducer{logger: testLogger(), writer: mockWriter, topic: "escrow_payment_events"}
		writerErr := errors.New("not enough replicas")
		mockWriter.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writerErr).Once()

		err := producer.PublishEvent(ctx, event)
		assert.ErrorIs(t, err, writerErr)
		assert.Contains(t, err.Error(), "escrow_payment_events")
	})

	t.Run("UnmarshalableValue", func(t *testing.T) {
		producer := &PaymentEventProducer{logger: testLogger(), writer: new(MockKafkaWriter), topic: "t"}
		err := producer.Publish(ctx, "k", make(chan int))
		assert.ErrorContains(t, err, "failed to marshal payment event")
	})
}

func TestPaymentEventProducer_Close(t *testing.T) {
	mockWriter := new(MockKafkaWriter)
	producer := &PaymentEventProducer{logger: testLogger(), writer: mockWriter, topic: "t"}
	mockWriter.On("Close").Return(nil).Once()

	require.NoError(t, producer.Close())
	mockWriter.AssertExpectations(t)
}
