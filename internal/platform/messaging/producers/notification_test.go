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
)

func TestNotificationProducer_Send(t *testing.T) {
	ctx := context.Background()
	sentAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	newProducer := func(w KafkaWriter) *NotificationProducer {
		return &NotificationProducer{logger: testLogger(), writer: w, topic: "escrow_notifications", now: func() time.Time { return sentAt }}
	}

	t.Run("Success", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			var n Notification
			return len(msgs) == 1 &&
				string(msgs[0].Key) == "merchant-1" &&
				json.Unmarshal(msgs[0].Value, &n) == nil &&
				n.Template == "escrow_hold_released" &&
				n.Data["amount"] == "250000" &&
				n.SentAt.Equal(sentAt)
		})).Return(nil).Once()

		err := newProducer(mockWriter).Send(ctx, "escrow_hold_released", "merchant-1", map[string]string{"amount": "250000"})
		require.NoError(t, err)
		mockWriter.AssertExpectations(t)
	})

	t.Run("MissingRecipient", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		err := newProducer(mockWriter).Send(ctx, "escrow_hold_released", "", nil)
		require.Error(t, err)
		mockWriter.AssertNotCalled(t, "WriteMessages", mock.Anything, mock.Anything)
	})

	t.Run("WriterError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		writerErr := errors.New("queue full")
		mockWriter.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writerErr).Once()

		err := newProducer(mockWriter).Send(ctx, "escrow_dispute_filed", "employee-1", nil)
		assert.ErrorIs(t, err, writerErr)
	})
}
