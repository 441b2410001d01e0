package producers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockKafkaWriter mocks KafkaWriter interface
type MockKafkaWriter struct {
	mock.Mock
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ KafkaWriter = (*MockKafkaWriter)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestDLQProducer_PublishToDLQ(t *testing.T) {
	ctx := context.Background()

	t.Run("WrapsOriginalMessage", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{logger: testLogger(), writer: mockWriter, dlqTopic: "escrow_dlq"}
		original := []byte(`{"reference":"chg_1"}`)

		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 || string(msgs[0].Key) != "chg_1" {
				return false
			}
			var letter DeadLetter
			if err := json.Unmarshal(msgs[0].Value, &letter); err != nil {
				return false
			}
			return letter.OriginalValue == string(original) &&
				letter.Reason == "unmarshal_error" &&
				letter.Timestamp != "" &&
				string(msgs[0].Headers[0].Value) == "unmarshal_error"
		})).Return(nil).Once()

		require.NoError(t, producer.PublishToDLQ(ctx, "chg_1", original, "unmarshal_error"))
		mockWriter.AssertExpectations(t)
	})

	t.Run("WriterError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{logger: testLogger(), writer: mockWriter, dlqTopic: "escrow_dlq"}
		writerErr := errors.New("broker unavailable")
		mockWriter.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writerErr).Once()

		err := producer.PublishToDLQ(ctx, "chg_2", []byte("x"), "processing_failed")
		assert.ErrorIs(t, err, writerErr)
	})

	t.Run("Disabled", func(t *testing.T) {
		var producer *DLQProducer
		assert.ErrorIs(t, producer.PublishToDLQ(ctx, "chg_3", nil, "any"), ErrDLQDisabled)
		assert.NoError(t, producer.Close())
	})
}

func TestDLQProducer_Close(t *testing.T) {
	mockWriter := new(MockKafkaWriter)
	producer := &DLQProducer{logger: testLogger(), writer: mockWriter, dlqTopic: "escrow_dlq"}
	closeErr := errors.New("close failed")
	mockWriter.On("Close").Return(closeErr).Once()

	assert.ErrorIs(t, producer.Close(), closeErr)
	mockWriter.AssertExpectations(t)
}
