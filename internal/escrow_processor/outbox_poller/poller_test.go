package outbox_poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/stipend-escrow-ledger/internal/config"
	"github.com/stipend-escrow-ledger/internal/domain/outbox"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// MockOutboxRepo for testing
type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) Create(ctx context.Context, message *outbox.Message) error {
	return m.Called(ctx, message).Error(0)
}

func (m *MockOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockOutboxRepo) IncrementAttempts(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxRepo) ListByHold(ctx context.Context, holdID uuid.UUID) ([]*outbox.Message, error) {
	args := m.Called(ctx, holdID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository {
	return m.Called(tx).Get(0).(outbox.Repository)
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, message *outbox.Message) error {
	return m.Called(ctx, message).Error(0)
}

func TestPoller_ProcessPendingMessages(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.OutboxConfig{
		PollingInterval:  time.Second,
		BatchSize:        10,
		MaxRetryAttempts: 3,
	}

	transfer := &outbox.Message{ID: 1, HoldID: uuid.New(), Kind: shared.EffectMerchantTransfer, Status: shared.OutboxStatusPending}
	notice := &outbox.Message{ID: 2, HoldID: uuid.New(), Kind: shared.EffectNotification, Status: shared.OutboxStatusPending}
	exhausted := &outbox.Message{ID: 3, HoldID: uuid.New(), Kind: shared.EffectCardRefund, Status: shared.OutboxStatusPending, Attempts: 2}

	tests := []struct {
		name          string
		setupMocks    func(repo *MockOutboxRepo, exec *MockExecutor)
		expectedError string
	}{
		{
			name: "executes every pending message",
			setupMocks: func(repo *MockOutboxRepo, exec *MockExecutor) {
				repo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{transfer, notice}, nil).Once()
				exec.On("Execute", mock.Anything, transfer).Return(nil).Once()
				exec.On("Execute", mock.Anything, notice).Return(nil).Once()
			},
		},
		{
			name: "error getting pending messages",
			setupMocks: func(repo *MockOutboxRepo, exec *MockExecutor) {
				repo.On("GetPending", mock.Anything, 10).Return(nil, errors.New("db error")).Once()
			},
			expectedError: "failed to get pending outbox messages",
		},
		{
			name: "no pending messages",
			setupMocks: func(repo *MockOutboxRepo, exec *MockExecutor) {
				repo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{}, nil).Once()
			},
		},
		{
			name: "failed message counts an attempt and the batch continues",
			setupMocks: func(repo *MockOutboxRepo, exec *MockExecutor) {
				repo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{transfer, notice}, nil).Once()
				exec.On("Execute", mock.Anything, transfer).Return(errors.New("gateway timeout")).Once()
				repo.On("IncrementAttempts", mock.Anything, int64(1)).Return(nil).Once()
				exec.On("Execute", mock.Anything, notice).Return(nil).Once()
			},
		},
		{
			name: "max retry attempts reached",
			setupMocks: func(repo *MockOutboxRepo, exec *MockExecutor) {
				repo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{exhausted}, nil).Once()
				exec.On("Execute", mock.Anything, exhausted).Return(errors.New("refund rejected")).Once()
				repo.On("IncrementAttempts", mock.Anything, int64(3)).Return(nil).Once()
				repo.On("UpdateStatus", mock.Anything, int64(3), shared.OutboxStatusFailedToPublish).Return(nil).Once()
			},
		},
		{
			name: "increment failure skips the status check",
			setupMocks: func(repo *MockOutboxRepo, exec *MockExecutor) {
				repo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{exhausted}, nil).Once()
				exec.On("Execute", mock.Anything, exhausted).Return(errors.New("refund rejected")).Once()
				repo.On("IncrementAttempts", mock.Anything, int64(3)).Return(errors.New("db error")).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, exec := &MockOutboxRepo{}, &MockExecutor{}
			poller := NewPoller(cfg, repo, exec, logger)
			tt.setupMocks(repo, exec)

			err := poller.processPendingMessages(context.Background())
			if tt.expectedError != "" {
				assert.ErrorContains(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}

			repo.AssertExpectations(t)
			exec.AssertExpectations(t)
		})
	}
}

func TestPoller_Start(t *testing.T) {
	repo, exec := &MockOutboxRepo{}, &MockExecutor{}
	cfg := &config.OutboxConfig{PollingInterval: 5 * time.Millisecond, BatchSize: 10, MaxRetryAttempts: 3}
	poller := NewPoller(cfg, repo, exec, slog.New(slog.NewTextHandler(io.Discard, nil)))

	polled := make(chan struct{}, 1)
	repo.On("GetPending", mock.Anything, 10).Run(func(mock.Arguments) {
		select {
		case polled <- struct{}{}:
		default:
		}
	}).Return([]*outbox.Message{}, nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(stopped)
	}()

	select {
	case <-polled:
	case <-time.After(time.Second):
		t.Fatal("poller never polled")
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
