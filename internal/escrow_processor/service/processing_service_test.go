package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	escrowdomain "github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/escrow"
	"github.com/stipend-escrow-ledger/internal/platform/payment"
)

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, reference string) (*payment.VerifyResult, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.VerifyResult), args.Error(1)
}

type MockCapturer struct {
	mock.Mock
}

func (m *MockCapturer) CaptureHold(ctx context.Context, req escrow.CaptureRequest) (*escrowdomain.Hold, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*escrowdomain.Hold), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chargeEvent() *shared.PaymentEvent {
	return &shared.PaymentEvent{
		Event:         shared.PaymentEventChargeSuccess,
		Reference:     "chg_100",
		Amount:        450000,
		Currency:      "NGN",
		CorrelationID: "corr-1",
		Metadata:      shared.PaymentEventMetadata{UserID: "spoofed", MerchantID: "spoofed"},
	}
}

func TestProcessingService_ProcessPaymentEvent(t *testing.T) {
	ctx := context.Background()
	walletID := uuid.New()
	verified := &payment.VerifyResult{
		Reference: "chg_100",
		Status:    payment.StatusSuccess,
		Amount:    450000,
		Currency:  "NGN",
		Metadata: shared.PaymentEventMetadata{
			UserID:     "employee-1",
			MerchantID: "merchant-1",
			WalletID:   walletID.String(),
			OrderID:    "ord-9",
		},
	}

	t.Run("CapturesVerifiedCharge", func(t *testing.T) {
		verifier, capturer := new(MockVerifier), new(MockCapturer)
		svc := NewProcessingService(verifier, capturer, discardLogger())

		verifier.On("Verify", ctx, "chg_100").Return(verified, nil).Once()
		capturer.On("CaptureHold", ctx, mock.MatchedBy(func(req escrow.CaptureRequest) bool {
			return req.Reference == "chg_100" &&
				req.PayerID == "employee-1" &&
				req.MerchantID == "merchant-1" &&
				req.Amount == 450000 &&
				req.WalletAmount == 0 &&
				req.WalletID != nil && *req.WalletID == walletID
		})).Return(&escrowdomain.Hold{ID: uuid.New(), State: escrowdomain.StateHeld}, nil).Once()

		require.NoError(t, svc.ProcessPaymentEvent(ctx, chargeEvent()))
		verifier.AssertExpectations(t)
		capturer.AssertExpectations(t)
	})

	t.Run("CheckoutChargeCapturesOrderTotal", func(t *testing.T) {
		verifier, capturer := new(MockVerifier), new(MockCapturer)
		svc := NewProcessingService(verifier, capturer, discardLogger())

		checkout := *verified
		checkout.Metadata.WalletAmount = 200000
		verifier.On("Verify", ctx, "chg_100").Return(&checkout, nil).Once()
		capturer.On("CaptureHold", ctx, mock.MatchedBy(func(req escrow.CaptureRequest) bool {
			return req.Amount == 650000 &&
				req.WalletAmount == 200000 &&
				req.WalletID != nil && *req.WalletID == walletID
		})).Return(&escrowdomain.Hold{ID: uuid.New(), State: escrowdomain.StateHeld}, nil).Once()

		require.NoError(t, svc.ProcessPaymentEvent(ctx, chargeEvent()))
		capturer.AssertExpectations(t)
	})

	t.Run("NegativeWalletAmount", func(t *testing.T) {
		verifier, capturer := new(MockVerifier), new(MockCapturer)
		svc := NewProcessingService(verifier, capturer, discardLogger())

		bad := *verified
		bad.Metadata.WalletAmount = -1
		verifier.On("Verify", ctx, "chg_100").Return(&bad, nil).Once()

		err := svc.ProcessPaymentEvent(ctx, chargeEvent())
		assert.True(t, shared.IsKind(err, shared.KindInvalidRequest))
		capturer.AssertNotCalled(t, "CaptureHold", mock.Anything, mock.Anything)
	})

	t.Run("IgnoresOtherEvents", func(t *testing.T) {
		verifier, capturer := new(MockVerifier), new(MockCapturer)
		svc := NewProcessingService(verifier, capturer, discardLogger())

		event := chargeEvent()
		event.Event = "transfer.success"
		require.NoError(t, svc.ProcessPaymentEvent(ctx, event))
		verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("AmountMismatchIsRejected", func(t *testing.T) {
		verifier, capturer := new(MockVerifier), new(MockCapturer)
		svc := NewProcessingService(verifier, capturer, discardLogger())

		tampered := *verified
		tampered.Amount = 100
		verifier.On("Verify", ctx, "chg_100").Return(&tampered, nil).Once()

		err := svc.ProcessPaymentEvent(ctx, chargeEvent())
		assert.True(t, shared.IsKind(err, shared.KindInvalidRequest))
		capturer.AssertNotCalled(t, "CaptureHold", mock.Anything, mock.Anything)
	})

	t.Run("ChargeNotSuccessful", func(t *testing.T) {
		verifier, capturer := new(MockVerifier), new(MockCapturer)
		svc := NewProcessingService(verifier, capturer, discardLogger())

		failed := *verified
		failed.Status = payment.StatusFailed
		verifier.On("Verify", ctx, "chg_100").Return(&failed, nil).Once()

		err := svc.ProcessPaymentEvent(ctx, chargeEvent())
		assert.True(t, shared.IsKind(err, shared.KindInvalidRequest))
	})

	t.Run("VerifyErrorIsRetryable", func(t *testing.T) {
		verifier, capturer := new(MockVerifier), new(MockCapturer)
		svc := NewProcessingService(verifier, capturer, discardLogger())

		gatewayErr := shared.ErrExternalPaymentFailed{Operation: "verify", Reason: "timeout"}
		verifier.On("Verify", ctx, "chg_100").Return(nil, gatewayErr).Once()

		err := svc.ProcessPaymentEvent(ctx, chargeEvent())
		assert.ErrorIs(t, err, gatewayErr)
		assert.False(t, shared.IsKind(err, shared.KindInvalidRequest))
	})

	t.Run("CaptureError", func(t *testing.T) {
		verifier, capturer := new(MockVerifier), new(MockCapturer)
		svc := NewProcessingService(verifier, capturer, discardLogger())

		dbErr := errors.New("connection reset")
		verifier.On("Verify", ctx, "chg_100").Return(verified, nil).Once()
		capturer.On("CaptureHold", ctx, mock.Anything).Return(nil, dbErr).Once()

		assert.ErrorIs(t, svc.ProcessPaymentEvent(ctx, chargeEvent()), dbErr)
	})

	t.Run("MalformedWalletID", func(t *testing.T) {
		verifier, capturer := new(MockVerifier), new(MockCapturer)
		svc := NewProcessingService(verifier, capturer, discardLogger())

		bad := *verified
		bad.Metadata.WalletID = "not-a-uuid"
		verifier.On("Verify", ctx, "chg_100").Return(&bad, nil).Once()

		err := svc.ProcessPaymentEvent(ctx, chargeEvent())
		assert.True(t, shared.IsKind(err, shared.KindInvalidRequest))
	})
}
